package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/diagnosis/autoescola/internal/accounts"
	"github.com/diagnosis/autoescola/internal/authapi"
	"github.com/diagnosis/autoescola/internal/bookingsapi"
	"github.com/diagnosis/autoescola/internal/roles"
	"github.com/diagnosis/autoescola/internal/session"
	"github.com/diagnosis/autoescola/pkg/logger"
)

var errNotSignedIn = errors.New("not signed in")

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	authURL     string
	bookingsURL string
	tokenFile   string
	timeout     time.Duration
	logLevel    string
	staffOnly   bool
}

// app holds the per-invocation session stack.
type app struct {
	opts     *globalOptions
	out      io.Writer
	client   *authapi.Client
	provider *authapi.Provider
	manager  *session.Manager
}

func newApp(ctx context.Context, opts *globalOptions, out, errOut io.Writer) (*app, error) {
	logger.SetDefault(logger.New(errOut, opts.logLevel))

	client, err := authapi.NewClient(opts.authURL, opts.timeout)
	if err != nil {
		return nil, err
	}

	path := opts.tokenFile
	if path == "" {
		if path, err = authapi.DefaultTokenPath(); err != nil {
			return nil, fmt.Errorf("resolve token path: %w", err)
		}
	}

	provider := authapi.NewProvider(client, authapi.NewFileTokenStore(path))

	var mopts []session.Option
	if opts.staffOnly {
		mopts = append(mopts, session.WithSignUpPolicy(accounts.StaffOnlySignUpPolicy()))
	}
	manager := session.NewManager(provider, roles.NewAPILookup(client), client, mopts...)

	// A failed restore is logged by the manager; commands run signed out.
	_ = manager.Init(ctx)

	return &app{opts: opts, out: out, client: client, provider: provider, manager: manager}, nil
}

func (a *app) Close() {
	a.manager.Close()
}

// bookings returns a bookings client bound to the current session token.
func (a *app) bookings() (*bookingsapi.Client, error) {
	st := a.manager.State()
	if !st.SignedIn() {
		return nil, errNotSignedIn
	}
	return bookingsapi.NewClient(a.opts.bookingsURL, st.Session.Token, a.opts.timeout), nil
}

func (a *app) printNotice(n accounts.Notice) {
	fmt.Fprintf(a.out, "%s\n%s\n", n.Title, n.Message)
}
