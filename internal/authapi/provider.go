package authapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/diagnosis/autoescola/internal/session"
	"github.com/diagnosis/autoescola/pkg/auth"
	"github.com/diagnosis/autoescola/pkg/logger"
)

// Provider keeps the remote session for a Client and reports changes to
// registered listeners. Listeners run after the provider lock is released.
type Provider struct {
	client *Client
	store  TokenStore
	now    func() time.Time

	mu        sync.Mutex
	listeners map[int]session.Listener
	nextID    int
}

func NewProvider(client *Client, store TokenStore) *Provider {
	return &Provider{
		client:    client,
		store:     store,
		now:       time.Now,
		listeners: make(map[int]session.Listener),
	}
}

// GetSession restores the stored token and confirms it with the backend.
// Expired or rejected tokens are discarded and reported as no session.
func (p *Provider) GetSession(ctx context.Context) (*session.Session, error) {
	token, err := p.store.Load()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}

	var expiresAt *time.Time
	if claims, err := auth.PeekClaims(token); err == nil {
		if claims.Expired(p.now()) {
			logger.DebugContext(ctx, "Stored session token expired")
			p.discard()
			return nil, nil
		}
		if claims.ExpiresAt != nil {
			t := claims.ExpiresAt.Time
			expiresAt = &t
		}
	}

	p.client.SetToken(token)
	me, err := p.client.Me(ctx)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			p.discard()
			return nil, nil
		}
		return nil, fmt.Errorf("restore session: %w", err)
	}

	return &session.Session{User: toUser(me), Token: token, ExpiresAt: expiresAt}, nil
}

func (p *Provider) OnAuthStateChange(fn session.Listener) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	res, err := p.client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	// Cookie-only sessions cannot be restored or sent to the bookings service.
	token := res.AccessToken
	if token == "" {
		if err := p.client.Logout(ctx); err != nil {
			logger.DebugContext(ctx, "Logout of tokenless session failed", "error", err)
		}
		return nil, ErrNoToken
	}
	p.client.SetToken(token)

	user := res.User
	if user == nil {
		if user, err = p.client.Me(ctx); err != nil {
			return nil, fmt.Errorf("load signed-in user: %w", err)
		}
	}

	sess := &session.Session{User: toUser(user), Token: token}
	if claims, err := auth.PeekClaims(token); err == nil && claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		sess.ExpiresAt = &t
	}

	if err := p.store.Save(token); err != nil {
		logger.WarnContext(ctx, "Failed to persist session token", "error", err)
	}

	p.emit(session.EventSignedIn, sess)
	return sess, nil
}

// SignOut always drops the local session. The backend error, if any, is returned.
func (p *Provider) SignOut(ctx context.Context) error {
	err := p.client.Logout(ctx)
	if err != nil {
		logger.WarnContext(ctx, "Remote logout failed", "error", err)
	}

	p.discard()
	p.emit(session.EventSignedOut, nil)
	return err
}

func (p *Provider) discard() {
	p.client.SetToken("")
	if err := p.store.Clear(); err != nil {
		logger.Warn("Failed to clear session token", "error", err)
	}
}

func (p *Provider) emit(event session.Event, sess *session.Session) {
	p.mu.Lock()
	fns := make([]session.Listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(event, sess)
	}
}

func toUser(u *UserInfo) session.User {
	return session.User{ID: string(u.ID), Email: u.Email, FullName: u.FullName}
}
