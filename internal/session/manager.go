package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/diagnosis/autoescola/internal/accounts"
	"github.com/diagnosis/autoescola/pkg/logger"
)

var (
	ErrAlreadyStarted = errors.New("session manager already initialized")
	ErrClosed         = errors.New("session manager closed")
)

const roleFetchTimeout = 10 * time.Second

// SignUpResult reports what happened after a successful registration.
type SignUpResult struct {
	SignedIn   bool
	RedirectTo string
}

// Manager tracks the current session and the role derived from it.
//
// The lifecycle is explicit: construct with NewManager, call Init once to
// restore any existing session and start listening for changes, and Close
// when done. Role lookups run synchronously in the change handler, so by the
// time SignIn returns the role of the new session is known (or left as it was
// if the lookup failed).
type Manager struct {
	provider  Provider
	roles     RoleLookup
	registrar Registrar
	policy    accounts.SignUpPolicy

	mu          sync.RWMutex
	state       State
	started     bool
	closed      bool
	unsubscribe func()

	roleGroup singleflight.Group

	subsMu  sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

type Option func(*Manager)

func WithSignUpPolicy(p accounts.SignUpPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

func NewManager(provider Provider, roles RoleLookup, registrar Registrar, opts ...Option) *Manager {
	m := &Manager{
		provider:  provider,
		roles:     roles,
		registrar: registrar,
		policy:    accounts.DefaultSignUpPolicy(),
		state:     State{Loading: true},
		subs:      make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init restores the session once, resolves its role, then subscribes to
// provider changes. A restore failure leaves the manager signed out but
// listening, and is returned to the caller.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	sess, restoreErr := m.provider.GetSession(ctx)
	if restoreErr != nil {
		logger.WarnContext(ctx, "Session restore failed", "error", restoreErr)
		sess = nil
	}

	m.applySession(sess)
	if sess != nil {
		m.refreshRole(ctx, sess.User.ID)
	}

	unsubscribe := m.provider.OnAuthStateChange(m.handleAuthChange)

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.state.Loading = false
	m.mu.Unlock()

	m.notify()
	return restoreErr
}

// Close stops listening for provider changes. It is safe to call twice.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	m.subsMu.Lock()
	m.subs = make(map[int]func(State))
	m.subsMu.Unlock()
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Subscribe registers fn to receive every state change.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

// SignIn validates the credentials locally and delegates to the provider.
// State changes arrive through the provider's change notification.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	creds := accounts.Credentials{Email: email, Password: password}
	creds.Normalize()
	if err := creds.Validate(); err != nil {
		return err
	}

	if _, err := m.provider.SignInWithPassword(ctx, creds.Email, creds.Password); err != nil {
		return err
	}
	return nil
}

// SignUp validates and submits a registration, then signs in with the same
// credentials. A failed automatic sign-in does not fail the registration.
func (m *Manager) SignUp(ctx context.Context, reg accounts.Registration) (*SignUpResult, error) {
	reg.Normalize()
	if err := reg.Validate(m.policy); err != nil {
		return nil, err
	}

	if err := m.registrar.Register(ctx, &reg); err != nil {
		return nil, err
	}

	if _, err := m.provider.SignInWithPassword(ctx, reg.Email, reg.Password); err != nil {
		logger.WarnContext(ctx, "Automatic sign-in after registration failed", "error", err, "role", reg.Role)
		return &SignUpResult{}, nil
	}
	return &SignUpResult{SignedIn: true, RedirectTo: "/"}, nil
}

// SignOut ends the remote session and clears the local role even when the
// remote call fails.
func (m *Manager) SignOut(ctx context.Context) error {
	err := m.provider.SignOut(ctx)

	m.mu.Lock()
	m.state.Role = ""
	m.mu.Unlock()
	m.notify()

	return err
}

func (m *Manager) handleAuthChange(event Event, sess *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), roleFetchTimeout)
	defer cancel()

	logger.DebugContext(ctx, "Auth state changed", "event", string(event), "signed_in", sess != nil)

	m.applySession(sess)
	if sess != nil {
		m.refreshRole(ctx, sess.User.ID)
	}
	m.notify()
}

func (m *Manager) applySession(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess == nil {
		m.state.Session = nil
		m.state.User = nil
		m.state.Role = ""
		return
	}
	s := *sess
	u := s.User
	m.state.Session = &s
	m.state.User = &u
}

// refreshRole looks up the role for userID. Failures keep the previous role.
func (m *Manager) refreshRole(ctx context.Context, userID string) {
	v, err, _ := m.roleGroup.Do(userID, func() (interface{}, error) {
		return m.roles.LookupRole(ctx, userID)
	})
	if err != nil {
		logger.WarnContext(ctx, "Role lookup failed", "error", err, "user_id", userID)
		return
	}
	role := v.(accounts.Role)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.User == nil || m.state.User.ID != userID {
		return
	}
	m.state.Role = role
}

func (m *Manager) snapshotLocked() State {
	st := State{Role: m.state.Role, Loading: m.state.Loading}
	if m.state.Session != nil {
		s := *m.state.Session
		st.Session = &s
	}
	if m.state.User != nil {
		u := *m.state.User
		st.User = &u
	}
	return st
}

func (m *Manager) notify() {
	st := m.State()

	m.subsMu.Lock()
	fns := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
