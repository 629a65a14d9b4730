// Package session keeps the client's view of "is this user signed in, and as
// whom" consistent with the cookie-backed server session. A local mirror lets
// a fresh process show the last known identity before the server confirms it;
// the server always wins.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joescharf/neotutor/internal/backend"
	"github.com/joescharf/neotutor/internal/models"
)

// Mirror keys. Both are written and erased together.
const (
	KeyAuthenticated = "isLoggedIn"
	KeyUser          = "user"
)

// ErrAuthRequired is returned by Require when the access gate is closed.
var ErrAuthRequired = errors.New("not signed in")

// Authenticator is the subset of the backend the manager calls.
type Authenticator interface {
	Me(ctx context.Context) (*models.User, error)
	SignIn(ctx context.Context, req backend.SignInRequest) error
	SignUp(ctx context.Context, req backend.SignUpRequest) error
	SignOut(ctx context.Context) error
	ClearSession(ctx context.Context) error
}

// Mirror is the persisted key/value cache of session state.
type Mirror interface {
	GetMirror(ctx context.Context, key string) (string, bool, error)
	SetMirror(ctx context.Context, key, value string) error
	DeleteMirror(ctx context.Context, keys ...string) error
}

// State is a snapshot of the session.
type State struct {
	Authenticated bool
	User          *models.User
}

// CanAccess reports whether a protected view may render for st.
func CanAccess(st State) bool {
	return st.Authenticated && st.User != nil
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithVerifyOnStart makes Initialize reconcile even when the mirror holds a
// complete snapshot.
func WithVerifyOnStart(v bool) Option {
	return func(m *Manager) { m.verifyOnStart = v }
}

// Manager owns the session state. Create one per process with New.
type Manager struct {
	auth          Authenticator
	mirror        Mirror
	logger        *slog.Logger
	verifyOnStart bool

	mu    sync.RWMutex
	state State

	// tmu serializes transitions so memory and the mirror change together.
	// gen advances on every logout; a reconcile started under an older
	// generation is dropped.
	tmu sync.Mutex
	gen uint64
}

// New creates a Manager with an empty, signed-out state.
func New(auth Authenticator, mirror Mirror, opts ...Option) *Manager {
	m := &Manager{
		auth:   auth,
		mirror: mirror,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Initialize restores state from the mirror and reconciles with the server
// when the mirror claims a session but holds no profile, or when
// verify-on-start is enabled.
func (m *Manager) Initialize(ctx context.Context) State {
	m.tmu.Lock()
	st := m.readMirror(ctx)
	m.set(st)
	m.tmu.Unlock()

	if st.Authenticated && (st.User == nil || m.verifyOnStart) {
		return m.Reconcile(ctx)
	}
	return st
}

// Peek returns the mirrored state without touching memory or the network.
func (m *Manager) Peek(ctx context.Context) State {
	return m.readMirror(ctx)
}

// Teardown drops in-memory state. The mirror is left for the next process.
func (m *Manager) Teardown() {
	m.tmu.Lock()
	defer m.tmu.Unlock()
	m.set(State{})
}

// Reconcile re-derives the session from the server. Any failure collapses
// to signed out; it never returns an error.
func (m *Manager) Reconcile(ctx context.Context) State {
	m.tmu.Lock()
	gen := m.gen
	m.tmu.Unlock()

	u, err := m.auth.Me(ctx)

	m.tmu.Lock()
	defer m.tmu.Unlock()
	if gen != m.gen {
		m.logger.Debug("dropping reconcile result from before logout")
		return m.State()
	}
	if err != nil {
		m.logger.Debug("session reconcile failed", "error", err)
		m.clearLocked(ctx)
		return State{}
	}

	st := State{Authenticated: true, User: u}
	m.set(st)
	if err := m.writeMirror(ctx, st); err != nil {
		m.logger.Warn("failed to persist session mirror", "error", err)
	}
	m.logger.Debug("session reconciled", "user", u.Name)
	return st
}

// Login marks the session authenticated after a successful credential
// exchange and reconciles to fetch the profile.
func (m *Manager) Login(ctx context.Context) State {
	m.tmu.Lock()
	m.mu.Lock()
	m.state.Authenticated = true
	m.mu.Unlock()
	if err := m.mirror.SetMirror(ctx, KeyAuthenticated, "true"); err != nil {
		m.logger.Warn("failed to persist session flag", "error", err)
	}
	m.tmu.Unlock()

	return m.Reconcile(ctx)
}

// SignIn performs the credential exchange and then Login.
func (m *Manager) SignIn(ctx context.Context, name, password string) (State, error) {
	if err := m.auth.SignIn(ctx, backend.SignInRequest{Name: name, Password: password}); err != nil {
		return m.State(), fmt.Errorf("sign in: %w", err)
	}
	return m.Login(ctx), nil
}

// SignUp registers a new account and then Login.
func (m *Manager) SignUp(ctx context.Context, name, githubUsername, password string) (State, error) {
	req := backend.SignUpRequest{Name: name, GitHubUsername: githubUsername, Password: password}
	if err := m.auth.SignUp(ctx, req); err != nil {
		return m.State(), fmt.Errorf("sign up: %w", err)
	}
	return m.Login(ctx), nil
}

// Logout ends the server session and always clears local state, even when
// the sign-out call fails. The returned error is informational only.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.auth.SignOut(ctx)
	if err != nil {
		m.logger.Warn("sign out request failed; clearing local session anyway", "error", err)
	}

	m.tmu.Lock()
	m.gen++
	m.clearLocked(ctx)
	m.tmu.Unlock()

	if cerr := m.auth.ClearSession(ctx); cerr != nil {
		m.logger.Warn("failed to clear session cookies", "error", cerr)
	}
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// State returns a snapshot of the current session.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.state
	if st.User != nil {
		u := *st.User
		st.User = &u
	}
	return st
}

// IsAuthenticated reports the authenticated flag.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Authenticated
}

// CurrentUser returns the signed-in profile, or nil.
func (m *Manager) CurrentUser() *models.User {
	return m.State().User
}

// Require returns ErrAuthRequired unless a protected view may render.
func (m *Manager) Require() error {
	if !CanAccess(m.State()) {
		return ErrAuthRequired
	}
	return nil
}

func (m *Manager) set(st State) {
	if st.User != nil {
		st.Authenticated = true
	}
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
}

// clearLocked erases memory and the mirror. Callers hold tmu.
func (m *Manager) clearLocked(ctx context.Context) {
	m.set(State{})
	if err := m.mirror.DeleteMirror(ctx, KeyAuthenticated, KeyUser); err != nil {
		m.logger.Warn("failed to erase session mirror", "error", err)
	}
}

// readMirror loads the cached state. A profile without the flag, or a
// profile that does not parse, is ignored.
func (m *Manager) readMirror(ctx context.Context) State {
	flag, _, err := m.mirror.GetMirror(ctx, KeyAuthenticated)
	if err != nil {
		m.logger.Warn("failed to read session mirror", "error", err)
		return State{}
	}
	if flag != "true" {
		return State{}
	}

	st := State{Authenticated: true}
	raw, ok, err := m.mirror.GetMirror(ctx, KeyUser)
	if err != nil || !ok {
		return st
	}
	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		m.logger.Debug("ignoring unreadable user snapshot", "error", err)
		return st
	}
	st.User = &u
	return st
}

func (m *Manager) writeMirror(ctx context.Context, st State) error {
	data, err := json.Marshal(st.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := m.mirror.SetMirror(ctx, KeyUser, string(data)); err != nil {
		return err
	}
	return m.mirror.SetMirror(ctx, KeyAuthenticated, "true")
}
