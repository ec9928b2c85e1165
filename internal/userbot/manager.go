package userbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gotd/td/telegram/auth"

	"telepost/internal/domain"
	"telepost/internal/observability"
	"telepost/internal/store"
)

// loginConn is the slice of a live connection the login state machine
// needs. The gotd implementation lives in gotd.go; tests substitute fakes.
type loginConn interface {
	SendCode(ctx context.Context, phone string) (codeHash, deliveryHint string, err error)
	SignIn(ctx context.Context, phone, code, codeHash string) error
	Password(ctx context.Context, password string) error
	Self(ctx context.Context) (domain.Identity, error)
	SessionBlob(ctx context.Context) ([]byte, error)
	Close()
}

type dialFunc func(ctx context.Context) (loginConn, error)

// pendingLogin is a login that has requested a code but not finished.
// Holding the code hash and the live connection together (instead of
// inferring the step from whichever fields happen to be set) keeps
// invalid state combinations unrepresentable.
type pendingLogin struct {
	phone     string
	codeHash  string
	conn      loginConn
	startedAt time.Time
}

// Manager drives the phone → code → optional-password login flow and owns
// the persisted session per owner.
type Manager struct {
	AppID   int
	AppHash string
	Store   SessionStore

	// DialFn overrides the gotd dialer in tests.
	DialFn dialFunc

	mu      sync.Mutex
	pending map[string]*pendingLogin
}

func NewManager(appID int, appHash string, st SessionStore) *Manager {
	return &Manager{AppID: appID, AppHash: appHash, Store: st}
}

func (m *Manager) configured() bool { return m.AppID != 0 && m.AppHash != "" }

func (m *Manager) dial(ctx context.Context) (loginConn, error) {
	if m.DialFn != nil {
		return m.DialFn(ctx)
	}
	return dialTransient(ctx, m.AppID, m.AppHash)
}

// StartAuth opens a fresh transient connection and requests a login code.
// A previous pending login for the same owner is stopped and replaced.
func (m *Manager) StartAuth(ctx context.Context, ownerID, phone string) (domain.StartAuthResponse, error) {
	if !m.configured() {
		return domain.StartAuthResponse{}, domain.ErrNotConfigured
	}

	c, err := m.dial(ctx)
	if err != nil {
		return domain.StartAuthResponse{}, fmt.Errorf("connect: %w", err)
	}

	codeHash, hint, err := c.SendCode(ctx, phone)
	if err != nil {
		c.Close()
		return domain.StartAuthResponse{}, fmt.Errorf("request code: %w", err)
	}

	m.mu.Lock()
	if m.pending == nil {
		m.pending = make(map[string]*pendingLogin)
	}
	if prev, ok := m.pending[ownerID]; ok {
		prev.conn.Close()
	}
	m.pending[ownerID] = &pendingLogin{
		phone:     phone,
		codeHash:  codeHash,
		conn:      c,
		startedAt: time.Now(),
	}
	m.mu.Unlock()

	observability.AuthEvents.WithLabelValues("code_requested").Inc()
	slog.Info("login code requested", "owner_id", ownerID, "delivery", hint)
	return domain.StartAuthResponse{CodeHash: codeHash, DeliveryHint: hint}, nil
}

// CompleteAuth signs in with the code, handles the optional second-factor
// challenge, persists the resulting credential and discards the transient
// connection. A wrong code or missing password keeps the pending login
// alive so the caller can retry with the same code hash.
func (m *Manager) CompleteAuth(ctx context.Context, req domain.CompleteAuthRequest) (domain.Identity, error) {
	m.mu.Lock()
	p := m.pending[req.OwnerID]
	m.mu.Unlock()
	if p == nil || p.codeHash != req.CodeHash {
		return domain.Identity{}, domain.ErrLoginExpired
	}

	err := p.conn.SignIn(ctx, req.Phone, req.Code, req.CodeHash)
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		if req.Password == "" {
			observability.AuthEvents.WithLabelValues("second_factor_required").Inc()
			return domain.Identity{}, domain.ErrSecondFactorRequired
		}
		err = p.conn.Password(ctx, req.Password)
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("sign in: %w", err)
	}

	identity, err := p.conn.Self(ctx)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("fetch identity: %w", err)
	}
	blob, err := p.conn.SessionBlob(ctx)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("serialize session: %w", err)
	}

	if err := m.Store.UpsertSession(ctx, store.SessionUpsert{
		OwnerID:        req.OwnerID,
		CredentialBlob: blob,
		PhoneNumber:    req.Phone,
		ExternalUserID: identity.UserID,
		Now:            time.Now(),
	}); err != nil {
		return domain.Identity{}, fmt.Errorf("persist session: %w", err)
	}

	m.mu.Lock()
	if cur := m.pending[req.OwnerID]; cur == p {
		delete(m.pending, req.OwnerID)
	}
	m.mu.Unlock()
	p.conn.Close()

	observability.AuthEvents.WithLabelValues("authenticated").Inc()
	slog.Info("session authenticated", "owner_id", req.OwnerID, "user_id", identity.UserID)
	return identity, nil
}

// Logout signs out remotely on a best-effort basis, then unconditionally
// deletes the persisted session and any pending login.
func (m *Manager) Logout(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	if p, ok := m.pending[ownerID]; ok {
		p.conn.Close()
		delete(m.pending, ownerID)
	}
	m.mu.Unlock()

	if m.configured() {
		if err := m.remoteLogout(ctx, ownerID); err != nil {
			slog.Warn("remote logout failed, deleting session anyway", "owner_id", ownerID, "err", err)
		}
	}

	observability.AuthEvents.WithLabelValues("logged_out").Inc()
	return m.Store.DeleteSession(ctx, ownerID)
}

// HasSession reports whether a live persisted session exists for the owner.
func (m *Manager) HasSession(ctx context.Context, ownerID string) (bool, error) {
	sess, found, err := m.Store.GetSession(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return found && sess.IsActive, nil
}
