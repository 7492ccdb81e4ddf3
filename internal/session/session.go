// Package session tracks visitors across requests. A session lives in the
// "<prefix>sessions" table, is addressed by a random id stored in a cookie
// and expires after a period of inactivity.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/specialistvlad/infernum/internal/database"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultLifetime applies when the site sets no "session.lifetime".
const DefaultLifetime = 3600 * time.Second

// CookieSuffix is appended to the site's cookie prefix to name the cookie.
const CookieSuffix = "session"

// ErrDestroyed is returned by operations on a destroyed session.
var ErrDestroyed = errors.New("session destroyed")

// Observer is notified about every initialised session.
type Observer interface {
	IncrementSessionStarted(resumed bool)
}

// Options configures a Manager.
type Options struct {
	// CookiePrefix is the site's "cookie.prefix" setting.
	CookiePrefix string
	// Lifetime of new sessions; zero means DefaultLifetime.
	Lifetime time.Duration
	// Secure marks the cookie as HTTPS only.
	Secure bool
	// Now overrides the clock, for tests.
	Now func() time.Time
	// Observer is optional.
	Observer Observer
}

// Manager creates and resumes sessions.
type Manager struct {
	db       *database.DB
	cookie   string
	lifetime time.Duration
	secure   bool
	now      func() time.Time
	observer Observer
}

// NewManager creates a manager over db.
func NewManager(db *database.DB, opts Options) *Manager {
	m := &Manager{
		db:       db,
		cookie:   opts.CookiePrefix + CookieSuffix,
		lifetime: opts.Lifetime,
		secure:   opts.Secure,
		now:      opts.Now,
		observer: opts.Observer,
	}
	if m.lifetime <= 0 {
		m.lifetime = DefaultLifetime
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// CookieName is the name of the session cookie.
func (m *Manager) CookieName() string { return m.cookie }

// EnsureSchema creates the sessions table if it does not exist.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS <PREFIX>sessions (
	id       VARCHAR(64) PRIMARY KEY,
	user_id  BIGINT NOT NULL DEFAULT 0,
	lifetime BIGINT NOT NULL,
	expire   BIGINT NOT NULL,
	data     %s
)`, m.db.Dialect().Blob)
	if _, err := m.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	return nil
}

// Init purges expired sessions and then resumes the session named by the
// request cookie, or starts a new one. Unknown or malformed ids are never
// adopted; a fresh id is generated instead.
func (m *Manager) Init(ctx context.Context, req *http.Request) (*Session, error) {
	logger := ctxlog.FromContext(ctx)
	now := m.now()

	if _, err := m.db.Exec(ctx, "DELETE FROM <PREFIX>sessions WHERE expire <= ?", now.Unix()); err != nil {
		return nil, fmt.Errorf("failed to purge expired sessions: %w", err)
	}

	if c, err := req.Cookie(m.cookie); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			s, err := m.resume(ctx, c.Value, now)
			if err != nil {
				return nil, err
			}
			if s != nil {
				if err := s.Refresh(ctx); err != nil {
					return nil, err
				}
				logger.Debug("Session resumed.", "session", s.id)
				m.observe(true)
				return s, nil
			}
		}
	}

	s := &Session{m: m, id: uuid.NewString(), lifetime: m.lifetime, data: map[string]any{}}
	if _, err := m.db.Exec(ctx, "INSERT INTO <PREFIX>sessions (id, lifetime, expire) VALUES (?, ?, ?)",
		s.id, int64(s.lifetime/time.Second), s.Expire().Unix()); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	logger.Debug("Session created.", "session", s.id)
	m.observe(false)
	return s, nil
}

func (m *Manager) observe(resumed bool) {
	if m.observer != nil {
		m.observer.IncrementSessionStarted(resumed)
	}
}

// sessionRow is the stored part of a session.
type sessionRow struct {
	UserID   int64  `db:"user_id"`
	Lifetime int64  `db:"lifetime"`
	Data     []byte `db:"data"`
}

func (m *Manager) resume(ctx context.Context, id string, now time.Time) (*Session, error) {
	var row sessionRow
	err := m.db.Get(ctx, &row, "SELECT user_id, lifetime, data FROM <PREFIX>sessions WHERE id = ? AND expire > ?", id, now.Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	s := &Session{m: m, id: id, userID: row.UserID, lifetime: time.Duration(row.Lifetime) * time.Second, data: map[string]any{}}
	if len(row.Data) > 0 {
		if err := msgpack.Unmarshal(row.Data, &s.data); err != nil {
			ctxlog.FromContext(ctx).Warn("Discarding undecodable session data.", "session", id, "error", err)
			s.data = map[string]any{}
		}
	}
	return s, nil
}

// Session is one visitor's session.
type Session struct {
	m        *Manager
	id       string
	userID   int64
	lifetime time.Duration
	data     map[string]any
}

// ID returns the session id; empty once destroyed.
func (s *Session) ID() string { return s.id }

// Active reports whether the session has not been destroyed.
func (s *Session) Active() bool { return s.id != "" }

// UserID returns the assigned user, or 0.
func (s *Session) UserID() int64 { return s.userID }

// IsUserAssigned reports whether a user is logged in on this session.
func (s *Session) IsUserAssigned() bool { return s.userID > 0 }

// Lifetime returns the inactivity period after which the session expires.
func (s *Session) Lifetime() time.Duration { return s.lifetime }

// Expire is the moment the session expires if it is not refreshed.
func (s *Session) Expire() time.Time { return s.m.now().Add(s.lifetime) }

func (s *Session) exec(ctx context.Context, query string, args ...any) error {
	if !s.Active() {
		return ErrDestroyed
	}
	if _, err := s.m.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("session %s: %w", s.id, err)
	}
	return nil
}

// AssignUser binds the session to a user.
func (s *Session) AssignUser(ctx context.Context, userID int64) error {
	if err := s.exec(ctx, "UPDATE <PREFIX>sessions SET user_id = ? WHERE id = ?", userID, s.id); err != nil {
		return err
	}
	s.userID = userID
	return nil
}

// SetLifetime changes the lifetime and pushes the expiry accordingly.
func (s *Session) SetLifetime(ctx context.Context, d time.Duration) error {
	prev := s.lifetime
	s.lifetime = d
	if err := s.exec(ctx, "UPDATE <PREFIX>sessions SET lifetime = ?, expire = ? WHERE id = ?",
		int64(d/time.Second), s.Expire().Unix(), s.id); err != nil {
		s.lifetime = prev
		return err
	}
	return nil
}

// Refresh extends the session by its lifetime from now.
func (s *Session) Refresh(ctx context.Context) error {
	return s.exec(ctx, "UPDATE <PREFIX>sessions SET expire = ? WHERE id = ?", s.Expire().Unix(), s.id)
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key and persists the session data.
func (s *Session) Set(ctx context.Context, key string, value any) error {
	s.data[key] = value
	return s.save(ctx)
}

// Delete removes key and persists the session data.
func (s *Session) Delete(ctx context.Context, key string) error {
	delete(s.data, key)
	return s.save(ctx)
}

func (s *Session) save(ctx context.Context) error {
	blob, err := msgpack.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}
	return s.exec(ctx, "UPDATE <PREFIX>sessions SET data = ? WHERE id = ?", blob, s.id)
}

// Destroy deletes the session. The value is unusable afterwards.
func (s *Session) Destroy(ctx context.Context) error {
	if err := s.exec(ctx, "DELETE FROM <PREFIX>sessions WHERE id = ?", s.id); err != nil {
		return err
	}
	s.id = ""
	s.userID = 0
	s.lifetime = 0
	s.data = map[string]any{}
	return nil
}

// Cookie returns the cookie carrying the session id. A destroyed session
// yields a cookie that deletes the client's copy.
func (s *Session) Cookie() *http.Cookie {
	c := &http.Cookie{
		Name:     s.m.cookie,
		Value:    s.id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.m.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !s.Active() {
		c.MaxAge = -1
		return c
	}
	c.Expires = s.Expire()
	return c
}

type contextKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored in ctx, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok
}
