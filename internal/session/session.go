// Package session holds per-operator application state behind signed
// bearer tokens.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/civiceye/civiceye/internal/classifier"
	"github.com/civiceye/civiceye/internal/geocode"
	"github.com/civiceye/civiceye/internal/intake"
	"github.com/civiceye/civiceye/internal/location"
	"github.com/civiceye/civiceye/internal/report"
	"github.com/civiceye/civiceye/internal/retry"
	"github.com/civiceye/civiceye/internal/review"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "civiceye"

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNotFound     = errors.New("session not found")
)

// Recorder observes session and pipeline events. metrics.Pipeline implements it.
type Recorder interface {
	intake.Recorder
	review.Recorder
	SetActiveSessions(n int)
}

// Deps are shared by every session. Geocoder and Recorder may be nil.
type Deps struct {
	Classifier  classifier.Classifier
	Geocoder    geocode.Geocoder
	Dispatcher  review.Dispatcher
	RetryPolicy retry.Policy
	Recorder    Recorder
	Logger      *slog.Logger
}

// Config controls session lifetime and the per-session intake policy.
type Config struct {
	JWTSecret     string
	TTL           time.Duration
	DeviceTimeout time.Duration
	Intake        intake.Config
}

// Claims represents the JWT claims of a session token.
type Claims struct {
	SessionID string `json:"session_id"`
	Operator  string `json:"operator"`
	jwt.RegisteredClaims
}

// AppState is everything one operator works with between login and logout.
type AppState struct {
	ID        string
	Operator  string
	CreatedAt time.Time
	ExpiresAt time.Time

	Store   *report.Store
	Form    *intake.Form
	Review  *review.Workflow
	Locator *location.PushLocator
}

// Manager creates, resolves and retires sessions.
type Manager struct {
	cfg    Config
	deps   Deps
	secret []byte

	mu       sync.RWMutex
	sessions map[string]*AppState
}

// NewManager creates a manager. An empty JWTSecret is replaced with a random
// one, which invalidates tokens across restarts.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		deps.Logger.Warn("SESSION_JWT_SECRET not set, using a random secret")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		secret:   secret,
		sessions: make(map[string]*AppState),
	}, nil
}

// Login opens a session for operator. No credentials are checked.
func (m *Manager) Login(operator string) (string, *AppState, error) {
	if operator == "" {
		operator = "operator"
	}
	now := time.Now()
	st := m.newState(uuid.NewString(), operator, now)

	claims := Claims{
		SessionID: st.ID,
		Operator:  operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        st.ID,
			ExpiresAt: jwt.NewNumericDate(st.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}

	st.Form.Open()

	m.mu.Lock()
	m.sessions[st.ID] = st
	n := len(m.sessions)
	m.mu.Unlock()
	m.recordActive(n)

	m.deps.Logger.Info("session opened", "session_id", st.ID, "operator", operator)
	return token, st, nil
}

func (m *Manager) newState(id, operator string, now time.Time) *AppState {
	logger := m.deps.Logger.With("session_id", id)
	locator := location.NewPushLocator()
	store := report.NewStore()

	var (
		intakeRec intake.Recorder
		reviewRec review.Recorder
	)
	if m.deps.Recorder != nil {
		intakeRec, reviewRec = m.deps.Recorder, m.deps.Recorder
	}

	form := intake.NewForm(m.cfg.Intake, intake.Deps{
		Resolver:   location.NewResolver(locator, m.cfg.DeviceTimeout, logger),
		Locator:    locator,
		Classifier: m.deps.Classifier,
		Geocoder:   m.deps.Geocoder,
		Builder:    report.NewBuilder(),
		Store:      store,
		Recorder:   intakeRec,
		Logger:     logger,
	})

	return &AppState{
		ID:        id,
		Operator:  operator,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
		Store:     store,
		Form:      form,
		Review:    review.NewWorkflow(store, m.deps.Dispatcher, m.deps.RetryPolicy, reviewRec, logger),
		Locator:   locator,
	}
}

// Get validates token and returns its live session.
func (m *Manager) Get(token string) (*AppState, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	m.mu.RLock()
	st, ok := m.sessions[claims.SessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(st.ExpiresAt) {
		m.remove(st.ID)
		return nil, ErrInvalidToken
	}
	return st, nil
}

// Logout clears the session's reports and forgets it.
func (m *Manager) Logout(id string) error {
	if !m.remove(id) {
		return ErrNotFound
	}
	m.deps.Logger.Info("session closed", "session_id", id)
	return nil
}

// Sweep removes sessions that expired before now and returns how many.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.RLock()
	var expired []string
	for id, st := range m.sessions {
		if now.After(st.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		if m.remove(id) {
			removed++
		}
	}
	if removed > 0 {
		m.deps.Logger.Info("expired sessions swept", "count", removed)
	}
	return removed
}

// Sessions returns the live sessions, oldest first.
func (m *Manager) Sessions() []*AppState {
	m.mu.RLock()
	out := make([]*AppState, 0, len(m.sessions))
	for _, st := range m.sessions {
		out = append(out, st)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close retires every session.
func (m *Manager) Close() {
	for _, st := range m.Sessions() {
		m.remove(st.ID)
	}
}

func (m *Manager) remove(id string) bool {
	m.mu.Lock()
	st, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return false
	}
	st.Form.Close()
	st.Review.Clear()
	st.Store.Reset()
	m.recordActive(n)
	return true
}

func (m *Manager) recordActive(n int) {
	if m.deps.Recorder != nil {
		m.deps.Recorder.SetActiveSessions(n)
	}
}
