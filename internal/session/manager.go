package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-chatbot/internal/identity"
	"go-chatbot/internal/metrics"
	"go-chatbot/internal/security"
)

const (
	DefaultTTL = 60 * time.Minute

	// nonceTimeLayout is the issuance timestamp format embedded in the session id.
	nonceTimeLayout = "2006-01-02 15:04:05"
)

var (
	ErrTamperedOrMalformed = errors.New("session token tampered or malformed")
	ErrMissingClaims       = errors.New("session token claims missing")
	ErrSessionNotFound     = errors.New("session not found")
	ErrExpired             = errors.New("session token expired")
)

// Sealer hides claim values inside the token.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(wrapped string) (string, error)
}

// Claims carries envelope-encrypted identity fields next to plaintext
// validity bounds. Expiry is enforced by Manager, not by the jwt parser.
type Claims struct {
	UserID     string `json:"UserId"`
	SessionID  string `json:"SessionID"`
	StartDate  string `json:"StartDate"`
	ExpiryDate string `json:"ExpiryDate"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret   []byte
	sealer   Sealer
	registry *Registry
	ttl      time.Duration
	now      func() time.Time
	newNonce func() string
}

type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func NewManager(secret string, sealer Sealer, registry *Registry, opts ...Option) *Manager {
	m := &Manager{
		secret:   []byte(secret),
		sealer:   sealer,
		registry: registry,
		ttl:      DefaultTTL,
		now:      time.Now,
		newNonce: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue mints a signed token for u and records it in the registry.
func (m *Manager) Issue(u identity.User) (string, error) {
	start := m.now().UTC()
	expiry := start.Add(m.ttl)

	userID, err := m.sealer.Seal(u.Email)
	if err != nil {
		return "", fmt.Errorf("seal user id: %w", err)
	}
	sessionID, err := m.sealer.Seal(m.newNonce() + "#" + start.Format(nonceTimeLayout))
	if err != nil {
		return "", fmt.Errorf("seal session id: %w", err)
	}

	claims := Claims{
		UserID:     userID,
		SessionID:  sessionID,
		StartDate:  start.Format(time.RFC3339Nano),
		ExpiryDate: expiry.Format(time.RFC3339Nano),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", err
	}

	m.registry.Put(security.SHA1Hex(token), u)
	metrics.SessionsIssued.Inc()
	return token, nil
}

// Verify checks the signature, registry presence, sealed claims and expiry,
// in that order. Claim and expiry failures drop the registry entry. The
// returned identity comes from the registry, not from the token.
func (m *Manager) Verify(raw string) (identity.User, error) {
	u, err := m.verify(raw)
	metrics.SessionVerifications.WithLabelValues(verifyResult(err)).Inc()
	return u, err
}

func (m *Manager) verify(raw string) (identity.User, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithStrictDecoding())
	if err != nil || !tok.Valid {
		return identity.User{}, fmt.Errorf("%w: %v", ErrTamperedOrMalformed, err)
	}

	key := security.SHA1Hex(raw)
	u, ok := m.registry.Get(key)
	if !ok {
		return identity.User{}, ErrSessionNotFound
	}

	userID, err := m.sealer.Open(claims.UserID)
	if err != nil {
		return m.invalidate(key, fmt.Errorf("%w: user id: %v", ErrMissingClaims, err))
	}
	sessionID, err := m.sealer.Open(claims.SessionID)
	if err != nil {
		return m.invalidate(key, fmt.Errorf("%w: session id: %v", ErrMissingClaims, err))
	}
	if userID == "" || sessionID == "" {
		return m.invalidate(key, ErrMissingClaims)
	}

	expiry, err := time.Parse(time.RFC3339Nano, claims.ExpiryDate)
	if err != nil {
		return m.invalidate(key, fmt.Errorf("%w: expiry date: %v", ErrMissingClaims, err))
	}
	if m.now().After(expiry) {
		return m.invalidate(key, ErrExpired)
	}
	return u, nil
}

// Revoke forgets the token. Unknown tokens are fine.
func (m *Manager) Revoke(raw string) {
	m.registry.Delete(security.SHA1Hex(raw))
}

// ActiveSessions reports the registry size.
func (m *Manager) ActiveSessions() int {
	return m.registry.Len()
}

func (m *Manager) invalidate(key string, cause error) (identity.User, error) {
	m.registry.Delete(key)
	return identity.User{}, cause
}

func verifyResult(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errors.Is(err, ErrTamperedOrMalformed):
		return "tampered"
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrMissingClaims):
		return "missing_claims"
	case errors.Is(err, ErrExpired):
		return "expired"
	default:
		return "error"
	}
}
