package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ShayCichocki/convoy/internal/ids"
	"github.com/ShayCichocki/convoy/pkg/models"
)

// ErrTokenExpired indicates a session token past its expiry. Callers must
// request a new session.
var ErrTokenExpired = errors.New("session token expired")

// SessionClaims is the JWT payload presenting a session across processes.
type SessionClaims struct {
	// SessionID is the session this token presents.
	SessionID string `json:"sid"`
	// DeviceID is the owning device.
	DeviceID string `json:"dev"`
	// Roles are the session's granted role ids.
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates session tokens. Expiry in the token
// mirrors the session record.
type TokenIssuer struct {
	secret []byte
	clock  ids.Clock
}

// NewTokenIssuer creates an issuer. A nil secret gets a random one, which
// is fine for single-process deployments.
func NewTokenIssuer(secret []byte, clock ids.Clock) *TokenIssuer {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		rand.Read(secret)
	}
	return &TokenIssuer{secret: secret, clock: clock}
}

// Mint signs a token for the session.
func (i *TokenIssuer) Mint(session *models.Session) (string, error) {
	claims := SessionClaims{
		SessionID: session.ID,
		DeviceID:  session.DeviceID,
		Roles:     append([]string(nil), session.Roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(session.GrantedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its claims. An expired token maps
// to ErrTokenExpired.
func (i *TokenIssuer) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.clock.Now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	return claims, nil
}
