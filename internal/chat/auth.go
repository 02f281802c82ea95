package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim written and required by an Authenticator.
const DefaultIssuer = "pubsock"

var (
	// ErrMissingToken is returned for an empty token string.
	ErrMissingToken = errors.New("chat: token is required")

	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("chat: token is invalid")

	// ErrExpiredToken is returned when a token's exp has passed.
	ErrExpiredToken = errors.New("chat: token is expired")
)

// Member identifies an authenticated chat participant.
type Member struct {
	ID   string
	Name string
}

type memberClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
}

// Authenticator issues and verifies HS256 member tokens.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthenticator returns an Authenticator keyed by secret.
func NewAuthenticator(secret []byte) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("chat: token secret is required")
	}
	return &Authenticator{
		secret: append([]byte(nil), secret...),
		issuer: DefaultIssuer,
		now:    time.Now,
	}, nil
}

// Issue signs a token for m valid for ttl.
func (a *Authenticator) Issue(m Member, ttl time.Duration) (string, error) {
	if strings.TrimSpace(m.ID) == "" || strings.TrimSpace(m.Name) == "" {
		return "", errors.New("chat: member id and name are required")
	}
	if ttl <= 0 {
		return "", errors.New("chat: token ttl must be positive")
	}
	now := a.now()
	claims := memberClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   m.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: m.Name,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("chat: sign token: %w", err)
	}
	return token, nil
}

// Verify checks the signature, issuer and expiry of token and returns the
// member it names.
func (a *Authenticator) Verify(token string) (Member, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Member{}, ErrMissingToken
	}

	var parsed memberClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return Member{}, mapJWTError(err)
	}
	if parsed.Subject == "" || strings.TrimSpace(parsed.Name) == "" {
		return Member{}, fmt.Errorf("%w: missing subject or name", ErrInvalidToken)
	}
	return Member{ID: parsed.Subject, Name: parsed.Name}, nil
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredToken
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}
