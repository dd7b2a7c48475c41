// Package jwt implements identity.Authenticator with HS256-signed access tokens.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/identity"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "statusboard"

// Config holds JWT settings.
type Config struct {
	SecretKey           string
	AccessTokenDuration time.Duration
}

// Claims are the claims carried by an access token.
type Claims struct {
	Email          string `json:"email"`
	OrganizationID string `json:"organization_id"`
	jwtlib.RegisteredClaims
}

// Authenticator issues and validates access tokens.
type Authenticator struct {
	config Config
	now    func() time.Time
}

// NewAuthenticator creates a new JWT authenticator.
func NewAuthenticator(config Config) *Authenticator {
	return &Authenticator{config: config, now: time.Now}
}

// Type returns the authenticator type.
func (a *Authenticator) Type() string {
	return "jwt"
}

// GenerateToken issues an access token for user.
func (a *Authenticator) GenerateToken(_ context.Context, user *domain.User) (string, error) {
	now := a.now()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{
		Email:          user.Email,
		OrganizationID: user.OrganizationID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(a.config.AccessTokenDuration)),
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks the signature and expiry of token and returns its subject.
func (a *Authenticator) ValidateToken(_ context.Context, token string) (string, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(a.config.SecretKey), nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token has expired", identity.ErrInvalidToken)
		}
		return "", identity.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", identity.ErrInvalidToken
	}
	return claims.Subject, nil
}
