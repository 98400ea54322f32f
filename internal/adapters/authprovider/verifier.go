package authprovider

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"enjoyhub/internal/domain"
)

// Verifier checks HS256 access tokens signed with the project's JWT secret.
type Verifier struct {
	secret   []byte
	audience string
	now      func() time.Time
}

func NewVerifier(secret, audience string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth: JWT secret is required")
	}
	return &Verifier{secret: []byte(secret), audience: audience, now: time.Now}, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email       string `json:"email"`
	AppMetadata struct {
		Role string `json:"role"`
	} `json:"app_metadata"`
	UserMetadata struct {
		FullName  string `json:"full_name"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user_metadata"`
}

func (v *Verifier) Verify(token string) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var c sessionClaims
	if _, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return v.secret, nil }, opts...); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Principal{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, ErrExpired)
		}
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if c.Subject == "" {
		return domain.Principal{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}

	name := c.UserMetadata.FullName
	if name == "" {
		name = c.UserMetadata.Name
	}
	return domain.Principal{
		UserID:    c.Subject,
		Email:     c.Email,
		Name:      name,
		AvatarURL: c.UserMetadata.AvatarURL,
		Role:      c.AppMetadata.Role,
	}, nil
}

// ErrExpired marks a well-signed token past its expiry; callers may refresh.
var ErrExpired = errors.New("auth: token expired")
