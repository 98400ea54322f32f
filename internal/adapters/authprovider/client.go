// Package authprovider exchanges OAuth PKCE codes with the hosted auth
// service and verifies the session tokens it issues.
package authprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"enjoyhub/internal/adapters/observability"
	"enjoyhub/internal/domain"
)

var ErrInvalidGrant = errors.New("auth: invalid grant")

type Client struct {
	base string // e.g. https://<project>.example.co/auth/v1
	key  string // public anon key sent as apikey
	hc   *http.Client
	rl   *rate.Limiter
	now  func() time.Time
}

func New(base, anonKey string) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("auth: base URL is required")
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		key:  anonKey,
		hc:   &http.Client{Timeout: 10 * time.Second},
		rl:   rate.NewLimiter(rate.Limit(20), 40),
		now:  time.Now,
	}, nil
}

// AuthorizeURL is where the browser goes to sign in with an OAuth provider.
func (c *Client) AuthorizeURL(provider, redirectTo, challenge string) string {
	q := url.Values{
		"provider":              {provider},
		"redirect_to":           {redirectTo},
		"code_challenge":        {challenge},
		"code_challenge_method": {"s256"},
	}
	return c.base + "/authorize?" + q.Encode()
}

func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (domain.Session, error) {
	body := map[string]string{"auth_code": code, "code_verifier": verifier}
	return c.token(ctx, "pkce", body)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
}

// token is never retried: codes and refresh tokens are single use.
func (c *Client) token(ctx context.Context, grant string, body any) (domain.Session, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return domain.Session{}, err
	}
	b, err := json.Marshal(body)
	if err != nil {
		return domain.Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/token?grant_type="+url.QueryEscape(grant), bytes.NewReader(b))
	if err != nil {
		return domain.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.key != "" {
		req.Header.Set("apikey", c.key)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("auth", grant, 0, time.Since(start))
		return domain.Session{}, err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("auth", grant, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Session{}, fmt.Errorf("%w: %d %s", ErrInvalidGrant, resp.StatusCode, strings.TrimSpace(string(msg)))
	default:
		return domain.Session{}, fmt.Errorf("auth: remote %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return domain.Session{}, fmt.Errorf("auth: decode token: %w", err)
	}
	if tr.AccessToken == "" {
		return domain.Session{}, fmt.Errorf("%w: empty access token", ErrInvalidGrant)
	}
	s := domain.Session{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}
	switch {
	case tr.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	default:
		s.ExpiresAt = c.now().Add(time.Hour)
	}
	return s, nil
}
