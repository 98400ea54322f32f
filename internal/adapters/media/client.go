// Package media talks to the image CDN's admin and upload APIs.
package media

import (
	"context"
	crand "crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"enjoyhub/internal/adapters/observability"
	"enjoyhub/internal/domain"
)

type Client struct {
	base      string // {api}/{cloud}
	cloud     string
	key       string
	secret    string
	hc        *http.Client
	rl        *rate.Limiter
	pageLimit int
}

func New(apiBase, cloud, key, secret string, rps int) (*Client, error) {
	if cloud == "" || key == "" || secret == "" {
		return nil, fmt.Errorf("media: cloud name, API key and secret are required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base:      strings.TrimRight(apiBase, "/") + "/" + cloud,
		cloud:     cloud,
		key:       key,
		secret:    secret,
		hc:        &http.Client{Timeout: 20 * time.Second},
		rl:        rate.NewLimiter(rate.Limit(rps), rps),
		pageLimit: 500,
	}, nil
}

var (
	ErrUnauthorized = errors.New("media: unauthorized")
	ErrForbidden    = errors.New("media: forbidden")
)

// ---- Public API ----

// Destroy deletes one image. A CDN "not found" result maps to domain.ErrNotFound.
func (c *Client) Destroy(ctx context.Context, publicID string) error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	form := url.Values{
		"public_id": {publicID},
		"timestamp": {ts},
	}
	form.Set("signature", c.sign(form))
	form.Set("api_key", c.key)

	var out struct {
		Result string `json:"result"`
	}
	err := c.do(ctx, "destroy", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/image/destroy", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, &out)
	if err != nil {
		return err
	}
	switch out.Result {
	case "ok":
		return nil
	case "not found":
		return fmt.Errorf("media: %s: %w", publicID, domain.ErrNotFound)
	default:
		return fmt.Errorf("media: destroy %s: unexpected result %q", publicID, out.Result)
	}
}

// List returns one page of uploaded images whose public id starts with prefix.
func (c *Client) List(ctx context.Context, prefix, cursor string) (domain.AssetPage, error) {
	q := url.Values{
		"prefix":      {prefix},
		"max_results": {strconv.Itoa(c.pageLimit)},
	}
	if cursor != "" {
		q.Set("next_cursor", cursor)
	}
	var out struct {
		Resources []struct {
			PublicID  string    `json:"public_id"`
			CreatedAt time.Time `json:"created_at"`
			Bytes     int64     `json:"bytes"`
		} `json:"resources"`
		NextCursor string `json:"next_cursor"`
	}
	err := c.do(ctx, "list", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/resources/image/upload?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.key, c.secret)
		return req, nil
	}, &out)
	if err != nil {
		return domain.AssetPage{}, err
	}

	page := domain.AssetPage{NextCursor: out.NextCursor, Assets: make([]domain.Asset, 0, len(out.Resources))}
	for _, r := range out.Resources {
		page.Assets = append(page.Assets, domain.Asset{PublicID: r.PublicID, CreatedAt: r.CreatedAt, Bytes: r.Bytes})
	}
	return page, nil
}

// SignUpload returns the parameters a browser needs to upload straight into folder.
func (c *Client) SignUpload(folder string, ts time.Time) domain.UploadSignature {
	unix := ts.Unix()
	params := url.Values{
		"folder":    {folder},
		"timestamp": {strconv.FormatInt(unix, 10)},
	}
	return domain.UploadSignature{
		APIKey:    c.key,
		CloudName: c.cloud,
		Folder:    folder,
		Timestamp: unix,
		Signature: c.sign(params),
	}
}

// sign is sha1 over the params sorted by key, joined as k=v&k=v, with the secret appended.
func (c *Client) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params.Get(k))
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "&") + c.secret))
	return hex.EncodeToString(sum[:])
}

// ---- Internals ----

// do sends the request built by mk with client-side rate limiting, retries,
// and JSON decode into out. Retries on 429 and transient 5xx, honoring Retry-After.
func (c *Client) do(ctx context.Context, endpoint string, mk func() (*http.Request, error), out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		// build a fresh request each attempt
		req, err := mk()
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "enjoyhub/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("media", endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("media", endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNotFound:
			resp.Body.Close()
			return fmt.Errorf("media: %s: %w", endpoint, domain.ErrNotFound)

		case http.StatusUnauthorized:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			return ErrForbidden

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("media: remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("media: bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
