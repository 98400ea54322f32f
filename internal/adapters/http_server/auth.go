package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"enjoyhub/internal/adapters/authprovider"
	"enjoyhub/internal/domain"
)

const (
	accessCookie   = "eh-access"
	refreshCookie  = "eh-refresh"
	verifierCookie = "eh-pkce"

	refreshMaxAge = 30 * 24 * 60 * 60
	authErrorPath = "/auth/auth-code-error"
)

var providerRE = regexp.MustCompile(`^[a-z][a-z0-9_]{1,31}$`)

type profileSyncer interface {
	SyncProfile(ctx context.Context, p domain.Principal) error
}

// Auth owns the session cookies: it starts and finishes the PKCE sign-in
// flow and resolves the caller on every request.
type Auth struct {
	Provider  domain.AuthProvider
	Verifier  domain.TokenVerifier
	Profiles  profileSyncer
	PublicURL string
	Secure    bool
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}

// Session resolves the caller from a bearer token or the access cookie,
// refreshing an expired cookie session once. Anonymous requests pass through.
func (a *Auth) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearer(r); ok {
			if p, err := a.Verifier.Verify(token); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
			return
		}

		c, err := r.Cookie(accessCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, err := a.Verifier.Verify(c.Value)
		if errors.Is(err, authprovider.ErrExpired) {
			p, err = a.refresh(w, r)
		}
		if err != nil {
			log.Debug().Err(err).Msg("discarding session")
			a.clearSession(w)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (a *Auth) refresh(w http.ResponseWriter, r *http.Request) (domain.Principal, error) {
	rc, err := r.Cookie(refreshCookie)
	if err != nil || rc.Value == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	sess, err := a.Provider.Refresh(r.Context(), rc.Value)
	if err != nil {
		return domain.Principal{}, err
	}
	p, err := a.Verifier.Verify(sess.AccessToken)
	if err != nil {
		return domain.Principal{}, err
	}
	a.setSession(w, sess)
	return p, nil
}

// RequireUser answers 401 unless Session found a principal.
func (a *Auth) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFrom(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="enjoyhub"`)
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		provider = "google"
	}
	if !providerRE.MatchString(provider) {
		http.Redirect(w, r, authErrorPath, http.StatusFound)
		return
	}
	verifier, err := authprovider.NewCodeVerifier()
	if err != nil {
		log.Error().Err(err).Msg("pkce verifier")
		http.Redirect(w, r, authErrorPath, http.StatusFound)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     verifierCookie,
		Value:    verifier,
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   a.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	callback := strings.TrimRight(a.PublicURL, "/") + "/auth/callback?next=" + url.QueryEscape(SafeNext(r.URL.Query().Get("next")))
	http.Redirect(w, r, a.Provider.AuthorizeURL(provider, callback, authprovider.CodeChallenge(verifier)), http.StatusFound)
}

// Callback finishes the PKCE flow: it trades the code for a session, stores
// the session cookies and records the user's profile.
func (a *Auth) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	next := SafeNext(r.URL.Query().Get("next"))

	vc, err := r.Cookie(verifierCookie)
	if code == "" || err != nil || vc.Value == "" {
		http.Redirect(w, r, authErrorPath, http.StatusFound)
		return
	}
	a.clearCookie(w, verifierCookie, "/auth")

	sess, err := a.Provider.ExchangeCode(r.Context(), code, vc.Value)
	if err != nil {
		log.Warn().Err(err).Msg("auth code exchange failed")
		http.Redirect(w, r, authErrorPath, http.StatusFound)
		return
	}
	p, err := a.Verifier.Verify(sess.AccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("provider issued an unverifiable token")
		http.Redirect(w, r, authErrorPath, http.StatusFound)
		return
	}
	a.setSession(w, sess)

	if err := a.Profiles.SyncProfile(r.Context(), p); err != nil {
		log.Error().Err(err).Str("user_id", p.UserID).Msg("profile upsert failed")
	}
	http.Redirect(w, r, next, http.StatusFound)
}

func (a *Auth) SignOut(w http.ResponseWriter, r *http.Request) {
	a.clearSession(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *Auth) setSession(w http.ResponseWriter, s domain.Session) {
	// the access cookie outlives its token so Session can refresh it
	http.SetCookie(w, &http.Cookie{
		Name: accessCookie, Value: s.AccessToken, Path: "/", MaxAge: refreshMaxAge,
		HttpOnly: true, Secure: a.Secure, SameSite: http.SameSiteLaxMode,
	})
	if s.RefreshToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name: refreshCookie, Value: s.RefreshToken, Path: "/", MaxAge: refreshMaxAge,
			HttpOnly: true, Secure: a.Secure, SameSite: http.SameSiteLaxMode,
		})
	}
}

func (a *Auth) clearSession(w http.ResponseWriter) {
	a.clearCookie(w, accessCookie, "/")
	a.clearCookie(w, refreshCookie, "/")
}

func (a *Auth) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name: name, Value: "", Path: path, MaxAge: -1,
		HttpOnly: true, Secure: a.Secure, SameSite: http.SameSiteLaxMode,
	})
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:]), true
	}
	return "", false
}

// SafeNext keeps only same-site relative paths; anything else becomes "/".
func SafeNext(next string) string {
	if next == "" || next[0] != '/' || strings.HasPrefix(next, "//") || strings.ContainsAny(next, "\\\r\n") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return u.RequestURI()
}
