package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const requestTimeout = 15 * time.Second

type Server struct{ mux *chi.Mux }

// New builds the router with the request-scoped middleware. Panic recovery
// lives in MountHandlers so it can answer with a page or a problem body.
// With trustProxy set, RemoteAddr is taken from the proxy's forwarding
// headers; leave it off unless a proxy in front overwrites them.
func New(trustProxy bool) *Server {
	m := chi.NewRouter()

	if trustProxy {
		m.Use(chimw.RealIP)
	}
	m.Use(chimw.RequestID)
	m.Use(chimw.CleanPath)
	m.Use(secureHeaders)
	m.Use(Timeout(requestTimeout))
	m.Use(Metrics)
	m.Use(Logger(log.Logger))

	return &Server{mux: m}
}

func (s *Server) Mux() http.Handler { return s.mux }

// Mount attaches an extra handler such as /metrics.
func (s *Server) Mount(path string, h http.Handler) {
	s.mux.Handle(path, h)
}

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}
