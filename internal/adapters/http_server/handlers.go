package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"enjoyhub/internal/app"
	"enjoyhub/internal/domain"
)

type Handlers struct {
	Q     *app.QueryService
	L     *app.ListingService
	Auth  *Auth
	Pages *Pages

	WriteRPS   float64
	WriteBurst int
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	writes := RateLimit(h.WriteRPS, h.WriteBurst)

	s.mux.Group(func(r chi.Router) {
		r.Use(h.recoverer)
		r.Use(h.Auth.Session)

		r.Route("/api", func(r chi.Router) {
			r.Get("/offers/{offerId}", h.getOffer)
			r.With(h.Auth.RequireUser).Get("/properties/{propertyId}/contact", h.getContact)
			r.With(h.Auth.RequireUser, writes).Delete("/delete-image", h.deleteImage)

			r.Get("/attractions", h.listAttractions)
			r.With(h.Auth.RequireUser, writes).Post("/attractions", h.createAttraction)
			r.Get("/attractions/{id}", h.getAttraction)
			r.With(h.Auth.RequireUser, writes).Delete("/attractions/{id}", h.deleteAttraction)
			r.Get("/attractions/{id}/reviews", h.listReviews)
			r.With(h.Auth.RequireUser, writes).Post("/attractions/{id}/reviews", h.addReview)
			r.Get("/attractions/{id}/nearby", h.nearby)
			r.With(h.Auth.RequireUser, writes).Post("/attractions/{id}/offers", h.createOffer)
			r.With(h.Auth.RequireUser).Get("/me/attractions", h.myAttractions)
			r.With(h.Auth.RequireUser, writes).Post("/sign-upload", h.signUpload)

			r.NotFound(func(w http.ResponseWriter, r *http.Request) {
				writeProblem(w, http.StatusNotFound, "Not Found", "no such endpoint")
			})
			r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
				writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported here")
			})
		})

		r.Get("/auth/login", h.Auth.Login)
		r.Get("/auth/callback", h.Auth.Callback)
		r.Post("/auth/signout", h.Auth.SignOut)
		r.Get("/auth/auth-code-error", h.Pages.AuthError)

		r.Get("/", h.Pages.Home)
		r.Get("/{city}", h.Pages.City)
		r.Get("/{city}/{activity}", h.Pages.City)
		r.Get("/{city}/{activity}/{slugID}", h.Pages.Detail)
		r.NotFound(h.Pages.NotFound)
	})
}

// recoverer turns a panic into a 500: a problem body under /api, the
// error page everywhere else.
func (h *Handlers) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Error().
				Interface("panic", rec).
				Str("path", r.URL.Path).
				Str("request_id", chimw.GetReqID(r.Context())).
				Msg("handler panicked")
			if strings.HasPrefix(r.URL.Path, "/api/") {
				writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "something went wrong")
				return
			}
			h.Pages.renderError(w, r)
		}()
		next.ServeHTTP(w, r)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors onto HTTP statuses. what names the resource
// in 404 details.
func writeError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", what+" not found")
	case errors.Is(err, domain.ErrInvalid):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
	case errors.Is(err, domain.ErrForbidden):
		writeProblem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		log.Error().Err(err).
			Str("route", routePattern(r)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "something went wrong")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes v as JSON with a weak ETag, answering 304 when the
// client already has it.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "something went wrong")
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("route", routePattern(r)).Msg("failed to write body")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}

func queryInt(r *http.Request, key string, def, min, max int) (int, bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}

// ---- required routes ----

func (h *Handlers) getOffer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "offerId"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "offerId must be a UUID")
		return
	}
	o, err := h.Q.GetOffer(r.Context(), id.String())
	if err != nil {
		writeError(w, r, err, "offer")
		return
	}
	writeCached(w, r, map[string]any{"offer": toOfferJSON(o, time.Now())})
}

func (h *Handlers) getContact(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "propertyId"))
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "propertyId must be a positive integer")
		return
	}
	c, err := h.Q.GetContact(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "property")
		return
	}
	w.Header().Set("Cache-Control", "private, no-store")
	writeJSON(w, http.StatusOK, map[string]any{"contact": c})
}

func (h *Handlers) deleteImage(w http.ResponseWriter, r *http.Request) {
	publicID := r.URL.Query().Get("publicId")
	if publicID == "" && r.ContentLength != 0 {
		var body struct {
			PublicID string `json:"publicId"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Bad Request", "body must be {\"publicId\": \"...\"}")
			return
		}
		publicID = body.PublicID
	}

	p, _ := PrincipalFrom(r.Context())
	if err := h.L.DeleteImage(r.Context(), p, publicID); err != nil {
		writeError(w, r, err, "image")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ---- listings ----

func (h *Handlers) listAttractions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 24, 1, 100)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 100")
		return
	}
	qv := r.URL.Query()
	q := domain.AttractionsQuery{Limit: limit}
	if c := strings.ToLower(qv.Get("category")); c != "" {
		if !app.IsCategory(c) {
			writeProblem(w, http.StatusBadRequest, "Invalid category", "unknown category "+strconv.Quote(c))
			return
		}
		q.Category = &c
	}
	if city := qv.Get("city"); city != "" {
		cs := app.Slugify(city)
		q.CitySlug = &cs
	}
	if s := strings.TrimSpace(qv.Get("q")); s != "" {
		q.Q = &s
	}
	if c := qv.Get("cursor"); c != "" {
		cur, ok := parseID(c)
		if !ok {
			writeProblem(w, http.StatusBadRequest, "Invalid cursor", "cursor must be a positive integer")
			return
		}
		q.Cursor = &cur
	}

	page, err := h.Q.ListAttractions(r.Context(), q)
	if err != nil {
		writeError(w, r, err, "attractions")
		return
	}
	writeCached(w, r, toPageJSON(page))
}

func (h *Handlers) getAttraction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return
	}
	a, err := h.Q.GetAttraction(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "attraction")
		return
	}
	writeCached(w, r, toAttractionJSON(a, true))
}

func (h *Handlers) myAttractions(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	page, err := h.Q.ListAttractions(r.Context(), domain.AttractionsQuery{HostID: &p.UserID, Limit: 100})
	if err != nil {
		writeError(w, r, err, "attractions")
		return
	}
	w.Header().Set("Cache-Control", "private, no-store")
	writeJSON(w, http.StatusOK, toPageJSON(page))
}

type createAttractionRequest struct {
	Title       string         `json:"title"`
	City        string         `json:"city"`
	Activity    string         `json:"activity"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Price       float64        `json:"price"`
	Currency    string         `json:"currency"`
	Lat         *float64       `json:"lat"`
	Lon         *float64       `json:"lon"`
	Images      []domain.Image `json:"images"`
}

func (h *Handlers) createAttraction(w http.ResponseWriter, r *http.Request) {
	var req createAttractionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	p, _ := PrincipalFrom(r.Context())
	a, err := h.L.CreateAttraction(r.Context(), p, domain.NewAttraction{
		Title:       req.Title,
		City:        req.City,
		Activity:    req.Activity,
		Category:    req.Category,
		Description: req.Description,
		Price:       req.Price,
		Currency:    req.Currency,
		Lat:         req.Lat,
		Lon:         req.Lon,
		Images:      req.Images,
	})
	if err != nil {
		writeError(w, r, err, "attraction")
		return
	}
	w.Header().Set("Location", "/api/attractions/"+strconv.FormatInt(a.ID, 10))
	writeJSON(w, http.StatusCreated, toAttractionJSON(a, true))
}

func (h *Handlers) deleteAttraction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return
	}
	p, _ := PrincipalFrom(r.Context())
	if err := h.L.DeleteAttraction(r.Context(), p, id); err != nil {
		writeError(w, r, err, "attraction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- reviews ----

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return
	}
	limit, ok := queryInt(r, "limit", app.DefaultReviewLimit, 1, 200)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
		return
	}

	// newest first; aligns with DB index on (attraction_id, created_at, id)
	out, err := h.Q.ListReviews(r.Context(), id, domain.PageQuery{Limit: limit, Sort: app.ReviewSort})
	if err != nil {
		writeError(w, r, err, "attraction")
		return
	}
	items := make([]reviewJSON, 0, len(out.Items))
	for _, rv := range out.Items {
		items = append(items, toReviewJSON(rv))
	}
	writeCached(w, r, map[string]any{"items": items})
}

func (h *Handlers) addReview(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return
	}
	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	p, _ := PrincipalFrom(r.Context())
	rv, err := h.L.AddReview(r.Context(), p, id, req.Rating, req.Comment)
	if err != nil {
		writeError(w, r, err, "attraction")
		return
	}
	writeJSON(w, http.StatusCreated, toReviewJSON(rv))
}

// ---- nearby ----

func (h *Handlers) nearby(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return
	}
	radius := 25.0
	if s := r.URL.Query().Get("radiusKm"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f <= 0 || f > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid radius", "radiusKm must be a number in (0, 200]")
			return
		}
		radius = f
	}
	limit, ok := queryInt(r, "limit", 6, 1, 50)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 50")
		return
	}

	out, err := h.Q.Nearby(r.Context(), id, domain.NearbyQuery{RadiusKm: radius, Limit: limit})
	if err != nil {
		writeError(w, r, err, "attraction")
		return
	}
	items := make([]nearbyJSON, 0, len(out))
	for _, n := range out {
		items = append(items, nearbyJSON{attractionJSON: toAttractionJSON(n.Attraction, false), DistanceKm: roundTo(n.DistanceKm, 2)})
	}
	writeCached(w, r, map[string]any{"items": items})
}

// ---- offers & media ----

func (h *Handlers) createOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return
	}
	var req struct {
		Title           string    `json:"title"`
		Description     string    `json:"description"`
		DiscountPercent int       `json:"discountPercent"`
		StartsAt        time.Time `json:"startsAt"`
		EndsAt          time.Time `json:"endsAt"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	p, _ := PrincipalFrom(r.Context())
	o, err := h.L.CreateOffer(r.Context(), p, domain.NewOffer{
		AttractionID:    id,
		Title:           req.Title,
		Description:     req.Description,
		DiscountPercent: req.DiscountPercent,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
	})
	if err != nil {
		writeError(w, r, err, "attraction")
		return
	}
	w.Header().Set("Location", "/api/offers/"+o.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"offer": toOfferJSON(o, time.Now())})
}

func (h *Handlers) signUpload(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	sig, err := h.L.SignUpload(p)
	if err != nil {
		writeError(w, r, err, "upload")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, sig)
}
