package httpserver

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/message"

	"enjoyhub/internal/app"
	"enjoyhub/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageSize       = 24
	excerptRunes   = 160
	nearbyOnDetail = 6
)

// Pages renders the server-side HTML views.
type Pages struct {
	q     *app.QueryService
	l10n  *localizer
	views map[string]*template.Template
}

func NewPages(q *app.QueryService) (*Pages, error) {
	funcs := template.FuncMap{
		"excerpt": func(s string) excerpt {
			short, cut := app.Excerpt(s, excerptRunes)
			return excerpt{Short: short, Full: s, Cut: cut}
		},
		"stars": func(r *float64) string {
			if r == nil {
				return ""
			}
			return strconv.FormatFloat(*r, 'f', 1, 64) + " ★"
		},
	}
	views := map[string]*template.Template{}
	for _, name := range []string{"list.html", "detail.html", "status.html"} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		views[name] = t
	}
	return &Pages{q: q, l10n: newLocalizer(), views: views}, nil
}

type excerpt struct {
	Short, Full string
	Cut         bool
}

type view struct {
	Lang      string
	Title     string
	Principal *domain.Principal

	// list pages
	Heading    string
	BasePath   string
	Categories []string
	Category   string
	Items      []domain.Attraction
	NextURL    string

	// detail page
	Attraction *domain.Attraction
	Reviews    []domain.Review
	Nearby     []domain.NearbyAttraction

	// status pages
	Message string
	Retry   string

	p *message.Printer
}

func (v view) T(key string, args ...any) string { return v.p.Sprintf(key, args...) }

func (v view) Money(amount float64, currency string) string {
	return v.p.Sprintf("%.2f", amount) + " " + currency
}

func (pg *Pages) newView(r *http.Request, title string) view {
	tag := pg.l10n.pick(r)
	base, _ := tag.Base()
	v := view{Lang: base.String(), Title: title, p: pg.l10n.printer(tag)}
	if p, ok := PrincipalFrom(r.Context()); ok {
		v.Principal = &p
	}
	return v
}

func (pg *Pages) render(w http.ResponseWriter, r *http.Request, status int, name string, v view) {
	var buf bytes.Buffer
	if err := pg.views[name].ExecuteTemplate(&buf, "layout", v); err != nil {
		log.Error().Err(err).Str("view", name).Str("request_id", chimw.GetReqID(r.Context())).Msg("render failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Language", v.Lang)
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// ---- list pages ----

func (pg *Pages) Home(w http.ResponseWriter, r *http.Request) {
	pg.list(w, r, "", "")
}

// City serves /{city} and /{city}/{activity}. Non-canonical segments
// redirect to their slug form.
func (pg *Pages) City(w http.ResponseWriter, r *http.Request) {
	city, activity := chi.URLParam(r, "city"), chi.URLParam(r, "activity")
	if strings.Contains(city, ".") || strings.Contains(activity, ".") {
		pg.NotFound(w, r)
		return
	}
	cs, as := app.Slugify(city), ""
	if activity != "" {
		as = app.Slugify(activity)
	}
	if cs != city || as != activity {
		target := "/" + cs
		if as != "" {
			target += "/" + as
		}
		redirectKeepQuery(w, r, target)
		return
	}
	pg.list(w, r, cs, as)
}

func (pg *Pages) list(w http.ResponseWriter, r *http.Request, citySlug, activitySlug string) {
	q := domain.AttractionsQuery{Limit: pageSize}
	base := "/"
	if citySlug != "" {
		q.CitySlug = &citySlug
		base += citySlug
	}
	if activitySlug != "" {
		q.ActivitySlug = &activitySlug
		base += "/" + activitySlug
	}
	category := strings.ToLower(r.URL.Query().Get("category"))
	if category != "" {
		if !app.IsCategory(category) {
			pg.NotFound(w, r)
			return
		}
		q.Category = &category
	}
	if c := r.URL.Query().Get("cursor"); c != "" {
		cur, ok := parseID(c)
		if !ok {
			pg.NotFound(w, r)
			return
		}
		q.Cursor = &cur
	}

	page, err := pg.q.ListAttractions(r.Context(), q)
	if err != nil {
		pg.fail(w, r, err)
		return
	}

	v := pg.newView(r, "EnjoyHub")
	v.Heading = v.T("Discover things to do")
	if len(page.Items) > 0 && citySlug != "" {
		v.Heading = page.Items[0].City
		if activitySlug != "" {
			v.Heading = page.Items[0].Activity + " · " + page.Items[0].City
		}
		v.Title = v.Heading + " | EnjoyHub"
	}
	v.BasePath = base
	v.Categories = app.Categories
	v.Category = category
	v.Items = page.Items
	if page.NextCursor != nil {
		next := r.URL.Query()
		next.Set("cursor", strconv.FormatInt(*page.NextCursor, 10))
		v.NextURL = base + "?" + next.Encode()
	}
	pg.render(w, r, http.StatusOK, "list.html", v)
}

// ---- detail ----

func (pg *Pages) Detail(w http.ResponseWriter, r *http.Request) {
	_, id, ok := app.SplitSlugID(chi.URLParam(r, "slugID"))
	if !ok {
		pg.NotFound(w, r)
		return
	}
	a, err := pg.q.GetAttraction(r.Context(), id)
	if err != nil {
		pg.fail(w, r, err)
		return
	}
	if r.URL.Path != a.Path() {
		redirectKeepQuery(w, r, a.Path())
		return
	}

	v := pg.newView(r, a.Title+" | EnjoyHub")
	v.Attraction = &a
	if rv, err := pg.q.ListReviews(r.Context(), id, domain.PageQuery{Limit: app.DefaultReviewLimit, Sort: app.ReviewSort}); err == nil {
		v.Reviews = rv.Items
	} else {
		log.Warn().Err(err).Int64("attraction_id", id).Msg("detail page: reviews unavailable")
	}
	if nb, err := pg.q.Nearby(r.Context(), id, domain.NearbyQuery{RadiusKm: 25, Limit: nearbyOnDetail}); err == nil {
		v.Nearby = nb
	} else {
		log.Warn().Err(err).Int64("attraction_id", id).Msg("detail page: nearby unavailable")
	}
	pg.render(w, r, http.StatusOK, "detail.html", v)
}

// ---- status pages ----

func (pg *Pages) NotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "no such endpoint")
		return
	}
	v := pg.newView(r, "EnjoyHub")
	v.Heading = v.T("Page not found")
	v.Message = v.T("We could not find what you were looking for.")
	v.Retry = r.URL.RequestURI()
	pg.render(w, r, http.StatusNotFound, "status.html", v)
}

func (pg *Pages) AuthError(w http.ResponseWriter, r *http.Request) {
	v := pg.newView(r, "EnjoyHub")
	v.Heading = v.T("Sign-in failed")
	v.Message = v.T("Please try again in a moment.")
	v.Retry = "/auth/login"
	pg.render(w, r, http.StatusOK, "status.html", v)
}

func (pg *Pages) renderError(w http.ResponseWriter, r *http.Request) {
	v := pg.newView(r, "EnjoyHub")
	v.Heading = v.T("Something went wrong")
	v.Message = v.T("Please try again in a moment.")
	v.Retry = r.URL.RequestURI()
	pg.render(w, r, http.StatusInternalServerError, "status.html", v)
}

func (pg *Pages) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		pg.NotFound(w, r)
		return
	}
	log.Error().Err(err).
		Str("route", routePattern(r)).
		Str("request_id", chimw.GetReqID(r.Context())).
		Msg("page failed")
	pg.renderError(w, r)
}

func redirectKeepQuery(w http.ResponseWriter, r *http.Request, path string) {
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, path, http.StatusMovedPermanently)
}
