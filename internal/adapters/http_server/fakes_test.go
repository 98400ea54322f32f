package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"enjoyhub/internal/adapters/authprovider"
	"enjoyhub/internal/app"
	"enjoyhub/internal/domain"
)

// ---- repository ----

type memRepo struct {
	mu          sync.Mutex
	attractions map[int64]domain.Attraction
	reviews     map[int64][]domain.Review
	offers      map[string]domain.Offer
	contacts    map[int64]domain.Contact
	profiles    map[string]domain.Organizer
	removed     []string
	nextID      int64
	panicOn     int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		attractions: map[int64]domain.Attraction{},
		reviews:     map[int64][]domain.Review{},
		offers:      map[string]domain.Offer{},
		contacts:    map[int64]domain.Contact{},
		profiles:    map[string]domain.Organizer{},
		nextID:      1000,
	}
}

func (m *memRepo) CreateAttraction(_ context.Context, a domain.NewAttraction, s domain.Slugs) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.attractions[m.nextID] = domain.Attraction{
		ID: m.nextID, HostID: a.HostID, Title: a.Title, Slug: s.Slug,
		City: a.City, CitySlug: s.City, Activity: a.Activity, ActivitySlug: s.Activity,
		Category: a.Category, Description: a.Description, Price: a.Price, Currency: a.Currency,
		Lat: a.Lat, Lon: a.Lon, Images: a.Images, CreatedAt: time.Now(),
	}
	return m.nextID, nil
}

func (m *memRepo) DeleteAttraction(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attractions, id)
	delete(m.reviews, id)
	for oid, o := range m.offers {
		if o.AttractionID == id {
			delete(m.offers, oid)
		}
	}
	return nil
}

func (m *memRepo) ListOfferIDs(_ context.Context, attractionID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, o := range m.offers {
		if o.AttractionID == attractionID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memRepo) RemoveImage(_ context.Context, hostID, publicID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, publicID)
	return nil, nil
}

func (m *memRepo) CreateReview(_ context.Context, r domain.NewReview) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.reviews[r.AttractionID]) + 1)
	m.reviews[r.AttractionID] = append(m.reviews[r.AttractionID], domain.Review{
		ID: id, AttractionID: r.AttractionID, UserID: r.UserID, Author: r.Author,
		Rating: r.Rating, Comment: r.Comment, CreatedAt: time.Now(),
	})
	return id, nil
}

func (m *memRepo) CreateOffer(_ context.Context, o domain.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[o.ID] = o
	return nil
}

func (m *memRepo) UpsertProfile(_ context.Context, o domain.Organizer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[o.ID] = o
	return nil
}

func (m *memRepo) GetAttraction(_ context.Context, id int64) (domain.Attraction, error) {
	if id == m.panicOn {
		panic("boom")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attractions[id]
	if !ok {
		return domain.Attraction{}, fmt.Errorf("attraction %d: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

func (m *memRepo) ListAttractions(_ context.Context, q domain.AttractionsQuery) (domain.AttractionsPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out domain.AttractionsPage
	for _, a := range m.attractions {
		if q.CitySlug != nil && a.CitySlug != *q.CitySlug {
			continue
		}
		if q.Category != nil && a.Category != *q.Category {
			continue
		}
		if q.HostID != nil && a.HostID != *q.HostID {
			continue
		}
		out.Items = append(out.Items, a)
	}
	return out, nil
}

func (m *memRepo) ListReviews(_ context.Context, id int64, _ domain.PageQuery) (domain.ReviewsPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.ReviewsPage{Items: append([]domain.Review(nil), m.reviews[id]...)}, nil
}

func (m *memRepo) ListNearby(context.Context, int64, domain.NearbyQuery) ([]domain.NearbyAttraction, error) {
	return nil, nil
}

func (m *memRepo) GetOffer(_ context.Context, id string) (domain.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return domain.Offer{}, domain.ErrNotFound
	}
	return o, nil
}

func (m *memRepo) GetContact(_ context.Context, id int64) (domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok {
		return domain.Contact{}, domain.ErrNotFound
	}
	return c, nil
}

// ---- cache & media ----

type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) Set(_ context.Context, key string, v any, _ int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = b
	return nil
}

func (c *memCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

type stubMedia struct {
	destroyErr map[string]error
	destroyed  []string
}

func (s *stubMedia) Destroy(_ context.Context, id string) error {
	if err := s.destroyErr[id]; err != nil {
		return err
	}
	s.destroyed = append(s.destroyed, id)
	return nil
}

func (s *stubMedia) List(context.Context, string, string) (domain.AssetPage, error) {
	return domain.AssetPage{}, nil
}

func (s *stubMedia) SignUpload(folder string, ts time.Time) domain.UploadSignature {
	return domain.UploadSignature{APIKey: "key", CloudName: "demo", Folder: folder, Timestamp: ts.Unix(), Signature: "sig"}
}

// ---- auth ----

type stubProvider struct {
	exchangeErr error
	exchanged   []string
	refreshed   []string
}

func (p *stubProvider) AuthorizeURL(provider, redirectTo, challenge string) string {
	return "https://auth.test/authorize?provider=" + provider
}

func (p *stubProvider) ExchangeCode(_ context.Context, code, verifier string) (domain.Session, error) {
	p.exchanged = append(p.exchanged, code+"|"+verifier)
	if p.exchangeErr != nil {
		return domain.Session{}, p.exchangeErr
	}
	return domain.Session{AccessToken: "tok-host", RefreshToken: "r1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (p *stubProvider) Refresh(_ context.Context, rt string) (domain.Session, error) {
	p.refreshed = append(p.refreshed, rt)
	if rt != "r-good" {
		return domain.Session{}, authprovider.ErrInvalidGrant
	}
	return domain.Session{AccessToken: "tok-user", RefreshToken: "r2", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

var (
	hostP  = domain.Principal{UserID: "host-1", Email: "host@example.com", Name: "Ana Host", Role: domain.RoleHost}
	userP  = domain.Principal{UserID: "user-1", Email: "user@example.com", Role: domain.RoleUser}
	otherP = domain.Principal{UserID: "host-2", Email: "other@example.com", Role: domain.RoleHost}
)

// tokenTable maps opaque test tokens to principals.
type tokenTable map[string]domain.Principal

func (t tokenTable) Verify(token string) (domain.Principal, error) {
	if token == "tok-expired" {
		return domain.Principal{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, authprovider.ErrExpired)
	}
	p, ok := t[token]
	if !ok {
		return domain.Principal{}, errors.New("bad token")
	}
	return p, nil
}

// ---- harness ----

type harness struct {
	h        http.Handler
	repo     *memRepo
	media    *stubMedia
	provider *stubProvider
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := newMemRepo()
	cache := &memCache{m: map[string][]byte{}}
	media := &stubMedia{destroyErr: map[string]error{}}
	provider := &stubProvider{}

	q := app.NewQueryService(repo, cache, time.Minute)
	l := app.NewListingService(repo, media, cache, "enjoyhub")
	pages, err := NewPages(q)
	if err != nil {
		t.Fatalf("NewPages: %v", err)
	}

	s := New(false)
	s.MountHandlers(&Handlers{
		Q:     q,
		L:     l,
		Pages: pages,
		Auth: &Auth{
			Provider:  provider,
			Verifier:  tokenTable{"tok-host": hostP, "tok-user": userP, "tok-other": otherP},
			Profiles:  l,
			PublicURL: "https://enjoyhub.test",
		},
		WriteRPS:   1000,
		WriteBurst: 1000,
	})
	return &harness{h: s.Mux(), repo: repo, media: media, provider: provider}
}

func pfloat(f float64) *float64 { return &f }

func seedAttraction(r *memRepo, id int64, host string) domain.Attraction {
	a := domain.Attraction{
		ID: id, HostID: host, Title: "Sunset Kayak Tour", Slug: "sunset-kayak-tour",
		City: "Barcelona", CitySlug: "barcelona", Activity: "Kayaking", ActivitySlug: "kayaking",
		Category: "adventure", Description: "Paddle along the coast.", Price: 45, Currency: "EUR",
		Rating: pfloat(4.5), ReviewCount: 2, CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	r.attractions[id] = a
	return a
}
