package app_test

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"enjoyhub/internal/domain"
)

// ---- fakes ----

type fakeRepo struct {
	attractions map[int64]domain.Attraction
	reviews     map[int64][]domain.Review
	offers      map[string]domain.Offer
	contacts    map[int64]domain.Contact
	profiles    map[string]domain.Organizer
	nearby      []domain.NearbyAttraction

	nextID       int64
	created      []domain.NewAttraction
	createdSlugs []domain.Slugs
	deleted      []int64
	removed      []string
	getCalls     int
	profileErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		attractions: map[int64]domain.Attraction{},
		reviews:     map[int64][]domain.Review{},
		offers:      map[string]domain.Offer{},
		contacts:    map[int64]domain.Contact{},
		profiles:    map[string]domain.Organizer{},
		nextID:      100,
	}
}

func (f *fakeRepo) CreateAttraction(ctx context.Context, a domain.NewAttraction, s domain.Slugs) (int64, error) {
	f.nextID++
	f.created = append(f.created, a)
	f.createdSlugs = append(f.createdSlugs, s)
	f.attractions[f.nextID] = domain.Attraction{
		ID: f.nextID, HostID: a.HostID, Title: a.Title, Slug: s.Slug,
		City: a.City, CitySlug: s.City, Activity: a.Activity, ActivitySlug: s.Activity,
		Category: a.Category, Price: a.Price, Currency: a.Currency, Images: a.Images,
	}
	return f.nextID, nil
}

func (f *fakeRepo) DeleteAttraction(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	delete(f.attractions, id)
	// ON DELETE CASCADE
	delete(f.reviews, id)
	for oid, o := range f.offers {
		if o.AttractionID == id {
			delete(f.offers, oid)
		}
	}
	return nil
}

func (f *fakeRepo) ListOfferIDs(ctx context.Context, attractionID int64) ([]string, error) {
	var ids []string
	for id, o := range f.offers {
		if o.AttractionID == attractionID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeRepo) RemoveImage(ctx context.Context, hostID, publicID string) ([]int64, error) {
	f.removed = append(f.removed, publicID)
	var ids []int64
	for id, a := range f.attractions {
		if a.HostID != hostID {
			continue
		}
		for _, img := range a.Images {
			if img.PublicID == publicID {
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeRepo) CreateReview(ctx context.Context, r domain.NewReview) (int64, error) {
	id := int64(len(f.reviews[r.AttractionID]) + 1)
	f.reviews[r.AttractionID] = append(f.reviews[r.AttractionID], domain.Review{
		ID: id, AttractionID: r.AttractionID, UserID: r.UserID, Author: r.Author, Rating: r.Rating, Comment: r.Comment,
	})
	return id, nil
}

func (f *fakeRepo) CreateOffer(ctx context.Context, o domain.Offer) error {
	f.offers[o.ID] = o
	return nil
}

func (f *fakeRepo) UpsertProfile(ctx context.Context, o domain.Organizer) error {
	if f.profileErr != nil {
		return f.profileErr
	}
	f.profiles[o.ID] = o
	return nil
}

func (f *fakeRepo) GetAttraction(ctx context.Context, id int64) (domain.Attraction, error) {
	f.getCalls++
	a, ok := f.attractions[id]
	if !ok {
		return domain.Attraction{}, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) ListAttractions(ctx context.Context, q domain.AttractionsQuery) (domain.AttractionsPage, error) {
	var out []domain.Attraction
	for _, a := range f.attractions {
		if q.Category != nil && a.Category != *q.Category {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return domain.AttractionsPage{Items: out}, nil
}

func (f *fakeRepo) ListReviews(ctx context.Context, id int64, pg domain.PageQuery) (domain.ReviewsPage, error) {
	return domain.ReviewsPage{Items: f.reviews[id]}, nil
}

func (f *fakeRepo) ListNearby(ctx context.Context, id int64, q domain.NearbyQuery) ([]domain.NearbyAttraction, error) {
	return f.nearby, nil
}

func (f *fakeRepo) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	o, ok := f.offers[id]
	if !ok {
		return domain.Offer{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeRepo) GetContact(ctx context.Context, id int64) (domain.Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return domain.Contact{}, domain.ErrNotFound
	}
	return c, nil
}

// fakeCache round-trips through JSON like the redis adapter does.
type fakeCache struct {
	store map[string][]byte
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.dels = append(c.dels, key)
	delete(c.store, key)
	return nil
}

type fakeMedia struct {
	destroyed []string
	missing   map[string]bool
	err       error
}

func (m *fakeMedia) Destroy(ctx context.Context, publicID string) error {
	if m.err != nil {
		return m.err
	}
	if m.missing[publicID] {
		return domain.ErrNotFound
	}
	m.destroyed = append(m.destroyed, publicID)
	return nil
}

func (m *fakeMedia) List(ctx context.Context, prefix, cursor string) (domain.AssetPage, error) {
	return domain.AssetPage{}, nil
}

func (m *fakeMedia) SignUpload(folder string, ts time.Time) domain.UploadSignature {
	return domain.UploadSignature{Folder: folder, Timestamp: ts.Unix(), Signature: "sig"}
}

type fakeIndex struct {
	referenced map[string]bool
	log        []string
	err        error
}

func (i *fakeIndex) ImageReferenced(ctx context.Context, publicID string) (bool, error) {
	return i.referenced[publicID], nil
}

func (i *fakeIndex) LogSweep(ctx context.Context, publicID, action, reason string) error {
	if i.err != nil {
		return i.err
	}
	i.log = append(i.log, strings.Join([]string{publicID, action, reason}, "|"))
	return nil
}

type fakeMetrics struct {
	outcomes []string
}

func (m *fakeMetrics) ObserveSweep(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

func ptr[T any](v T) *T { return &v }

var (
	host  = domain.Principal{UserID: "u-host", Email: "ana@example.com", Name: "Ana", Role: domain.RoleHost}
	other = domain.Principal{UserID: "u-other", Email: "bob@example.com", Role: domain.RoleHost}
	guest = domain.Principal{UserID: "u-guest", Email: "carl@example.com", Role: domain.RoleUser}
)
