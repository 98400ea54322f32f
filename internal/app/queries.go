package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"enjoyhub/internal/domain"
)

type QueryService struct {
	repo     domain.AttractionRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.AttractionRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func attractionKey(id int64) string { return fmt.Sprintf("attraction:%d", id) }
func offerKey(id string) string     { return "offer:" + id }
func reviewsKey(id int64, limit int, sort string) string {
	return fmt.Sprintf("reviews:%d:%d:%s", id, limit, sort)
}

func (s *QueryService) GetAttraction(ctx context.Context, id int64) (domain.Attraction, error) {
	key := attractionKey(id)
	var a domain.Attraction
	if ok, _ := s.cache.Get(ctx, key, &a); ok {
		return a, nil
	}
	a, err := s.repo.GetAttraction(ctx, id)
	if err != nil {
		return domain.Attraction{}, err
	}
	_ = s.cache.Set(ctx, key, a, int(s.cacheTTL.Seconds()))
	return a, nil
}

func (s *QueryService) ListAttractions(ctx context.Context, q domain.AttractionsQuery) (domain.AttractionsPage, error) {
	return s.repo.ListAttractions(ctx, q)
}

func (s *QueryService) ListReviews(ctx context.Context, id int64, pg domain.PageQuery) (domain.ReviewsPage, error) {
	key := reviewsKey(id, pg.Limit, pg.Sort)
	var out domain.ReviewsPage
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}

	// reviews of a missing listing are a 404, not an empty page
	if _, err := s.GetAttraction(ctx, id); err != nil {
		return domain.ReviewsPage{}, err
	}
	rs, err := s.repo.ListReviews(ctx, id, pg)
	if err != nil {
		return domain.ReviewsPage{}, err
	}

	// copy slice to avoid aliasing the repo's backing array
	copyRS := deepCopyReviewsPage(rs)

	if !cachedReviewLimit(pg.Limit) {
		return copyRS, nil
	}
	if b, _ := json.Marshal(copyRS); len(b) < 1_000_000 {
		_ = s.cache.Set(ctx, key, copyRS, int(s.cacheTTL.Seconds()))
	}
	return copyRS, nil
}

func (s *QueryService) Nearby(ctx context.Context, id int64, q domain.NearbyQuery) ([]domain.NearbyAttraction, error) {
	a, err := s.GetAttraction(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Lat == nil || a.Lon == nil {
		return []domain.NearbyAttraction{}, nil
	}
	out, err := s.repo.ListNearby(ctx, id, q)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.NearbyAttraction{}
	}
	return out, nil
}

func (s *QueryService) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	key := offerKey(id)
	var o domain.Offer
	if ok, _ := s.cache.Get(ctx, key, &o); ok {
		return o, nil
	}
	o, err := s.repo.GetOffer(ctx, id)
	if err != nil {
		return domain.Offer{}, err
	}
	_ = s.cache.Set(ctx, key, o, int(s.cacheTTL.Seconds()))
	return o, nil
}

// GetContact is never cached: it carries personal data.
func (s *QueryService) GetContact(ctx context.Context, attractionID int64) (domain.Contact, error) {
	return s.repo.GetContact(ctx, attractionID)
}

func deepCopyReviewsPage(in domain.ReviewsPage) domain.ReviewsPage {
	out := domain.ReviewsPage{}
	if n := len(in.Items); n > 0 {
		out.Items = make([]domain.Review, n)
		copy(out.Items, in.Items)
	}
	return out
}

const (
	DefaultReviewLimit = 50
	ReviewSort         = "-created_at"
)

var reviewLimits = []int{DefaultReviewLimit, 100, 200}

// only page sizes that writes know how to invalidate are cached
func cachedReviewLimit(n int) bool {
	for _, l := range reviewLimits {
		if l == n {
			return true
		}
	}
	return false
}
