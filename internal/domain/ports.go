package domain

import (
	"context"
	"time"
)

type AttractionRepository interface {
	// Write paths
	CreateAttraction(ctx context.Context, a NewAttraction, slugs Slugs) (int64, error)
	DeleteAttraction(ctx context.Context, id int64) error
	RemoveImage(ctx context.Context, hostID, publicID string) ([]int64, error)
	CreateReview(ctx context.Context, r NewReview) (int64, error)
	CreateOffer(ctx context.Context, o Offer) error
	UpsertProfile(ctx context.Context, o Organizer) error

	// Read paths
	GetAttraction(ctx context.Context, id int64) (Attraction, error)
	ListAttractions(ctx context.Context, q AttractionsQuery) (AttractionsPage, error)
	ListReviews(ctx context.Context, attractionID int64, pg PageQuery) (ReviewsPage, error)
	ListNearby(ctx context.Context, attractionID int64, q NearbyQuery) ([]NearbyAttraction, error)
	GetOffer(ctx context.Context, id string) (Offer, error)
	ListOfferIDs(ctx context.Context, attractionID int64) ([]string, error)
	GetContact(ctx context.Context, attractionID int64) (Contact, error)
}

// MediaIndex is what the media sweep needs from storage.
type MediaIndex interface {
	ImageReferenced(ctx context.Context, publicID string) (bool, error)
	LogSweep(ctx context.Context, publicID, action, reason string) error
}

// SweepMetrics counts media sweep outcomes.
type SweepMetrics interface {
	ObserveSweep(outcome string)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type MediaStore interface {
	Destroy(ctx context.Context, publicID string) error
	List(ctx context.Context, prefix, cursor string) (AssetPage, error)
	SignUpload(folder string, ts time.Time) UploadSignature
}

type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type AuthProvider interface {
	AuthorizeURL(provider, redirectTo, challenge string) string
	ExchangeCode(ctx context.Context, code, verifier string) (Session, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
}

type TokenVerifier interface {
	Verify(token string) (Principal, error)
}

type Slugs struct {
	Slug, City, Activity string
}

type Asset struct {
	PublicID  string
	CreatedAt time.Time
	Bytes     int64
}

type AssetPage struct {
	Assets     []Asset
	NextCursor string
}

type UploadSignature struct {
	APIKey    string `json:"apiKey"`
	CloudName string `json:"cloudName"`
	Folder    string `json:"folder"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// Read models & queries

type AttractionsQuery struct {
	Category     *string
	CitySlug     *string
	ActivitySlug *string
	HostID       *string
	Q            *string
	Limit        int
	Cursor       *int64 // id of the last item seen; results have smaller ids
}

type AttractionsPage struct {
	Items      []Attraction
	NextCursor *int64
}

type PageQuery struct {
	Limit int
	Sort  string
}

type ReviewsPage struct {
	Items []Review
}

type NearbyQuery struct {
	RadiusKm float64
	Limit    int
}
