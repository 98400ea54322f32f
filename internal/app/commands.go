package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"enjoyhub/internal/domain"
)

const (
	maxTitleLen    = 120
	maxCommentLen  = 2000
	maxImages      = 12
	maxPublicIDLen = 255
)

// Categories a listing can be filed under.
var Categories = []string{"adventure", "culture", "food", "nature", "nightlife", "sports", "wellness", "workshops"}

var (
	currencyRE = regexp.MustCompile(`^[A-Z]{3}$`)
	publicIDRE = regexp.MustCompile(`^[A-Za-z0-9_\-./]+$`)
)

type ListingService struct {
	repo   domain.AttractionRepository
	media  domain.MediaStore
	cache  domain.Cache
	folder string
	now    func() time.Time
}

func NewListingService(r domain.AttractionRepository, m domain.MediaStore, c domain.Cache, folder string) *ListingService {
	return &ListingService{repo: r, media: m, cache: c, folder: strings.Trim(folder, "/"), now: time.Now}
}

// UserFolder is the media folder a user may upload into and delete from.
func (s *ListingService) UserFolder(userID string) string {
	return s.folder + "/" + userID
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalid}, args...)...)
}

func IsCategory(c string) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

func (s *ListingService) CreateAttraction(ctx context.Context, p domain.Principal, in domain.NewAttraction) (domain.Attraction, error) {
	if !p.IsHost() {
		return domain.Attraction{}, fmt.Errorf("%w: only hosts can create listings", domain.ErrForbidden)
	}
	in.HostID = p.UserID
	in.Title = strings.TrimSpace(in.Title)
	in.City = strings.TrimSpace(in.City)
	in.Activity = strings.TrimSpace(in.Activity)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := s.validateAttraction(p, in); err != nil {
		return domain.Attraction{}, err
	}

	// listings reference the host's profile, which may not exist yet for
	// bearer-only clients or after a failed callback upsert
	if err := s.SyncProfile(ctx, p); err != nil {
		return domain.Attraction{}, err
	}

	slugs := domain.Slugs{Slug: Slugify(in.Title), City: Slugify(in.City), Activity: Slugify(in.Activity)}
	id, err := s.repo.CreateAttraction(ctx, in, slugs)
	if err != nil {
		return domain.Attraction{}, err
	}
	return s.repo.GetAttraction(ctx, id)
}

func (s *ListingService) validateAttraction(p domain.Principal, in domain.NewAttraction) error {
	switch {
	case in.Title == "":
		return invalid("title is required")
	case utf8.RuneCountInString(in.Title) > maxTitleLen:
		return invalid("title must be at most %d characters", maxTitleLen)
	case in.City == "":
		return invalid("city is required")
	case in.Activity == "":
		return invalid("activity is required")
	case !IsCategory(in.Category):
		return invalid("unknown category %q", in.Category)
	case in.Price < 0:
		return invalid("price must not be negative")
	case !currencyRE.MatchString(in.Currency):
		return invalid("currency must be a 3-letter ISO code")
	case (in.Lat == nil) != (in.Lon == nil):
		return invalid("lat and lon must be given together")
	case in.Lat != nil && (*in.Lat < -90 || *in.Lat > 90 || *in.Lon < -180 || *in.Lon > 180):
		return invalid("coordinates out of range")
	case len(in.Images) > maxImages:
		return invalid("at most %d images", maxImages)
	}
	for _, img := range in.Images {
		if err := validPublicID(img.PublicID); err != nil {
			return err
		}
		if !s.owns(p, img.PublicID) {
			return fmt.Errorf("%w: image %s is not yours", domain.ErrForbidden, img.PublicID)
		}
		if !strings.HasPrefix(img.URL, "https://") {
			return invalid("image url must be https")
		}
	}
	return nil
}

func (s *ListingService) DeleteAttraction(ctx context.Context, p domain.Principal, id int64) error {
	a, err := s.repo.GetAttraction(ctx, id)
	if err != nil {
		return err
	}
	if a.HostID != p.UserID {
		return fmt.Errorf("%w: listing %d belongs to another host", domain.ErrForbidden, id)
	}
	// offers and reviews go with the listing; read the offer ids first
	offerIDs, err := s.repo.ListOfferIDs(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteAttraction(ctx, id); err != nil {
		return err
	}
	s.invalidateAttraction(ctx, id)
	s.invalidateReviews(ctx, id)
	for _, oid := range offerIDs {
		_ = s.cache.Del(ctx, offerKey(oid))
	}

	// best effort; the media sweep collects whatever is left behind
	for _, img := range a.Images {
		if err := s.media.Destroy(ctx, img.PublicID); err != nil {
			log.Warn().Err(err).Int64("attraction", id).Str("public_id", img.PublicID).Msg("image cleanup failed")
		}
	}
	return nil
}

func (s *ListingService) AddReview(ctx context.Context, p domain.Principal, attractionID int64, rating int, comment string) (domain.Review, error) {
	comment = strings.TrimSpace(comment)
	if rating < 1 || rating > 5 {
		return domain.Review{}, invalid("rating must be between 1 and 5")
	}
	if utf8.RuneCountInString(comment) > maxCommentLen {
		return domain.Review{}, invalid("comment must be at most %d characters", maxCommentLen)
	}
	if _, err := s.repo.GetAttraction(ctx, attractionID); err != nil {
		return domain.Review{}, err
	}

	nr := domain.NewReview{
		AttractionID: attractionID,
		UserID:       p.UserID,
		Author:       displayName(p),
		Rating:       rating,
		Comment:      comment,
	}
	id, err := s.repo.CreateReview(ctx, nr)
	if err != nil {
		return domain.Review{}, err
	}
	// rating average lives on the attraction view
	s.invalidateAttraction(ctx, attractionID)
	s.invalidateReviews(ctx, attractionID)

	return domain.Review{
		ID:           id,
		AttractionID: attractionID,
		UserID:       p.UserID,
		Author:       nr.Author,
		Rating:       rating,
		Comment:      comment,
		CreatedAt:    s.now().UTC(),
	}, nil
}

func (s *ListingService) CreateOffer(ctx context.Context, p domain.Principal, in domain.NewOffer) (domain.Offer, error) {
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "":
		return domain.Offer{}, invalid("title is required")
	case utf8.RuneCountInString(in.Title) > maxTitleLen:
		return domain.Offer{}, invalid("title must be at most %d characters", maxTitleLen)
	case in.DiscountPercent < 1 || in.DiscountPercent > 100:
		return domain.Offer{}, invalid("discountPercent must be between 1 and 100")
	case in.StartsAt.IsZero() || in.EndsAt.IsZero():
		return domain.Offer{}, invalid("startsAt and endsAt are required")
	case !in.EndsAt.After(in.StartsAt):
		return domain.Offer{}, invalid("endsAt must be after startsAt")
	}

	a, err := s.repo.GetAttraction(ctx, in.AttractionID)
	if err != nil {
		return domain.Offer{}, err
	}
	if a.HostID != p.UserID {
		return domain.Offer{}, fmt.Errorf("%w: listing %d belongs to another host", domain.ErrForbidden, a.ID)
	}

	o := domain.Offer{
		ID:              uuid.NewString(),
		AttractionID:    a.ID,
		Title:           in.Title,
		Description:     strings.TrimSpace(in.Description),
		DiscountPercent: in.DiscountPercent,
		OriginalPrice:   a.Price,
		OfferPrice:      domain.DiscountedPrice(a.Price, in.DiscountPercent),
		Currency:        a.Currency,
		StartsAt:        in.StartsAt.UTC(),
		EndsAt:          in.EndsAt.UTC(),
		AttractionTitle: a.Title,
		AttractionPath:  a.Path(),
	}
	if err := s.repo.CreateOffer(ctx, o); err != nil {
		return domain.Offer{}, err
	}
	return o, nil
}

// DeleteImage removes an image from the media store and from any of the
// caller's listings that still reference it.
func (s *ListingService) DeleteImage(ctx context.Context, p domain.Principal, publicID string) error {
	publicID = strings.TrimSpace(publicID)
	if err := validPublicID(publicID); err != nil {
		return err
	}
	if !s.owns(p, publicID) {
		return fmt.Errorf("%w: image does not belong to the current user", domain.ErrForbidden)
	}
	// a CDN miss still unlinks the row so listings stop pointing at it
	destroyErr := s.media.Destroy(ctx, publicID)
	if destroyErr != nil && !errors.Is(destroyErr, domain.ErrNotFound) {
		return destroyErr
	}
	ids, err := s.repo.RemoveImage(ctx, p.UserID, publicID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		s.invalidateAttraction(ctx, id)
	}
	return destroyErr
}

func (s *ListingService) SignUpload(p domain.Principal) (domain.UploadSignature, error) {
	if !p.IsHost() {
		return domain.UploadSignature{}, fmt.Errorf("%w: only hosts can upload images", domain.ErrForbidden)
	}
	return s.media.SignUpload(s.UserFolder(p.UserID), s.now()), nil
}

// SyncProfile records the signed-in user's profile after the auth callback.
func (s *ListingService) SyncProfile(ctx context.Context, p domain.Principal) error {
	role := p.Role
	if role != domain.RoleHost {
		role = domain.RoleUser
	}
	o := domain.Organizer{
		ID:          p.UserID,
		DisplayName: displayName(p),
		Email:       p.Email,
		Role:        role,
	}
	if p.AvatarURL != "" {
		o.AvatarURL = &p.AvatarURL
	}
	return s.repo.UpsertProfile(ctx, o)
}

func (s *ListingService) owns(p domain.Principal, publicID string) bool {
	return p.UserID != "" && strings.HasPrefix(publicID, s.UserFolder(p.UserID)+"/")
}

func validPublicID(id string) error {
	switch {
	case id == "":
		return invalid("publicId is required")
	case len(id) > maxPublicIDLen:
		return invalid("publicId is too long")
	case strings.HasPrefix(id, "/") || strings.Contains(id, "..") || strings.Contains(id, "//"):
		return invalid("publicId is not a valid path")
	case !publicIDRE.MatchString(id):
		return invalid("publicId contains invalid characters")
	}
	return nil
}

func displayName(p domain.Principal) string {
	if n := strings.TrimSpace(p.Name); n != "" {
		return n
	}
	if i := strings.IndexByte(p.Email, '@'); i > 0 {
		return p.Email[:i]
	}
	return "Guest"
}

func (s *ListingService) invalidateAttraction(ctx context.Context, id int64) {
	_ = s.cache.Del(ctx, attractionKey(id))
}

func (s *ListingService) invalidateReviews(ctx context.Context, id int64) {
	for _, lim := range reviewLimits {
		_ = s.cache.Del(ctx, reviewsKey(id, lim, ReviewSort))
	}
}
