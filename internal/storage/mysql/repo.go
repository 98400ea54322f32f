package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"enjoyhub/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// ---- write paths ----

func (r *Repo) CreateAttraction(ctx context.Context, a domain.NewAttraction, s domain.Slugs) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, insertAttractionSQL,
		a.HostID,
		a.Title,
		s.Slug,
		a.City,
		s.City,
		a.Activity,
		s.Activity,
		a.Category,
		a.Description,
		a.Price,
		a.Currency,
		valF64(a.Lat),
		valF64(a.Lon),
	)
	if err != nil {
		return 0, fmt.Errorf("insert attraction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(a.Images) > 0 {
		values := make([]string, 0, len(a.Images))
		args := make([]any, 0, len(a.Images)*4)
		for i, img := range a.Images {
			values = append(values, "(?,?,?,?)")
			args = append(args, id, i, img.PublicID, img.URL)
		}
		if _, err := tx.ExecContext(ctx, insertImagesPrefix+strings.Join(values, ","), args...); err != nil {
			return 0, fmt.Errorf("insert images: %w", err)
		}
	}
	return id, tx.Commit()
}

func (r *Repo) DeleteAttraction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attractions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RemoveImage unlinks publicID from the host's listings and returns the ids
// of the listings that changed.
func (r *Repo) RemoveImage(ctx context.Context, hostID, publicID string) ([]int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `
SELECT DISTINCT i.attraction_id
FROM attraction_images i
JOIN attractions a ON a.id = i.attraction_id
WHERE a.host_id = ? AND i.public_id = ?
FOR UPDATE`, hostID, publicID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	ph := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, publicID)
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM attraction_images WHERE public_id = ? AND attraction_id IN (`+ph+`)`, args...); err != nil {
		return nil, err
	}
	return ids, tx.Commit()
}

func (r *Repo) CreateReview(ctx context.Context, rv domain.NewReview) (int64, error) {
	res, err := r.db.ExecContext(ctx, insertReviewSQL, rv.AttractionID, rv.UserID, rv.Author, rv.Rating, rv.Comment)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) CreateOffer(ctx context.Context, o domain.Offer) error {
	_, err := r.db.ExecContext(ctx, insertOfferSQL,
		o.ID,
		o.AttractionID,
		o.Title,
		o.Description,
		o.DiscountPercent,
		o.OriginalPrice,
		o.OfferPrice,
		o.Currency,
		o.StartsAt.UTC(),
		o.EndsAt.UTC(),
	)
	return err
}

func (r *Repo) UpsertProfile(ctx context.Context, o domain.Organizer) error {
	_, err := r.db.ExecContext(ctx, upsertProfileSQL, o.ID, o.DisplayName, o.Email, valStr(o.AvatarURL), o.Role)
	return err
}

func (r *Repo) LogSweep(ctx context.Context, publicID, action, reason string) error {
	_, err := r.db.ExecContext(ctx, insertSweepSQL, publicID, action, reason)
	return err
}

// ---- read paths ----

type rowScanner interface {
	Scan(dest ...any) error
}

// scanAttraction reads the attractionCols column list plus any extra
// trailing destinations.
func scanAttraction(s rowScanner, extra ...any) (domain.Attraction, error) {
	var a domain.Attraction
	var (
		lat, lon       sql.NullFloat64
		avg            sql.NullFloat64
		coverID, cover sql.NullString
	)
	dest := []any{
		&a.ID, &a.HostID, &a.Title, &a.Slug, &a.City, &a.CitySlug, &a.Activity, &a.ActivitySlug,
		&a.Category, &a.Description, &a.Price, &a.Currency, &lat, &lon, &a.CreatedAt,
		&avg, &a.ReviewCount,
		&coverID, &cover,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return domain.Attraction{}, err
	}
	if lat.Valid && lon.Valid {
		la, lo := lat.Float64, lon.Float64
		a.Lat, a.Lon = &la, &lo
	}
	if avg.Valid {
		v := avg.Float64
		a.Rating = &v
	}
	if coverID.Valid {
		a.Images = []domain.Image{{PublicID: coverID.String, URL: cover.String}}
	}
	return a, nil
}

func (r *Repo) GetAttraction(ctx context.Context, id int64) (domain.Attraction, error) {
	a, err := scanAttraction(r.db.QueryRowContext(ctx, getAttractionSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Attraction{}, domain.ErrNotFound
		}
		return domain.Attraction{}, err
	}

	rows, err := r.db.QueryContext(ctx, listImagesSQL, id)
	if err != nil {
		return domain.Attraction{}, err
	}
	defer rows.Close()
	a.Images = nil
	for rows.Next() {
		var img domain.Image
		if err := rows.Scan(&img.PublicID, &img.URL); err != nil {
			return domain.Attraction{}, err
		}
		a.Images = append(a.Images, img)
	}
	return a, rows.Err()
}

func (r *Repo) ListAttractions(ctx context.Context, q domain.AttractionsQuery) (domain.AttractionsPage, error) {
	var where []string
	var args []any
	if q.Category != nil {
		where = append(where, "a.category = ?")
		args = append(args, *q.Category)
	}
	if q.CitySlug != nil {
		where = append(where, "a.city_slug = ?")
		args = append(args, *q.CitySlug)
	}
	if q.ActivitySlug != nil {
		where = append(where, "a.activity_slug = ?")
		args = append(args, *q.ActivitySlug)
	}
	if q.HostID != nil {
		where = append(where, "a.host_id = ?")
		args = append(args, *q.HostID)
	}
	if q.Q != nil && strings.TrimSpace(*q.Q) != "" {
		where = append(where, "(a.title LIKE ? OR a.city LIKE ? OR a.activity LIKE ?)")
		like := "%" + escapeLike(strings.TrimSpace(*q.Q)) + "%"
		args = append(args, like, like, like)
	}
	if q.Cursor != nil {
		where = append(where, "a.id < ?")
		args = append(args, *q.Cursor)
	}

	stmt := "SELECT" + attractionCols + attractionJoins
	if len(where) > 0 {
		stmt += "\nWHERE " + strings.Join(where, " AND ")
	}
	stmt += "\nORDER BY a.id DESC\nLIMIT ?"
	args = append(args, q.Limit+1) // one extra row tells us whether there is a next page

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return domain.AttractionsPage{}, err
	}
	defer rows.Close()

	out := make([]domain.Attraction, 0, q.Limit)
	for rows.Next() {
		a, err := scanAttraction(rows)
		if err != nil {
			return domain.AttractionsPage{}, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return domain.AttractionsPage{}, err
	}

	page := domain.AttractionsPage{Items: out}
	if len(out) > q.Limit {
		page.Items = out[:q.Limit]
		next := page.Items[len(page.Items)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *Repo) ListReviews(ctx context.Context, id int64, pg domain.PageQuery) (domain.ReviewsPage, error) {
	rows, err := r.db.QueryContext(ctx, listReviewsSQL, id, pg.Limit)
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(&rv.ID, &rv.AttractionID, &rv.UserID, &rv.Author, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return domain.ReviewsPage{}, err
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return domain.ReviewsPage{}, err
	}
	return domain.ReviewsPage{Items: out}, nil
}

func (r *Repo) ListNearby(ctx context.Context, id int64, q domain.NearbyQuery) ([]domain.NearbyAttraction, error) {
	rows, err := r.db.QueryContext(ctx, listNearbySQL, id, q.RadiusKm, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.NearbyAttraction{}
	for rows.Next() {
		var dist float64
		a, err := scanAttraction(rows, &dist)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.NearbyAttraction{Attraction: a, DistanceKm: dist})
	}
	return out, rows.Err()
}

// ListOfferIDs returns the ids of the listing's offers, for cache invalidation.
func (r *Repo) ListOfferIDs(ctx context.Context, attractionID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, listOfferIDsSQL, attractionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repo) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	var o domain.Offer
	var parent domain.Attraction
	err := r.db.QueryRowContext(ctx, getOfferSQL, id).Scan(
		&o.ID, &o.AttractionID, &o.Title, &o.Description, &o.DiscountPercent,
		&o.OriginalPrice, &o.OfferPrice, &o.Currency, &o.StartsAt, &o.EndsAt,
		&parent.Title, &parent.Slug, &parent.CitySlug, &parent.ActivitySlug,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Offer{}, domain.ErrNotFound
		}
		return domain.Offer{}, err
	}
	parent.ID = o.AttractionID
	o.AttractionTitle = parent.Title
	o.AttractionPath = parent.Path()
	return o, nil
}

func (r *Repo) GetContact(ctx context.Context, attractionID int64) (domain.Contact, error) {
	var c domain.Contact
	var phone sql.NullString
	if err := r.db.QueryRowContext(ctx, getContactSQL, attractionID).Scan(&c.Name, &c.Email, &phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Contact{}, domain.ErrNotFound
		}
		return domain.Contact{}, err
	}
	if phone.Valid && strings.TrimSpace(phone.String) != "" {
		p := phone.String
		c.Phone = &p
	}
	return c, nil
}

func (r *Repo) ImageReferenced(ctx context.Context, publicID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, imageReferencedSQL, publicID).Scan(&ok)
	return ok, err
}
