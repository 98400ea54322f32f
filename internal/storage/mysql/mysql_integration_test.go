//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"enjoyhub/internal/app"
	"enjoyhub/internal/domain"
	mysqlrepo "enjoyhub/internal/storage/mysql"
)

// ---------- small helpers ----------
func pfloat(f float64) *float64 { return &f }

func migrationsDir(t *testing.T) string {
	t.Helper()
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		return dir
	}
	return filepath.Join("..", "..", "..", "migrations")
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir(t)

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("dockertest unavailable: %v", err)
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=enjoyhub",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Skipf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/enjoyhub?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		resource.GetPort("3306/tcp"))

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

// ---------- the test ----------
func TestRepo_MySQL_ListingLifecycle(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	phone := "+57 300 000 0000"
	if err := repo.UpsertProfile(ctx, domain.Organizer{ID: "host-1", DisplayName: "Ana", Email: "ana@example.com", Role: domain.RoleHost}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	if _, err := db.Exec(`UPDATE profiles SET phone = ? WHERE id = ?`, phone, "host-1"); err != nil {
		t.Fatalf("seed phone: %v", err)
	}

	kayak := domain.NewAttraction{
		HostID: "host-1", Title: "Kayak Tour", City: "Bogotá", Activity: "Water Sports", Category: "adventure",
		Description: "Paddle", Price: 80, Currency: "USD", Lat: pfloat(4.60), Lon: pfloat(-74.08),
		Images: []domain.Image{
			{PublicID: "enjoyhub/host-1/a", URL: "https://cdn/a.jpg"},
			{PublicID: "enjoyhub/host-1/b", URL: "https://cdn/b.jpg"},
		},
	}
	id1, err := repo.CreateAttraction(ctx, kayak, domain.Slugs{Slug: "kayak-tour", City: "bogota", Activity: "water-sports"})
	if err != nil {
		t.Fatalf("CreateAttraction: %v", err)
	}
	near := kayak
	near.Title, near.Lat, near.Lon, near.Images = "Bike Tour", pfloat(4.65), pfloat(-74.05), nil
	id2, err := repo.CreateAttraction(ctx, near, domain.Slugs{Slug: "bike-tour", City: "bogota", Activity: "water-sports"})
	if err != nil {
		t.Fatalf("CreateAttraction: %v", err)
	}

	a, err := repo.GetAttraction(ctx, id1)
	if err != nil {
		t.Fatalf("GetAttraction: %v", err)
	}
	if a.Title != "Kayak Tour" || len(a.Images) != 2 || a.Images[1].PublicID != "enjoyhub/host-1/b" || a.Rating != nil {
		t.Fatalf("unexpected attraction: %+v", a)
	}
	if a.Path() != fmt.Sprintf("/bogota/water-sports/kayak-tour-%d", id1) {
		t.Fatalf("path = %s", a.Path())
	}

	// reviews + rating aggregate
	for _, rating := range []int{5, 4} {
		if _, err := repo.CreateReview(ctx, domain.NewReview{AttractionID: id1, UserID: "u", Author: "Bob", Rating: rating, Comment: "ok"}); err != nil {
			t.Fatalf("CreateReview: %v", err)
		}
	}
	a, _ = repo.GetAttraction(ctx, id1)
	if a.Rating == nil || *a.Rating != 4.5 || a.ReviewCount != 2 {
		t.Fatalf("rating = %v count = %d", a.Rating, a.ReviewCount)
	}
	rp, err := repo.ListReviews(ctx, id1, domain.PageQuery{Limit: 10})
	if err != nil || len(rp.Items) != 2 {
		t.Fatalf("ListReviews: %v %+v", err, rp)
	}

	// list + cursor
	cat := "adventure"
	page, err := repo.ListAttractions(ctx, domain.AttractionsQuery{Category: &cat, Limit: 1})
	if err != nil {
		t.Fatalf("ListAttractions: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != id2 || page.NextCursor == nil {
		t.Fatalf("unexpected first page: %+v", page)
	}
	page, _ = repo.ListAttractions(ctx, domain.AttractionsQuery{Category: &cat, Limit: 1, Cursor: page.NextCursor})
	if len(page.Items) != 1 || page.Items[0].ID != id1 || page.NextCursor != nil {
		t.Fatalf("unexpected second page: %+v", page)
	}
	if page.Items[0].Cover() == nil || page.Items[0].Cover().PublicID != "enjoyhub/host-1/a" {
		t.Fatalf("cover missing: %+v", page.Items[0])
	}

	// nearby
	nb, err := repo.ListNearby(ctx, id1, domain.NearbyQuery{RadiusKm: 25, Limit: 5})
	if err != nil {
		t.Fatalf("ListNearby: %v", err)
	}
	if len(nb) != 1 || nb[0].ID != id2 || nb[0].DistanceKm <= 0 || nb[0].DistanceKm > 10 {
		t.Fatalf("unexpected nearby: %+v", nb)
	}

	// offers
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	offerID := "8c3f1f8e-2f59-4c1e-9d0a-0f6d0c2d9a11"
	if err := repo.CreateOffer(ctx, domain.Offer{
		ID: offerID, AttractionID: id1, Title: "Spring", DiscountPercent: 25,
		OriginalPrice: 80, OfferPrice: 60, Currency: "USD", StartsAt: start, EndsAt: start.AddDate(0, 1, 0),
	}); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	o, err := repo.GetOffer(ctx, offerID)
	if err != nil {
		t.Fatalf("GetOffer: %v", err)
	}
	if o.OfferPrice != 60 || o.AttractionPath != a.Path() || !o.StartsAt.Equal(start) {
		t.Fatalf("unexpected offer: %+v", o)
	}
	if _, err := repo.GetOffer(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	// contact
	c, err := repo.GetContact(ctx, id1)
	if err != nil || c.Name != "Ana" || c.Phone == nil || *c.Phone != phone {
		t.Fatalf("GetContact: %+v %v", c, err)
	}

	// images
	ok, err := repo.ImageReferenced(ctx, "enjoyhub/host-1/a")
	if err != nil || !ok {
		t.Fatalf("ImageReferenced: %v %v", ok, err)
	}
	ids, err := repo.RemoveImage(ctx, "someone-else", "enjoyhub/host-1/a")
	if err != nil || len(ids) != 0 {
		t.Fatalf("RemoveImage other host: %v %v", ids, err)
	}
	ids, err = repo.RemoveImage(ctx, "host-1", "enjoyhub/host-1/a")
	if err != nil || len(ids) != 1 || ids[0] != id1 {
		t.Fatalf("RemoveImage: %v %v", ids, err)
	}
	if ok, _ := repo.ImageReferenced(ctx, "enjoyhub/host-1/a"); ok {
		t.Fatalf("image still referenced")
	}
	if err := repo.LogSweep(ctx, "enjoyhub/host-1/a", "deleted", "unreferenced"); err != nil {
		t.Fatalf("LogSweep: %v", err)
	}

	offerIDs, err := repo.ListOfferIDs(ctx, id1)
	if err != nil || len(offerIDs) != 1 || offerIDs[0] != offerID {
		t.Fatalf("ListOfferIDs: %v %v", offerIDs, err)
	}

	// delete cascades
	if err := repo.DeleteAttraction(ctx, id1); err != nil {
		t.Fatalf("DeleteAttraction: %v", err)
	}
	if err := repo.DeleteAttraction(ctx, id1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
	if _, err := repo.GetOffer(ctx, offerID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("offer should cascade: %v", err)
	}
	if offerIDs, _ := repo.ListOfferIDs(ctx, id1); len(offerIDs) != 0 {
		t.Fatalf("offers left after cascade: %v", offerIDs)
	}
}

// A host that never went through the login callback has no profiles row yet.
func TestListingService_MySQL_HostWithoutProfile(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	svc := app.NewListingService(repo, nil, nil, "enjoyhub")
	ctx := context.Background()

	p := domain.Principal{UserID: "bearer-host", Email: "dana@example.com", Role: domain.RoleHost}
	in := domain.NewAttraction{
		Title: "Salsa Night", City: "Cali", Activity: "Dancing", Category: "nightlife",
		Price: 20, Currency: "COP",
	}
	a, err := svc.CreateAttraction(ctx, p, in)
	if err != nil {
		t.Fatalf("CreateAttraction: %v", err)
	}
	if a.HostID != "bearer-host" {
		t.Fatalf("host = %q", a.HostID)
	}

	var name, role string
	if err := db.QueryRow(`SELECT display_name, role FROM profiles WHERE id = ?`, "bearer-host").Scan(&name, &role); err != nil {
		t.Fatalf("profile row: %v", err)
	}
	if name != "dana" || role != string(domain.RoleHost) {
		t.Fatalf("profile = %s/%s", name, role)
	}
	c, err := repo.GetContact(ctx, a.ID)
	if err != nil || c.Name != "dana" {
		t.Fatalf("GetContact: %+v %v", c, err)
	}
}
