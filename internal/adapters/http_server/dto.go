package httpserver

import (
	"math"
	"time"

	"enjoyhub/internal/domain"
)

type attractionJSON struct {
	ID           int64          `json:"id"`
	HostID       string         `json:"hostId"`
	Title        string         `json:"title"`
	Slug         string         `json:"slug"`
	City         string         `json:"city"`
	CitySlug     string         `json:"citySlug"`
	Activity     string         `json:"activity"`
	ActivitySlug string         `json:"activitySlug"`
	Category     string         `json:"category"`
	Description  string         `json:"description,omitempty"`
	Price        float64        `json:"price"`
	Currency     string         `json:"currency"`
	Lat          *float64       `json:"lat,omitempty"`
	Lon          *float64       `json:"lon,omitempty"`
	Cover        *domain.Image  `json:"cover,omitempty"`
	Images       []domain.Image `json:"images,omitempty"`
	Rating       *float64       `json:"rating"`
	ReviewCount  int            `json:"reviewCount"`
	Path         string         `json:"path"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// toAttractionJSON renders a listing; summaries drop the description and
// the gallery and keep only the cover.
func toAttractionJSON(a domain.Attraction, full bool) attractionJSON {
	out := attractionJSON{
		ID:           a.ID,
		HostID:       a.HostID,
		Title:        a.Title,
		Slug:         a.Slug,
		City:         a.City,
		CitySlug:     a.CitySlug,
		Activity:     a.Activity,
		ActivitySlug: a.ActivitySlug,
		Category:     a.Category,
		Price:        a.Price,
		Currency:     a.Currency,
		Lat:          a.Lat,
		Lon:          a.Lon,
		Cover:        a.Cover(),
		ReviewCount:  a.ReviewCount,
		Path:         a.Path(),
		CreatedAt:    a.CreatedAt,
	}
	if a.Rating != nil {
		r := roundTo(*a.Rating, 2)
		out.Rating = &r
	}
	if full {
		out.Description = a.Description
		out.Images = a.Images
		if out.Images == nil {
			out.Images = []domain.Image{}
		}
	}
	return out
}

type pageJSON struct {
	Items      []attractionJSON `json:"items"`
	NextCursor *int64           `json:"nextCursor"`
}

func toPageJSON(p domain.AttractionsPage) pageJSON {
	items := make([]attractionJSON, 0, len(p.Items))
	for _, a := range p.Items {
		items = append(items, toAttractionJSON(a, false))
	}
	return pageJSON{Items: items, NextCursor: p.NextCursor}
}

type nearbyJSON struct {
	attractionJSON
	DistanceKm float64 `json:"distanceKm"`
}

type reviewJSON struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

func toReviewJSON(r domain.Review) reviewJSON {
	return reviewJSON{ID: r.ID, Author: r.Author, Rating: r.Rating, Comment: r.Comment, CreatedAt: r.CreatedAt}
}

type offerJSON struct {
	ID              string    `json:"id"`
	AttractionID    int64     `json:"attractionId"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DiscountPercent int       `json:"discountPercent"`
	OriginalPrice   float64   `json:"originalPrice"`
	OfferPrice      float64   `json:"offerPrice"`
	Currency        string    `json:"currency"`
	StartsAt        time.Time `json:"startsAt"`
	EndsAt          time.Time `json:"endsAt"`
	Active          bool      `json:"active"`
	AttractionTitle string    `json:"attractionTitle"`
	AttractionPath  string    `json:"attractionPath"`
}

func toOfferJSON(o domain.Offer, now time.Time) offerJSON {
	return offerJSON{
		ID:              o.ID,
		AttractionID:    o.AttractionID,
		Title:           o.Title,
		Description:     o.Description,
		DiscountPercent: o.DiscountPercent,
		OriginalPrice:   o.OriginalPrice,
		OfferPrice:      o.OfferPrice,
		Currency:        o.Currency,
		StartsAt:        o.StartsAt.UTC(),
		EndsAt:          o.EndsAt.UTC(),
		Active:          o.ActiveAt(now),
		AttractionTitle: o.AttractionTitle,
		AttractionPath:  o.AttractionPath,
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
