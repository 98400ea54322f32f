package domain

import (
	"math"
	"time"
)

type Offer struct {
	ID              string // uuid
	AttractionID    int64
	Title           string
	Description     string
	DiscountPercent int
	OriginalPrice   float64
	OfferPrice      float64
	Currency        string
	StartsAt        time.Time
	EndsAt          time.Time

	// parent listing, for linking back to its page
	AttractionTitle string
	AttractionPath  string
}

// ActiveAt reports whether t falls within [StartsAt, EndsAt).
func (o Offer) ActiveAt(t time.Time) bool {
	return !t.Before(o.StartsAt) && t.Before(o.EndsAt)
}

type NewOffer struct {
	AttractionID    int64
	Title           string
	Description     string
	DiscountPercent int
	StartsAt        time.Time
	EndsAt          time.Time
}

// DiscountedPrice applies pct to price, rounded to cents.
func DiscountedPrice(price float64, pct int) float64 {
	v := price * float64(100-pct) / 100
	return math.Round(v*100) / 100
}
