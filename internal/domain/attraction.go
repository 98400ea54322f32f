package domain

import (
	"strconv"
	"time"
)

type Attraction struct {
	ID           int64
	HostID       string
	Title        string
	Slug         string
	City         string
	CitySlug     string
	Activity     string
	ActivitySlug string
	Category     string
	Description  string
	Price        float64
	Currency     string
	Lat, Lon     *float64
	Images       []Image
	Rating       *float64 // average of reviews, nil when unrated
	ReviewCount  int
	CreatedAt    time.Time
}

type Image struct {
	PublicID string `json:"publicId"`
	URL      string `json:"url"`
}

// Path is the canonical page path: /{city}/{activity}/{slug}-{id}.
func (a Attraction) Path() string {
	return "/" + a.CitySlug + "/" + a.ActivitySlug + "/" + a.Slug + "-" + strconv.FormatInt(a.ID, 10)
}

// Cover returns the first image, if any.
func (a Attraction) Cover() *Image {
	if len(a.Images) == 0 {
		return nil
	}
	return &a.Images[0]
}

type NearbyAttraction struct {
	Attraction
	DistanceKm float64
}

// NewAttraction is the write model for a listing created by a host.
type NewAttraction struct {
	HostID      string
	Title       string
	City        string
	Activity    string
	Category    string
	Description string
	Price       float64
	Currency    string
	Lat, Lon    *float64
	Images      []Image
}
