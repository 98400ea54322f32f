package domain

import "time"

type Review struct {
	ID           int64
	AttractionID int64
	UserID       string
	Author       string
	Rating       int // 1..5
	Comment      string
	CreatedAt    time.Time
}

type NewReview struct {
	AttractionID int64
	UserID       string
	Author       string
	Rating       int
	Comment      string
}
