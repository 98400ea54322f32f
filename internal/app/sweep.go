package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"enjoyhub/internal/domain"
)

type SweepOutcome string

const (
	SweepKept    SweepOutcome = "kept"
	SweepDeleted SweepOutcome = "deleted"
	SweepWouldDo SweepOutcome = "dry_run"
	SweepYoung   SweepOutcome = "too_young"
	SweepGone    SweepOutcome = "already_gone"
)

type noMetrics struct{}

func (noMetrics) ObserveSweep(string) {}

// MediaSweeper deletes CDN images that no listing references any more.
type MediaSweeper struct {
	media   domain.MediaStore
	index   domain.MediaIndex
	metrics domain.SweepMetrics
	grace   time.Duration
	dryRun  bool
	now     func() time.Time
}

// NewMediaSweeper builds a sweeper; a nil metrics sink counts nothing.
func NewMediaSweeper(m domain.MediaStore, idx domain.MediaIndex, metrics domain.SweepMetrics, grace time.Duration, dryRun bool) *MediaSweeper {
	if metrics == nil {
		metrics = noMetrics{}
	}
	return &MediaSweeper{media: m, index: idx, metrics: metrics, grace: grace, dryRun: dryRun, now: time.Now}
}

// SweepAsset decides the fate of one asset and records it. A failure to
// write the sweep log is returned alongside the outcome that was reached.
func (s *MediaSweeper) SweepAsset(ctx context.Context, a domain.Asset) (SweepOutcome, error) {
	// uploads land before the listing form is submitted
	if !a.CreatedAt.IsZero() && s.now().Sub(a.CreatedAt) < s.grace {
		return s.record(ctx, a.PublicID, SweepYoung, "within grace")
	}

	used, err := s.index.ImageReferenced(ctx, a.PublicID)
	if err != nil {
		return "", err
	}
	if used {
		return s.record(ctx, a.PublicID, SweepKept, "referenced")
	}

	if s.dryRun {
		return s.record(ctx, a.PublicID, SweepWouldDo, "unreferenced")
	}

	if err := s.media.Destroy(ctx, a.PublicID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.record(ctx, a.PublicID, SweepGone, "not found")
		}
		if lerr := s.index.LogSweep(ctx, a.PublicID, "error", truncate(err.Error(), 250)); lerr != nil {
			return "", errors.Join(err, fmt.Errorf("record sweep: %w", lerr))
		}
		return "", err
	}
	return s.record(ctx, a.PublicID, SweepDeleted, "unreferenced")
}

func (s *MediaSweeper) record(ctx context.Context, publicID string, o SweepOutcome, reason string) (SweepOutcome, error) {
	s.metrics.ObserveSweep(string(o))
	if err := s.index.LogSweep(ctx, publicID, string(o), reason); err != nil {
		return o, fmt.Errorf("record sweep: %w", err)
	}
	return o, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
