// Package repository is the read surface over the weather cache. It hides
// the sync engine and the store behind request-shaped operations: callers ask
// for current weather at a coordinate and get the freshest answer the system
// can produce, falling back to a recent cached reading when the network
// cannot be reached.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"weathersync/internal/geo"
	"weathersync/internal/storage"
	"weathersync/internal/syncer"
	"weathersync/internal/weather"
)

// ErrInvalidCoordinates rejects requests outside valid latitude and
// longitude ranges before any work is done.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// ErrNoData means no usable snapshot exists, cached or fresh.
var ErrNoData = errors.New("no weather data available")

// maxStaleAge bounds how old a cached snapshot may be and still be served
// when a live refresh fails.
const maxStaleAge = 7 * 24 * time.Hour

// Syncer triggers an on-demand refresh.
type Syncer interface {
	Sync(ctx context.Context, lat, lon float64) syncer.Result
}

// Reader is the slice of the store the repository queries.
type Reader interface {
	LatestNear(ctx context.Context, lat, lon, tolerance float64) (*weather.Snapshot, error)
	LatestPerDaySince(ctx context.Context, start time.Time) ([]weather.Snapshot, error)
	CountPerDay(ctx context.Context, start time.Time) ([]storage.DayCount, error)
}

// Reading is a served snapshot. Stale is set when the reading comes from the
// cache because a live refresh failed.
type Reading struct {
	Snapshot *weather.Snapshot `json:"snapshot"`
	Stale    bool              `json:"stale"`
}

type Repository struct {
	logger    *log.Logger
	store     Reader
	engine    Syncer
	tolerance float64

	now func() time.Time
}

func New(logger *log.Logger, store Reader, engine Syncer) *Repository {
	return &Repository{
		logger:    logger,
		store:     store,
		engine:    engine,
		tolerance: storage.DefaultTolerance,
		now:       time.Now,
	}
}

// Current returns weather for the given coordinate, refreshing through the
// sync engine first. The engine applies its own freshness gate, so a recent
// snapshot short-circuits the network call. When the refresh fails, a cached
// snapshot no older than a week is served with the stale flag set.
func (r *Repository) Current(ctx context.Context, lat, lon float64) (*Reading, error) {
	if !geo.IsValid(lat, lon) {
		return nil, fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinates, lat, lon)
	}

	// The engine's freshness gate checks the newest snapshot regardless of
	// location, so a successful sync can hand back a reading for a
	// different coordinate. Only serve it when it is for the one asked for.
	result := r.engine.Sync(ctx, lat, lon)
	if result.Snapshot != nil && result.Snapshot.MatchesLocation(lat, lon, r.tolerance) {
		return &Reading{Snapshot: result.Snapshot}, nil
	}

	reason := result.Message
	if reason == "" {
		reason = "no reading for this location"
	}

	snap, err := r.store.LatestNear(ctx, lat, lon, r.tolerance)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoData, reason)
		}
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	if snap.Age(r.now()) > maxStaleAge {
		return nil, fmt.Errorf("%w: cached reading too old, %s", ErrNoData, reason)
	}

	r.logger.Printf("serving stale snapshot %d for (%v, %v): %s", snap.ID, lat, lon, reason)
	return &Reading{Snapshot: snap, Stale: true}, nil
}

// LastWeek returns the latest snapshot of each of the past seven local days,
// most recent day first.
func (r *Repository) LastWeek(ctx context.Context) ([]weather.Snapshot, error) {
	start := r.now().Add(-7 * 24 * time.Hour)
	snaps, err := r.store.LatestPerDaySince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("reading week history: %w", err)
	}
	return snaps, nil
}

// Stats reports how many snapshots were cached on each day of the retention
// window, oldest day first.
func (r *Repository) Stats(ctx context.Context) ([]storage.DayCount, error) {
	start := r.now().Add(-syncer.DefaultRetention)
	counts, err := r.store.CountPerDay(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("reading cache stats: %w", err)
	}
	return counts, nil
}
