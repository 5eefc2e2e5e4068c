package syncer

import (
	"context"
	"errors"
	"log"
	"time"

	"weathersync/internal/geo"
	"weathersync/internal/metrics"
	"weathersync/internal/weather"
)

const (
	// DefaultFreshness bounds call frequency independent of the scheduler:
	// a same-day snapshot younger than this suppresses the network call.
	DefaultFreshness = 6 * time.Hour

	// DefaultRetention is the age cutoff for the eviction sweep.
	DefaultRetention = 30 * 24 * time.Hour
)

// Outcome is the terminal state of one sync attempt. The engine never
// retries internally; Retry asks the caller's scheduling facility to.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetry
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is what one sync attempt reports. Snapshot is set when the attempt
// inserted a row.
type Result struct {
	Outcome  Outcome
	Message  string
	Snapshot *weather.Snapshot
}

// Fetcher is the remote weather endpoint as the engine sees it.
type Fetcher interface {
	Current(ctx context.Context, lat, lon float64) (*weather.Payload, error)
}

// Store is the slice of the cache store the engine writes through.
type Store interface {
	Latest(ctx context.Context) (*weather.Snapshot, error)
	InsertSnapshot(ctx context.Context, snap *weather.Snapshot) error
	EvictOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Options tune an Engine. Zero values fall back to defaults.
type Options struct {
	DefaultCoordinate geo.Coordinate
	Freshness         time.Duration
	Retention         time.Duration
}

// Engine runs the fetch-classify-persist pipeline. It is stateless between
// calls and safe for concurrent use: every sync is a pure insert into an
// append-only store, so overlapping runs cannot race.
type Engine struct {
	logger       *log.Logger
	store        Store
	client       Fetcher
	locations    *geo.LocationStore
	defaultCoord geo.Coordinate
	freshness    time.Duration
	retention    time.Duration

	now func() time.Time // overridable in tests
}

// New creates a sync engine. The default coordinate in opts must be valid;
// it is the terminal fallback of coordinate resolution.
func New(logger *log.Logger, store Store, client Fetcher, locations *geo.LocationStore, opts Options) *Engine {
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}

	return &Engine{
		logger:       logger,
		store:        store,
		client:       client,
		locations:    locations,
		defaultCoord: opts.DefaultCoordinate,
		freshness:    opts.Freshness,
		retention:    opts.Retention,
		now:          time.Now,
	}
}

// Sync performs one sync attempt for the given coordinate. An invalid
// coordinate never reaches the network: resolution falls back to the last
// known location and then to the default. The attempt inserts at most one
// row and runs at most one retention sweep.
func (e *Engine) Sync(ctx context.Context, lat, lon float64) Result {
	start := e.now()
	metrics.SyncsInFlight.Inc()
	defer func() {
		metrics.SyncsInFlight.Dec()
		metrics.SyncDuration.Observe(e.now().Sub(start).Seconds())
	}()

	result := e.sync(ctx, lat, lon)
	metrics.SyncsTotal.WithLabelValues(result.Outcome.String()).Inc()
	return result
}

func (e *Engine) sync(ctx context.Context, lat, lon float64) Result {
	if fresh, snap := e.freshSnapshot(ctx); fresh {
		metrics.FreshnessSkips.Inc()
		e.logger.Printf("sync skipped: snapshot from %s is still fresh", snap.CachedAt.Format(time.RFC3339))
		return Result{Outcome: OutcomeSuccess, Message: "cache is fresh", Snapshot: snap}
	}

	coord := e.resolve(lat, lon)

	payload, err := e.client.Current(ctx, coord.Lat, coord.Lon)
	if err != nil {
		return e.classify(err)
	}

	snap := weather.NewSnapshot(*payload)
	if !geo.IsValid(snap.Latitude, snap.Longitude) {
		// Some responses omit or zero the coordinate block; the reading
		// still applies to the coordinate we asked about.
		snap.Latitude, snap.Longitude = coord.Lat, coord.Lon
	}

	if err := e.store.InsertSnapshot(ctx, &snap); err != nil {
		return Result{Outcome: OutcomeFailure, Message: "persist snapshot: " + err.Error()}
	}
	metrics.SnapshotsInserted.Inc()
	e.locations.Save(coord.Lat, coord.Lon)

	// Retention is a soft limit: a failed sweep never fails the sync.
	cutoff := e.now().Add(-e.retention)
	if deleted, err := e.store.EvictOlderThan(ctx, cutoff); err != nil {
		e.logger.Printf("retention sweep failed: %v", err)
	} else if deleted > 0 {
		metrics.SnapshotsEvicted.Add(float64(deleted))
		e.logger.Printf("retention sweep removed %d snapshots older than %s", deleted, cutoff.Format(time.RFC3339))
	}

	return Result{Outcome: OutcomeSuccess, Snapshot: &snap}
}

// freshSnapshot reports whether a snapshot from today exists that is young
// enough to make a network call redundant.
func (e *Engine) freshSnapshot(ctx context.Context) (bool, *weather.Snapshot) {
	latest, err := e.store.Latest(ctx)
	if err != nil {
		return false, nil
	}

	now := e.now()
	ly, lm, ld := latest.CachedAt.Date()
	ny, nm, nd := now.Date()
	if ly != ny || lm != nm || ld != nd {
		return false, nil
	}
	if latest.Age(now) >= e.freshness {
		return false, nil
	}
	return true, latest
}

// resolve terminates in a valid coordinate: explicit input when valid, then
// the last known location, then the guaranteed-valid default.
func (e *Engine) resolve(lat, lon float64) geo.Coordinate {
	if geo.IsValid(lat, lon) {
		return geo.Coordinate{Lat: lat, Lon: lon}
	}
	if last, ok := e.locations.Last(); ok {
		return last
	}
	return e.defaultCoord
}

// classify maps a fetch error to a terminal outcome. Anything not
// positively identified as transient is treated as permanent, so unknown
// conditions cannot produce endless retries.
func (e *Engine) classify(err error) Result {
	var apiErr *weather.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsServerError() {
			return Result{Outcome: OutcomeRetry, Message: apiErr.Error()}
		}
		return Result{Outcome: OutcomeFailure, Message: apiErr.Error()}
	}

	var transportErr *weather.TransportError
	if errors.As(err, &transportErr) {
		return Result{Outcome: OutcomeRetry, Message: transportErr.Error()}
	}

	if errors.Is(err, context.Canceled) {
		return Result{Outcome: OutcomeFailure, Message: "sync abandoned: " + err.Error()}
	}

	return Result{Outcome: OutcomeFailure, Message: "unclassified error: " + err.Error()}
}
