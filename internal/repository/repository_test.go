package repository

import (
	"context"
	"database/sql"
	"io"
	"log"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weathersync/internal/geo"
	"weathersync/internal/storage"
	"weathersync/internal/syncer"
	"weathersync/internal/weather"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := storage.NewStore(db)
	require.NoError(t, store.Migrate())
	return store
}

func makeSnapshot(lat, lon, temp float64, cachedAt time.Time) weather.Snapshot {
	payload := weather.Payload{
		Coord: weather.Coord{Lat: lat, Lon: lon},
		Weather: []weather.Condition{
			{ID: 800, Main: "Clear", Description: "clear sky", Icon: "01d"},
		},
		Main: weather.Main{Temp: temp, Pressure: 1011, Humidity: 60},
		Dt:   cachedAt.Unix(),
		Name: "Bhopal",
		Cod:  200,
	}
	snap := weather.NewSnapshot(payload)
	snap.CachedAt = cachedAt
	return snap
}

// stubEngine replays a canned result and records what was requested.
type stubEngine struct {
	result  syncer.Result
	calls   int
	lastLat float64
	lastLon float64
}

func (s *stubEngine) Sync(ctx context.Context, lat, lon float64) syncer.Result {
	s.calls++
	s.lastLat, s.lastLon = lat, lon
	return s.result
}

func newTestRepository(t *testing.T, store *storage.Store, engine Syncer) *Repository {
	t.Helper()
	return New(log.New(io.Discard, "", 0), store, engine)
}

func TestRepository_CurrentRejectsInvalidCoordinates(t *testing.T) {
	store := newTestStore(t)
	engine := &stubEngine{}
	repo := newTestRepository(t, store, engine)

	for _, coords := range [][2]float64{{91, 0}, {-91, 0}, {0, 181}, {0, -181}, {0, 0}} {
		_, err := repo.Current(context.Background(), coords[0], coords[1])
		assert.ErrorIs(t, err, ErrInvalidCoordinates, "(%v, %v)", coords[0], coords[1])
	}
	assert.Zero(t, engine.calls, "invalid input must not reach the engine")
}

func TestRepository_CurrentServesFreshResult(t *testing.T) {
	store := newTestStore(t)
	snap := makeSnapshot(23.26, 77.41, 21.5, time.Now())
	engine := &stubEngine{result: syncer.Result{Outcome: syncer.OutcomeSuccess, Snapshot: &snap}}
	repo := newTestRepository(t, store, engine)

	reading, err := repo.Current(context.Background(), 23.26, 77.41)
	require.NoError(t, err)
	assert.False(t, reading.Stale)
	assert.Equal(t, 21.5, reading.Snapshot.Temperature)
	assert.Equal(t, 23.26, engine.lastLat)
	assert.Equal(t, 77.41, engine.lastLon)
}

func TestRepository_CurrentFallsBackToRecentCache(t *testing.T) {
	store := newTestStore(t)
	cached := makeSnapshot(23.26, 77.41, 19.0, time.Now().Add(-2*24*time.Hour))
	require.NoError(t, store.InsertSnapshot(context.Background(), &cached))

	engine := &stubEngine{result: syncer.Result{Outcome: syncer.OutcomeRetry, Message: "host unreachable"}}
	repo := newTestRepository(t, store, engine)

	reading, err := repo.Current(context.Background(), 23.26, 77.41)
	require.NoError(t, err)
	assert.True(t, reading.Stale)
	assert.Equal(t, 19.0, reading.Snapshot.Temperature)
}

func TestRepository_CurrentRefusesOldCache(t *testing.T) {
	store := newTestStore(t)
	cached := makeSnapshot(23.26, 77.41, 19.0, time.Now().Add(-8*24*time.Hour))
	require.NoError(t, store.InsertSnapshot(context.Background(), &cached))

	engine := &stubEngine{result: syncer.Result{Outcome: syncer.OutcomeFailure, Message: "404"}}
	repo := newTestRepository(t, store, engine)

	_, err := repo.Current(context.Background(), 23.26, 77.41)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRepository_CurrentEmptyCache(t *testing.T) {
	store := newTestStore(t)
	engine := &stubEngine{result: syncer.Result{Outcome: syncer.OutcomeRetry, Message: "timeout"}}
	repo := newTestRepository(t, store, engine)

	_, err := repo.Current(context.Background(), 23.26, 77.41)
	assert.ErrorIs(t, err, ErrNoData)
	assert.ErrorContains(t, err, "timeout")
}

func TestRepository_CurrentIgnoresCacheForOtherLocations(t *testing.T) {
	store := newTestStore(t)
	// Paris, not Bhopal.
	cached := makeSnapshot(48.85, 2.35, 25.0, time.Now())
	require.NoError(t, store.InsertSnapshot(context.Background(), &cached))

	engine := &stubEngine{result: syncer.Result{Outcome: syncer.OutcomeRetry, Message: "503"}}
	repo := newTestRepository(t, store, engine)

	_, err := repo.Current(context.Background(), 23.26, 77.41)
	assert.ErrorIs(t, err, ErrNoData)
}

// outageFetcher answers every request with a server error.
type outageFetcher struct {
	calls int
}

func (f *outageFetcher) Current(ctx context.Context, lat, lon float64) (*weather.Payload, error) {
	f.calls++
	return nil, &weather.APIError{StatusCode: 503, Status: "503 Service Unavailable"}
}

func TestRepository_CurrentRejectsGateSnapshotForOtherLocation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A minute-old Bhopal reading satisfies the engine's freshness gate,
	// which checks only recency, not location.
	bhopal := makeSnapshot(23.26, 77.41, 21.5, time.Now().Add(-time.Minute))
	require.NoError(t, store.InsertSnapshot(ctx, &bhopal))

	fetcher := &outageFetcher{}
	engine := syncer.New(log.New(io.Discard, "", 0), store, fetcher, geo.NewLocationStore(), syncer.Options{
		DefaultCoordinate: geo.Coordinate{Lat: 23.26, Lon: 77.41},
	})
	repo := newTestRepository(t, store, engine)

	// Asking for Paris must not get the fresh-labelled Bhopal reading.
	_, err := repo.Current(ctx, 48.85, 2.35)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Zero(t, fetcher.calls, "the gate short-circuits before any fetch")

	// Once a Paris reading is cached it is served instead, flagged stale
	// because the gate skipped the refresh for a different coordinate.
	paris := makeSnapshot(48.85, 2.35, 12.0, time.Now().Add(-2*24*time.Hour))
	require.NoError(t, store.InsertSnapshot(ctx, &paris))

	reading, err := repo.Current(ctx, 48.85, 2.35)
	require.NoError(t, err)
	assert.True(t, reading.Stale)
	assert.Equal(t, 12.0, reading.Snapshot.Temperature)
	assert.InDelta(t, 48.85, reading.Snapshot.Latitude, 0.001)
}

func TestRepository_LastWeek(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	noon := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)

	for day := 0; day < 3; day++ {
		morning := makeSnapshot(23.26, 77.41, 15.0, noon.Add(-time.Duration(day)*24*time.Hour).Add(-3*time.Hour))
		afternoon := makeSnapshot(23.26, 77.41, 20.0+float64(day), noon.Add(-time.Duration(day)*24*time.Hour))
		require.NoError(t, store.InsertSnapshot(ctx, &morning))
		require.NoError(t, store.InsertSnapshot(ctx, &afternoon))
	}

	engine := &stubEngine{}
	repo := newTestRepository(t, store, engine)
	repo.now = func() time.Time { return noon }

	snaps, err := repo.LastWeek(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	// Most recent day first, and only the afternoon reading of each day.
	assert.Equal(t, 20.0, snaps[0].Temperature)
	assert.Equal(t, 21.0, snaps[1].Temperature)
	assert.Equal(t, 22.0, snaps[2].Temperature)
}

func TestRepository_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	noon := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)

	for i := 0; i < 3; i++ {
		snap := makeSnapshot(23.26, 77.41, 20.0, noon.Add(-time.Duration(i)*time.Hour))
		require.NoError(t, store.InsertSnapshot(ctx, &snap))
	}
	yesterday := makeSnapshot(23.26, 77.41, 18.0, noon.Add(-24*time.Hour))
	require.NoError(t, store.InsertSnapshot(ctx, &yesterday))

	engine := &stubEngine{}
	repo := newTestRepository(t, store, engine)
	repo.now = func() time.Time { return noon }

	counts, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, 1, counts[0].Count)
	assert.Equal(t, 3, counts[1].Count)
}
