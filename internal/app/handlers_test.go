package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weathersync/internal/config"
	"weathersync/internal/geo"
	"weathersync/internal/repository"
	"weathersync/internal/scheduler"
	"weathersync/internal/storage"
	"weathersync/internal/syncer"
	"weathersync/internal/weather"
)

// syncStub replays a canned engine result and records the coordinate asked for.
type syncStub struct {
	result  syncer.Result
	calls   int
	lastLat float64
	lastLon float64
}

func (s *syncStub) Sync(ctx context.Context, lat, lon float64) syncer.Result {
	s.calls++
	s.lastLat, s.lastLon = lat, lon
	return s.result
}

func newTestApp(t *testing.T, stub *syncStub) *Application {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := storage.NewStore(db)
	require.NoError(t, store.Migrate())

	logger := log.New(io.Discard, "", 0)

	cfg := &config.Config{}
	cfg.Location.DefaultLatitude = 23.259933
	cfg.Location.DefaultLongitude = 77.412613

	sched := scheduler.New(context.Background(), logger, stub.Sync, nil)
	t.Cleanup(sched.Stop)
	require.NoError(t, sched.Schedule(scheduler.JobSpec{
		Name:      jobName,
		Latitude:  cfg.Location.DefaultLatitude,
		Longitude: cfg.Location.DefaultLongitude,
		Interval:  time.Hour,
	}))

	return &Application{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Locations:  geo.NewLocationStore(),
		Scheduler:  sched,
		Repository: repository.New(logger, store, stub),
	}
}

func freshSnapshot(lat, lon, temp float64) *weather.Snapshot {
	snap := weather.NewSnapshot(weather.Payload{
		Coord: weather.Coord{Lat: lat, Lon: lon},
		Main:  weather.Main{Temp: temp},
		Name:  "Bhopal",
		Cod:   200,
	})
	snap.CachedAt = time.Now()
	return &snap
}

func TestHandlers_Health(t *testing.T) {
	app := newTestApp(t, &syncStub{})

	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["job_scheduled"])
}

func TestHandlers_CurrentDefaultsToConfiguredLocation(t *testing.T) {
	stub := &syncStub{result: syncer.Result{
		Outcome:  syncer.OutcomeSuccess,
		Snapshot: freshSnapshot(23.259933, 77.412613, 21.5),
	}}
	app := newTestApp(t, stub)

	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest("GET", "/api/weather/current", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 23.259933, stub.lastLat)
	assert.Equal(t, 77.412613, stub.lastLon)

	var reading repository.Reading
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reading))
	assert.Equal(t, 21.5, reading.Snapshot.Temperature)
	assert.False(t, reading.Stale)
}

func TestHandlers_CurrentWithExplicitCoordinates(t *testing.T) {
	stub := &syncStub{result: syncer.Result{
		Outcome:  syncer.OutcomeSuccess,
		Snapshot: freshSnapshot(48.85, 2.35, 18.0),
	}}
	app := newTestApp(t, stub)

	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest("GET", "/api/weather/current?lat=48.85&lon=2.35", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 48.85, stub.lastLat)
	assert.Equal(t, 2.35, stub.lastLon)
}

func TestHandlers_CurrentBadQuery(t *testing.T) {
	app := newTestApp(t, &syncStub{})

	for _, target := range []string{
		"/api/weather/current?lat=abc&lon=2.35",
		"/api/weather/current?lat=48.85",
		"/api/weather/current?lon=2.35",
		"/api/weather/current?lat=95&lon=2.35",
	} {
		rr := httptest.NewRecorder()
		app.routes().ServeHTTP(rr, httptest.NewRequest("GET", target, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestHandlers_CurrentNoData(t *testing.T) {
	stub := &syncStub{result: syncer.Result{Outcome: syncer.OutcomeRetry, Message: "host unreachable"}}
	app := newTestApp(t, stub)

	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest("GET", "/api/weather/current", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlers_Week(t *testing.T) {
	app := newTestApp(t, &syncStub{})

	snap := freshSnapshot(23.26, 77.41, 20.0)
	require.NoError(t, app.Store.InsertSnapshot(context.Background(), snap))

	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest("GET", "/api/weather/week", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Days []weather.Snapshot `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Days, 1)
	assert.Equal(t, 20.0, body.Days[0].Temperature)
}

func TestHandlers_Stats(t *testing.T) {
	app := newTestApp(t, &syncStub{})

	snap := freshSnapshot(23.26, 77.41, 20.0)
	require.NoError(t, app.Store.InsertSnapshot(context.Background(), snap))

	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest("GET", "/api/weather/stats", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Days []storage.DayCount `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Days, 1)
	assert.Equal(t, 1, body.Days[0].Count)
}

func TestHandlers_Refresh(t *testing.T) {
	stub := &syncStub{result: syncer.Result{Outcome: syncer.OutcomeSuccess}}
	app := newTestApp(t, stub)

	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest("POST", "/api/sync/refresh", nil))

	require.Equal(t, http.StatusAccepted, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["triggered"])
}

func TestHandlers_RefreshWithoutJob(t *testing.T) {
	app := newTestApp(t, &syncStub{})
	require.NoError(t, app.Scheduler.Cancel(jobName))

	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest("POST", "/api/sync/refresh", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlers_UpdateLocation(t *testing.T) {
	app := newTestApp(t, &syncStub{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/api/location", strings.NewReader(`{"latitude": 48.85, "longitude": 2.35}`))
	app.routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	state, ok := app.Scheduler.State(jobName)
	require.True(t, ok)
	assert.Equal(t, 48.85, state.Spec.Latitude)
	assert.Equal(t, 2.35, state.Spec.Longitude)

	last, ok := app.Locations.Last()
	require.True(t, ok)
	assert.Equal(t, 48.85, last.Lat)
}

func TestHandlers_UpdateLocationRejectsBadInput(t *testing.T) {
	app := newTestApp(t, &syncStub{})

	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest("PUT", "/api/location", strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest("PUT", "/api/location", strings.NewReader(`{"latitude": 95, "longitude": 2.35}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
