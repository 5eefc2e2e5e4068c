package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"weathersync/internal/geo"
	"weathersync/internal/weather"
)

// DefaultTolerance is the per-axis coordinate tolerance for "same location"
// lookups. A deliberate cheap approximation; not great-circle distance.
const DefaultTolerance = 0.01

// localDayExpr buckets a millisecond epoch column into a local calendar day.
const localDayExpr = "date(cached_at / 1000, 'unixepoch', 'localtime')"

const snapshotColumns = "id, latitude, longitude, temperature, cached_at, payload"

// DayCount is one (day, count) diagnostics pair from CountPerDay.
type DayCount struct {
	Day   string
	Count int
}

// InsertSnapshot appends a new immutable row. CachedAt is assigned from the
// clock when the snapshot does not carry one. Duplicate locations are fine;
// history is append-only.
func (s *Store) InsertSnapshot(ctx context.Context, snap *weather.Snapshot) error {
	if !geo.IsValid(snap.Latitude, snap.Longitude) {
		return fmt.Errorf("%w: coordinate (%v, %v) out of range", ErrInvalidInput, snap.Latitude, snap.Longitude)
	}

	if snap.CachedAt.IsZero() {
		snap.CachedAt = time.Now()
	}

	payload, err := json.Marshal(snap.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO weather_snapshots (latitude, longitude, temperature, cached_at, payload)
		VALUES (?, ?, ?, ?, ?)`,
		snap.Latitude, snap.Longitude, snap.Temperature, snap.CachedAt.UnixMilli(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get insert id: %w", err)
	}
	snap.ID = id

	return nil
}

// LatestNear returns the most recent snapshot whose coordinate differs from
// the query by less than tolerance on each axis.
func (s *Store) LatestNear(ctx context.Context, lat, lon, tolerance float64) (*weather.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM weather_snapshots
		WHERE ABS(latitude - ?) < ? AND ABS(longitude - ?) < ?
		ORDER BY cached_at DESC
		LIMIT 1`,
		lat, tolerance, lon, tolerance,
	)
	return scanSnapshot(row)
}

// Latest returns the newest snapshot regardless of location.
func (s *Store) Latest(ctx context.Context) (*weather.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM weather_snapshots
		ORDER BY cached_at DESC
		LIMIT 1`,
	)
	return scanSnapshot(row)
}

// Since returns all snapshots cached at or after start, oldest first.
func (s *Store) Since(ctx context.Context, start time.Time) ([]weather.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM weather_snapshots
		WHERE cached_at >= ?
		ORDER BY cached_at ASC`,
		start.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// LatestPerDaySince groups snapshots by local calendar day and keeps the
// newest row per day: at most 7 days, most recent day first. This is the
// forecast-list feed.
func (s *Store) LatestPerDaySince(ctx context.Context, start time.Time) ([]weather.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, latitude, longitude, temperature, MAX(cached_at) AS cached_at, payload
		FROM weather_snapshots
		WHERE cached_at >= ?
		GROUP BY `+localDayExpr+`
		ORDER BY cached_at DESC
		LIMIT 7`,
		start.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// LatestPerDayNear is LatestPerDaySince restricted to a location.
func (s *Store) LatestPerDayNear(ctx context.Context, lat, lon, tolerance float64, start time.Time) ([]weather.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, latitude, longitude, temperature, MAX(cached_at) AS cached_at, payload
		FROM weather_snapshots
		WHERE ABS(latitude - ?) < ? AND ABS(longitude - ?) < ? AND cached_at >= ?
		GROUP BY `+localDayExpr+`
		ORDER BY cached_at DESC
		LIMIT 7`,
		lat, tolerance, lon, tolerance, start.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// CountPerDay returns how many snapshots were cached on each local calendar
// day since start. Diagnostics only; nothing branches on it.
func (s *Store) CountPerDay(ctx context.Context, start time.Time) ([]DayCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+localDayExpr+` AS day, COUNT(*)
		FROM weather_snapshots
		WHERE cached_at >= ?
		GROUP BY day
		ORDER BY day ASC`,
		start.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query day counts: %w", err)
	}
	defer rows.Close()

	var counts []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}
		counts = append(counts, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate day counts: %w", err)
	}

	return counts, nil
}

// EvictOlderThan deletes all snapshots cached before cutoff and returns how
// many rows went. Idempotent: a second identical sweep deletes nothing.
func (s *Store) EvictOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM weather_snapshots
		WHERE cached_at < ?`,
		cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("evict snapshots: %w", err)
	}

	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*weather.Snapshot, error) {
	var snap weather.Snapshot
	var cachedAtMillis int64
	var payloadStr string

	err := row.Scan(&snap.ID, &snap.Latitude, &snap.Longitude, &snap.Temperature, &cachedAtMillis, &payloadStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no matching snapshot", ErrNotFound)
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	snap.CachedAt = time.UnixMilli(cachedAtMillis)
	if err := json.Unmarshal([]byte(payloadStr), &snap.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	return &snap, nil
}

func collectSnapshots(rows *sql.Rows) ([]weather.Snapshot, error) {
	var snaps []weather.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	return snaps, nil
}
