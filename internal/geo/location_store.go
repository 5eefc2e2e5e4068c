package geo

import (
	"sync"
	"time"
)

// maxLocationAge is how long a remembered coordinate stays trustworthy.
const maxLocationAge = 7 * 24 * time.Hour

// LocationStore remembers the last known device coordinate so that a sync
// can fall back to it when no explicit coordinate is supplied.
type LocationStore struct {
	mu         sync.RWMutex
	coord      Coordinate
	recordedAt time.Time
	hasCoord   bool

	now func() time.Time // overridable in tests
}

// NewLocationStore creates an empty LocationStore.
func NewLocationStore() *LocationStore {
	return &LocationStore{now: time.Now}
}

// Save records a coordinate. Invalid coordinates are ignored.
func (s *LocationStore) Save(lat, lon float64) {
	if !IsValid(lat, lon) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.coord = Coordinate{Lat: lat, Lon: lon}
	s.recordedAt = s.now()
	s.hasCoord = true
}

// Last returns the remembered coordinate, or ok=false when none was saved
// or the saved one has aged past the trust window.
func (s *LocationStore) Last() (Coordinate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasCoord {
		return Coordinate{}, false
	}
	if s.now().Sub(s.recordedAt) > maxLocationAge {
		// Expired entries are ignored, not deleted; the next Save overwrites.
		return Coordinate{}, false
	}
	return s.coord, true
}

// Age returns how long ago the coordinate was recorded, or -1 when none is set.
func (s *LocationStore) Age() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasCoord {
		return -1
	}
	return s.now().Sub(s.recordedAt)
}

// Clear forgets the remembered coordinate.
func (s *LocationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasCoord = false
	s.coord = Coordinate{}
	s.recordedAt = time.Time{}
}
