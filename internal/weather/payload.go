package weather

import "time"

// Payload is the current-weather response returned by the provider API.
// Field layout mirrors the wire format so a stored payload round-trips
// byte-for-byte back to the original response shape.
type Payload struct {
	ID         int64       `json:"id"`
	Coord      Coord       `json:"coord"`
	Weather    []Condition `json:"weather"`
	Base       string      `json:"base"`
	Main       Main        `json:"main"`
	Visibility int         `json:"visibility"`
	Wind       Wind        `json:"wind"`
	Clouds     Clouds      `json:"clouds"`
	Dt         int64       `json:"dt"`
	Sys        Sys         `json:"sys"`
	Timezone   int         `json:"timezone"`
	Name       string      `json:"name"`
	Cod        int         `json:"cod"`
}

// Coord is the coordinate block of a payload.
type Coord struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Condition is one entry of the weather-condition list.
type Condition struct {
	ID          int64  `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Main holds the primary temperature and atmosphere metrics.
type Main struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	Humidity  int     `json:"humidity"`
	SeaLevel  int     `json:"sea_level,omitempty"`
	GrndLevel int     `json:"grnd_level,omitempty"`
}

// Wind holds wind speed, direction and gusts.
type Wind struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg"`
	Gust  float64 `json:"gust,omitempty"`
}

// Clouds holds cloud coverage.
type Clouds struct {
	All int `json:"all"`
}

// Sys holds country and sun times.
type Sys struct {
	Type    int    `json:"type,omitempty"`
	ID      int64  `json:"id,omitempty"`
	Country string `json:"country"`
	Sunrise int64  `json:"sunrise"`
	Sunset  int64  `json:"sunset"`
}

// Snapshot is one immutable cached weather reading. Latitude, longitude and
// temperature are denormalized from the payload for cheap filtering; the
// payload itself is kept fully structured in memory and serialized only at
// the storage edge.
type Snapshot struct {
	ID          int64
	Latitude    float64
	Longitude   float64
	Temperature float64
	CachedAt    time.Time
	Payload     Payload
}

// NewSnapshot builds an unsaved snapshot from a payload. CachedAt is left
// zero; the store assigns the insertion time.
func NewSnapshot(p Payload) Snapshot {
	return Snapshot{
		Latitude:    p.Coord.Lat,
		Longitude:   p.Coord.Lon,
		Temperature: p.Main.Temp,
		Payload:     p,
	}
}

// MatchesLocation reports whether the snapshot's coordinate is within
// tolerance of the query on each axis independently.
func (s Snapshot) MatchesLocation(lat, lon, tolerance float64) bool {
	return abs(s.Latitude-lat) < tolerance && abs(s.Longitude-lon) < tolerance
}

// Age returns how long ago the snapshot was cached.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CachedAt)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
