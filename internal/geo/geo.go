package geo

// Coordinate is a geographic point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsValid reports whether the pair is a usable coordinate.
// (0,0) is the "no coordinate" sentinel, never a real location.
func IsValid(lat, lon float64) bool {
	if lat < -90 || lat > 90 {
		return false
	}
	if lon < -180 || lon > 180 {
		return false
	}
	if lat == 0 && lon == 0 {
		return false
	}
	return true
}

// Valid reports whether the coordinate is usable.
func (c Coordinate) Valid() bool {
	return IsValid(c.Lat, c.Lon)
}
