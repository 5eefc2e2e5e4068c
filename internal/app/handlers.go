package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"weathersync/internal/geo"
	"weathersync/internal/repository"
)

// handleHealth reports liveness and whether the sync job is registered.
func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, scheduled := a.Scheduler.State(jobName)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"sync_job":      jobName,
		"job_scheduled": scheduled,
	})
}

// handleCurrent serves the freshest weather for a coordinate. Without lat/lon
// query parameters it falls back to the configured default location.
func (a *Application) handleCurrent(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := a.coordsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reading, err := a.Repository.Current(r.Context(), lat, lon)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidCoordinates):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrNoData):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			a.Logger.Printf("current weather request failed: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, reading)
}

// handleWeek serves the latest reading of each of the past seven days.
func (a *Application) handleWeek(w http.ResponseWriter, r *http.Request) {
	snaps, err := a.Repository.LastWeek(r.Context())
	if err != nil {
		a.Logger.Printf("week history request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": snaps})
}

// handleStats serves per-day cache counts for the retention window.
func (a *Application) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := a.Repository.Stats(r.Context())
	if err != nil {
		a.Logger.Printf("stats request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": counts})
}

// handleRefresh asks the scheduler to run the sync job now. A refresh that
// lands while a sync is already in flight is reported, not queued.
func (a *Application) handleRefresh(w http.ResponseWriter, r *http.Request) {
	admitted, err := a.Scheduler.TriggerNow(jobName)
	if err != nil {
		// The only failure here is an unknown job name.
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if !admitted {
		writeJSON(w, http.StatusAccepted, map[string]any{"triggered": false, "reason": "sync already running"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"triggered": true})
}

// handleUpdateLocation repoints the recurring job at a new coordinate.
func (a *Application) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !geo.IsValid(body.Latitude, body.Longitude) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid coordinates (%v, %v)", body.Latitude, body.Longitude))
		return
	}

	if err := a.Scheduler.UpdateLocation(jobName, body.Latitude, body.Longitude); err != nil {
		a.Logger.Printf("location update failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.Locations.Save(body.Latitude, body.Longitude)

	writeJSON(w, http.StatusOK, map[string]any{
		"latitude":  body.Latitude,
		"longitude": body.Longitude,
	})
}

// coordsFromQuery parses optional lat/lon query parameters, defaulting to the
// configured location. Both must be present or both absent.
func (a *Application) coordsFromQuery(r *http.Request) (float64, float64, error) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")

	if latStr == "" && lonStr == "" {
		return a.Config.Location.DefaultLatitude, a.Config.Location.DefaultLongitude, nil
	}
	if latStr == "" || lonStr == "" {
		return 0, 0, errors.New("lat and lon must be provided together")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lat: %q", latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lon: %q", lonStr)
	}
	return lat, lon, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
