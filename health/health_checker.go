// Package health reports whether the served dataset is present and fresh.
package health

import (
	"math"
	"net/http"
	"time"

	"github.com/giygas/patient-records/interfaces"
)

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// HealthCheckerImpl derives health from the data store and refresh interval.
type HealthCheckerImpl struct {
	dataStore interfaces.DataStore
	interval  time.Duration
	nextRun   func() time.Time
	now       func() time.Time
}

// NewHealthChecker returns a checker for a store refreshed every interval.
// nextRun may be nil.
func NewHealthChecker(dataStore interfaces.DataStore, interval time.Duration, nextRun func() time.Time) *HealthCheckerImpl {
	return &HealthCheckerImpl{
		dataStore: dataStore,
		interval:  interval,
		nextRun:   nextRun,
		now:       time.Now,
	}
}

// HealthCheck classifies the service:
//   - unhealthy: no dataset yet, or data older than four refresh intervals;
//   - degraded: the last refresh failed, files were skipped, or data is
//     older than two refresh intervals;
//   - healthy otherwise.
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	res := h.dataStore.GetResult()
	lastUpdate := h.dataStore.GetLastUpdated()
	lastErr := h.dataStore.GetLastError()
	dataAge := h.now().Sub(lastUpdate)

	data = map[string]any{
		"is_updating": h.dataStore.IsUpdating(),
	}
	if !h.dataStore.GetServerStartTime().IsZero() {
		data["uptime_seconds"] = int64(h.now().Sub(h.dataStore.GetServerStartTime()).Seconds())
	}
	if lastErr != nil {
		data["last_error"] = lastErr.Error()
	}
	if h.nextRun != nil {
		if next := h.nextRun(); !next.IsZero() {
			data["next_update"] = next.Format(time.RFC3339)
		}
	}

	if res == nil {
		return StatusUnhealthy, data, http.StatusServiceUnavailable
	}

	data["run_id"] = res.RunID
	data["last_update"] = lastUpdate.Format(time.RFC3339)
	data["data_age_hours"] = math.Round(dataAge.Hours()*10) / 10
	data["rows"] = res.Summary.Rows
	data["patients"] = res.Summary.Patients
	data["file_errors"] = len(res.Summary.Errors)

	switch {
	case h.interval > 0 && dataAge > 4*h.interval:
		return StatusUnhealthy, data, http.StatusServiceUnavailable
	case lastErr != nil,
		h.interval > 0 && dataAge > 2*h.interval:
		return StatusDegraded, data, http.StatusServiceUnavailable
	case len(res.Summary.Errors) > 0:
		return StatusDegraded, data, http.StatusOK
	}
	return StatusHealthy, data, http.StatusOK
}
