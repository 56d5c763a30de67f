// Package data keeps the latest combined dataset in memory for serve mode.
// Every refresh swaps the whole result atomically so readers never see a
// half-updated dataset.
package data

import (
	"sync/atomic"
	"time"

	"github.com/giygas/patient-records/combine"
	"github.com/giygas/patient-records/interfaces"
)

var _ interfaces.DataStore = (*DataContainer)(nil)

type failure struct{ err error }

// DataContainer holds the latest combine result and refresh bookkeeping.
type DataContainer struct {
	result          atomic.Pointer[combine.Result]
	lastUpdated     atomic.Value // time.Time
	lastAttempt     atomic.Value // time.Time
	lastError       atomic.Value // failure
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewDataContainer returns an empty container.
func NewDataContainer() *DataContainer {
	dc := &DataContainer{}
	dc.lastUpdated.Store(time.Time{})
	dc.lastAttempt.Store(time.Time{})
	dc.lastError.Store(failure{})
	dc.serverStartTime.Store(time.Time{})
	return dc
}

// GetResult returns the latest successful result, or nil before the first.
func (dc *DataContainer) GetResult() *combine.Result {
	return dc.result.Load()
}

// GetLastUpdated returns when the current result was stored.
func (dc *DataContainer) GetLastUpdated() time.Time {
	return loadTime(&dc.lastUpdated)
}

// GetLastAttempt returns when a refresh last finished, successful or not.
func (dc *DataContainer) GetLastAttempt() time.Time {
	return loadTime(&dc.lastAttempt)
}

// GetLastError returns the error of the last refresh, nil if it succeeded.
func (dc *DataContainer) GetLastError() error {
	if f, ok := dc.lastError.Load().(failure); ok {
		return f.err
	}
	return nil
}

func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

func (dc *DataContainer) GetServerStartTime() time.Time {
	return loadTime(&dc.serverStartTime)
}

// UpdateResult replaces the current result. A nil result is ignored.
func (dc *DataContainer) UpdateResult(res *combine.Result) {
	if res == nil {
		return
	}
	now := time.Now()
	dc.result.Store(res)
	dc.lastUpdated.Store(now)
	dc.lastAttempt.Store(now)
	dc.lastError.Store(failure{})
}

// RecordFailure notes a failed refresh. The previous result stays served.
func (dc *DataContainer) RecordFailure(err error) {
	dc.lastAttempt.Store(time.Now())
	dc.lastError.Store(failure{err: err})
}

// BeginUpdate marks the start of a refresh. It returns false when another
// refresh is already running.
func (dc *DataContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a refresh.
func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}

func loadTime(v *atomic.Value) time.Time {
	if t, ok := v.Load().(time.Time); ok {
		return t
	}
	return time.Time{}
}
