// Package interfaces defines the contracts between serve-mode components so
// they can be replaced by fakes in tests.
package interfaces

import (
	"context"
	"time"

	"github.com/giygas/patient-records/combine"
	"github.com/giygas/patient-records/records"
)

// DataStore holds the latest combined dataset. Reads are lock-free and a
// refresh replaces the whole result at once.
type DataStore interface {
	GetResult() *combine.Result
	GetLastUpdated() time.Time
	GetLastAttempt() time.Time
	GetLastError() error
	GetServerStartTime() time.Time
	IsUpdating() bool

	UpdateResult(res *combine.Result)
	RecordFailure(err error)
	BeginUpdate() bool
	EndUpdate()
}

// Combiner produces a fresh combined dataset.
type Combiner interface {
	Combine(ctx context.Context) (*combine.Result, error)
}

// RecordStore persists and retrieves individual record documents.
type RecordStore interface {
	Save(id string, doc records.Document) (string, error)
	Get(id string) (records.Document, error)
}

// Scheduler refreshes the data store periodically and on demand.
type Scheduler interface {
	Start() error
	Stop()
	RunNow(ctx context.Context) error
	NextRun() time.Time
}

// HealthChecker reports the health of the service together with the HTTP
// status the health endpoint answers with.
type HealthChecker interface {
	HealthCheck() (status string, details map[string]any, httpStatus int)
}
