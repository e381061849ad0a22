// Package session owns the in-memory compliance state of a running process:
// the committed records and roster, configured goals and period scale, and the
// report derived from them. It also persists that state through pluggable
// repositories.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rips/rips/internal/domain/compliance"
	"github.com/rips/rips/internal/domain/identity"
	"github.com/rips/rips/internal/domain/ingest"
)

// ErrNotFound is returned by repositories when nothing has been saved yet.
var ErrNotFound = errors.New("not found")

// Settings is the persisted configuration: goals and the period scale.
type Settings struct {
	Goals []compliance.Goal `json:"goals" yaml:"goals"`
	Scale int               `json:"scale" yaml:"scale"`
}

// Snapshot is a flattened copy of the committed session data.
type Snapshot struct {
	ID       uuid.UUID              `json:"id"`
	SavedAt  time.Time              `json:"saved_at"`
	Records  []ingest.ServiceRecord `json:"records"`
	Patients []identity.Patient     `json:"patients"`
}

// IngestSummary describes a committed batch.
type IngestSummary struct {
	Stats    ingest.Stats `json:"stats"`
	Records  int          `json:"records"`
	Patients int          `json:"patients"`
}
