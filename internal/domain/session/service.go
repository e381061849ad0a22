package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rips/rips/internal/domain/catalog"
	"github.com/rips/rips/internal/domain/compliance"
	"github.com/rips/rips/internal/domain/identity"
	"github.com/rips/rips/internal/domain/ingest"
)

// Service guards the committed state. Reads return copies; the cached report
// is shared and must be treated as read-only by callers.
type Service struct {
	ingester *ingest.Ingester
	configs  ConfigRepository
	sessions SessionRepository
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	records []ingest.ServiceRecord
	roster  *identity.Roster
	goals   []compliance.Goal
	scale   int
	report  *compliance.Report
}

// NewService creates an empty session. Either repository may be nil, in
// which case the matching save/load calls report failure.
func NewService(ing *ingest.Ingester, configs ConfigRepository, sessions SessionRepository, logger zerolog.Logger) *Service {
	return &Service{
		ingester: ing,
		configs:  configs,
		sessions: sessions,
		logger:   logger.With().Str("component", "session").Logger(),
		now:      time.Now,
		roster:   identity.NewRoster(),
		scale:    1,
	}
}

// Ingest runs a batch against the committed roster and, on success, replaces
// the records and roster atomically. A failed batch leaves state untouched.
func (s *Service) Ingest(ctx context.Context, files []ingest.File, rows catalog.RowReader) (*IngestSummary, error) {
	if rows == nil {
		return nil, ingest.ErrNoCatalog
	}
	if len(files) == 0 {
		return nil, ingest.ErrNoFiles
	}
	cat, err := catalog.Load(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ingest.ErrBatchFailed, err)
	}
	return s.IngestWithCatalog(ctx, files, cat)
}

// IngestWithCatalog is Ingest with an already loaded catalog.
func (s *Service) IngestWithCatalog(ctx context.Context, files []ingest.File, cat *catalog.Catalog) (*IngestSummary, error) {
	// The batch builds its own roster and is folded into the committed one
	// at commit time, so batches and roster clears that land while it runs
	// are not overwritten.
	res, err := s.ingester.Run(ctx, files, cat, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	roster := s.roster.Clone()
	roster.MergeRoster(res.Roster)
	s.records = res.Records
	s.roster = roster
	s.report = nil
	patients := roster.Len()
	s.mu.Unlock()

	return &IngestSummary{Stats: res.Stats, Records: len(res.Records), Patients: patients}, nil
}

// Report returns the current report, computing it if any input changed since
// the last call.
func (s *Service) Report() *compliance.Report {
	s.mu.RLock()
	rep := s.report
	s.mu.RUnlock()
	if rep != nil {
		return rep
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		s.report = compliance.Aggregate(compliance.Input{
			Records: s.records,
			Roster:  s.roster,
			Goals:   s.goals,
			Scale:   s.scale,
			Now:     s.now(),
		})
	}
	return s.report
}

// Records returns a copy of the committed records.
func (s *Service) Records() []ingest.ServiceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ingest.ServiceRecord(nil), s.records...)
}

// Patients returns the roster in first-seen order.
func (s *Service) Patients() []identity.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roster.Values()
}

// Goals returns a copy of the configured goals.
func (s *Service) Goals() []compliance.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]compliance.Goal(nil), s.goals...)
}

// Scale returns the period multiplier.
func (s *Service) Scale() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scale
}

// SetGoals replaces the goal list after validation.
func (s *Service) SetGoals(goals []compliance.Goal) error {
	if err := compliance.ValidateGoals(goals); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals = append([]compliance.Goal(nil), goals...)
	s.report = nil
	return nil
}

// SetScale sets the period multiplier.
func (s *Service) SetScale(scale int) error {
	if !compliance.ValidScale(scale) {
		return compliance.ErrInvalidScale
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scale = scale
	s.report = nil
	return nil
}

// ClearRecords drops all service records and keeps the roster.
func (s *Service) ClearRecords() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.report = nil
}

// ClearRoster drops all patients and keeps the records.
func (s *Service) ClearRoster() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = identity.NewRoster()
	s.report = nil
}

// RemoveDuplicateGroup keeps one record of the group with key and returns
// how many were removed.
func (s *Service) RemoveDuplicateGroup(key ingest.DuplicateKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, removed := compliance.RemoveDuplicateGroup(s.records, key)
	if removed > 0 {
		s.records = out
		s.report = nil
		s.logger.Info().
			Str("patient_id", key.PatientID).
			Str("service_code", key.ServiceCode).
			Str("service_date", key.ServiceDate).
			Int("removed", removed).
			Msg("duplicate group removed")
	}
	return removed
}

// RemoveAllDuplicates keeps the first record of every duplicate key and
// returns how many were removed.
func (s *Service) RemoveAllDuplicates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, removed := compliance.RemoveAllDuplicates(s.records)
	if removed > 0 {
		s.records = out
		s.report = nil
		s.logger.Info().Int("removed", removed).Msg("all duplicates removed")
	}
	return removed
}

// Restore replaces records and roster with previously saved data. Patients
// are merged in order so IDs are normalized the same way ingestion does.
func (s *Service) Restore(records []ingest.ServiceRecord, patients []identity.Patient) {
	roster := identity.RosterFromPatients(patients)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]ingest.ServiceRecord(nil), records...)
	s.roster = roster
	s.report = nil
}

// SaveConfig persists goals and scale. It reports success as a bool and logs
// the failure cause.
func (s *Service) SaveConfig(ctx context.Context) bool {
	if s.configs == nil {
		s.logger.Warn().Msg("save config: no configuration store")
		return false
	}
	settings := &Settings{Goals: s.Goals(), Scale: s.Scale()}
	if err := s.configs.SaveConfig(ctx, settings); err != nil {
		s.logger.Error().Err(err).Msg("save config failed")
		return false
	}
	s.logger.Info().Int("goals", len(settings.Goals)).Int("scale", settings.Scale).Msg("config saved")
	return true
}

// LoadConfig replaces goals and scale with the persisted ones. Invalid
// persisted data is rejected without touching the current state.
func (s *Service) LoadConfig(ctx context.Context) bool {
	if s.configs == nil {
		s.logger.Warn().Msg("load config: no configuration store")
		return false
	}
	settings, err := s.configs.LoadConfig(ctx)
	if err != nil {
		s.logLoadError(err, "load config failed")
		return false
	}
	if err := compliance.ValidateGoals(settings.Goals); err != nil {
		s.logger.Error().Err(err).Msg("persisted goals rejected")
		return false
	}
	if !compliance.ValidScale(settings.Scale) {
		s.logger.Error().Int("scale", settings.Scale).Msg("persisted scale rejected")
		return false
	}

	s.mu.Lock()
	s.goals = append([]compliance.Goal(nil), settings.Goals...)
	s.scale = settings.Scale
	s.report = nil
	s.mu.Unlock()
	return true
}

// SaveSession persists the committed records and roster.
func (s *Service) SaveSession(ctx context.Context) bool {
	if s.sessions == nil {
		s.logger.Warn().Msg("save session: no session store")
		return false
	}
	s.mu.RLock()
	snap := &Snapshot{
		ID:       uuid.New(),
		SavedAt:  s.now().UTC(),
		Records:  append([]ingest.ServiceRecord(nil), s.records...),
		Patients: s.roster.Values(),
	}
	s.mu.RUnlock()

	if err := s.sessions.SaveSession(ctx, snap); err != nil {
		s.logger.Error().Err(err).Str("snapshot_id", snap.ID.String()).Msg("save session failed")
		return false
	}
	s.logger.Info().
		Str("snapshot_id", snap.ID.String()).
		Int("records", len(snap.Records)).
		Int("patients", len(snap.Patients)).
		Msg("session saved")
	return true
}

// LoadSession restores the last saved snapshot.
func (s *Service) LoadSession(ctx context.Context) bool {
	if s.sessions == nil {
		s.logger.Warn().Msg("load session: no session store")
		return false
	}
	snap, err := s.sessions.LoadSession(ctx)
	if err != nil {
		s.logLoadError(err, "load session failed")
		return false
	}
	s.Restore(snap.Records, snap.Patients)
	s.logger.Info().Str("snapshot_id", snap.ID.String()).Int("records", len(snap.Records)).Msg("session restored")
	return true
}

func (s *Service) logLoadError(err error, msg string) {
	if errors.Is(err, ErrNotFound) {
		s.logger.Info().Msg(msg + ": nothing saved yet")
		return
	}
	s.logger.Error().Err(err).Msg(msg)
}
