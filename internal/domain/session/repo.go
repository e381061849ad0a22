package session

import "context"

// ConfigRepository persists goals and the period scale.
type ConfigRepository interface {
	LoadConfig(ctx context.Context) (*Settings, error)
	SaveConfig(ctx context.Context, s *Settings) error
}

// SessionRepository persists the last snapshot of records and patients.
type SessionRepository interface {
	LoadSession(ctx context.Context) (*Snapshot, error)
	SaveSession(ctx context.Context, snap *Snapshot) error
}
