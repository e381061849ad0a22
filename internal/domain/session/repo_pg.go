package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rips/rips/internal/domain/compliance"
	"github.com/rips/rips/internal/domain/identity"
	"github.com/rips/rips/internal/domain/ingest"
)

const settingScale = "period_scale"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PGStore persists settings and snapshots in Postgres. Every save replaces
// the previous state inside one transaction.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (r *PGStore) LoadConfig(ctx context.Context) (*Settings, error) {
	query, args, err := psql.
		Select("service_type", "monthly_goal", "active").
		From("rips_goal").
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	goals, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (compliance.Goal, error) {
		var g compliance.Goal
		err := row.Scan(&g.ServiceType, &g.MonthlyGoal, &g.Active)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan goals: %w", err)
	}

	query, args, err = psql.Select("value").From("rips_setting").Where(sq.Eq{"key": settingScale}).ToSql()
	if err != nil {
		return nil, err
	}
	var raw string
	err = r.pool.QueryRow(ctx, query, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		if len(goals) == 0 {
			return nil, ErrNotFound
		}
		return &Settings{Goals: goals, Scale: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query scale: %w", err)
	}
	scale, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("parse scale %q: %w", raw, err)
	}
	return &Settings{Goals: goals, Scale: scale}, nil
}

func (r *PGStore) SaveConfig(ctx context.Context, s *Settings) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := execBuilt(ctx, tx, psql.Delete("rips_goal")); err != nil {
			return fmt.Errorf("clear goals: %w", err)
		}
		if len(s.Goals) > 0 {
			ins := psql.Insert("rips_goal").Columns("service_type", "monthly_goal", "active", "position")
			for i, g := range s.Goals {
				ins = ins.Values(g.ServiceType, g.MonthlyGoal, g.Active, i)
			}
			if err := execBuilt(ctx, tx, ins); err != nil {
				return fmt.Errorf("insert goals: %w", err)
			}
		}
		upsert := psql.Insert("rips_setting").
			Columns("key", "value").
			Values(settingScale, strconv.Itoa(s.Scale)).
			Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()")
		if err := execBuilt(ctx, tx, upsert); err != nil {
			return fmt.Errorf("save scale: %w", err)
		}
		return nil
	})
}

func (r *PGStore) LoadSession(ctx context.Context) (*Snapshot, error) {
	query, args, err := psql.Select("id", "saved_at").From("rips_session").OrderBy("saved_at DESC").Limit(1).ToSql()
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	err = r.pool.QueryRow(ctx, query, args...).Scan(&snap.ID, &snap.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	query, args, err = psql.
		Select("service_code", "patient_id", "service_type", "service_name", "service_date").
		From("rips_session_record").
		Where(sq.Eq{"session_id": snap.ID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query session records: %w", err)
	}
	snap.Records, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (ingest.ServiceRecord, error) {
		var rec ingest.ServiceRecord
		err := row.Scan(&rec.ServiceCode, &rec.PatientID, &rec.ServiceType, &rec.ServiceName, &rec.ServiceDate)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan session records: %w", err)
	}

	query, args, err = psql.
		Select("patient_id", "sex", "birth_date", "full_name").
		From("rips_session_patient").
		Where(sq.Eq{"session_id": snap.ID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err = r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query session patients: %w", err)
	}
	snap.Patients, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (identity.Patient, error) {
		var p identity.Patient
		err := row.Scan(&p.ID, &p.Sex, &p.BirthDate, &p.FullName)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan session patients: %w", err)
	}
	return &snap, nil
}

// insertBatch bounds the rows per INSERT statement to stay under the
// Postgres parameter limit.
const insertBatch = 1000

func (r *PGStore) SaveSession(ctx context.Context, snap *Snapshot) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := execBuilt(ctx, tx, psql.Delete("rips_session")); err != nil {
			return fmt.Errorf("clear sessions: %w", err)
		}
		if err := execBuilt(ctx, tx, psql.Insert("rips_session").Columns("id", "saved_at").Values(snap.ID, snap.SavedAt)); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		for start := 0; start < len(snap.Records); start += insertBatch {
			end := min(start+insertBatch, len(snap.Records))
			ins := psql.Insert("rips_session_record").
				Columns("session_id", "position", "service_code", "patient_id", "service_type", "service_name", "service_date")
			for i := start; i < end; i++ {
				rec := snap.Records[i]
				ins = ins.Values(snap.ID, i, rec.ServiceCode, rec.PatientID, rec.ServiceType, rec.ServiceName, rec.ServiceDate)
			}
			if err := execBuilt(ctx, tx, ins); err != nil {
				return fmt.Errorf("insert session records: %w", err)
			}
		}

		for start := 0; start < len(snap.Patients); start += insertBatch {
			end := min(start+insertBatch, len(snap.Patients))
			ins := psql.Insert("rips_session_patient").
				Columns("session_id", "position", "patient_id", "sex", "birth_date", "full_name")
			for i := start; i < end; i++ {
				p := snap.Patients[i]
				ins = ins.Values(snap.ID, i, p.ID, p.Sex, p.BirthDate, p.FullName)
			}
			if err := execBuilt(ctx, tx, ins); err != nil {
				return fmt.Errorf("insert session patients: %w", err)
			}
		}
		return nil
	})
}

func execBuilt(ctx context.Context, tx pgx.Tx, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, query, args...)
	return err
}
