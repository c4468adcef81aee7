package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	pgSchemaSQL = `CREATE TABLE IF NOT EXISTS risk_assessments (
        taken_at        TIMESTAMPTZ NOT NULL,
        user_name       TEXT        NOT NULL,
        risk            NUMERIC     NOT NULL,
        ct_risk         NUMERIC     NOT NULL,
        hi_risk         NUMERIC     NOT NULL,
        lr_risk         NUMERIC     NOT NULL,
        heart_rate      NUMERIC     NOT NULL,
        skin_temp       NUMERIC     NOT NULL,
        ambient_temp    NUMERIC     NOT NULL,
        humidity        NUMERIC     NOT NULL,
        created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (user_name, taken_at)
    );
    CREATE TABLE IF NOT EXISTS risk_alerts (
        id          BIGSERIAL PRIMARY KEY,
        taken_at    TIMESTAMPTZ NOT NULL,
        user_name   TEXT        NOT NULL,
        risk        NUMERIC     NOT NULL,
        threshold   NUMERIC     NOT NULL,
        channels    TEXT[]      NOT NULL DEFAULT '{}',
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (user_name, taken_at)
    );`

	pgUpsertAssessmentSQL = `INSERT INTO risk_assessments (
        taken_at,
        user_name,
        risk,
        ct_risk,
        hi_risk,
        lr_risk,
        heart_rate,
        skin_temp,
        ambient_temp,
        humidity
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (user_name, taken_at) DO UPDATE
    SET
        risk         = EXCLUDED.risk,
        ct_risk      = EXCLUDED.ct_risk,
        hi_risk      = EXCLUDED.hi_risk,
        lr_risk      = EXCLUDED.lr_risk,
        heart_rate   = EXCLUDED.heart_rate,
        skin_temp    = EXCLUDED.skin_temp,
        ambient_temp = EXCLUDED.ambient_temp,
        humidity     = EXCLUDED.humidity;`

	pgAssessmentColumns = `taken_at,
        user_name,
        risk::text,
        ct_risk::text,
        hi_risk::text,
        lr_risk::text,
        heart_rate::text,
        skin_temp::text,
        ambient_temp::text,
        humidity::text,
        created_at`

	pgListAssessmentsBetweenSQL = `SELECT ` + pgAssessmentColumns + `
    FROM risk_assessments
    WHERE taken_at >= $1
      AND taken_at < $2
    ORDER BY taken_at;`

	pgListRecentAssessmentsSQL = `SELECT ` + pgAssessmentColumns + `
    FROM risk_assessments
    ORDER BY taken_at DESC
    LIMIT $1;`

	pgCountAssessmentsSQL = `SELECT COUNT(*) FROM risk_assessments;`

	pgInsertAlertSQL = `INSERT INTO risk_alerts (
        taken_at,
        user_name,
        risk,
        threshold,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (user_name, taken_at) DO UPDATE
    SET risk      = EXCLUDED.risk,
        threshold = EXCLUDED.threshold,
        channels  = EXCLUDED.channels
    RETURNING id, taken_at, user_name, risk::text, threshold::text, channels, created_at;`

	pgListRecentAlertsSQL = `SELECT
        id,
        taken_at,
        user_name,
        risk::text,
        threshold::text,
        channels,
        created_at
    FROM risk_alerts
    ORDER BY created_at DESC
    LIMIT $1;`
)

// AssessmentStore defines operations for risk assessment persistence.
type AssessmentStore interface {
	InsertAssessment(ctx context.Context, a Assessment) error
	ListAssessmentsBetween(ctx context.Context, from, to time.Time) ([]Assessment, error)
	ListRecentAssessments(ctx context.Context, limit int) ([]Assessment, error)
	CountAssessments(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// Store is a complete storage backend.
type Store interface {
	AssessmentStore
	AlertStore
	EnsureSchema(ctx context.Context) error
	Close()
}

// PGStore persists assessments and alerts in PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wires a pgx pool into a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PGStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PGStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables when missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertAssessment persists or updates an assessment.
func (s *PGStore) InsertAssessment(ctx context.Context, a Assessment) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, pgUpsertAssessmentSQL,
		a.TakenAt.UTC(),
		a.User,
		a.Risk.String(),
		a.CoreTempRisk.String(),
		a.HeatIndexRisk.String(),
		a.LogRegRisk.String(),
		a.HeartRate.String(),
		a.SkinTemp.String(),
		a.AmbientTemp.String(),
		a.Humidity.String(),
	)
	if execErr != nil {
		return fmt.Errorf("upsert assessment: %w", execErr)
	}
	return nil
}

// ListAssessmentsBetween lists assessments within a time window.
func (s *PGStore) ListAssessmentsBetween(ctx context.Context, from, to time.Time) ([]Assessment, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListAssessmentsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list assessments between: %w", queryErr)
	}
	defer rows.Close()

	return collectAssessments(rows, 0)
}

// ListRecentAssessments lists the most recent assessments, newest first.
func (s *PGStore) ListRecentAssessments(ctx context.Context, limit int) ([]Assessment, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListRecentAssessmentsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent assessments: %w", queryErr)
	}
	defer rows.Close()

	return collectAssessments(rows, limit)
}

// CountAssessments counts stored assessments.
func (s *PGStore) CountAssessments(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, pgCountAssessmentsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count assessments: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *PGStore) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	row := pool.QueryRow(ctx, pgInsertAlertSQL,
		alert.TakenAt.UTC(),
		alert.User,
		alert.Risk.String(),
		alert.Threshold.String(),
		channels,
	)
	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *PGStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func collectAssessments(rows pgx.Rows, capacity int) ([]Assessment, error) {
	out := make([]Assessment, 0, capacity)
	for rows.Next() {
		var (
			a        Assessment
			numerics [numericColumns]string
		)
		dest := append([]any{&a.TakenAt, &a.User}, numericDest(&numerics)...)
		dest = append(dest, &a.CreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if err := a.setNumerics(numerics); err != nil {
			return nil, err
		}
		a.TakenAt = a.TakenAt.UTC()
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var rec AlertRecord
	var riskStr, thresholdStr string
	if err := row.Scan(
		&rec.ID,
		&rec.TakenAt,
		&rec.User,
		&riskStr,
		&thresholdStr,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	if err := rec.setNumerics(riskStr, thresholdStr); err != nil {
		return AlertRecord{}, err
	}
	rec.TakenAt = rec.TakenAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

var _ Store = (*PGStore)(nil)
