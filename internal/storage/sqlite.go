package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteSchemaSQL = `CREATE TABLE IF NOT EXISTS risk_assessments (
        taken_at     INTEGER NOT NULL,
        user_name    TEXT    NOT NULL,
        risk         TEXT    NOT NULL,
        ct_risk      TEXT    NOT NULL,
        hi_risk      TEXT    NOT NULL,
        lr_risk      TEXT    NOT NULL,
        heart_rate   TEXT    NOT NULL,
        skin_temp    TEXT    NOT NULL,
        ambient_temp TEXT    NOT NULL,
        humidity     TEXT    NOT NULL,
        created_at   INTEGER NOT NULL,
        PRIMARY KEY (user_name, taken_at)
    );
    CREATE TABLE IF NOT EXISTS risk_alerts (
        id         INTEGER PRIMARY KEY AUTOINCREMENT,
        taken_at   INTEGER NOT NULL,
        user_name  TEXT    NOT NULL,
        risk       TEXT    NOT NULL,
        threshold  TEXT    NOT NULL,
        channels   TEXT    NOT NULL DEFAULT '',
        created_at INTEGER NOT NULL,
        UNIQUE (user_name, taken_at)
    );`

	sqliteUpsertAssessmentSQL = `INSERT INTO risk_assessments (
        taken_at, user_name, risk, ct_risk, hi_risk, lr_risk,
        heart_rate, skin_temp, ambient_temp, humidity, created_at
    ) VALUES (?,?,?,?,?,?,?,?,?,?,?)
    ON CONFLICT (user_name, taken_at) DO UPDATE
    SET risk         = excluded.risk,
        ct_risk      = excluded.ct_risk,
        hi_risk      = excluded.hi_risk,
        lr_risk      = excluded.lr_risk,
        heart_rate   = excluded.heart_rate,
        skin_temp    = excluded.skin_temp,
        ambient_temp = excluded.ambient_temp,
        humidity     = excluded.humidity;`

	sqliteAssessmentColumns = `taken_at, user_name, risk, ct_risk, hi_risk, lr_risk,
        heart_rate, skin_temp, ambient_temp, humidity, created_at`

	sqliteListAssessmentsBetweenSQL = `SELECT ` + sqliteAssessmentColumns + `
    FROM risk_assessments
    WHERE taken_at >= ? AND taken_at < ?
    ORDER BY taken_at;`

	sqliteListRecentAssessmentsSQL = `SELECT ` + sqliteAssessmentColumns + `
    FROM risk_assessments
    ORDER BY taken_at DESC
    LIMIT ?;`

	sqliteCountAssessmentsSQL = `SELECT COUNT(*) FROM risk_assessments;`

	sqliteUpsertAlertSQL = `INSERT INTO risk_alerts (
        taken_at, user_name, risk, threshold, channels, created_at
    ) VALUES (?,?,?,?,?,?)
    ON CONFLICT (user_name, taken_at) DO UPDATE
    SET risk      = excluded.risk,
        threshold = excluded.threshold,
        channels  = excluded.channels;`

	sqliteAlertColumns = `id, taken_at, user_name, risk, threshold, channels, created_at`

	sqliteGetAlertSQL = `SELECT ` + sqliteAlertColumns + `
    FROM risk_alerts
    WHERE user_name = ? AND taken_at = ?;`

	sqliteListRecentAlertsSQL = `SELECT ` + sqliteAlertColumns + `
    FROM risk_alerts
    ORDER BY created_at DESC, id DESC
    LIMIT ?;`
)

// SQLiteStore persists assessments and alerts in a local SQLite file.
// Timestamps are stored as unix nanoseconds and decimals as text.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps writes serialised and in-memory databases shared
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// EnsureSchema creates the tables when missing.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertAssessment persists or updates an assessment.
func (s *SQLiteStore) InsertAssessment(ctx context.Context, a Assessment) error {
	_, err := s.db.ExecContext(ctx, sqliteUpsertAssessmentSQL,
		a.TakenAt.UnixNano(),
		a.User,
		a.Risk.String(),
		a.CoreTempRisk.String(),
		a.HeatIndexRisk.String(),
		a.LogRegRisk.String(),
		a.HeartRate.String(),
		a.SkinTemp.String(),
		a.AmbientTemp.String(),
		a.Humidity.String(),
		s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert assessment: %w", err)
	}
	return nil
}

// ListAssessmentsBetween lists assessments within a time window.
func (s *SQLiteStore) ListAssessmentsBetween(ctx context.Context, from, to time.Time) ([]Assessment, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListAssessmentsBetweenSQL, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list assessments between: %w", err)
	}
	defer rows.Close()
	return scanSQLiteAssessments(rows)
}

// ListRecentAssessments lists the most recent assessments, newest first.
func (s *SQLiteStore) ListRecentAssessments(ctx context.Context, limit int) ([]Assessment, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListRecentAssessmentsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent assessments: %w", err)
	}
	defer rows.Close()
	return scanSQLiteAssessments(rows)
}

// CountAssessments counts stored assessments.
func (s *SQLiteStore) CountAssessments(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, sqliteCountAssessmentsSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count assessments: %w", err)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *SQLiteStore) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	if _, err := s.db.ExecContext(ctx, sqliteUpsertAlertSQL,
		alert.TakenAt.UnixNano(),
		alert.User,
		alert.Risk.String(),
		alert.Threshold.String(),
		strings.Join(alert.Channels, ","),
		s.now().UnixNano(),
	); err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}

	rec, err := scanSQLiteAlert(s.db.QueryRowContext(ctx, sqliteGetAlertSQL, alert.User, alert.TakenAt.UnixNano()))
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *SQLiteStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListRecentAlertsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, err := scanSQLiteAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

func scanSQLiteAssessments(rows *sql.Rows) ([]Assessment, error) {
	out := make([]Assessment, 0)
	for rows.Next() {
		var (
			a                  Assessment
			takenAt, createdAt int64
			numerics           [numericColumns]string
		)
		dest := append([]any{&takenAt, &a.User}, numericDest(&numerics)...)
		dest = append(dest, &createdAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if err := a.setNumerics(numerics); err != nil {
			return nil, err
		}
		a.TakenAt = time.Unix(0, takenAt).UTC()
		a.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanSQLiteAlert(row interface{ Scan(...any) error }) (AlertRecord, error) {
	var (
		rec                  AlertRecord
		takenAt, createdAt   int64
		risk, threshold, chs string
	)
	if err := row.Scan(&rec.ID, &takenAt, &rec.User, &risk, &threshold, &chs, &createdAt); err != nil {
		return AlertRecord{}, err
	}
	if err := rec.setNumerics(risk, threshold); err != nil {
		return AlertRecord{}, err
	}
	if chs != "" {
		rec.Channels = strings.Split(chs, ",")
	}
	rec.TakenAt = time.Unix(0, takenAt).UTC()
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return rec, nil
}

var _ Store = (*SQLiteStore)(nil)
