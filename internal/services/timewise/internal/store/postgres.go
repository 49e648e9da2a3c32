package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/attendance"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
	_ "github.com/lib/pq"
)

type dbtx interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
}

// PostgresStore keeps attendance mirror records in the attendance_days table.
type PostgresStore struct {
	db dbtx
}

func NewPostgresDB(cfg PostgresConfig) (*sql.DB, error) {
	ssl := cfg.SSLMode
	if ssl == "" {
		ssl = "disable"
	}

	db, err := sql.Open("postgres", fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DB,
		ssl))
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectDay = `SELECT day, day_key, task_id, status,
        check_in_at, check_in_lat, check_in_lng, check_in_acc,
        check_out_at, check_out_lat, check_out_lng, check_out_acc
 FROM attendance_days
 WHERE identity=$1 AND tenant=$2 AND day_key=$3`

func (s *PostgresStore) Load(ctx context.Context, key attendance.MirrorKey) (model.AttendanceRecord, error) {
	return s.load(ctx, key, false)
}

// Update holds the day's row lock while fn runs and saves its result in the
// same transaction. A missing row is not locked; concurrent first writers
// are expected to be serialized by the caller.
func (s *PostgresStore) Update(ctx context.Context, key attendance.MirrorKey, fn attendance.UpdateFunc) error {
	return s.WithTx(ctx, func(tx *PostgresStore) error {
		rec, err := fn(tx.load(ctx, key, true))
		if err != nil {
			return err
		}

		return tx.Save(ctx, key, rec)
	})
}

func (s *PostgresStore) load(ctx context.Context, key attendance.MirrorKey, forUpdate bool) (model.AttendanceRecord, error) {
	q := selectDay
	if forUpdate {
		q += " FOR UPDATE"
	}

	row := s.db.QueryRowContext(ctx, q, key.Identity, key.Tenant, key.DayKey)

	var (
		rec     model.AttendanceRecord
		in, out punchRow
	)
	err := row.Scan(
		&rec.Date,
		&rec.DayKey,
		&rec.TaskID,
		&rec.Status,
		&in.at, &in.lat, &in.lng, &in.acc,
		&out.at, &out.lat, &out.lng, &out.acc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, attendance.ErrNoRecord
		}

		return rec, fmt.Errorf("scan: %w", err)
	}

	rec.CheckIn = in.punch()
	rec.CheckOut = out.punch()
	return rec, nil
}

// Save upserts the whole day record.
func (s *PostgresStore) Save(ctx context.Context, key attendance.MirrorKey, rec model.AttendanceRecord) error {
	in := newPunchRow(rec.CheckIn)
	out := newPunchRow(rec.CheckOut)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance_days (identity, tenant, day_key, day, task_id, status,
		        check_in_at, check_in_lat, check_in_lng, check_in_acc,
		        check_out_at, check_out_lat, check_out_lng, check_out_acc)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (identity, tenant, day_key) DO UPDATE SET
		        day = EXCLUDED.day,
		        task_id = EXCLUDED.task_id,
		        status = EXCLUDED.status,
		        check_in_at = EXCLUDED.check_in_at,
		        check_in_lat = EXCLUDED.check_in_lat,
		        check_in_lng = EXCLUDED.check_in_lng,
		        check_in_acc = EXCLUDED.check_in_acc,
		        check_out_at = EXCLUDED.check_out_at,
		        check_out_lat = EXCLUDED.check_out_lat,
		        check_out_lng = EXCLUDED.check_out_lng,
		        check_out_acc = EXCLUDED.check_out_acc,
		        updated_at = NOW()`,
		key.Identity,
		key.Tenant,
		key.DayKey,
		rec.Date,
		rec.TaskID,
		rec.Status,
		in.at, in.lat, in.lng, in.acc,
		out.at, out.lat, out.lng, out.acc)
	if err != nil {
		return fmt.Errorf("upsert attendance day: %w", err)
	}

	return nil
}

// WithTx runs fn against a store bound to one transaction. fn's error rolls
// the transaction back. Nesting is rejected.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx *PostgresStore) error) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return errors.New("already in transaction")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err = fn(&PostgresStore{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback: %v after: %w", rbErr, err)
		}

		return fmt.Errorf("transaction: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}
