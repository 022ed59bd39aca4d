package measurement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bptrack/bptrack/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type measurementRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &measurementRepoPG{pool: pool}
}

func (r *measurementRepoPG) conn(ctx context.Context) queryable {
	if c := db.QuerierFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const measurementCols = `id, user_id, systolic, diastolic, pulse, taken_at, tags, notes, created_at`

func (r *measurementRepoPG) scanMeasurement(row pgx.Row) (*Measurement, error) {
	var m Measurement
	err := row.Scan(&m.ID, &m.UserID, &m.Systolic, &m.Diastolic, &m.Pulse,
		&m.Timestamp, &m.Tags, &m.Notes, &m.CreatedAt)
	if m.Tags == nil {
		m.Tags = []string{}
	}
	return &m, err
}

func (r *measurementRepoPG) Create(ctx context.Context, m *Measurement) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO measurements (id, user_id, systolic, diastolic, pulse, taken_at, tags, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		m.ID, m.UserID, m.Systolic, m.Diastolic, m.Pulse, m.Timestamp, m.Tags, m.Notes,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	return nil
}

func (r *measurementRepoPG) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Measurement, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+measurementCols+` FROM measurements
		WHERE user_id = $1
		ORDER BY taken_at DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	defer rows.Close()

	items := []*Measurement{}
	for rows.Next() {
		m, err := r.scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *measurementRepoPG) DeleteForUser(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM measurements WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete measurement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
