package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"hseptw.io/ptw/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const pgUniqueViolation = "23505"

// Migrate applies the service schema. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PostgresStore is a Repository on PostgreSQL. The full record is kept as
// jsonb; envelope columns are duplicated for filtering and the CAS predicate.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore on pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create implements Repository.
func (s *PostgresStore) Create(ctx context.Context, rec domain.Record) error {
	h := rec.Header()
	h.Version = 1
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", h.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO hse_records
			(id, kind, status, reference_number, created_by, created_at, modified_at, planned_end, version, payload)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, 1, $9)`,
		h.ID, string(h.Kind), string(h.Status), h.ReferenceNumber, h.CreatedBy,
		h.CreatedAt, h.ModifiedAt, h.PlannedEnd, payload,
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", h.ID, mapPgError(err))
	}
	return nil
}

// Load implements Repository.
func (s *PostgresStore) Load(ctx context.Context, id string) (domain.Record, error) {
	var (
		kind    string
		version int64
		payload []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT kind, version, payload FROM hse_records WHERE id = $1`, id,
	).Scan(&kind, &version, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	return decodeRow(kind, version, payload)
}

// Save implements Repository.
func (s *PostgresStore) Save(ctx context.Context, rec domain.Record, expect Precondition) error {
	h := rec.Header()
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", h.ID, err)
	}

	var version int64
	err = s.pool.QueryRow(ctx, `
		UPDATE hse_records
		   SET status = $4,
		       reference_number = NULLIF($5, ''),
		       modified_at = $6,
		       planned_end = $7,
		       version = version + 1,
		       payload = $8
		 WHERE id = $1 AND status = $2 AND version = $3
		RETURNING version`,
		h.ID, string(expect.Status), expect.Version,
		string(h.Status), h.ReferenceNumber, h.ModifiedAt, h.PlannedEnd, payload,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM hse_records WHERE id = $1)`, h.ID).Scan(&exists); err != nil {
			return fmt.Errorf("save %s: %w", h.ID, err)
		}
		if !exists {
			return fmt.Errorf("save %s: %w", h.ID, ErrNotFound)
		}
		return fmt.Errorf("save %s: %w", h.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", h.ID, mapPgError(err))
	}
	h.Version = version
	return nil
}

// List implements Repository.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]domain.Record, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(col string, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("kind", string(f.Kind))
	add("status", string(f.Status))
	add("created_by", f.CreatedBy)

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM hse_records`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT kind, version, payload FROM hse_records%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		clause, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var (
			kind    string
			version int64
			payload []byte
		)
		if err := rows.Scan(&kind, &version, &payload); err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		rec, err := decodeRow(kind, version, payload)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	return out, total, nil
}

// ListExpirable implements Repository.
func (s *PostgresStore) ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM hse_records
		 WHERE status IN ($1, $2) AND planned_end IS NOT NULL AND planned_end < $3
		 ORDER BY planned_end
		 LIMIT $4`,
		string(domain.StatusValidated), string(domain.StatusInProgress), cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expirable: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list expirable: %w", err)
	}
	return ids, nil
}

func decodeRow(kind string, version int64, payload []byte) (domain.Record, error) {
	rec, err := domain.Decode(domain.Kind(kind), payload)
	if err != nil {
		return nil, err
	}
	rec.Header().Version = version
	return rec, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrDuplicate)
	}
	return err
}
