package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

const schema = `
create table if not exists capture_records (
	id           uuid primary key,
	session_id   text not null,
	profile      text not null,
	client_ref   text not null default '',
	mode         text not null,
	documents    jsonb not null,
	completed_at timestamptz not null default now()
);
create index if not exists capture_records_client_ref_idx on capture_records (client_ref, completed_at desc);`

// OpenPostgres opens a pooled connection through the pgx driver and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	return db, nil
}

// PostgresCaptureRepository stores capture records in Postgres.
type PostgresCaptureRepository struct {
	db *sql.DB
}

// NewPostgresCaptureRepository wraps db.
func NewPostgresCaptureRepository(db *sql.DB) *PostgresCaptureRepository {
	return &PostgresCaptureRepository{db: db}
}

// EnsureSchema creates the capture_records table when missing.
func (r *PostgresCaptureRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresCaptureRepository) Save(ctx context.Context, record *CaptureRecord) error {
	if err := record.validate(); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CompletedAt.IsZero() {
		record.CompletedAt = time.Now().UTC()
	}
	docs, err := json.Marshal(record.Documents)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}

	const q = `
insert into capture_records(id, session_id, profile, client_ref, mode, documents, completed_at)
values ($1,$2,$3,$4,$5,$6,$7)`
	_, err = r.db.ExecContext(ctx, q,
		record.ID, record.SessionID, record.Profile, record.ClientRef, record.Mode, docs, record.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert capture record: %w", err)
	}
	return nil
}

func (r *PostgresCaptureRepository) Get(ctx context.Context, id string) (*CaptureRecord, error) {
	const q = `
select id, session_id, profile, client_ref, mode, documents, completed_at
from capture_records
where id=$1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return rec, err
}

func (r *PostgresCaptureRepository) ListByClientRef(ctx context.Context, clientRef string, limit int) ([]*CaptureRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
select id, session_id, profile, client_ref, mode, documents, completed_at
from capture_records
where client_ref=$1
order by completed_at desc
limit $2`
	rows, err := r.db.QueryContext(ctx, q, clientRef, limit)
	if err != nil {
		return nil, fmt.Errorf("list capture records: %w", err)
	}
	defer rows.Close()

	var out []*CaptureRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*CaptureRecord, error) {
	var (
		rec  CaptureRecord
		docs []byte
	)
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.Profile, &rec.ClientRef, &rec.Mode, &docs, &rec.CompletedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(docs, &rec.Documents); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return &rec, nil
}
