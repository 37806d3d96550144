package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists calls in the `calls` table.
//
// Expected schema (managed outside this service):
//
//	calls(
//	  id UUID PRIMARY KEY,
//	  provider_call_id TEXT UNIQUE NOT NULL,
//	  business_id UUID NOT NULL,
//	  phone_number_id UUID NOT NULL,
//	  caller_number TEXT NOT NULL,
//	  call_type TEXT NOT NULL,
//	  status TEXT NOT NULL,
//	  started_at TIMESTAMPTZ NOT NULL,
//	  ended_at TIMESTAMPTZ,
//	  duration_seconds INT,
//	  cost DOUBLE PRECISION,
//	  summary TEXT NOT NULL DEFAULT '',
//	  recording_url TEXT NOT NULL DEFAULT '',
//	  recording_sid TEXT NOT NULL DEFAULT '',
//	  created_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL
//	)
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Create(ctx context.Context, c Call) error {
	if c.ID == "" || c.ProviderCallID == "" {
		return errors.New("calls: id and provider_call_id are required")
	}
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = now
	}
	const q = `
		INSERT INTO calls (
			id, provider_call_id, business_id, phone_number_id, caller_number,
			call_type, status, started_at, ended_at, duration_seconds, cost,
			summary, recording_url, recording_sid, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := s.db.ExecContext(ctx, q,
		c.ID, c.ProviderCallID, c.BusinessID, c.PhoneNumberID, c.CallerNumber,
		c.Type, c.Status, c.StartedAt, c.EndedAt, c.DurationSeconds, c.Cost,
		c.Summary, c.RecordingURL, c.RecordingSID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("calls: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByProviderID(ctx context.Context, providerCallID string) (Call, error) {
	const q = `
		SELECT id, provider_call_id, business_id, phone_number_id, caller_number,
		       call_type, status, started_at, ended_at, duration_seconds, cost,
		       summary, recording_url, recording_sid, created_at, updated_at
		FROM calls WHERE provider_call_id = $1`
	var c Call
	err := s.db.QueryRowContext(ctx, q, providerCallID).Scan(
		&c.ID, &c.ProviderCallID, &c.BusinessID, &c.PhoneNumberID, &c.CallerNumber,
		&c.Type, &c.Status, &c.StartedAt, &c.EndedAt, &c.DurationSeconds, &c.Cost,
		&c.Summary, &c.RecordingURL, &c.RecordingSID, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, fmt.Errorf("calls: select: %w", err)
	}
	return c, nil
}

// Update applies a partial update in one statement. COALESCE keeps the
// write-once fields from being overwritten once set; NULLIF('') treats empty
// recording strings as unset.
func (s *PostgresStore) Update(ctx context.Context, providerCallID string, upd Update) error {
	const q = `
		UPDATE calls SET
			status           = COALESCE($2, status),
			call_type        = COALESCE($3, call_type),
			ended_at         = COALESCE(ended_at, $4),
			duration_seconds = COALESCE(duration_seconds, $5),
			cost             = COALESCE(cost, $6),
			recording_url    = COALESCE(NULLIF(recording_url, ''), $7, recording_url),
			recording_sid    = COALESCE(NULLIF(recording_sid, ''), $8, recording_sid),
			updated_at       = $9
		WHERE provider_call_id = $1`
	res, err := s.db.ExecContext(ctx, q,
		providerCallID,
		nullableString((*string)(upd.Status)),
		nullableString((*string)(upd.Type)),
		upd.EndedAt,
		upd.DurationSeconds,
		upd.Cost,
		nullableString(upd.RecordingURL),
		nullableString(upd.RecordingSID),
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("calls: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("calls: update rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
