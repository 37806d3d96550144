package business

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Directory is the lookup contract used by the inbound call handler.
type Directory interface {
	// Resolve maps a dialed number to its owning business and agent config.
	// Returns ErrNumberNotFound when the number is not provisioned.
	Resolve(ctx context.Context, calledNumber string) (Context, error)
}

// PostgresDirectory reads the phone_numbers, businesses and api_configurations
// tables owned by the management API.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Resolve(ctx context.Context, calledNumber string) (Context, error) {
	const q = `
		SELECT p.id, p.phone_number, p.business_id, p.status,
		       b.id, b.name, COALESCE(b.description, ''), b.is_active
		FROM phone_numbers p
		JOIN businesses b ON b.id = p.business_id
		WHERE p.phone_number = $1`
	var out Context
	err := d.db.QueryRowContext(ctx, q, calledNumber).Scan(
		&out.Number.ID, &out.Number.Number, &out.Number.BusinessID, &out.Number.Status,
		&out.Business.ID, &out.Business.Name, &out.Business.Description, &out.Business.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Context{}, ErrNumberNotFound
	}
	if err != nil {
		return Context{}, fmt.Errorf("business: resolve number: %w", err)
	}

	const qc = `
		SELECT openai_api_key, COALESCE(custom_instructions, ''), is_active
		FROM api_configurations
		WHERE business_id = $1 AND is_active = TRUE
		ORDER BY created_at DESC
		LIMIT 1`
	var agent AgentConfig
	err = d.db.QueryRowContext(ctx, qc, out.Business.ID).Scan(
		&agent.APIKey, &agent.CustomInstructions, &agent.Active,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No active config; the handler falls back to the apology path.
	case err != nil:
		return Context{}, fmt.Errorf("business: resolve agent config: %w", err)
	default:
		out.Agent = &agent
	}
	return out, nil
}

// MemoryDirectory is a fixture-backed Directory for tests and local runs.
type MemoryDirectory struct {
	entries map[string]Context
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{entries: make(map[string]Context)}
}

func (d *MemoryDirectory) Add(ctx Context) {
	d.entries[ctx.Number.Number] = ctx
}

func (d *MemoryDirectory) Resolve(_ context.Context, calledNumber string) (Context, error) {
	c, ok := d.entries[calledNumber]
	if !ok {
		return Context{}, ErrNumberNotFound
	}
	return c, nil
}
