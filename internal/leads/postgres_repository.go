package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres error code raised when a second lead
// targets the same conversation.
const uniqueViolation = "23505"

// PgxPool is the pool subset the repository needs. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const leadColumns = `
	id, conversation_id, status, score, lead_type, next_step, internal_notes,
	attrs, created_at, updated_at
`

// Create inserts a new lead row. A conversation already holding a lead
// surfaces as ErrLeadExists so callers can fall back to a lookup.
func (r *PostgresRepository) Create(ctx context.Context, lead *Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.Status == "" {
		lead.Status = StatusNew
	}
	attrs := lead.Attrs
	if attrs == nil {
		attrs = map[string]string{}
	}
	query := `
		INSERT INTO leads (id, conversation_id, status, score, lead_type, next_step, internal_notes, attrs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		lead.ID,
		lead.ConversationID,
		NormalizeStatus(lead.Status),
		ClampScore(lead.Score),
		lead.LeadType,
		lead.NextStep,
		lead.InternalNotes,
		attrs,
	).Scan(&lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		if isConversationConflict(err) {
			return ErrLeadExists
		}
		return fmt.Errorf("leads: insert failed: %w", err)
	}
	return nil
}

// GetByID fetches a single lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// GetByConversation fetches the lead referencing a conversation.
func (r *PostgresRepository) GetByConversation(ctx context.Context, conversationID string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE conversation_id = $1`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, conversationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("leads: select by conversation failed: %w", err)
	}
	return lead, nil
}

// List returns the most recently updated leads.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*Lead, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	query := `SELECT ` + leadColumns + ` FROM leads ORDER BY updated_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: list rows: %w", err)
	}
	return out, nil
}

// Update applies admin edits and returns the updated row.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch UpdatePatch) (*Lead, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	argNum := 2

	addSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argNum))
		args = append(args, value)
		argNum++
	}

	if patch.Status != nil {
		addSet("status", NormalizeStatus(*patch.Status))
	}
	if patch.Notes != nil {
		addSet("internal_notes", *patch.Notes)
	}
	if patch.NextStep != nil {
		addSet("next_step", *patch.NextStep)
	}
	if patch.LeadType != nil {
		addSet("lead_type", *patch.LeadType)
	}
	if patch.Score != nil {
		addSet("score", ClampScore(*patch.Score))
	}

	query := `UPDATE leads SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + leadColumns
	lead, err := scanLead(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("leads: update failed: %w", err)
	}
	return lead, nil
}

// UpsertForConversation writes this turn's qualification snapshot, creating
// the conversation's lead on first contact and refreshing it afterwards.
func (r *PostgresRepository) UpsertForConversation(ctx context.Context, conversationID string, snap Snapshot) (*Lead, error) {
	attrs := snap.Attrs
	if attrs == nil {
		attrs = map[string]string{}
	}
	query := `
		INSERT INTO leads (id, conversation_id, status, score, lead_type, next_step, attrs)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (conversation_id) WHERE conversation_id IS NOT NULL
		DO UPDATE SET
			score = EXCLUDED.score,
			lead_type = COALESCE(NULLIF(EXCLUDED.lead_type, ''), leads.lead_type),
			next_step = COALESCE(NULLIF(EXCLUDED.next_step, ''), leads.next_step),
			attrs = leads.attrs || EXCLUDED.attrs,
			updated_at = now()
		RETURNING ` + leadColumns
	lead, err := scanLead(r.pool.QueryRow(ctx, query,
		uuid.NewString(),
		conversationID,
		StatusNew,
		ClampScore(snap.Score),
		snap.LeadType,
		snap.NextStep,
		attrs,
	))
	if err != nil {
		return nil, fmt.Errorf("leads: upsert for conversation failed: %w", err)
	}
	return lead, nil
}

// Delete removes a lead.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("leads: delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isConversationConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != uniqueViolation {
		return false
	}
	// Constraint name match keeps other unique indexes out of this path.
	return pgErr.ConstraintName == "" || strings.Contains(pgErr.ConstraintName, "conversation")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*Lead, error) {
	var (
		lead   Lead
		status string
	)
	if err := row.Scan(
		&lead.ID,
		&lead.ConversationID,
		&status,
		&lead.Score,
		&lead.LeadType,
		&lead.NextStep,
		&lead.InternalNotes,
		&lead.Attrs,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	lead.Status = NormalizeStatus(status)
	return &lead, nil
}
