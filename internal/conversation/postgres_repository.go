package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the pool subset the repository needs. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository stores conversations and messages in the relational
// database. It implements both Repository and MessageLog.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const conversationColumns = `
	id, user_type, status, first_message, last_message,
	contact_name, contact_email, contact_phone, contact_company, wedding_date,
	lead_id, created_at, updated_at
`

// Create inserts a new conversation row.
func (r *PostgresRepository) Create(ctx context.Context, conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Status == "" {
		conv.Status = StatusNew
	}
	query := `
		INSERT INTO conversations
			(id, user_type, status, first_message, last_message,
			 contact_name, contact_email, contact_phone, contact_company, wedding_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		conv.ID,
		NormalizeUserType(conv.UserType),
		NormalizeStatus(conv.Status),
		conv.FirstMessage,
		conv.LastMessage,
		nullable(conv.ContactName),
		nullable(conv.ContactEmail),
		nullable(conv.ContactPhone),
		nullable(conv.ContactCompany),
		nullable(conv.WeddingDate),
	).Scan(&conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return fmt.Errorf("conversation: insert failed: %w", err)
	}
	return nil
}

// GetByID fetches a single conversation.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversation: select failed: %w", err)
	}
	return conv, nil
}

// List returns the most recently updated conversations.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*Conversation, error) {
	if limit <= 0 || limit > 200 {
		limit = 150
	}
	query := `SELECT ` + conversationColumns + ` FROM conversations ORDER BY updated_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan failed: %w", err)
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: list rows: %w", err)
	}
	return out, nil
}

// UpdateOnReply overwrites last_message and any non-empty contact fields.
// Contact values from the assistant win over what is stored.
func (r *PostgresRepository) UpdateOnReply(ctx context.Context, id, lastMessage string, contact ContactPatch) error {
	query := `
		UPDATE conversations SET
			last_message = $2,
			contact_name = COALESCE(NULLIF($3, ''), contact_name),
			contact_email = COALESCE(NULLIF($4, ''), contact_email),
			contact_phone = COALESCE(NULLIF($5, ''), contact_phone),
			contact_company = COALESCE(NULLIF($6, ''), contact_company),
			wedding_date = COALESCE(NULLIF($7, ''), wedding_date),
			updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, lastMessage,
		contact.Name, contact.Email, contact.Phone, contact.Company, contact.Date)
	if err != nil {
		return fmt.Errorf("conversation: update on reply failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus writes a canonical status and bumps updated_at.
func (r *PostgresRepository) SetStatus(ctx context.Context, id, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET status = $2, updated_at = now() WHERE id = $1`,
		id, NormalizeStatus(status))
	if err != nil {
		return fmt.Errorf("conversation: set status failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLeadID backfills the lead reference after lead creation.
func (r *PostgresRepository) SetLeadID(ctx context.Context, id, leadID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET lead_id = $2, updated_at = now() WHERE id = $1`,
		id, leadID)
	if err != nil {
		return fmt.Errorf("conversation: set lead id failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the conversation. Dependent messages go with it via the
// ON DELETE CASCADE on messages.conversation_id.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("conversation: delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Append writes one turn to the canonical message log.
func (r *PostgresRepository) Append(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	query := `
		INSERT INTO messages (id, conversation_id, role, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	if err := r.pool.QueryRow(ctx, query, msg.ID, msg.ConversationID, msg.Role, msg.Content).
		Scan(&msg.CreatedAt); err != nil {
		return fmt.Errorf("conversation: append message failed: %w", err)
	}
	return nil
}

// ListByConversation returns the newest messages in chronological order.
func (r *PostgresRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `
		SELECT id, conversation_id, role, content, created_at
		FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages failed: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: message rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		conv    Conversation
		status  string
		name    *string
		email   *string
		phone   *string
		company *string
		date    *string
	)
	if err := row.Scan(
		&conv.ID,
		&conv.UserType,
		&status,
		&conv.FirstMessage,
		&conv.LastMessage,
		&name, &email, &phone, &company, &date,
		&conv.LeadID,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	conv.Status = NormalizeStatus(status)
	conv.ContactName = deref(name)
	conv.ContactEmail = deref(email)
	conv.ContactPhone = deref(phone)
	conv.ContactCompany = deref(company)
	conv.WeddingDate = deref(date)
	return &conv, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
