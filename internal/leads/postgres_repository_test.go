package leads

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRepository(mock), mock
}

func leadRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "conversation_id", "status", "score", "lead_type", "next_step",
		"internal_notes", "attrs", "created_at", "updated_at",
	})
}

func TestPostgresCreateMapsConversationConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(&pgconn.PgError{
			Code:           "23505",
			ConstraintName: "leads_conversation_id_key",
		})

	err := repo.Create(context.Background(), &Lead{ConversationID: strPtr("conv-1")})
	assert.ErrorIs(t, err, ErrLeadExists)
}

func TestPostgresCreateIgnoresUnrelatedUniqueViolations(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO leads").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "leads_pkey"})

	err := repo.Create(context.Background(), &Lead{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLeadExists)
}

func TestPostgresCreateScansTimestamps(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	lead := &Lead{ConversationID: strPtr("conv-1"), Score: 42}
	require.NoError(t, repo.Create(context.Background(), lead))
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, now, lead.CreatedAt)
}

func TestPostgresGetByIDNormalizesStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	conv := "conv-1"

	mock.ExpectQuery("SELECT (.+) FROM leads WHERE id").
		WithArgs("l1").
		WillReturnRows(leadRows().AddRow(
			"l1", &conv, "closed won", 8, "vendor", "call back",
			"", map[string]string{"category": "florist"}, now, now,
		))

	lead, err := repo.GetByID(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, StatusWon, lead.Status)
	assert.Equal(t, "florist", lead.Attrs["category"])
}

func TestPostgresGetByConversationNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM leads WHERE conversation_id").
		WithArgs("conv-9").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByConversation(context.Background(), "conv-9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresUpdateBuildsPatchQuery(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	conv := "conv-1"

	mock.ExpectQuery("UPDATE leads SET updated_at = now\\(\\), status = \\$2, score = \\$3").
		WithArgs("l1", StatusWon, 10).
		WillReturnRows(leadRows().AddRow(
			"l1", &conv, StatusWon, 10, "", "", "", map[string]string{}, now, now,
		))

	lead, err := repo.Update(context.Background(), "l1", UpdatePatch{
		Status: strPtr("won"),
		Score:  intPtr(99),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusWon, lead.Status)
	assert.Equal(t, 10, lead.Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertForConversation(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	conv := "conv-1"

	mock.ExpectQuery("ON CONFLICT \\(conversation_id\\)").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnRows(leadRows().AddRow(
			"l1", &conv, StatusNew, 6, "vendor", "", "",
			map[string]string{"category": "florist"}, now, now,
		))

	lead, err := repo.UpsertForConversation(context.Background(), "conv-1", Snapshot{
		Score:    6,
		LeadType: "vendor",
		Attrs:    map[string]string{"category": "florist"},
	})
	require.NoError(t, err)
	assert.Equal(t, "l1", lead.ID)
	assert.Equal(t, 6, lead.Score)
}

func TestPostgresDeleteNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM leads").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), ErrNotFound)
}

func TestIsConversationConflict(t *testing.T) {
	assert.True(t, isConversationConflict(&pgconn.PgError{Code: "23505", ConstraintName: "leads_conversation_id_key"}))
	assert.True(t, isConversationConflict(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isConversationConflict(&pgconn.PgError{Code: "23505", ConstraintName: "leads_pkey"}))
	assert.False(t, isConversationConflict(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isConversationConflict(pgx.ErrNoRows))
}
