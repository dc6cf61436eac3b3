package transcript

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/gemini-relay/internal/reply"
)

// PostgresArchive stores transcript entries in PostgreSQL.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

func NewPostgresArchive(ctx context.Context, databaseURL string) (*PostgresArchive, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresArchive{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcript_entries (
			id TEXT PRIMARY KEY,
			turn_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			outcome TEXT NOT NULL,
			in_memory BOOLEAN NOT NULL DEFAULT TRUE,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_conversation_created ON transcript_entries (conversation_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (a *PostgresArchive) Record(ctx context.Context, ex reply.Exchange) error {
	batch := &pgx.Batch{}
	for _, e := range entriesFor(ex) {
		batch.Queue(
			`INSERT INTO transcript_entries (id, turn_id, conversation_id, role, content, outcome, in_memory, pii_redacted, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.ID, e.TurnID, e.ConversationID, e.Role, e.Content, e.Outcome, e.InMemory, e.PIIRedacted, e.CreatedAt,
		)
	}
	if err := a.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("record exchange: %w", err)
	}
	return nil
}

func (a *PostgresArchive) Recent(ctx context.Context, conversationID string, limit int) ([]Entry, error) {
	limit = normalizeLimit(limit)

	rows, err := a.pool.Query(ctx,
		`SELECT id, turn_id, conversation_id, role, content, outcome, in_memory, pii_redacted, created_at
		 FROM transcript_entries WHERE conversation_id=$1 ORDER BY created_at DESC LIMIT $2`,
		conversationID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	items := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TurnID, &e.ConversationID, &e.Role, &e.Content, &e.Outcome, &e.InMemory, &e.PIIRedacted, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}

	reverse(items)
	return items, nil
}

func (a *PostgresArchive) Close() error {
	a.pool.Close()
	return nil
}

// reverse flips newest-first query results into chronological order.
func reverse(items []Entry) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
