package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ent0n29/gemini-relay/internal/reply"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transcript_entries (
	id TEXT PRIMARY KEY,
	turn_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	outcome TEXT NOT NULL,
	in_memory INTEGER NOT NULL DEFAULT 1,
	pii_redacted INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcript_conversation_created ON transcript_entries (conversation_id, created_at);
`

// sqliteTimeFormat is fixed-width so created_at sorts lexically.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteArchive stores transcript entries in a SQLite database.
type SQLiteArchive struct {
	db *sql.DB
}

func NewSQLiteArchive(ctx context.Context, dsn string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single writer avoids SQLITE_BUSY from the async recorder goroutines
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteArchive{db: db}, nil
}

func (a *SQLiteArchive) Record(ctx context.Context, ex reply.Exchange) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entriesFor(ex) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transcript_entries (id, turn_id, conversation_id, role, content, outcome, in_memory, pii_redacted, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.TurnID, e.ConversationID, e.Role, e.Content, e.Outcome, e.InMemory, e.PIIRedacted,
			e.CreatedAt.UTC().Format(sqliteTimeFormat),
		)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (a *SQLiteArchive) Recent(ctx context.Context, conversationID string, limit int) ([]Entry, error) {
	limit = normalizeLimit(limit)

	rows, err := a.db.QueryContext(ctx,
		`SELECT id, turn_id, conversation_id, role, content, outcome, in_memory, pii_redacted, created_at
		 FROM transcript_entries WHERE conversation_id=? ORDER BY created_at DESC LIMIT ?`,
		conversationID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	items := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e       Entry
			created string
		)
		if err := rows.Scan(&e.ID, &e.TurnID, &e.ConversationID, &e.Role, &e.Content, &e.Outcome, &e.InMemory, &e.PIIRedacted, &created); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		if e.CreatedAt, err = time.Parse(sqliteTimeFormat, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}

	reverse(items)
	return items, nil
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
