package transcript

import (
	"context"
	"fmt"
	"strings"
)

// NewArchive opens the archive named by databaseURL. An empty URL disables
// archiving and returns a nil Archive.
//
//	postgres://... or postgresql://...  PostgreSQL via pgx
//	sqlite://path/to/file.db             SQLite file
//	file:...                             SQLite DSN passed through
//	memory://                            in-process, for local runs
func NewArchive(ctx context.Context, databaseURL string) (Archive, error) {
	u := strings.TrimSpace(databaseURL)
	switch {
	case u == "":
		return nil, nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return NewPostgresArchive(ctx, u)
	case strings.HasPrefix(u, "sqlite://"):
		return NewSQLiteArchive(ctx, strings.TrimPrefix(u, "sqlite://"))
	case strings.HasPrefix(u, "file:"):
		return NewSQLiteArchive(ctx, u)
	case strings.HasPrefix(u, "memory://"):
		return NewInMemoryArchive(), nil
	default:
		return nil, fmt.Errorf("unsupported transcript database url scheme: %q", u)
	}
}
