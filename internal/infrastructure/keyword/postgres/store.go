package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ayulabs/ayurag/internal/core/domain"
)

// DefaultPartitions are the topical partitions searched when none are
// configured.
var DefaultPartitions = []string{"herb", "condition", "remedy", "general"}

// Store performs full-text search over the knowledge base, one topical
// partition at a time, and merges the results. It self-heals missing schema
// and swallows infrastructure errors: an unavailable keyword store degrades
// grounding quality, never pipeline availability.
type Store struct {
	db         *sql.DB
	partitions []string

	ensureMu sync.Mutex
	ensured  bool
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func NewStore(db *sql.DB, partitions []string) *Store {
	if len(partitions) == 0 {
		partitions = DefaultPartitions
	}
	return &Store{db: db, partitions: partitions}
}

func (s *Store) Search(ctx context.Context, query string, limit int) ([]domain.RetrievedDocument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	if err := s.ensureSearchSchema(ctx); err != nil {
		slog.Warn("keyword_schema_unavailable", "error", err)
		return []domain.RetrievedDocument{}, nil
	}

	merged := make([]domain.RetrievedDocument, 0, limit*len(s.partitions))
	for _, partition := range s.partitions {
		docs, err := s.searchPartition(ctx, partition, query, limit)
		if err != nil {
			slog.Warn("keyword_partition_search_failed", "partition", partition, "error", err)
			continue
		}
		merged = append(merged, docs...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (s *Store) searchPartition(ctx context.Context, partition, query string, limit int) ([]domain.RetrievedDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, category, content,
       ts_rank(search_vector, plainto_tsquery('english', $1)) AS rank
FROM knowledge_entries
WHERE category = $2
  AND search_vector @@ plainto_tsquery('english', $1)
ORDER BY rank DESC
LIMIT $3
`, query, partition, limit)
	if err != nil {
		return nil, fmt.Errorf("query partition: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RetrievedDocument, 0, limit)
	for rows.Next() {
		var doc domain.RetrievedDocument
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Category, &doc.Text, &doc.Score); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		doc.Source = domain.SourceKeyword
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// ensureSearchSchema lazily creates the knowledge table and its text indexes
// on first use. Failures reset the guard so the next search retries.
func (s *Store) ensureSearchSchema(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensured {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent service instances.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026053101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS knowledge_entries (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	category TEXT NOT NULL,
	content TEXT NOT NULL,
	search_vector TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', coalesce(title, '') || ' ' || content)) STORED,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_knowledge_entries_search ON knowledge_entries USING GIN (search_vector);
CREATE INDEX IF NOT EXISTS idx_knowledge_entries_category ON knowledge_entries(category);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	s.ensured = true
	return nil
}
