package memory

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a keyword-matching store for machines without an embedding
// backend. Relevance is the number of distinct query words found in a row.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenSQLiteStore opens memory.db inside dataDir.
func OpenSQLiteStore(dataDir string, logger zerolog.Logger) (*SQLiteStore, error) {
	return openSQLite(filepath.Join(dataDir, "memory.db"), logger)
}

func openSQLite(dsn string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writes
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger.With().Str("component", "memory.sqlite").Logger()}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		importance TEXT NOT NULL,
		volatile INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		expires_at DATETIME,
		tags TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
	CREATE TABLE IF NOT EXISTS tools (
		name TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		schema TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// IndexMemory inserts m, replacing any row with the same id.
func (s *SQLiteStore) IndexMemory(ctx context.Context, m Memory) error {
	var expires any
	if m.ExpiresAt != nil {
		expires = m.ExpiresAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memories (id, text, type, importance, volatile, created_at, expires_at, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Text, m.Type, m.Importance.String(), m.Volatile, m.CreatedAt.UTC(), expires, strings.Join(m.Tags, ","))
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

// RelevantMemories ranks memories by keyword hits, newest first on ties.
func (s *SQLiteStore) RelevantMemories(ctx context.Context, query string, limit int) ([]Memory, error) {
	words := keywords(query)
	if len(words) == 0 || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, type, importance, volatile, created_at, expires_at, tags
		FROM memories
		WHERE `+likeClause("text", len(words))+`
		ORDER BY created_at DESC
	`, likeArgs(words)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	type scored struct {
		m     Memory
		score int
	}
	var found []scored
	for rows.Next() {
		var (
			m          Memory
			importance string
			expires    sql.NullTime
			tags       string
		)
		if err := rows.Scan(&m.ID, &m.Text, &m.Type, &importance, &m.Volatile, &m.CreatedAt, &expires, &tags); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		m.Importance, _ = ParseImportance(importance)
		if expires.Valid {
			t := expires.Time
			m.ExpiresAt = &t
		}
		if tags != "" {
			m.Tags = strings.Split(tags, ",")
		}
		found = append(found, scored{m: m, score: countHits(m.Text, words)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].score > found[j].score })
	if len(found) > limit {
		found = found[:limit]
	}
	out := make([]Memory, len(found))
	for i, f := range found {
		out[i] = f.m
	}
	return out, nil
}

// IndexTools upserts tool schemas by name.
func (s *SQLiteStore) IndexTools(ctx context.Context, tools []mcptypes.Tool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tools {
		_, meta, err := toolDocument(t)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO tools (name, description, schema) VALUES (?, ?, ?)`,
			t.Name, t.Description, meta[metaToolSchema]); err != nil {
			return fmt.Errorf("failed to insert tool %s: %w", t.Name, err)
		}
	}
	return tx.Commit()
}

// RelevantTools ranks tools by keyword hits in name and description.
func (s *SQLiteStore) RelevantTools(ctx context.Context, query string, limit int) ([]mcptypes.Tool, error) {
	words := keywords(query)
	if len(words) == 0 || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, schema FROM tools
		WHERE `+likeClause("name || ' ' || description", len(words))+`
		ORDER BY name
	`, likeArgs(words)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tools: %w", err)
	}
	defer rows.Close()

	type scored struct {
		t     mcptypes.Tool
		score int
	}
	var found []scored
	for rows.Next() {
		var name, description, schema string
		if err := rows.Scan(&name, &description, &schema); err != nil {
			return nil, fmt.Errorf("failed to scan tool: %w", err)
		}
		t, err := toolFromMetadata(map[string]string{metaToolName: name, metaToolSchema: schema})
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping unreadable tool row")
			continue
		}
		found = append(found, scored{t: t, score: countHits(name+" "+description, words)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].score > found[j].score })
	if len(found) > limit {
		found = found[:limit]
	}
	out := make([]mcptypes.Tool, len(found))
	for i, f := range found {
		out[i] = f.t
	}
	return out, nil
}

// Clear deletes the rows of one namespace, or both when namespace is empty.
func (s *SQLiteStore) Clear(ctx context.Context, namespace string) error {
	var stmts []string
	switch namespace {
	case "":
		stmts = []string{"DELETE FROM memories", "DELETE FROM tools"}
	case NamespaceMemories:
		stmts = []string{"DELETE FROM memories"}
	case NamespaceTools:
		stmts = []string{"DELETE FROM tools"}
	default:
		return fmt.Errorf("unknown namespace %q", namespace)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear %s: %w", namespace, err)
		}
	}
	return nil
}

// Stats counts rows per namespace.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: "sqlite", Counts: map[string]int{}}
	for ns, table := range map[string]string{NamespaceMemories: "memories", NamespaceTools: "tools"} {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return Stats{}, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats.Counts[ns] = n
	}
	return stats, nil
}

// PurgeExpired deletes volatile memories that expired before now.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE volatile = 1 AND expires_at IS NOT NULL AND expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge memories: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "what": true,
	"who": true, "how": true, "why": true, "you": true, "your": true, "can": true,
	"does": true, "did": true, "this": true, "that": true, "with": true, "from": true,
	"about": true, "tell": true, "please": true, "have": true, "has": true,
}

// keywords lowercases text and keeps distinct words of three or more
// characters that are not stop words.
func keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool)
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func likeClause(column string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "lower(" + column + ") LIKE ?"
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func likeArgs(words []string) []any {
	args := make([]any, len(words))
	for i, w := range words {
		args[i] = "%" + w + "%"
	}
	return args
}

func countHits(text string, words []string) int {
	lower := strings.ToLower(text)
	hits := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	return hits
}
