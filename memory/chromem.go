package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"
)

// ChromemStore keeps memories and tool descriptions in two chromem-go
// collections.
type ChromemStore struct {
	mu       sync.RWMutex
	db       *chromem.DB
	embed    chromem.EmbeddingFunc
	minScore float32
	memories *chromem.Collection
	tools    *chromem.Collection
	logger   zerolog.Logger
}

// OpenChromemStore opens (or creates) a persistent vector DB at dir.
func OpenChromemStore(dir string, embed chromem.EmbeddingFunc, minScore float32, logger zerolog.Logger) (*ChromemStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	return NewChromemStore(db, embed, minScore, logger)
}

// NewChromemStore wraps an existing DB. Tests pass chromem.NewDB().
func NewChromemStore(db *chromem.DB, embed chromem.EmbeddingFunc, minScore float32, logger zerolog.Logger) (*ChromemStore, error) {
	s := &ChromemStore{
		db:       db,
		embed:    embed,
		minScore: minScore,
		logger:   logger.With().Str("component", "memory.chromem").Logger(),
	}
	if err := s.openCollections(); err != nil {
		return nil, err
	}
	s.logger.Debug().
		Int("memories", s.memories.Count()).
		Int("tools", s.tools.Count()).
		Msg("vector store initialized")
	return s, nil
}

func (s *ChromemStore) openCollections() error {
	memories, err := s.db.GetOrCreateCollection(NamespaceMemories, nil, s.embed)
	if err != nil {
		return fmt.Errorf("create %s collection: %w", NamespaceMemories, err)
	}
	tools, err := s.db.GetOrCreateCollection(NamespaceTools, nil, s.embed)
	if err != nil {
		return fmt.Errorf("create %s collection: %w", NamespaceTools, err)
	}
	s.memories = memories
	s.tools = tools
	return nil
}

// IndexMemory embeds and stores m.
func (s *ChromemStore) IndexMemory(ctx context.Context, m Memory) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := chromem.Document{
		ID:       m.ID,
		Content:  m.Text,
		Metadata: memoryMetadata(m),
	}
	if err := s.memories.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index memory: %w", err)
	}
	s.logger.Debug().Str("id", m.ID).Str("importance", m.Importance.String()).Msg("indexed memory")
	return nil
}

// RelevantMemories returns up to limit memories similar to query.
func (s *ChromemStore) RelevantMemories(ctx context.Context, query string, limit int) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := s.query(ctx, s.memories, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	out := make([]Memory, 0, len(results))
	for _, r := range results {
		out = append(out, memoryFromMetadata(r.ID, r.Content, r.Metadata))
	}
	return out, nil
}

// IndexTools stores one document per tool, replacing earlier versions.
func (s *ChromemStore) IndexTools(ctx context.Context, tools []mcptypes.Tool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]chromem.Document, 0, len(tools))
	for _, t := range tools {
		text, meta, err := toolDocument(t)
		if err != nil {
			return err
		}
		docs = append(docs, chromem.Document{ID: toolDocumentID(t.Name), Content: text, Metadata: meta})
	}
	if len(docs) == 0 {
		return nil
	}
	if err := s.tools.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("index tools: %w", err)
	}
	return nil
}

// RelevantTools returns up to limit tool schemas similar to query.
func (s *ChromemStore) RelevantTools(ctx context.Context, query string, limit int) ([]mcptypes.Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := s.query(ctx, s.tools, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search tools: %w", err)
	}
	out := make([]mcptypes.Tool, 0, len(results))
	for _, r := range results {
		t, err := toolFromMetadata(r.Metadata)
		if err != nil {
			s.logger.Warn().Err(err).Str("id", r.ID).Msg("skipping unreadable tool document")
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// query runs a similarity search. chromem rejects nResults above the
// collection size, so limit is clamped.
func (s *ChromemStore) query(ctx context.Context, c *chromem.Collection, query string, limit int) ([]chromem.Result, error) {
	count := c.Count()
	if count == 0 || limit <= 0 || query == "" {
		return nil, nil
	}
	if limit > count {
		limit = count
	}
	results, err := c.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, err
	}
	filtered := results[:0]
	for _, r := range results {
		if r.Similarity >= s.minScore {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// Clear empties one namespace, or both when namespace is empty.
func (s *ChromemStore) Clear(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	switch namespace {
	case "":
		names = []string{NamespaceMemories, NamespaceTools}
	case NamespaceMemories, NamespaceTools:
		names = []string{namespace}
	default:
		return fmt.Errorf("unknown namespace %q", namespace)
	}
	for _, name := range names {
		if err := s.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("clear %s: %w", name, err)
		}
	}
	return s.openCollections()
}

// Stats reports document counts.
func (s *ChromemStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Backend: "chromem",
		Counts: map[string]int{
			NamespaceMemories: s.memories.Count(),
			NamespaceTools:    s.tools.Count(),
		},
	}, nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error { return nil }
