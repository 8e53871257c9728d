// Package vectorsvc serves the vector memory HTTP API used by
// memory.RemoteStore. Documents live in chromem-go collections, one per
// namespace.
package vectorsvc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"

	"parley/memory"
)

// Defaults applied to search requests that leave fields out.
const (
	DefaultTopK     = 3
	DefaultMinScore = 0.1
)

var DefaultNamespaces = []string{memory.NamespaceTools}

// Metadata keys of stored documents.
const (
	metaOriginalID = "original_id"
	metaContext    = "context"
)

var (
	ErrMissingFields = errors.New("missing required fields: documents and namespace")
	ErrNoDocuments   = errors.New("no valid points to index")
	ErrEmptyQuery    = errors.New("query is required")
)

// Service owns the collections. It is safe for concurrent use.
type Service struct {
	mu     sync.RWMutex
	db     *chromem.DB
	embed  chromem.EmbeddingFunc
	model  string
	logger zerolog.Logger
}

// New creates a service over db. model is only reported by /status.
func New(db *chromem.DB, embed chromem.EmbeddingFunc, model string, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		embed:  embed,
		model:  model,
		logger: logger.With().Str("component", "vectorsvc").Logger(),
	}
}

// DocumentID maps a caller id to the stable id stored in the collection.
func DocumentID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(id)).String()
}

// Index embeds and upserts documents into namespace. Documents without an
// id or text are skipped; an error is returned when none remain.
func (s *Service) Index(ctx context.Context, req memory.IndexRequest) (int, error) {
	if req.Namespace == "" || req.Documents == nil {
		return 0, ErrMissingFields
	}

	docs := make([]chromem.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		if d.ID == "" || d.Text == "" {
			s.logger.Warn().Str("id", d.ID).Msg("skipping document without id or text")
			continue
		}
		docs = append(docs, chromem.Document{
			ID:       DocumentID(d.ID),
			Content:  d.Text,
			Metadata: map[string]string{metaOriginalID: d.ID, metaContext: d.Context},
		})
	}
	if len(docs) == 0 {
		return 0, ErrNoDocuments
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.db.GetOrCreateCollection(req.Namespace, nil, s.embed)
	if err != nil {
		return 0, fmt.Errorf("open namespace %s: %w", req.Namespace, err)
	}
	// chromem replaces documents with an existing id
	if err := c.AddDocuments(ctx, docs, 1); err != nil {
		return 0, fmt.Errorf("index into %s: %w", req.Namespace, err)
	}
	s.logger.Info().Str("namespace", req.Namespace).Int("count", len(docs)).Msg("documents indexed")
	return len(docs), nil
}

// Search queries every requested namespace, merges the hits and keeps the
// TopK best. Unknown namespaces contribute nothing.
func (s *Service) Search(ctx context.Context, req memory.SearchRequest) (memory.SearchResponse, error) {
	resp := memory.SearchResponse{Query: req.Query, Results: []memory.SearchResult{}}
	if req.Query == "" {
		return resp, ErrEmptyQuery
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	namespaces := req.Namespaces
	if len(namespaces) == 0 {
		namespaces = DefaultNamespaces
	}
	minScore := DefaultMinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ns := range namespaces {
		c := s.db.GetCollection(ns, s.embed)
		if c == nil || c.Count() == 0 {
			continue
		}
		n := topK
		if count := c.Count(); n > count {
			n = count
		}
		hits, err := c.Query(ctx, req.Query, n, nil, nil)
		if err != nil {
			if ctx.Err() != nil {
				return resp, ctx.Err()
			}
			s.logger.Error().Err(err).Str("namespace", ns).Msg("search failed")
			continue
		}
		for _, h := range hits {
			if float64(h.Similarity) < minScore {
				continue
			}
			resp.Results = append(resp.Results, memory.SearchResult{
				ID:        h.Metadata[metaOriginalID],
				Score:     float64(h.Similarity),
				Text:      h.Content,
				Context:   h.Metadata[metaContext],
				Namespace: ns,
			})
		}
	}

	sort.SliceStable(resp.Results, func(i, j int) bool {
		return resp.Results[i].Score > resp.Results[j].Score
	})
	if len(resp.Results) > topK {
		resp.Results = resp.Results[:topK]
	}
	return resp, nil
}

// Clear drops one namespace.
func (s *Service) Clear(namespace string) error {
	if namespace == "" {
		return errors.New("no namespace provided")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(namespace); err != nil {
		return fmt.Errorf("clear %s: %w", namespace, err)
	}
	s.logger.Info().Str("namespace", namespace).Msg("namespace cleared")
	return nil
}

// Reset drops every namespace.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Reset(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	s.logger.Info().Msg("all namespaces cleared")
	return nil
}

// Health reports liveness.
func (s *Service) Health() memory.HealthResponse {
	return memory.HealthResponse{Status: "healthy", ModelLoaded: s.embed != nil}
}

// Status lists namespaces and their document counts.
func (s *Service) Status() memory.StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := "ok"
	if s.embed == nil {
		status = "model_loading_failed"
	}
	resp := memory.StatusResponse{
		Status:         status,
		Model:          s.model,
		Namespaces:     []string{},
		DocumentCounts: map[string]int{},
	}
	for name, c := range s.db.ListCollections() {
		resp.Namespaces = append(resp.Namespaces, name)
		resp.DocumentCounts[name] = c.Count()
	}
	sort.Strings(resp.Namespaces)
	return resp
}

// counts returns the document count per namespace, for the gauge.
func (s *Service) counts() map[string]int {
	return s.Status().DocumentCounts
}
