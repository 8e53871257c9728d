package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// DefaultServiceURL is where `parley serve-memory` listens by default.
const DefaultServiceURL = "http://127.0.0.1:5000"

// RemoteStore talks to a vector memory service over HTTP.
type RemoteStore struct {
	baseURL  string
	minScore float64
	client   *http.Client
	logger   zerolog.Logger
}

// RemoteConfig configures a RemoteStore.
type RemoteConfig struct {
	BaseURL  string
	MinScore float64
	Timeout  time.Duration
}

// NewRemoteStore creates a client for the service at cfg.BaseURL.
func NewRemoteStore(cfg RemoteConfig, logger zerolog.Logger) *RemoteStore {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultServiceURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &RemoteStore{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		minScore: cfg.MinScore,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger.With().Str("component", "memory.remote").Logger(),
	}
}

// IndexMemory indexes m into the memories namespace. The memory attributes
// travel as JSON in the document context.
func (s *RemoteStore) IndexMemory(ctx context.Context, m Memory) error {
	meta, err := json.Marshal(memoryMetadata(m))
	if err != nil {
		return fmt.Errorf("marshal memory metadata: %w", err)
	}
	req := IndexRequest{
		Namespace: NamespaceMemories,
		Documents: []Document{{ID: m.ID, Text: m.Text, Context: string(meta)}},
	}
	var resp IndexResponse
	if err := s.post(ctx, "/index", req, &resp); err != nil {
		return fmt.Errorf("index memory: %w", err)
	}
	return nil
}

// RelevantMemories searches the memories namespace.
func (s *RemoteStore) RelevantMemories(ctx context.Context, query string, limit int) ([]Memory, error) {
	results, err := s.search(ctx, query, limit, NamespaceMemories)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	out := make([]Memory, 0, len(results))
	for _, r := range results {
		meta := map[string]string{}
		if r.Context != "" {
			if err := json.Unmarshal([]byte(r.Context), &meta); err != nil {
				s.logger.Debug().Err(err).Str("id", r.ID).Msg("memory context is not metadata")
			}
		}
		out = append(out, memoryFromMetadata(r.ID, r.Text, meta))
	}
	return out, nil
}

// IndexTools indexes tool schemas into the tools namespace.
func (s *RemoteStore) IndexTools(ctx context.Context, tools []mcptypes.Tool) error {
	if len(tools) == 0 {
		return nil
	}
	req := IndexRequest{Namespace: NamespaceTools}
	for _, t := range tools {
		text, meta, err := toolDocument(t)
		if err != nil {
			return err
		}
		req.Documents = append(req.Documents, Document{ID: toolDocumentID(t.Name), Text: text, Context: meta[metaToolSchema]})
	}
	var resp IndexResponse
	if err := s.post(ctx, "/index", req, &resp); err != nil {
		return fmt.Errorf("index tools: %w", err)
	}
	return nil
}

// RelevantTools searches the tools namespace.
func (s *RemoteStore) RelevantTools(ctx context.Context, query string, limit int) ([]mcptypes.Tool, error) {
	results, err := s.search(ctx, query, limit, NamespaceTools)
	if err != nil {
		return nil, fmt.Errorf("search tools: %w", err)
	}
	out := make([]mcptypes.Tool, 0, len(results))
	for _, r := range results {
		t, err := toolFromMetadata(map[string]string{metaToolName: r.ID, metaToolSchema: r.Context})
		if err != nil {
			s.logger.Warn().Err(err).Str("id", r.ID).Msg("skipping unreadable tool document")
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Clear empties a namespace on the service, or resets it when namespace is empty.
func (s *RemoteStore) Clear(ctx context.Context, namespace string) error {
	if namespace == "" {
		return s.post(ctx, "/reset", struct{}{}, nil)
	}
	return s.post(ctx, "/clear", ClearRequest{Namespace: namespace}, nil)
}

// Stats reads /status.
func (s *RemoteStore) Stats(ctx context.Context) (Stats, error) {
	status, err := s.Status(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Backend: "remote " + s.baseURL, Counts: status.DocumentCounts}, nil
}

// Health reads /health.
func (s *RemoteStore) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := s.get(ctx, "/health", &resp)
	return resp, err
}

// Status reads /status.
func (s *RemoteStore) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := s.get(ctx, "/status", &resp)
	return resp, err
}

func (s *RemoteStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *RemoteStore) search(ctx context.Context, query string, limit int, namespace string) ([]SearchResult, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}
	minScore := s.minScore
	req := SearchRequest{Query: query, TopK: limit, Namespaces: []string{namespace}, MinScore: &minScore}
	var resp SearchResponse
	if err := s.post(ctx, "/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (s *RemoteStore) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *RemoteStore) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return s.do(req, out)
}

func (s *RemoteStore) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var e ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("memory service returned status %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("memory service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
