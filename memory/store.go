package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Namespaces used by every store.
const (
	NamespaceMemories = "memories"
	NamespaceTools    = "tools"
)

// Store persists memories and tool descriptions and retrieves them by
// relevance to a query. Results are sorted most relevant first. Stores
// return expired memories too; callers filter with Partition.
type Store interface {
	IndexMemory(ctx context.Context, m Memory) error
	RelevantMemories(ctx context.Context, query string, limit int) ([]Memory, error)
	IndexTools(ctx context.Context, tools []mcptypes.Tool) error
	RelevantTools(ctx context.Context, query string, limit int) ([]mcptypes.Tool, error)
	Clear(ctx context.Context, namespace string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Stats summarizes a store.
type Stats struct {
	Backend string         `json:"backend"`
	Counts  map[string]int `json:"counts"`
}

// Metadata keys shared by the vector-backed stores.
const (
	metaType       = "type"
	metaImportance = "importance"
	metaVolatile   = "volatile"
	metaCreatedAt  = "created_at"
	metaExpiresAt  = "expires_at"
	metaTags       = "tags"
	metaToolName   = "name"
	metaToolSchema = "schema"
)

// memoryMetadata flattens a memory's attributes into string metadata.
func memoryMetadata(m Memory) map[string]string {
	meta := map[string]string{
		metaType:       m.Type,
		metaImportance: m.Importance.String(),
		metaVolatile:   strconv.FormatBool(m.Volatile),
		metaCreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339Nano),
		metaTags:       strings.Join(m.Tags, ","),
	}
	if m.ExpiresAt != nil {
		meta[metaExpiresAt] = m.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	return meta
}

// memoryFromMetadata rebuilds a memory from stored text and metadata.
// Unparsable fields fall back to zero values.
func memoryFromMetadata(id, text string, meta map[string]string) Memory {
	m := Memory{ID: id, Text: text, Type: meta[metaType]}
	m.Importance, _ = ParseImportance(meta[metaImportance])
	m.Volatile, _ = strconv.ParseBool(meta[metaVolatile])
	if t, err := time.Parse(time.RFC3339Nano, meta[metaCreatedAt]); err == nil {
		m.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, meta[metaExpiresAt]); err == nil {
		m.ExpiresAt = &t
	}
	if m.Volatile && m.ExpiresAt == nil {
		// volatile without expiry violates the memory invariant; keep it permanent
		m.Volatile = false
	}
	if tags := meta[metaTags]; tags != "" {
		m.Tags = strings.Split(tags, ",")
	}
	return m
}

// toolDocument returns the searchable text and metadata for a tool.
func toolDocument(t mcptypes.Tool) (string, map[string]string, error) {
	schema, err := json.Marshal(t)
	if err != nil {
		return "", nil, fmt.Errorf("marshal tool %s: %w", t.Name, err)
	}
	text := t.Name
	if t.Description != "" {
		text = t.Name + ": " + t.Description
	}
	return text, map[string]string{metaToolName: t.Name, metaToolSchema: string(schema)}, nil
}

func toolFromMetadata(meta map[string]string) (mcptypes.Tool, error) {
	var t mcptypes.Tool
	if err := json.Unmarshal([]byte(meta[metaToolSchema]), &t); err != nil {
		return mcptypes.Tool{}, fmt.Errorf("decode tool %s: %w", meta[metaToolName], err)
	}
	return t, nil
}

func toolDocumentID(name string) string {
	return "tool:" + name
}
