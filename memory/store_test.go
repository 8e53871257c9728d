package memory

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordEmbedding hashes words into a small normalized vector so that texts
// sharing words are similar. Good enough to exercise the stores offline.
func wordEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 64)
	for _, w := range keywords(text) {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%64]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

func testTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		mcptypes.NewTool("web_search",
			mcptypes.WithDescription("Search the web for current weather, news and facts"),
			mcptypes.WithString("query", mcptypes.Required()),
		),
		mcptypes.NewTool("set_preference",
			mcptypes.WithDescription("Store a user preference such as volume or theme"),
			mcptypes.WithString("key", mcptypes.Required()),
			mcptypes.WithString("value", mcptypes.Required()),
		),
	}
}

func storeContract(t *testing.T, store Store) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	name := New("User: my name is Alex\nAssistant: Nice to meet you Alex", ImportanceHigh, 0, now)
	trip := New("User: weekend trip ideas near the coast\nAssistant: a fishing village", ImportanceLow, 6*time.Hour, now)
	require.NoError(t, store.IndexMemory(ctx, name))
	require.NoError(t, store.IndexMemory(ctx, trip))

	mems, err := store.RelevantMemories(ctx, "what is my name, Alex?", 5)
	require.NoError(t, err)
	require.NotEmpty(t, mems)
	assert.Equal(t, name.ID, mems[0].ID)
	assert.Equal(t, ImportanceHigh, mems[0].Importance)

	mems, err = store.RelevantMemories(ctx, "coast trip", 1)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	got := mems[0]
	assert.Equal(t, trip.ID, got.ID)
	assert.True(t, got.Volatile)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(*trip.ExpiresAt))

	require.NoError(t, store.IndexTools(ctx, testTools()))
	tools, err := store.RelevantTools(ctx, "search the weather", 1)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "web_search", tools[0].Name)
	assert.Contains(t, tools[0].InputSchema.Properties, "query")

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Counts[NamespaceMemories])
	assert.Equal(t, 2, stats.Counts[NamespaceTools])

	require.NoError(t, store.Clear(ctx, NamespaceMemories))
	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Counts[NamespaceMemories])
	assert.Equal(t, 2, stats.Counts[NamespaceTools])

	assert.Error(t, store.Clear(ctx, "bogus"))
	require.NoError(t, store.Close())
}

func TestSQLiteStore(t *testing.T) {
	store, err := openSQLite(":memory:", zerolog.Nop())
	require.NoError(t, err)
	storeContract(t, store)
}

func TestSQLitePurgeExpired(t *testing.T) {
	store, err := openSQLite(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.IndexMemory(ctx, New("old chat about trains", ImportanceLow, time.Hour, now.Add(-2*time.Hour))))
	require.NoError(t, store.IndexMemory(ctx, New("fact about trains", ImportanceHigh, 0, now.Add(-2*time.Hour))))

	n, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mems, err := store.RelevantMemories(ctx, "trains", 10)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "fact about trains", mems[0].Text)
}

func TestChromemStore(t *testing.T) {
	store, err := NewChromemStore(chromem.NewDB(), wordEmbedding, 0, zerolog.Nop())
	require.NoError(t, err)
	storeContract(t, store)
}

func TestChromemStoreEmpty(t *testing.T) {
	store, err := NewChromemStore(chromem.NewDB(), wordEmbedding, 0, zerolog.Nop())
	require.NoError(t, err)

	mems, err := store.RelevantMemories(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, mems)
}

// fakeService is a minimal in-memory stand-in for the vector service that
// ranks by keyword hits.
type fakeService struct {
	mu   sync.Mutex
	docs map[string][]Document
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /index", func(w http.ResponseWriter, r *http.Request) {
		var req IndexRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Namespace == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(ErrorResponse{Error: "Missing namespace or documents"})
			return
		}
		f.mu.Lock()
		f.docs[req.Namespace] = append(f.docs[req.Namespace], req.Documents...)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(IndexResponse{Status: "success", Count: len(req.Documents)})
	})
	mux.HandleFunc("POST /search", func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		resp := SearchResponse{Query: req.Query}
		for _, ns := range req.Namespaces {
			for _, d := range f.docs[ns] {
				if hits := countHits(d.Text, keywords(req.Query)); hits > 0 {
					resp.Results = append(resp.Results, SearchResult{ID: d.ID, Score: float64(hits), Text: d.Text, Context: d.Context, Namespace: ns})
				}
			}
		}
		if len(resp.Results) > req.TopK {
			resp.Results = resp.Results[:req.TopK]
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST /clear", func(w http.ResponseWriter, r *http.Request) {
		var req ClearRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Namespace == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(ErrorResponse{Error: "Missing namespace"})
			return
		}
		f.mu.Lock()
		delete(f.docs, req.Namespace)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		resp := StatusResponse{Status: "running", Model: "fake", DocumentCounts: map[string]int{}}
		for ns, docs := range f.docs {
			resp.Namespaces = append(resp.Namespaces, ns)
			resp.DocumentCounts[ns] = len(docs)
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthResponse{Status: "healthy", ModelLoaded: true})
	})
	return mux
}

func TestRemoteStore(t *testing.T) {
	svc := &fakeService{docs: map[string][]Document{}}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	store := NewRemoteStore(RemoteConfig{BaseURL: srv.URL + "/"}, zerolog.Nop())
	ctx := context.Background()

	health, err := store.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := New("User: I live in Lisbon\nAssistant: Lovely city", ImportanceHigh, 0, now)
	m.Tags = []string{"auto", "personal_fact"}
	require.NoError(t, store.IndexMemory(ctx, m))

	mems, err := store.RelevantMemories(ctx, "Lisbon", 3)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, m.ID, mems[0].ID)
	assert.Equal(t, ImportanceHigh, mems[0].Importance)
	assert.Equal(t, []string{"auto", "personal_fact"}, mems[0].Tags)
	assert.True(t, mems[0].CreatedAt.Equal(now))

	require.NoError(t, store.IndexTools(ctx, testTools()))
	tools, err := store.RelevantTools(ctx, "preference volume", 3)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "set_preference", tools[0].Name)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Counts[NamespaceMemories])
	assert.True(t, strings.HasPrefix(stats.Backend, "remote "))

	require.NoError(t, store.Clear(ctx, NamespaceTools))
	err = store.Clear(ctx, "")
	require.Error(t, err, "fake service has no /reset")
}

func TestRemoteStoreErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "Missing namespace"})
	}))
	defer srv.Close()

	store := NewRemoteStore(RemoteConfig{BaseURL: srv.URL}, zerolog.Nop())
	err := store.IndexMemory(context.Background(), New("x", ImportanceLow, 0, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400: Missing namespace")
}
