package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/config"
	"parley/model"
	"parley/provider/testutil"
)

// fakeOllama serves /api/chat with a canned NDJSON stream and /api/tags
// with one model. It records the last chat request.
type fakeOllama struct {
	mu       sync.Mutex
	lines    []string
	status   int
	lastChat api.ChatRequest
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&f.lastChat)
		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"error":"model is overloaded"}`))
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range f.lines {
			_, _ = w.Write([]byte(line + "\n"))
		}
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1:latest","model":"llama3.1:latest","size":4920753328}]}`))
	})
	return mux
}

func (f *fakeOllama) request() api.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastChat
}

func newFakeOllama(t *testing.T, lines ...string) (*fakeOllama, *OllamaProvider) {
	t.Helper()
	fake := &fakeOllama{lines: lines}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	p, err := NewOllamaProvider(srv.URL, "llama3.1:latest")
	require.NoError(t, err)
	return fake, p
}

func TestOllamaRequestStreamsText(t *testing.T) {
	fake, p := newFakeOllama(t,
		`{"model":"llama3.1:latest","message":{"role":"assistant","content":"Hel"},"done":false}`,
		`{"model":"llama3.1:latest","message":{"role":"assistant","content":"lo!"},"done":false}`,
		`{"model":"llama3.1:latest","message":{"role":"assistant","content":""},"done":true}`,
	)

	var chunks []string
	reply, err := p.Request(context.Background(), model.Request{
		Prompt:  testutil.TestPrompt(),
		Options: model.Options{Temperature: 0.3, MaxOutputTokens: 256},
		OnChunk: func(chunk string, _ []model.ToolCall) error {
			chunks = append(chunks, chunk)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply.Text)
	assert.Empty(t, reply.Calls)
	assert.Equal(t, []string{"Hel", "lo!"}, chunks)

	sent := fake.request()
	assert.Equal(t, "llama3.1:latest", sent.Model)
	require.Len(t, sent.Messages, 4)
	assert.Equal(t, "system", sent.Messages[0].Role)
	assert.InDelta(t, 0.3, sent.Options["temperature"], 1e-9)
	assert.InDelta(t, 256, sent.Options["num_predict"], 1e-9)
	assert.Empty(t, sent.Tools, "tools are not sent natively unless asked")
}

func TestOllamaRequestNativeTools(t *testing.T) {
	fake, p := newFakeOllama(t,
		`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"get_weather","arguments":{"location":"Paris"}}}]},"done":true}`,
	)

	reply, err := p.Request(context.Background(), model.Request{
		Prompt:  testutil.SingleUserPrompt("weather in Paris?"),
		Tools:   testutil.TestMCPTools(),
		Options: model.Options{NativeTools: true},
	})
	require.NoError(t, err)
	require.Len(t, reply.Calls, 1)
	assert.Equal(t, "get_weather", reply.Calls[0].Name)
	assert.Equal(t, "Paris", reply.Calls[0].Arguments["location"])
	assert.Len(t, fake.request().Tools, 2)

	p.SetModel("gemma2:9b")
	_, _ = p.Request(context.Background(), model.Request{
		Prompt:  testutil.SingleUserPrompt("weather in Paris?"),
		Tools:   testutil.TestMCPTools(),
		Options: model.Options{NativeTools: true},
	})
	assert.Empty(t, fake.request().Tools, "models without tool support get text instructions only")
}

func TestOllamaRequestErrors(t *testing.T) {
	t.Run("empty reply is a protocol error", func(t *testing.T) {
		_, p := newFakeOllama(t, `{"message":{"role":"assistant","content":"  "},"done":true}`)
		_, err := p.Request(context.Background(), model.Request{Prompt: testutil.SingleUserPrompt("hi")})
		var protoErr *ProtocolError
		assert.ErrorAs(t, err, &protoErr)
	})

	t.Run("error status is a backend error", func(t *testing.T) {
		fake, p := newFakeOllama(t)
		fake.status = http.StatusServiceUnavailable
		_, err := p.Request(context.Background(), model.Request{Prompt: testutil.SingleUserPrompt("hi")})
		var backendErr *BackendError
		require.ErrorAs(t, err, &backendErr)
		assert.Equal(t, http.StatusServiceUnavailable, backendErr.Status)
	})

	t.Run("unreachable server is a backend error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		p, err := NewOllamaProvider(url, "")
		require.NoError(t, err)
		err = p.Ping(context.Background())
		var backendErr *BackendError
		require.ErrorAs(t, err, &backendErr)
		assert.Zero(t, backendErr.Status)
	})

	t.Run("callback error stops the stream", func(t *testing.T) {
		_, p := newFakeOllama(t, `{"message":{"role":"assistant","content":"x"},"done":true}`)
		stop := errors.New("stop")
		_, err := p.Request(context.Background(), model.Request{
			Prompt:  testutil.SingleUserPrompt("hi"),
			OnChunk: func(string, []model.ToolCall) error { return stop },
		})
		assert.ErrorIs(t, err, stop)
	})
}

func TestOllamaListModels(t *testing.T) {
	_, p := newFakeOllama(t)
	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, model.ModelInfo{
		Name:         "llama3.1:latest",
		InternalName: "llama3.1:latest",
		Size:         4920753328,
		Provider:     "ollama",
	}, models[0])
	assert.NoError(t, p.Ping(context.Background()))
}

func TestCheckProviders(t *testing.T) {
	fake := &fakeOllama{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	u := config.DefaultUserConfig()
	u.Providers = []config.ProviderSettings{
		{ID: "ollama", BaseURL: srv.URL},
		{ID: "openai"},
	}
	cfg, err := config.Resolve(t.TempDir(), u, config.EnvOverrides{})
	require.NoError(t, err)

	results := CheckProviders(context.Background(), cfg, []string{"ollama", "openai", "nope"}, zerolog.Nop())
	require.Len(t, results, 3)

	assert.Equal(t, "ollama", results[0].ProviderID)
	assert.True(t, results[0].Valid)
	assert.NoError(t, results[0].Err)
	assert.Len(t, results[0].Models, 1)

	assert.False(t, results[1].Valid)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, results[1].Err, &cfgErr)

	assert.False(t, results[2].Valid)
	assert.True(t, strings.Contains(results[2].Err.Error(), "unknown provider"))

	providers := InitializeProviders(cfg, zerolog.Nop())
	assert.Contains(t, providers, "ollama")
	assert.NotContains(t, providers, "openai")
}
