package tool

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/config"
)

func echoTool(name string) Tool {
	return Func{
		Def: mcptypes.NewTool(name, mcptypes.WithDescription("echo")),
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			return args, nil
		},
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("b"), echoTool("a")))
	assert.Equal(t, 2, r.Len())

	assert.Error(t, r.Register(echoTool("a")), "duplicate names are rejected")
	assert.Error(t, r.Register(echoTool("")))

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Name)
	assert.Equal(t, "b", defs[1].Name)

	sel := r.Select([]string{"b", "missing", "b", "a"})
	require.Len(t, sel, 2)
	assert.Equal(t, "b", sel[0].Name)
	assert.Equal(t, "a", sel[1].Name)

	got, err := r.Execute(context.Background(), "a", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, got)

	_, err = r.Execute(context.Background(), "zzz", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

type fakeCaller struct {
	name string
	args map[string]any
}

func (f *fakeCaller) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	f.name, f.args = name, args
	return "called", nil
}

func TestRemote(t *testing.T) {
	caller := &fakeCaller{}
	tools := Remote(caller, []mcptypes.Tool{mcptypes.NewTool("files.read")})
	require.Len(t, tools, 1)

	r := NewRegistry()
	require.NoError(t, r.Register(tools...))
	got, err := r.Execute(context.Background(), "files.read", map[string]any{"path": "/tmp"})
	require.NoError(t, err)
	assert.Equal(t, "called", got)
	assert.Equal(t, "files.read", caller.name)
	assert.Equal(t, "/tmp", caller.args["path"])
}

func TestBuiltins(t *testing.T) {
	all := Builtins(config.BuiltinToolsConfig{FetchURL: true, CurrentTime: true, SetPreference: true}, NewPreferences())
	names := make([]string, 0, len(all))
	for _, tl := range all {
		names = append(names, tl.Definition().Name)
	}
	assert.Equal(t, []string{FetchURLName, CurrentTimeName, SetPreferenceName}, names)

	assert.Empty(t, Builtins(config.BuiltinToolsConfig{}, nil))
	assert.Len(t, Builtins(config.BuiltinToolsConfig{SetPreference: true}, nil), 0, "set_preference needs a store")
}

func TestCurrentTime(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ct := CurrentTime(func() time.Time { return fixed })

	got, err := ct.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	out := got.(map[string]any)
	assert.Equal(t, "2026-03-01T12:00:00Z", out["time"])
	assert.Equal(t, "Sunday", out["weekday"])

	got, err = ct.Execute(context.Background(), map[string]any{"timezone": "Asia/Tokyo"})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T21:00:00+09:00", got.(map[string]any)["time"])

	_, err = ct.Execute(context.Background(), map[string]any{"timezone": "Mars/Olympus"})
	assert.Error(t, err)
}

func TestSetPreference(t *testing.T) {
	prefs := NewPreferences()
	sp := SetPreference(prefs)
	ctx := context.Background()

	assert.Empty(t, prefs.Format())

	got, err := sp.Execute(ctx, map[string]any{"key": "units", "value": "metric"})
	require.NoError(t, err)
	assert.Equal(t, "preference units set to metric", got)

	got, err = sp.Execute(ctx, map[string]any{"key": "units", "value": "imperial"})
	require.NoError(t, err)
	assert.Equal(t, "preference units changed from metric to imperial", got)

	_, err = sp.Execute(ctx, map[string]any{"key": "tone", "value": "brief"})
	require.NoError(t, err)
	assert.Equal(t, "User preferences for this session:\n- tone: brief\n- units: imperial", prefs.Format())

	_, err = sp.Execute(ctx, map[string]any{"value": "x"})
	assert.Error(t, err)
	_, err = sp.Execute(ctx, map[string]any{"key": "x"})
	assert.Error(t, err)

	snap := prefs.Snapshot()
	assert.Equal(t, map[string]string{"tone": "brief", "units": "imperial"}, snap)
	prefs.Replace(map[string]string{"lang": "fr"})
	_, ok := prefs.Get("units")
	assert.False(t, ok)
	v, _ := prefs.Get("lang")
	assert.Equal(t, "fr", v)

	prefs.Reset()
	assert.Nil(t, prefs.Snapshot())
}

func TestFetcher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title> Weather </title><script>var x=1;</script></head>
<body><nav>menu</nav><h1>Paris</h1><p>Sunny,   22 degrees.</p><ul><li>Wind: low</li></ul></body></html>`))
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f := NewFetcher(srv.Client(), 0)
	ctx := context.Background()

	t.Run("html is reduced to text", func(t *testing.T) {
		got, err := f.Execute(ctx, map[string]any{"url": srv.URL + "/page"})
		require.NoError(t, err)
		res := got.(*FetchResult)
		assert.Equal(t, "Weather", res.Title)
		assert.Contains(t, res.Content, "Paris")
		assert.Contains(t, res.Content, "Sunny, 22 degrees.")
		assert.NotContains(t, res.Content, "menu")
		assert.NotContains(t, res.Content, "var x")
	})

	t.Run("body is bounded", func(t *testing.T) {
		res, err := NewFetcher(srv.Client(), 10).Fetch(ctx, srv.URL+"/big")
		require.NoError(t, err)
		assert.True(t, res.Truncated)
		assert.Len(t, res.Content, 10)
	})

	t.Run("error status", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/missing")
		assert.Error(t, err)
	})

	t.Run("url required", func(t *testing.T) {
		_, err := f.Execute(ctx, map[string]any{})
		assert.Error(t, err)
	})

	t.Run("context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := f.Fetch(cctx, srv.URL+"/page")
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
