package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/config"
	"parley/model"
	"parley/provider/testutil"
	"parley/storage"
)

var testNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

// setup points parley at a fresh data directory and replaces the backend
// with one that answers with replies in order.
func setup(t *testing.T, replies ...model.Reply) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("PARLEY_DATA_DIR", dir)
	t.Setenv("PARLEY_MEMORY_BACKEND", config.MemoryNone)

	orig := newProvider
	newProvider = func(pc config.ProviderConfig) (model.Provider, error) {
		p := testutil.ScriptedProvider(replies...)
		if pc.Model != "" {
			p.SetModel(pc.Model)
		}
		return p, nil
	}
	t.Cleanup(func() { newProvider = orig })
	return dir
}

func run(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(in))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func saveSession(t *testing.T, dir, name string, texts ...string) *storage.Session {
	t.Helper()
	store, err := storage.NewSessionStorage(dir)
	require.NoError(t, err)
	s := storage.NewSession(storage.ProviderSnapshot{ID: "ollama", Model: "llama3"}, testNow)
	s.Name = name
	for i, text := range texts {
		sender := model.SenderUser
		if i%2 == 1 {
			sender = model.SenderAssistant
		}
		s.Append(model.NewMessage(sender, text, testNow))
	}
	require.NoError(t, store.Save(s))
	return s
}

func TestSessionsCommands(t *testing.T) {
	dir := setup(t)

	out, err := run(t, "", "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found.")

	trip := saveSession(t, dir, "Trip planning", "plan a trip to Lyon", "Take the train to Lyon.")
	saveSession(t, dir, "Groceries", "what should I buy", "Apples.")

	out, err = run(t, "", "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, trip.ID)
	assert.Contains(t, out, "Trip planning")
	assert.Contains(t, out, "Groceries")
	assert.Contains(t, out, "ollama/llama3")

	out, err = run(t, "", "sessions", "search", "lyon")
	require.NoError(t, err)
	assert.Contains(t, out, trip.ID)
	assert.NotContains(t, out, "Groceries")

	out, err = run(t, "", "sessions", "search", "zzzz")
	require.NoError(t, err)
	assert.Contains(t, out, `No matches for "zzzz".`)

	out, err = run(t, "", "sessions", "show", trip.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Trip planning\n"), out)
	assert.Contains(t, out, "Take the train to Lyon.")

	_, err = run(t, "", "sessions", "show", "missing")
	assert.ErrorContains(t, err, "not found")

	out, err = run(t, "", "sessions", "rename", trip.ID, "Lyon", "weekend")
	require.NoError(t, err)
	assert.Contains(t, out, "Renamed session "+trip.ID)

	out, err = run(t, "", "sessions", "export", trip.ID)
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Lyon weekend"`)

	file := filepath.Join(dir, "trip.json")
	out, err = run(t, "", "sessions", "export", trip.ID, "-o", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported session")
	assert.FileExists(t, file)

	_, err = run(t, "", "sessions", "export", "missing", "-o", filepath.Join(dir, "none.json"))
	assert.ErrorContains(t, err, "not found")
	assert.NoFileExists(t, filepath.Join(dir, "none.json"))

	out, err = run(t, "", "sessions", "delete", trip.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted session "+trip.ID)

	out, err = run(t, "", "sessions", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, trip.ID)
}

func TestAskPrintsAnswer(t *testing.T) {
	dir := setup(t, model.Reply{Text: "Paris."})

	out, err := run(t, "", "ask", "capital", "of", "France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", strings.TrimSpace(out))

	store, err := storage.NewSessionStorage(dir)
	require.NoError(t, err)
	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].MessageCount)
	assert.Equal(t, "mock", list[0].Provider.ID)
}

func TestAskRunsTools(t *testing.T) {
	setup(t,
		model.Reply{Text: `{"tool": "current_time", "arguments": {"timezone": "UTC"}}`},
		model.Reply{Text: "It is morning."},
	)

	out, err := run(t, "", "ask", "what time is it?")
	require.NoError(t, err)
	assert.Equal(t, "It is morning.", strings.TrimSpace(out))
}

func TestChatREPL(t *testing.T) {
	dir := setup(t, model.Reply{Text: "Hi there!"})

	out, err := run(t, "/help\nhello\n/session\n/bogus\n/new\n/exit\nnever sent\n", "chat", "--model", "tiny")
	require.NoError(t, err)
	assert.Contains(t, out, "mock/tiny")
	assert.Contains(t, out, "/provider ID [MODEL]")
	assert.Contains(t, out, "You\n  hello")
	assert.Contains(t, out, "Assistant\n  Hi there!")
	assert.Contains(t, out, "unknown command /bogus")
	assert.Contains(t, out, "New session")
	assert.NotContains(t, out, "never sent")

	store, err := storage.NewSessionStorage(dir)
	require.NoError(t, err)
	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 1, "the empty session from /new is not saved")
	assert.Equal(t, "hello", list[0].Name)

	current, err := store.LoadCurrentSessionID()
	require.NoError(t, err)
	assert.NotEqual(t, list[0].ID, current)
	locked, err := store.CheckSessionLock(list[0].ID)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestChatResumesSession(t *testing.T) {
	dir := setup(t, model.Reply{Text: "Still Lyon."})
	trip := saveSession(t, dir, "Trip planning", "plan a trip to Lyon", "Take the train to Lyon.")

	out, err := run(t, "where again?\n", "chat", "--session", trip.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Take the train to Lyon.", "history is replayed")
	assert.Contains(t, out, "Still Lyon.")

	store, err := storage.NewSessionStorage(dir)
	require.NoError(t, err)
	s, err := store.Load(trip.ID)
	require.NoError(t, err)
	assert.Len(t, s.Messages, 4)

	_, err = run(t, "", "chat", "--session", "missing")
	assert.ErrorContains(t, err, "session missing not found")
}

func TestChatSwitchesProvider(t *testing.T) {
	setup(t, model.Reply{Text: "ok"})

	out, err := run(t, "/model big\n/provider anthropic small\n/model\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "Using mock/big")
	assert.Contains(t, out, "Using mock/small")
	assert.Contains(t, out, "usage: /model NAME")
}

func TestProvidersUse(t *testing.T) {
	dir := setup(t)

	out, err := run(t, "", "providers", "use", "Anthropic", "--model", "claude-test")
	require.NoError(t, err)
	assert.Contains(t, out, "Default provider is now Anthropic")

	u, err := config.LoadUserConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", u.DefaultProvider)
	var found bool
	for _, p := range u.Providers {
		if p.ID == "anthropic" {
			found = true
			assert.Equal(t, "claude-test", p.Model)
		}
	}
	assert.True(t, found)

	_, err = run(t, "", "providers", "use", "acme")
	assert.ErrorContains(t, err, `unknown provider "acme"`)
}

func TestProvidersSetKey(t *testing.T) {
	dir := setup(t)

	out, err := run(t, "sk-test-123\n", "providers", "set-key", "openai")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored key for openai")

	creds := config.NewCredentialStore(config.SecurityPlainText, "")
	require.NoError(t, creds.Load(dir))
	assert.Equal(t, "sk-test-123", creds.Get("openai"))

	_, err = run(t, "", "providers", "set-key", "openai")
	assert.ErrorContains(t, err, "no key given")

	_, err = run(t, "", "providers", "set-key", "--remove", "openai")
	require.NoError(t, err)
	creds = config.NewCredentialStore(config.SecurityPlainText, "")
	require.NoError(t, creds.Load(dir))
	assert.Empty(t, creds.Get("openai"))
}

func TestProviderIDs(t *testing.T) {
	cfg := &config.Config{
		DefaultProvider: "openai",
		Providers:       []config.ProviderSettings{{ID: "ollama"}, {ID: "anthropic"}},
	}
	assert.Equal(t, []string{"openai", "ollama", "anthropic"}, providerIDs(cfg, false))

	cfg.DefaultProvider = "anthropic"
	assert.Equal(t, []string{"ollama", "anthropic"}, providerIDs(cfg, false))
	assert.Len(t, providerIDs(cfg, true), 5)
}

func TestMemoryCommands(t *testing.T) {
	setup(t)

	_, err := run(t, "", "memory", "status")
	assert.ErrorContains(t, err, "memory is disabled")

	t.Setenv("PARLEY_MEMORY_BACKEND", config.MemorySQLite)

	out, err := run(t, "", "memory", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend: sqlite")
	assert.Contains(t, out, "memories")

	out, err = run(t, "", "memory", "search", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, `No memories for "anything".`)

	out, err = run(t, "", "memory", "clear", "--expired")
	require.NoError(t, err)
	assert.Contains(t, out, "Dropped 0 expired memories")

	out, err = run(t, "", "memory", "clear", "--namespace", "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared tools")

	_, err = run(t, "", "memory", "clear", "--namespace", "other")
	assert.ErrorContains(t, err, `unknown namespace "other"`)
}
