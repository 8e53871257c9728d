package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"parley/config"
)

const (
	CurrentTimeName   = "current_time"
	SetPreferenceName = "set_preference"
)

// Builtins returns the enabled built-in tools. prefs backs set_preference
// and may be shared with the prompt builder.
func Builtins(cfg config.BuiltinToolsConfig, prefs *Preferences) []Tool {
	var tools []Tool
	if cfg.FetchURL {
		tools = append(tools, NewFetcher(nil, cfg.FetchMaxBytes))
	}
	if cfg.CurrentTime {
		tools = append(tools, CurrentTime(time.Now))
	}
	if cfg.SetPreference && prefs != nil {
		tools = append(tools, SetPreference(prefs))
	}
	return tools
}

// CurrentTime reports the time from now in an optional IANA zone.
func CurrentTime(now func() time.Time) Tool {
	return Func{
		Def: mcptypes.NewTool(CurrentTimeName,
			mcptypes.WithDescription("Get the current date and time"),
			mcptypes.WithString("timezone",
				mcptypes.Description("IANA time zone such as Europe/Paris; defaults to local time"),
			),
		),
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			t := now()
			if tz, _ := args["timezone"].(string); tz != "" {
				loc, err := time.LoadLocation(tz)
				if err != nil {
					return nil, fmt.Errorf("unknown timezone %q", tz)
				}
				t = t.In(loc)
			}
			return map[string]any{
				"time":     t.Format(time.RFC3339),
				"weekday":  t.Weekday().String(),
				"timezone": t.Location().String(),
				"unix":     t.Unix(),
			}, nil
		},
	}
}

// Preferences is a session-scoped key/value store.
type Preferences struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewPreferences() *Preferences {
	return &Preferences{values: make(map[string]string)}
}

// Set stores value under key and returns the previous value.
func (p *Preferences) Set(key, value string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, ok := p.values[key]
	p.values[key] = value
	return prev, ok
}

func (p *Preferences) Get(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

// Format renders the preferences for the system prompt, sorted by key.
// It is empty when nothing is set.
func (p *Preferences) Format() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("User preferences for this session:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, p.values[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// Snapshot returns a copy of the preferences, nil when empty.
func (p *Preferences) Snapshot() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.values) == 0 {
		return nil
	}
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Replace discards the current preferences and loads values, typically
// those saved with a session.
func (p *Preferences) Replace(values map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.values)
	for k, v := range values {
		p.values[k] = v
	}
}

// Reset forgets every preference.
func (p *Preferences) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.values)
}

// SetPreference records a preference for the rest of the session.
func SetPreference(prefs *Preferences) Tool {
	return Func{
		Def: mcptypes.NewTool(SetPreferenceName,
			mcptypes.WithDescription("Remember a user preference for the rest of this session, such as units or answer style"),
			mcptypes.WithString("key",
				mcptypes.Required(),
				mcptypes.Description("Preference name, e.g. units"),
			),
			mcptypes.WithString("value",
				mcptypes.Required(),
				mcptypes.Description("Preference value, e.g. metric"),
			),
		),
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			key, _ := args["key"].(string)
			key = strings.TrimSpace(key)
			if key == "" {
				return nil, errors.New("key is required")
			}
			value := fmt.Sprint(args["value"])
			if args["value"] == nil {
				return nil, errors.New("value is required")
			}
			if prev, ok := prefs.Set(key, value); ok && prev != value {
				return fmt.Sprintf("preference %s changed from %s to %s", key, prev, value), nil
			}
			return fmt.Sprintf("preference %s set to %s", key, value), nil
		},
	}
}
