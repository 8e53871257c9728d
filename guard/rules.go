package guard

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"parley/extract"
	"parley/model"
)

// Kind selects the comparison rule applied to a tool.
type Kind int

const (
	// KindGeneric rejects exact structural repeats of the arguments.
	KindGeneric Kind = iota
	// KindSearch compares normalized query strings by word overlap.
	KindSearch
	// KindFetch compares target identifier sets (URLs).
	KindFetch
	// KindMutation compares action and value; a new value for the same action is allowed.
	KindMutation
)

func (k Kind) String() string {
	switch k {
	case KindSearch:
		return "search"
	case KindFetch:
		return "fetch"
	case KindMutation:
		return "mutation"
	default:
		return "generic"
	}
}

// Comparator decides whether call repeats prior. Both calls target the same
// tool. The returned reason is shown to the backend in the synthesis directive.
type Comparator func(call, prior model.ToolCall) (reason string, duplicate bool)

// nameRule maps a tool name to a kind. Rules are checked in order.
type nameRule struct {
	kind  Kind
	match func(base string) bool
}

var nameRules = []nameRule{
	{KindSearch, containsAny("search", "query", "lookup")},
	{KindFetch, containsAny("fetch", "scrape", "browse", "read_url", "get_url", "crawl", "download")},
	{KindMutation, hasAnyPrefix("set_", "adjust", "update_", "toggle", "change_")},
}

func containsAny(words ...string) func(string) bool {
	return func(base string) bool {
		for _, w := range words {
			if strings.Contains(base, w) {
				return true
			}
		}
		return false
	}
}

func hasAnyPrefix(prefixes ...string) func(string) bool {
	return func(base string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(base, p) {
				return true
			}
		}
		return false
	}
}

// KindOf classifies a tool by name. Namespaced MCP names ("server.tool") are
// matched on the part after the last dot.
func KindOf(name string) Kind {
	base := strings.ToLower(name)
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[i+1:]
	}
	for _, r := range nameRules {
		if r.match(base) {
			return r.kind
		}
	}
	return KindGeneric
}

var (
	queryKeys    = []string{"query", "q", "search", "search_query", "term"}
	targetKeys   = []string{"url", "urls", "uri", "link", "links"}
	actionKeys   = []string{"action", "setting", "key", "property"}
	mutValueKeys = []string{"value", "level", "state", "target"}
)

// NormalizeQuery lowercases q, replaces punctuation with spaces and collapses
// runs of whitespace.
func NormalizeQuery(q string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, q)
	return strings.Join(strings.Fields(mapped), " ")
}

// WordOverlap returns |A∩B| / min(|A|,|B|) over the word sets of two
// normalized queries. Empty input yields 0.
func WordOverlap(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	smaller := min(len(setA), len(setB))
	if smaller == 0 {
		return 0
	}
	shared := 0
	for w := range setA {
		if setB[w] {
			shared++
		}
	}
	return float64(shared) / float64(smaller)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

func searchComparator(threshold float64) Comparator {
	return func(call, prior model.ToolCall) (string, bool) {
		q, ok := firstString(call.Arguments, queryKeys)
		p, pok := firstString(prior.Arguments, queryKeys)
		if !ok || !pok {
			return genericComparator(call, prior)
		}
		q, p = NormalizeQuery(q), NormalizeQuery(p)
		if q == p {
			return fmt.Sprintf("%s was already called with the query %q", call.Name, p), true
		}
		if sim := WordOverlap(q, p); sim > threshold {
			return fmt.Sprintf("%s query %q is a near-duplicate of %q (similarity %.2f)", call.Name, q, p, sim), true
		}
		return "", false
	}
}

func fetchComparator(call, prior model.ToolCall) (string, bool) {
	targets := targetSet(call.Arguments)
	previous := targetSet(prior.Arguments)
	if len(targets) == 0 || len(previous) == 0 {
		return genericComparator(call, prior)
	}
	for t := range targets {
		if previous[t] {
			return fmt.Sprintf("%s already retrieved %s", call.Name, t), true
		}
	}
	return "", false
}

func mutationComparator(call, prior model.ToolCall) (string, bool) {
	action, ok := firstString(call.Arguments, actionKeys)
	if !ok {
		action = call.Name
	}
	priorAction, ok := firstString(prior.Arguments, actionKeys)
	if !ok {
		priorAction = prior.Name
	}
	if !strings.EqualFold(action, priorAction) {
		return "", false
	}
	v, ok := firstValue(call.Arguments, mutValueKeys)
	pv, pok := firstValue(prior.Arguments, mutValueKeys)
	if !ok && !pok {
		// Tool-specific argument names: the value is whatever is left once
		// the action keys are gone.
		v, pv = without(call.Arguments, actionKeys), without(prior.Arguments, actionKeys)
	}
	value := canonical(v)
	if value != canonical(pv) {
		return "", false
	}
	return fmt.Sprintf("%s already set %s to %s", call.Name, action, value), true
}

func without(args map[string]any, keys []string) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if !slices.Contains(keys, k) {
			out[k] = v
		}
	}
	return out
}

func genericComparator(call, prior model.ToolCall) (string, bool) {
	if extract.Key(call) == extract.Key(prior) {
		return fmt.Sprintf("%s was already called with identical arguments", call.Name), true
	}
	return "", false
}

func firstValue(args map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func firstString(args map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := args[k].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// targetSet collects URL-like arguments, accepting a string or a list of strings.
func targetSet(args map[string]any) map[string]bool {
	set := make(map[string]bool)
	add := func(v any) {
		if s, ok := v.(string); ok {
			if n := normalizeTarget(s); n != "" {
				set[n] = true
			}
		}
	}
	for _, k := range targetKeys {
		switch v := args[k].(type) {
		case string:
			add(v)
		case []any:
			for _, item := range v {
				add(item)
			}
		case []string:
			for _, item := range v {
				add(item)
			}
		}
	}
	return set
}

func normalizeTarget(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(s, "/")
}

func canonical(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
