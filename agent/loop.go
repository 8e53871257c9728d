// Package agent runs conversational turns: it assembles context, asks the
// backend, executes the tool calls it proposes and repeats until an answer
// is ready or a termination policy ends the turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"parley/budget"
	"parley/config"
	"parley/extract"
	"parley/guard"
	"parley/memory"
	"parley/model"
	"parley/provider"
	"parley/storage"
)

// ErrTurnInProgress is returned when Run is called while another turn of
// the same loop has not finished.
var ErrTurnInProgress = errors.New("a turn is already in progress")

const (
	emptyAnswer     = "I could not produce an answer from the information available."
	statusThinking  = "Working on it..."
	statusToolsLine = "Using tools: %s"
)

// Renderer displays messages as the turn progresses.
type Renderer interface {
	RenderMessage(m model.Message)
	// RemoveIntermediate drops a placeholder once the turn has moved on.
	RemoveIntermediate(id string)
}

// SessionStore persists a session after every turn.
type SessionStore interface {
	Save(session *storage.Session) error
}

// TurnResult describes a finished turn.
type TurnResult struct {
	Answer      model.Message
	Reasoning   []model.Message
	ToolResults []model.ToolResult
	Memories    []memory.Memory
	Rounds      int
	Termination Termination
	// States is the sequence of states the turn went through.
	States []State
	// Err is the backend error that ended the turn, if any.
	Err error
}

// Option configures a Loop.
type Option func(*Loop)

func WithRenderer(r Renderer) Option { return func(l *Loop) { l.renderer = r } }

func WithSessionStore(s SessionStore) Option { return func(l *Loop) { l.sessions = s } }

func WithMetrics(m *Metrics) Option { return func(l *Loop) { l.metrics = m } }

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loop) { l.logger = logger.With().Str("component", "agent").Logger() }
}

func WithClock(now func() time.Time) Option { return func(l *Loop) { l.now = now } }

func WithClassifier(c *memory.Classifier) Option { return func(l *Loop) { l.classifier = c } }

// Loop orchestrates turns over one runtime context. Turns are strictly
// sequential.
type Loop struct {
	turnMu sync.Mutex

	rt         *RuntimeContext
	cfg        Config
	guard      *guard.Guard
	budgeter   *budget.Budgeter
	classifier *memory.Classifier
	renderer   Renderer
	sessions   SessionStore
	metrics    *Metrics
	logger     zerolog.Logger
	now        func() time.Time

	stateMu sync.Mutex
	sm      machine
}

// NewLoop creates a loop. rt must carry a provider.
func NewLoop(rt *RuntimeContext, cfg Config, opts ...Option) (*Loop, error) {
	if err := rt.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	l := &Loop{
		rt:  rt,
		cfg: cfg,
		guard: guard.New(guard.Config{
			HistorySize:  cfg.HistorySize,
			MaxToolCalls: cfg.MaxToolCalls,
		}),
		budgeter:   newBudgeter(cfg, rt.ProviderConfig),
		classifier: memory.NewClassifier(),
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Guard exposes the redundancy guard so callers can register per-tool
// kinds and comparators.
func (l *Loop) Guard() *guard.Guard { return l.guard }

// State returns the current state of the loop.
func (l *Loop) State() State {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.sm.state
}

// Provider returns the active backend.
func (l *Loop) Provider() model.Provider { return l.rt.Provider }

// SetProvider switches the backend between turns.
func (l *Loop) SetProvider(p model.Provider, pc config.ProviderConfig) error {
	if p == nil {
		return errors.New("provider is required")
	}
	if !l.turnMu.TryLock() {
		return ErrTurnInProgress
	}
	defer l.turnMu.Unlock()

	l.rt.Provider = p
	l.rt.ProviderConfig = pc
	l.budgeter = newBudgeter(l.cfg, pc)
	return nil
}

// SyncTools indexes the registered tools into the memory store so that
// relevant ones can be selected per turn.
func (l *Loop) SyncTools(ctx context.Context) error {
	if l.rt.Memory == nil {
		return nil
	}
	defs := l.rt.Tools.Definitions()
	if len(defs) == 0 {
		return nil
	}
	if err := l.rt.Memory.IndexTools(ctx, defs); err != nil {
		return fmt.Errorf("failed to index tools: %w", err)
	}
	return nil
}

// Run processes one user input against session and returns once the turn
// is finalized. The returned result is non-nil whenever the turn started,
// including when it ended with an error.
func (l *Loop) Run(ctx context.Context, session *storage.Session, input string) (*TurnResult, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("input is empty")
	}
	if !l.turnMu.TryLock() {
		return nil, ErrTurnInProgress
	}
	defer l.turnMu.Unlock()

	t := &turn{
		l:       l,
		session: session,
		input:   input,
		result:  &TurnResult{},
		log:     l.logger.With().Str("session", session.ID).Logger(),
	}
	return t.run(ctx)
}

func (l *Loop) transition(next State) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	if err := l.sm.to(next); err != nil {
		l.logger.Error().Err(err).Msg("state machine")
	}
}

func (l *Loop) resetState() {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	l.sm.reset()
}

func (l *Loop) trace() []State {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	out := make([]State, len(l.sm.trace))
	copy(out, l.sm.trace)
	return out
}

func (l *Loop) render(m model.Message) {
	if l.renderer != nil {
		l.renderer.RenderMessage(m)
	}
}

// turn is the state of one Run call.
type turn struct {
	l       *Loop
	session *storage.Session
	input   string
	result  *TurnResult
	log     zerolog.Logger

	memories      []memory.Memory
	tools         []mcptypes.Tool
	explicit      []memory.Memory
	directive     string
	suppressTools bool
	synthesis     bool
	placeholders  []string
}

func (t *turn) run(ctx context.Context) (*TurnResult, error) {
	l := t.l
	l.guard.Reset()
	l.resetState()

	user := model.NewMessage(model.SenderUser, t.input, l.now())
	t.session.Append(user)
	t.session.Provider = storage.ProviderSnapshot{ID: l.rt.Provider.ID(), Model: l.rt.Provider.GetModel()}
	l.render(user)
	t.placeholder(statusThinking)

	t.retrieve(ctx)

	for {
		l.transition(StateAwaitingBackend)
		if err := ctx.Err(); err != nil {
			return t.fail(err)
		}

		reply, err := t.request(ctx)
		if err != nil {
			return t.fail(err)
		}
		text, calls := t.interpret(reply)

		if t.synthesis {
			if len(calls) > 0 {
				t.log.Debug().Int("calls", len(calls)).Msg("ignoring calls proposed after synthesis directive")
			}
			l.transition(StateAnswerReady)
			return t.finalize(ctx, text, TerminationLoopBreak)
		}
		if len(calls) == 0 {
			l.transition(StateAnswerReady)
			return t.finalize(ctx, text, TerminationAnswer)
		}

		l.transition(StateToolsProposed)
		verdict := l.guard.Evaluate(calls)
		switch {
		case verdict.Ceiling:
			l.metrics.rejection(true)
			t.log.Info().Int("rounds", l.guard.Rounds()).Msg("tool round ceiling reached")
			return t.finalize(ctx, joinParagraphs(text, guard.CeilingExplanation(l.cfg.MaxToolCalls)), TerminationCeiling)
		case !verdict.Admit:
			l.metrics.rejection(false)
			t.log.Info().Str("reason", verdict.Reason).Msg("repeated tool call rejected")
			t.directive = guard.SynthesisDirective(verdict)
			t.suppressTools = true
			t.synthesis = true
			continue
		}

		l.transition(StateExecutingTools)
		t.execute(ctx, text, calls)
	}
}

// retrieve loads relevant memories and narrows the advertised tools.
// Store failures degrade to no memories and the full tool list.
func (t *turn) retrieve(ctx context.Context) {
	l := t.l
	t.tools = l.rt.Tools.Definitions()

	store := l.rt.Memory
	if store == nil {
		return
	}

	mems, err := store.RelevantMemories(ctx, t.input, l.cfg.MemoryTopK)
	if err != nil {
		t.log.Warn().Err(err).Msg("memory retrieval failed")
	} else {
		valid, expired := memory.Partition(mems, l.now())
		t.memories = valid
		t.log.Debug().Int("memories", len(valid)).Int("expired", len(expired)).Msg("memories retrieved")
	}

	if len(t.tools) <= l.cfg.ToolTopK {
		return
	}
	relevant, err := store.RelevantTools(ctx, t.input, l.cfg.ToolTopK)
	if err != nil {
		t.log.Warn().Err(err).Msg("tool retrieval failed")
		return
	}
	names := make([]string, 0, len(relevant))
	for _, def := range relevant {
		names = append(names, def.Name)
	}
	if selected := l.rt.Tools.Select(names); len(selected) > 0 {
		t.tools = selected
	}
	t.log.Debug().Int("advertised", len(t.tools)).Msg("tools selected")
}

func (t *turn) request(ctx context.Context) (model.Reply, error) {
	l := t.l
	pc := l.rt.ProviderConfig

	tools := t.tools
	if t.suppressTools {
		tools = nil
	}

	var prefs string
	if l.rt.Preferences != nil {
		prefs = l.rt.Preferences.Format()
	}
	system := promptParts{
		base:        l.cfg.SystemPrompt,
		preferences: prefs,
		memories:    t.memories,
		providerID:  l.rt.Provider.ID(),
		tools:       tools,
		directive:   t.directive,
	}.String()

	prompt := l.budgeter.Build(budget.Input{SystemPrompt: system, History: t.session.Messages})

	req := model.Request{Prompt: prompt, Options: provider.OptionsFor(pc)}
	if req.Options.NativeTools {
		req.Tools = tools
	}

	t.log.Debug().
		Int("messages", len(prompt.Messages)).
		Int("tokens", prompt.EstimatedTokens).
		Int("omitted", prompt.Omitted).
		Int("tools", len(tools)).
		Bool("synthesis", t.synthesis).
		Msg("backend request")

	start := time.Now()
	reply, err := l.rt.Provider.Request(ctx, req)
	l.metrics.backend(l.rt.Provider.ID(), time.Since(start).Seconds())
	return reply, err
}

// interpret splits reasoning and memory directives off the reply and
// extracts the proposed calls. Native calls are merged after the textual
// ones, de-duplicated by name and arguments.
func (t *turn) interpret(reply model.Reply) (string, []model.ToolCall) {
	l := t.l
	now := l.now()

	answer, reasoning := SplitReasoning(reply.Text)
	if reasoning != "" && !l.cfg.HideReasoning {
		m := model.NewMessage(model.SenderAssistant, reasoning, now)
		m.Intermediate = true
		t.session.Append(m)
		l.render(m)
		t.result.Reasoning = append(t.result.Reasoning, m)
	}

	cleaned, directives := memory.ParseDirectives(answer)
	for _, d := range directives {
		mem, err := d.Memory(now)
		if err != nil {
			if !errors.Is(err, memory.ErrNotStored) {
				t.log.Debug().Err(err).Msg("memory directive ignored")
			}
			continue
		}
		t.explicit = append(t.explicit, mem)
	}

	res := extract.Extract(cleaned)
	return res.Text, mergeCalls(res.Calls, reply.Calls)
}

func mergeCalls(textual, native []model.ToolCall) []model.ToolCall {
	if len(native) == 0 {
		return textual
	}
	seen := make(map[string]bool, len(textual)+len(native))
	out := make([]model.ToolCall, 0, len(textual)+len(native))
	for _, group := range [][]model.ToolCall{textual, native} {
		for _, c := range group {
			if c.Name == "" {
				continue
			}
			key := extract.Key(c)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, c)
		}
	}
	return out
}

// execute runs an admitted call set and folds the results into the
// session as tool context for the next round.
func (t *turn) execute(ctx context.Context, prose string, calls []model.ToolCall) {
	l := t.l

	t.placeholder(joinParagraphs(prose, fmt.Sprintf(statusToolsLine, toolNames(calls))))

	results := executeCalls(ctx, l.rt.Tools, calls, l.cfg.MaxParallelTools, l.cfg.ToolTimeout, t.log)
	l.guard.Record(calls)
	for _, r := range results {
		l.metrics.toolCall(r.ToolName, r.Failed())
	}

	msg := model.NewMessage(model.SenderSystem, FormatResults(results), l.now())
	msg.ToolResults = results
	t.session.Append(msg)
	l.render(msg)
	t.result.ToolResults = append(t.result.ToolResults, results...)
}

// placeholder renders a transient status line. It is not part of the
// session and is removed when the turn ends.
func (t *turn) placeholder(text string) {
	if t.l.renderer == nil {
		return
	}
	m := model.NewMessage(model.SenderAssistant, text, t.l.now())
	m.Intermediate = true
	t.l.render(m)
	t.placeholders = append(t.placeholders, m.ID)
}

func (t *turn) clearPlaceholders() {
	if t.l.renderer == nil {
		return
	}
	for _, id := range t.placeholders {
		t.l.renderer.RemoveIntermediate(id)
	}
	t.placeholders = nil
}

func (t *turn) finalize(ctx context.Context, text string, term Termination) (*TurnResult, error) {
	l := t.l
	l.transition(StateFinalized)
	t.clearPlaceholders()

	if strings.TrimSpace(text) == "" {
		text = emptyAnswer
	}
	answer := model.NewMessage(model.SenderAssistant, text, l.now())
	t.session.Append(answer)
	l.render(answer)

	t.result.Answer = answer
	t.result.Termination = term
	t.result.Rounds = l.guard.Rounds()

	t.remember(ctx, text)
	return t.done()
}

// fail ends the turn after a backend error. The error is shown but not
// added to the session, and nothing is memorized.
func (t *turn) fail(err error) (*TurnResult, error) {
	l := t.l
	l.transition(StateFinalized)
	t.clearPlaceholders()

	t.log.Warn().Err(err).Msg("turn failed")
	l.render(model.NewMessage(model.SenderSystem, err.Error(), l.now()))

	t.result.Termination = TerminationError
	t.result.Rounds = l.guard.Rounds()
	t.result.Err = err

	_, saveErr := t.done()
	if saveErr != nil {
		return t.result, errors.Join(err, saveErr)
	}
	return t.result, err
}

// done persists the session and returns the loop to idle.
func (t *turn) done() (*TurnResult, error) {
	l := t.l
	l.metrics.turn(t.result.Termination, t.result.Rounds)

	if l.rt.Preferences != nil {
		t.session.Preferences = l.rt.Preferences.Snapshot()
	}

	var err error
	if l.sessions != nil {
		if saveErr := l.sessions.Save(t.session); saveErr != nil {
			err = fmt.Errorf("failed to save session: %w", saveErr)
		}
	}

	l.transition(StateIdle)
	t.result.States = l.trace()
	return t.result, err
}

// remember stores memory directives from the replies and the classifier's
// verdict on the exchange.
func (t *turn) remember(ctx context.Context, answer string) {
	l := t.l
	store := l.rt.Memory
	if store == nil {
		return
	}

	mems := t.explicit
	ex := memory.Exchange{Query: t.input, Answer: answer}
	if m, outcome, ok := l.classifier.Memorize(ex, l.now()); ok {
		mems = append(mems, m)
		t.log.Debug().Str("rule", outcome.Rule).Stringer("importance", outcome.Importance).Msg("exchange memorized")
	}

	for _, m := range mems {
		if err := store.IndexMemory(ctx, m); err != nil {
			t.log.Warn().Err(err).Msg("failed to store memory")
			continue
		}
		l.metrics.memory(m.Importance.String())
		t.result.Memories = append(t.result.Memories, m)
	}
}

func joinParagraphs(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
