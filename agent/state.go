package agent

import "fmt"

// State is a phase of one user turn.
type State int

const (
	StateIdle State = iota
	StateAwaitingBackend
	StateToolsProposed
	StateAnswerReady
	StateExecutingTools
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingBackend:
		return "awaiting_backend"
	case StateToolsProposed:
		return "tools_proposed"
	case StateAnswerReady:
		return "answer_ready"
	case StateExecutingTools:
		return "executing_tools"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the legal successors of each state. Any state may move
// to Finalized on error or cancellation.
var transitions = map[State][]State{
	StateIdle:            {StateAwaitingBackend},
	StateAwaitingBackend: {StateToolsProposed, StateAnswerReady},
	StateToolsProposed:   {StateExecutingTools, StateAwaitingBackend},
	StateExecutingTools:  {StateAwaitingBackend},
	StateAnswerReady:     {StateFinalized},
	StateFinalized:       {StateIdle},
}

// machine tracks the state of the turn in progress.
type machine struct {
	state State
	trace []State
}

func (m *machine) to(next State) error {
	if next == StateFinalized && m.state != StateIdle && m.state != StateFinalized {
		m.set(next)
		return nil
	}
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.set(next)
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", m.state, next)
}

func (m *machine) set(next State) {
	m.state = next
	m.trace = append(m.trace, next)
}

func (m *machine) reset() {
	m.state = StateIdle
	m.trace = m.trace[:0]
}

// Termination is why a turn ended.
type Termination int

const (
	// TerminationAnswer means the backend produced a final answer.
	TerminationAnswer Termination = iota
	// TerminationCeiling means the tool round budget ran out.
	TerminationCeiling
	// TerminationLoopBreak means a repeated call set was rejected and the
	// turn was finalized after one synthesis request.
	TerminationLoopBreak
	// TerminationError means a backend failure ended the turn.
	TerminationError
)

func (t Termination) String() string {
	switch t {
	case TerminationAnswer:
		return "answer"
	case TerminationCeiling:
		return "ceiling"
	case TerminationLoopBreak:
		return "loop_break"
	case TerminationError:
		return "error"
	default:
		return fmt.Sprintf("termination(%d)", int(t))
	}
}
