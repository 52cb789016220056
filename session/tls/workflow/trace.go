package workflow

import (
	"tlsflow/session/tls/common"
)

// Trace is the ordered script a connection end executes. A relay reads
// it from Perspective: Send actions are issued by that role.
type Trace struct {
	Actions     []Action
	Perspective common.Role
	Description string
}

func NewTrace(actions ...Action) *Trace {
	return &Trace{Actions: actions, Perspective: common.RoleClient}
}

func (t *Trace) Len() int { return len(t.Actions) }

// TruncateAfter drops every action following index i.
func (t *Trace) TruncateAfter(i int) {
	if i+1 < len(t.Actions) {
		clear(t.Actions[i+1:])
		t.Actions = t.Actions[:i+1]
	}
}

// Reset returns every action to NotExecuted.
func (t *Trace) Reset() {
	for _, a := range t.Actions {
		a.Reset()
	}
}

// Replace swaps the actions for next, as renegotiation does.
func (t *Trace) Replace(next []Action) {
	t.Actions = next
}

// Prune drops unexecuted actions from the tail.
func (t *Trace) Prune() {
	n := len(t.Actions)
	for n > 0 && t.Actions[n-1].State() == NotExecuted {
		n--
	}
	clear(t.Actions[n:])
	t.Actions = t.Actions[:n]
}

// ExecutedAsPlanned reports whether every action ran and every Receive got
// what it expected.
func (t *Trace) ExecutedAsPlanned() bool {
	for _, a := range t.Actions {
		if !a.Executed() {
			return false
		}
		if r, ok := a.(*Receive); ok && !r.ExecutedAsPlanned() {
			return false
		}
	}
	return true
}
