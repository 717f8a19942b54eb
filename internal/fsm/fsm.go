// Package fsm provides a small finite state machine built on looplab/fsm.
// file: internal/fsm/fsm.go
package fsm

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/logging"
	lfsm "github.com/looplab/fsm"
)

// State represents a state in the FSM.
type State string

// Event represents an event that can trigger a state transition.
type Event string

// GuardCondition decides whether an event may fire. Returning a non-nil error
// cancels the transition and the error is returned from Fire.
type GuardCondition func(ctx context.Context, event Event, from State) error

// Transition defines a transition rule between states.
type Transition struct {
	From  []State        // Source states for this transition.
	To    State          // The destination state.
	Event Event          // The event triggering the transition.
	Guard GuardCondition // Optional guard checked before the transition.
}

// ErrNotBuilt is returned when the machine is used before Build succeeded.
var ErrNotBuilt = errors.New("state machine not built")

// Machine wraps a looplab/fsm instance. Declare transitions with Add, then call Build.
type Machine struct {
	initial     State
	logger      logging.Logger
	transitions []Transition
	inner       *lfsm.FSM
	buildErr    error
	mu          sync.RWMutex
}

// New creates a machine builder starting in initial.
func New(initial State, logger logging.Logger) *Machine {
	return &Machine{
		initial: initial,
		logger:  logging.OrNoop(logger).WithField("component", "fsm"),
	}
}

// Add stores a transition definition. It must be called before Build.
func (m *Machine) Add(t Transition) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.inner != nil:
		m.setBuildErr(errors.New("cannot add transition after Build"))
	case len(t.From) == 0:
		m.setBuildErr(errors.Newf("transition %q has no source states", t.Event))
	default:
		m.transitions = append(m.transitions, t)
	}
	return m
}

func (m *Machine) setBuildErr(err error) {
	m.logger.Error("Invalid transition definition.", "error", err)
	if m.buildErr == nil {
		m.buildErr = err
	}
}

// Build finalizes the configuration. Calling Build again is a no-op.
func (m *Machine) Build() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inner != nil || m.buildErr != nil {
		return m.buildErr
	}

	descs := make(map[Event]*lfsm.EventDesc)
	order := make([]Event, 0, len(m.transitions))
	guards := make(map[Event][]Transition)

	for _, t := range m.transitions {
		desc, ok := descs[t.Event]
		if !ok {
			desc = &lfsm.EventDesc{Name: string(t.Event), Dst: string(t.To)}
			descs[t.Event] = desc
			order = append(order, t.Event)
		} else if desc.Dst != string(t.To) {
			m.buildErr = errors.Newf("event %q declared with conflicting destinations %q and %q", t.Event, desc.Dst, t.To)
			return m.buildErr
		}
		for _, s := range t.From {
			if !containsString(desc.Src, string(s)) {
				desc.Src = append(desc.Src, string(s))
			}
		}
		if t.Guard != nil {
			guards[t.Event] = append(guards[t.Event], t)
		}
	}

	events := make([]lfsm.EventDesc, 0, len(order))
	for _, ev := range order {
		events = append(events, *descs[ev])
	}

	callbacks := lfsm.Callbacks{}
	for ev, ts := range guards {
		callbacks["before_"+string(ev)] = guardCallback(ts)
	}

	m.inner = lfsm.NewFSM(string(m.initial), events, callbacks)
	m.logger.Debug("State machine built.", "initial", m.initial, "events", len(events))
	return nil
}

func guardCallback(ts []Transition) lfsm.Callback {
	return func(ctx context.Context, e *lfsm.Event) {
		from := State(e.Src)
		for _, t := range ts {
			if !containsState(t.From, from) {
				continue
			}
			if err := t.Guard(ctx, Event(e.Event), from); err != nil {
				e.Cancel(err)
				return
			}
		}
	}
}

// Current returns the current state, or "" when the machine is not built.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.inner == nil {
		return ""
	}
	return State(m.inner.Current())
}

// Can reports whether event is valid in the current state.
func (m *Machine) Can(event Event) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inner != nil && m.inner.Can(string(event))
}

// Fire triggers event. A transition whose destination equals the current state
// is reported as success. Guard failures are returned unwrapped.
func (m *Machine) Fire(ctx context.Context, event Event) error {
	m.mu.RLock()
	inner := m.inner
	m.mu.RUnlock()
	if inner == nil {
		return ErrNotBuilt
	}

	from := State(inner.Current())
	err := inner.Event(ctx, string(event))
	if err == nil {
		m.logger.Debug("Transition.", "event", event, "from", from, "to", inner.Current())
		return nil
	}

	var noTransition lfsm.NoTransitionError
	if errors.As(err, &noTransition) && noTransition.Err == nil {
		return nil
	}
	var canceled lfsm.CanceledError
	if errors.As(err, &canceled) && canceled.Err != nil {
		m.logger.Debug("Transition canceled by guard.", "event", event, "from", from, "reason", canceled.Err)
		return canceled.Err
	}
	m.logger.Debug("Transition rejected.", "event", event, "from", from, "error", err)
	return errors.Wrapf(err, "event %q from state %q", event, from)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsState(list []State, s State) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
