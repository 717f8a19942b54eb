// file: internal/authflow/machine.go
package authflow

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/fsm"
	"github.com/dkoosis/tableside/internal/logging"
)

// active lists every state a teardown can leave from.
var active = []fsm.State{StateCodeSent, StateVerifying, StateClaiming, StateEstablished, StateCompleted}

// newMachine declares the flow lifecycle. Guards read controller fields and run
// inside Fire, which the controller only calls with c.mu held.
func newMachine(c *Controller, logger logging.Logger) (*fsm.Machine, error) {
	m := fsm.New(StateIdle, logger)

	// --- First factor ---.
	m.Add(fsm.Transition{From: []fsm.State{StateIdle}, Event: EventCodeSent, To: StateCodeSent})

	// --- Second factor ---.
	m.Add(fsm.Transition{
		From:  []fsm.State{StateCodeSent},
		Event: EventVerify,
		To:    StateVerifying,
		Guard: func(_ context.Context, _ fsm.Event, _ fsm.State) error {
			if c.pending == nil {
				return ErrNoPending
			}
			return nil
		},
	})
	m.Add(fsm.Transition{From: []fsm.State{StateVerifying}, Event: EventVerifyFailed, To: StateCodeSent})

	// --- OAuth side channel ---.
	m.Add(fsm.Transition{
		From:  []fsm.State{StateIdle},
		Event: EventOAuth,
		To:    StateVerifying,
		Guard: func(_ context.Context, _ fsm.Event, _ fsm.State) error {
			if !c.variant.supportsOAuth(c.entry) {
				return errors.Wrapf(ErrUnsupported, "%s (%s) does not offer OAuth", c.variant, c.entry)
			}
			return nil
		},
	})

	// --- Success ---.
	m.Add(fsm.Transition{From: []fsm.State{StateVerifying}, Event: EventClaim, To: StateClaiming})
	m.Add(fsm.Transition{From: []fsm.State{StateVerifying, StateClaiming}, Event: EventEstablish, To: StateEstablished})
	m.Add(fsm.Transition{From: []fsm.State{StateVerifying}, Event: EventComplete, To: StateCompleted})

	// --- Teardown ---.
	m.Add(fsm.Transition{From: []fsm.State{StateCodeSent, StateVerifying}, Event: EventFail, To: StateIdle})
	m.Add(fsm.Transition{From: active, Event: EventAbandon, To: StateIdle})

	if err := m.Build(); err != nil {
		return nil, errors.Wrap(err, "failed to build auth flow state machine")
	}
	return m, nil
}
