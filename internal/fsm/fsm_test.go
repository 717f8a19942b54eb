// file: internal/fsm/fsm_test.go
package fsm

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stateIdle    State = "idle"
	stateWaiting State = "waiting"
	stateDone    State = "done"

	eventSend   Event = "send"
	eventFinish Event = "finish"
	eventReset  Event = "reset"
)

func buildTestMachine(t *testing.T, guard GuardCondition) *Machine {
	t.Helper()
	m := New(stateIdle, logging.GetNoopLogger())
	m.Add(Transition{From: []State{stateIdle, stateWaiting}, Event: eventSend, To: stateWaiting, Guard: guard})
	m.Add(Transition{From: []State{stateWaiting}, Event: eventFinish, To: stateDone})
	m.Add(Transition{From: []State{stateWaiting, stateDone}, Event: eventReset, To: stateIdle})
	require.NoError(t, m.Build(), "Failed to build test machine.")
	return m
}

func TestMachine_BasicTransitions_Succeed(t *testing.T) {
	m := buildTestMachine(t, nil)
	ctx := context.Background()

	assert.Equal(t, stateIdle, m.Current())
	require.NoError(t, m.Fire(ctx, eventSend))
	assert.Equal(t, stateWaiting, m.Current())
	require.NoError(t, m.Fire(ctx, eventFinish))
	assert.Equal(t, stateDone, m.Current())
	require.NoError(t, m.Fire(ctx, eventReset))
	assert.Equal(t, stateIdle, m.Current())
}

func TestMachine_SelfTransition_IsSuccess(t *testing.T) {
	m := buildTestMachine(t, nil)
	ctx := context.Background()

	require.NoError(t, m.Fire(ctx, eventSend))
	require.NoError(t, m.Fire(ctx, eventSend), "Re-sending from waiting should be accepted.")
	assert.Equal(t, stateWaiting, m.Current())
}

func TestMachine_InvalidTransition_ReturnsError(t *testing.T) {
	m := buildTestMachine(t, nil)

	assert.False(t, m.Can(eventFinish))
	err := m.Fire(context.Background(), eventFinish)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inappropriate in current state")
	assert.Equal(t, stateIdle, m.Current())
}

func TestMachine_GuardFailure_ReturnsGuardError(t *testing.T) {
	blocked := errors.New("blocked")
	m := buildTestMachine(t, func(_ context.Context, _ Event, _ State) error { return blocked })

	err := m.Fire(context.Background(), eventSend)
	require.Error(t, err)
	assert.True(t, errors.Is(err, blocked))
	assert.Equal(t, stateIdle, m.Current())
}

func TestMachine_ConflictingDestinations_FailBuild(t *testing.T) {
	m := New(stateIdle, nil)
	m.Add(Transition{From: []State{stateIdle}, Event: eventSend, To: stateWaiting})
	m.Add(Transition{From: []State{stateWaiting}, Event: eventSend, To: stateDone})
	require.Error(t, m.Build())
}

func TestMachine_MissingSource_FailsBuild(t *testing.T) {
	m := New(stateIdle, nil)
	m.Add(Transition{Event: eventSend, To: stateWaiting})
	require.Error(t, m.Build())
}

func TestMachine_UseBeforeBuild(t *testing.T) {
	m := New(stateIdle, nil)
	assert.Equal(t, State(""), m.Current())
	assert.ErrorIs(t, m.Fire(context.Background(), eventSend), ErrNotBuilt)
}
