package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineLegalTransitions(t *testing.T) {
	var events []StateChangeEvent
	pub := recordingPublisher{record: &events}
	m := newMachine("chan-1", "Chan One", pub)

	require.NoError(t, m.transition(StateStarting))
	require.NoError(t, m.transition(StateStarted))
	assert.Equal(t, StateStarted, m.State())
	require.Len(t, events, 2)
	assert.Equal(t, StateStopped, events[0].Previous)
	assert.Equal(t, StateStarting, events[0].Current)
}

func TestMachineRejectsIllegalTransition(t *testing.T) {
	m := newMachine("chan-1", "Chan One", NoopPublisher{})
	err := m.transition(StateStarted) // STOPPED -> STARTED is not a legal edge
	assert.Error(t, err)
	assert.Equal(t, StateStopped, m.State())
}

func TestMachineForceStoppedAlwaysSucceeds(t *testing.T) {
	m := newMachine("chan-1", "Chan One", NoopPublisher{})
	require.NoError(t, m.transition(StateStarting))
	require.NoError(t, m.transition(StateStarted))
	require.NoError(t, m.transition(StatePausing))
	m.forceStopped()
	assert.Equal(t, StateStopped, m.State())
}

type recordingPublisher struct {
	record *[]StateChangeEvent
}

func (p recordingPublisher) PublishStateChange(e StateChangeEvent) {
	*p.record = append(*p.record, e)
}
func (p recordingPublisher) PublishMessageComplete(MessageCompleteEvent) {}
