// Package channel implements the Channel Runtime's core state machine and
// dispatch pipeline (spec §4.1): the per-channel task group that owns one
// source, its destinations, and the message flow between them.
package channel

import (
	"fmt"
	"sync"
)

// State is one of a Channel's lifecycle states (spec §4.1).
type State int

const (
	StateStopped State = iota
	StateStarting
	StateStarted
	StatePausing
	StatePaused
	StateStopping
	StateDeploying
	StateUndeploying
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateStarted:
		return "STARTED"
	case StatePausing:
		return "PAUSING"
	case StatePaused:
		return "PAUSED"
	case StateStopping:
		return "STOPPING"
	case StateDeploying:
		return "DEPLOYING"
	case StateUndeploying:
		return "UNDEPLOYING"
	default:
		return "UNKNOWN"
	}
}

// legalTransitions enumerates the edges spec §4.1 allows. Transitions not
// listed here are rejected by machine.transition.
var legalTransitions = map[State][]State{
	StateStopped:     {StateStarting, StateDeploying},
	StateStarting:    {StateStarted, StateStopped},
	StateStarted:     {StatePausing, StateStopping},
	StatePausing:     {StatePaused, StateStopped},
	StatePaused:      {StateStarting, StateStopping},
	StateStopping:    {StateStopped},
	StateDeploying:   {StateStopped},
	StateUndeploying: {StateStopped},
}

// machine guards a Channel's current State and validates transitions,
// emitting a stateChange event on every accepted move (spec §4.1: "Every
// state change emits a stateChange event").
type machine struct {
	mu          sync.Mutex
	current     State
	channelID   string
	channelName string
	publisher   Publisher
}

func newMachine(channelID, channelName string, publisher Publisher) *machine {
	return &machine{current: StateStopped, channelID: channelID, channelName: channelName, publisher: publisher}
}

func (m *machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// transition moves to next if legal, emitting a stateChange event.
func (m *machine) transition(next State) error {
	m.mu.Lock()
	prev := m.current
	if !isLegal(prev, next) {
		m.mu.Unlock()
		return fmt.Errorf("channel %s: illegal transition %s -> %s", m.channelID, prev, next)
	}
	m.current = next
	m.mu.Unlock()

	if m.publisher != nil {
		m.publisher.PublishStateChange(StateChangeEvent{
			ChannelID:   m.channelID,
			ChannelName: m.channelName,
			Previous:    prev,
			Current:     next,
		})
	}
	return nil
}

// forceStopped sets state to STOPPED unconditionally, used on the
// rollback/failure path where the origin state may vary (spec §4.1:
// "Any terminal failure during a transition leaves the channel STOPPED").
func (m *machine) forceStopped() {
	m.mu.Lock()
	prev := m.current
	m.current = StateStopped
	m.mu.Unlock()
	if prev != StateStopped && m.publisher != nil {
		m.publisher.PublishStateChange(StateChangeEvent{
			ChannelID:   m.channelID,
			ChannelName: m.channelName,
			Previous:    prev,
			Current:     StateStopped,
		})
	}
}

func isLegal(from, to State) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
