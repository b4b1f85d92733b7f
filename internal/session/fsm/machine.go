package fsm

import (
	"fmt"
	"sync"
)

// State describes the lifecycle of one streaming connection.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateScanning   State = "scanning"
	StateProcessing State = "processing"
	StateClosed     State = "closed"
)

// Machine is a lightweight deterministic connection state machine. A closed
// machine never leaves the closed state again.
type Machine struct {
	mu    sync.RWMutex
	state State
}

// New creates a machine in the connecting state.
func New() *Machine {
	return &Machine{state: StateConnecting}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Closed reports whether the connection has been torn down.
func (m *Machine) Closed() bool {
	return m.State() == StateClosed
}

// OnOpen marks the websocket upgrade complete.
func (m *Machine) OnOpen() {
	m.transition(StateOpen)
}

// OnFrame marks frames flowing; the periodic scanner is now armed.
func (m *Machine) OnFrame() {
	m.mu.Lock()
	if m.state == StateOpen || m.state == StateScanning {
		m.state = StateScanning
	}
	m.mu.Unlock()
}

// OnProcessStart marks an inference pass in flight.
func (m *Machine) OnProcessStart() {
	m.transition(StateProcessing)
}

// OnProcessEnd returns to scanning after a completed inference.
func (m *Machine) OnProcessEnd() {
	m.transition(StateScanning)
}

// OnClose marks the connection torn down. Terminal.
func (m *Machine) OnClose() {
	m.mu.Lock()
	m.state = StateClosed
	m.mu.Unlock()
}

// Force sets a valid state unconditionally, except on a closed machine.
func (m *Machine) Force(state State) error {
	switch state {
	case StateConnecting, StateOpen, StateScanning, StateProcessing, StateClosed:
		m.transition(state)
		return nil
	default:
		return fmt.Errorf("invalid state: %s", state)
	}
}

func (m *Machine) transition(state State) {
	m.mu.Lock()
	if m.state != StateClosed {
		m.state = state
	}
	m.mu.Unlock()
}
