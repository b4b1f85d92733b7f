package fsm

import (
	"testing"
)

func TestNewStartsConnecting(t *testing.T) {
	m := New()
	if got := m.State(); got != StateConnecting {
		t.Fatalf("state=%v, want %v", got, StateConnecting)
	}
	if m.Closed() {
		t.Fatal("Closed()=true on a fresh machine")
	}
}

func TestLifecycle(t *testing.T) {
	m := New()
	m.OnOpen()
	if got := m.State(); got != StateOpen {
		t.Fatalf("state=%v, want %v", got, StateOpen)
	}
	m.OnFrame()
	if got := m.State(); got != StateScanning {
		t.Fatalf("state=%v, want %v", got, StateScanning)
	}
	m.OnProcessStart()
	if got := m.State(); got != StateProcessing {
		t.Fatalf("state=%v, want %v", got, StateProcessing)
	}
	m.OnProcessEnd()
	if got := m.State(); got != StateScanning {
		t.Fatalf("state=%v, want %v", got, StateScanning)
	}
}

func TestFrameBeforeOpenIgnored(t *testing.T) {
	m := New()
	m.OnFrame()
	if got := m.State(); got != StateConnecting {
		t.Fatalf("state=%v, want %v", got, StateConnecting)
	}
}

func TestClosedIsTerminal(t *testing.T) {
	m := New()
	m.OnOpen()
	m.OnClose()
	if !m.Closed() {
		t.Fatal("Closed()=false after OnClose")
	}

	m.OnOpen()
	m.OnFrame()
	m.OnProcessStart()
	if got := m.State(); got != StateClosed {
		t.Fatalf("state=%v, want closed to be terminal", got)
	}
	if err := m.Force(StateScanning); err != nil {
		t.Fatalf("Force: %v", err)
	}
	if got := m.State(); got != StateClosed {
		t.Fatalf("state=%v, want Force to respect terminal close", got)
	}
}

func TestForceRejectsInvalidState(t *testing.T) {
	m := New()
	if err := m.Force(State("bogus")); err == nil {
		t.Fatal("Force error=nil, want invalid state error")
	}
	if err := m.Force(StateProcessing); err != nil {
		t.Fatalf("Force: %v", err)
	}
	if got := m.State(); got != StateProcessing {
		t.Fatalf("state=%v, want %v", got, StateProcessing)
	}
}
