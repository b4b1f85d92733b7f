package forward

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestForwardDeliversTriggerPayload(t *testing.T) {
	received := make(chan payload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := New(server.URL, time.Second, zap.NewNop())
	f.Forward([]byte("frame-bytes"), "door")

	select {
	case p := <-received:
		if len(p.Triggers) != 1 || p.Triggers[0] != "door" {
			t.Fatalf("triggers=%v, want [door]", p.Triggers)
		}
		if p.Image != base64.StdEncoding.EncodeToString([]byte("frame-bytes")) {
			t.Fatalf("image=%q, want base64 of the frame", p.Image)
		}
		if p.Timestamp == "" {
			t.Fatal("timestamp empty, want RFC3339 time")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("forward never reached the receiver")
	}
}

func TestForwardDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	f := New(server.URL, 50*time.Millisecond, zap.NewNop())
	start := time.Now()
	f.Forward([]byte("frame"), "door")
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("Forward blocked for %v, want immediate return", elapsed)
	}
}

func TestForwardFailureIsDropped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	f := New(server.URL, 50*time.Millisecond, zap.NewNop())
	f.Forward([]byte("frame"), "door")

	// Failure is logged and dropped; nothing to assert beyond no panic.
	time.Sleep(100 * time.Millisecond)
}

func TestForwardWithoutURLIsNoop(t *testing.T) {
	f := New("", time.Second, zap.NewNop())
	f.Forward([]byte("frame"), "door")
}
