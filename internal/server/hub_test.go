package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/haneul-dev/cribwatch/internal/pipeline"
)

func TestHub_PublishReachesClient(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(hub.Handle))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[4:], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	waitForClients(t, hub, 1)

	want := pipeline.Event{RunID: "run-1", Stage: pipeline.StageUploaded, Message: "gs://b/p", Time: time.Now().UTC()}
	hub.Publish(want)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got pipeline.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RunID != want.RunID || got.Stage != want.Stage || got.Message != want.Message {
		t.Errorf("event = %+v, want %+v", got, want)
	}
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch := hub.register()
	if ch == nil {
		t.Fatal("register returned nil on an open hub")
	}

	// Nobody reads ch; overflow the buffer.
	for i := 0; i < clientBuffer+1; i++ {
		hub.Publish(pipeline.Event{RunID: "run-1", Stage: pipeline.StageReceived})
	}

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d, want 0 after overflow", got)
	}
	// The dropped channel is closed; draining it must terminate.
	n := 0
	for range ch {
		n++
	}
	if n != clientBuffer {
		t.Errorf("buffered events = %d, want %d", n, clientBuffer)
	}
}

func TestHub_CloseRejectsNewClients(t *testing.T) {
	hub := NewHub()

	ch := hub.register()
	if err := hub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, ok := <-ch; ok {
		t.Error("existing client channel should be closed")
	}
	if got := hub.register(); got != nil {
		t.Error("register after Close should return nil")
	}
	// Publish after Close must be a no-op, not a panic.
	hub.Publish(pipeline.Event{RunID: "run-1"})
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ClientCount = %d, want %d", hub.ClientCount(), want)
}
