package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quizforge-backend/internal/logger"
)

func TestHandleWebSocket_RejectsMissingRunID(t *testing.T) {
	hub := NewHub(nil, logger.Nop())

	for _, target := range []string{"/ws", "/ws?run_id=not-a-uuid"} {
		rr := httptest.NewRecorder()
		hub.HandleWebSocket(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func watchers(h *Hub, runID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections[runID])
}

func TestHub_BroadcastReachesOnlyRunWatchers(t *testing.T) {
	hub := NewHub(nil, logger.Nop())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	runID := uuid.New()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?run_id=" + runID.String()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for watchers(hub, runID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.broadcast(uuid.New(), []byte(`{"type":"other run"}`))
	hub.broadcast(runID, []byte(`{"type":"completed"}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"type":"completed"}` {
		t.Errorf("unexpected message %s", data)
	}
}

func TestHub_ConcurrentBroadcastsStayFramed(t *testing.T) {
	hub := NewHub(nil, logger.Nop())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	runID := uuid.New()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?run_id=" + runID.String()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for watchers(hub, runID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	const senders = 8
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.broadcast(runID, []byte(`{"type":"progress"}`))
		}()
	}
	wg.Wait()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < senders; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if string(data) != `{"type":"progress"}` {
			t.Fatalf("message %d corrupted: %s", i, data)
		}
	}
}
