package main

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// dialLive starts the router on a test server and connects to /api/live.
// It waits until the hub has registered the connection.
func dialLive(t *testing.T, router *gin.Engine, hub *realtimeHub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("live client was never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) liveEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read live event: %v", err)
	}
	var ev liveEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode live event %q: %v", msg, err)
	}
	return ev
}

// TestLive_BroadcastsDaySummary verifies a mutation pushes the recomputed
// summary to connected views.
func TestLive_BroadcastsDaySummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, _, clk := newTestStore()
	stats := newStatsPipeline(store, staticProfile{}, clk.Now)
	hub := newRealtimeHub()
	wireStore(store, stats, nil, hub)
	router := gin.New()
	(&Handler{store: store, stats: stats, catalog: newMemoryCatalog(), hub: hub}).registerRoutes(router)

	conn := dialLive(t, router, hub)
	store.Mutate(testDate, setSteps(4000))

	ev := readEvent(t, conn)
	if ev.Type != "day" || ev.Date != testDate || ev.Summary == nil {
		t.Fatalf("event = %+v", ev)
	}
	if *ev.Summary.Day.Steps != 4000 || ev.Summary.Pending != string(statePending) {
		t.Errorf("summary = %+v", ev.Summary.Day)
	}
}

// TestLive_ToastOnPersistFailure verifies a failed autosave is reported
// without interrupting the editing flow.
func TestLive_ToastOnPersistFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, kv, clk := newTestStore()
	stats := newStatsPipeline(store, staticProfile{}, clk.Now)
	hub := newRealtimeHub()
	router := gin.New()
	(&Handler{store: store, stats: stats, catalog: newMemoryCatalog(), hub: hub}).registerRoutes(router)
	conn := dialLive(t, router, hub)

	wireStore(store, stats, nil, hub)
	kv.failOn = func(string) error { return errors.New("quota exceeded") }
	store.Mutate(testDate, setSteps(1))
	readEvent(t, conn) // day update
	clk.Advance(defaultDebounce)

	ev := readEvent(t, conn)
	if ev.Type != "toast" || ev.Date != testDate || ev.Message == "" {
		t.Errorf("event = %+v, want toast for %s", ev, testDate)
	}
}

func TestRealtimeHub_DropsClosedClients(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := newRealtimeHub()
	router := gin.New()
	(&Handler{hub: hub}).registerRoutes(router)

	conn := dialLive(t, router, hub)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("closed client still registered")
		}
		hub.Broadcast(liveEvent{Type: "toast", Message: "ping"})
		time.Sleep(5 * time.Millisecond)
	}
}

// TestRealtimeHub_SlowClientDoesNotStallBroadcast verifies a client that
// stops draining its queue never blocks Broadcast and is dropped on overflow,
// while a healthy client keeps receiving.
func TestRealtimeHub_SlowClientDoesNotStallBroadcast(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := newRealtimeHub()
	router := gin.New()
	(&Handler{hub: hub}).registerRoutes(router)
	conn := dialLive(t, router, hub)

	// No writePump: nothing ever drains send, and its queue is already full.
	stalled := newLiveClient(nil)
	for i := 0; i < liveSendBuffer; i++ {
		stalled.send <- []byte(`{}`)
	}
	hub.Register(stalled)

	done := make(chan struct{})
	go func() {
		hub.Broadcast(liveEvent{Type: "toast", Message: "tick"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a client that is not reading")
	}

	if hub.Count() != 1 {
		t.Errorf("Count = %d, want only the healthy client left", hub.Count())
	}
	if _, open := <-stalled.send; !open {
		t.Error("stalled client queue should still hold its buffered events")
	}
	if ev := readEvent(t, conn); ev.Type != "toast" || ev.Message != "tick" {
		t.Errorf("healthy client event = %+v", ev)
	}
}
