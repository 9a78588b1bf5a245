package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeBus struct {
	ch chan []byte
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.ch <- payload
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return f.ch, nil
}

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestHubSendsStatusThenBroadcasts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := &fakeBus{ch: make(chan []byte, 4)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Mode:   "bot",
		DryRun: func() bool { return true },
	})
	go hub.Run(ctx)

	conn := dialTestHub(t, hub)

	_, first, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	var status struct {
		Type    string `json:"type"`
		Payload struct {
			Mode   string `json:"mode"`
			DryRun bool   `json:"dry_run"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(first, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Type != "status" || status.Payload.Mode != "bot" || !status.Payload.DryRun {
		t.Errorf("status = %s", first)
	}

	event := []byte(`{"event":"position_opened","position":{"ID":7}}`)
	bus.ch <- event

	msgType, second, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Errorf("message type = %d, want text", msgType)
	}
	if string(second) != string(event) {
		t.Errorf("broadcast = %s, want %s", second, event)
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := &fakeBus{ch: make(chan []byte, 4)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "bot"})
	go hub.Run(ctx)

	conn := dialTestHub(t, hub)

	// Drain the connect-time status frame.
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read status: %v", err)
	}

	unsub, _ := json.Marshal(subscribeMsg{Action: "unsubscribe", Channels: []string{"positions"}})
	if err := conn.WriteMessage(websocket.TextMessage, unsub); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}

	// The read pump processes the frame before anything else is written;
	// give it a moment, then publish.
	time.Sleep(50 * time.Millisecond)
	bus.ch <- []byte(`{"event":"position_closed"}`)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, msg, err := conn.ReadMessage(); err == nil {
		t.Errorf("got message %s after unsubscribe", msg)
	}
}
