package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/klafs-vdc/internal/bridges/klafs"
	"github.com/nerrad567/klafs-vdc/internal/infrastructure/logging"
)

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelSaunaState: {}},
	}
	hub.Register(client)

	hub.BroadcastStatus(klafs.Status{SaunaID: "364cc9db"})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != ChannelSaunaState {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, ChannelSaunaState)
		}
		payload, _ := wsMsg.Payload.(map[string]any)
		if payload["sauna_id"] != "364cc9db" {
			t.Errorf("payload sauna_id = %v, want 364cc9db", payload["sauna_id"])
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := NewHub(logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"other.channel": {}},
	}
	hub.Register(client)

	hub.BroadcastStatus(klafs.Status{})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(logging.Discard())

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func dialWS(t *testing.T, srv *Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func TestWebSocket_SubscribeReceivesSnapshotAndUpdates(t *testing.T) {
	srv, _ := testServer(t, "")

	conn, _, err := dialWS(t, srv, "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{ChannelSaunaState}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	if resp := readMessage(t, conn); resp.Type != WSTypeResponse || resp.ID != "1" {
		t.Fatalf("first message = %+v, want subscribe response", resp)
	}

	snapshot := readMessage(t, conn)
	if snapshot.Type != WSTypeEvent || snapshot.EventType != ChannelSaunaState {
		t.Fatalf("second message = %+v, want state snapshot", snapshot)
	}
	if payload, _ := snapshot.Payload.(map[string]any); payload["sauna_id"] != "364cc9db" {
		t.Errorf("snapshot sauna_id = %v, want 364cc9db", payload["sauna_id"])
	}

	srv.hub.BroadcastStatus(klafs.Status{SaunaID: "364cc9db", LastOutcome: "changed"})
	update := readMessage(t, conn)
	if payload, _ := update.Payload.(map[string]any); payload["last_outcome"] != "changed" {
		t.Errorf("update last_outcome = %v, want changed", payload["last_outcome"])
	}
}

func TestWebSocket_Ping(t *testing.T) {
	srv, _ := testServer(t, "")

	conn, _, err := dialWS(t, srv, "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if resp := readMessage(t, conn); resp.Type != WSTypePong || resp.ID != "p" {
		t.Errorf("response = %+v, want pong p", resp)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if resp := readMessage(t, conn); resp.Type != WSTypeError {
		t.Errorf("response = %+v, want error", resp)
	}
}

func TestWebSocket_TicketRequiredWithSecret(t *testing.T) {
	srv, _ := testServer(t, testSecret)

	_, resp, err := dialWS(t, srv, "")
	if err == nil {
		t.Fatal("Dial without ticket should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}

	ticket := srv.tickets.issue(time.Now())
	conn, _, err := dialWS(t, srv, "?ticket="+ticket)
	if err != nil {
		t.Fatalf("Dial with ticket: %v", err)
	}
	conn.Close()

	if _, _, err := dialWS(t, srv, "?ticket="+ticket); err == nil {
		t.Error("reused ticket should be rejected")
	}
}

func TestWebSocket_SubscribeValidation(t *testing.T) {
	srv, _ := testServer(t, "")

	conn, _, err := dialWS(t, srv, "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	tests := []struct {
		name string
		msg  WSMessage
	}{
		{"unknown channel", WSMessage{Type: WSTypeSubscribe, ID: "a", Payload: WSSubscribePayload{Channels: []string{"device.deleted"}}}},
		{"missing payload", WSMessage{Type: WSTypeSubscribe, ID: "b"}},
		{"empty channels", WSMessage{Type: WSTypeUnsubscribe, ID: "c", Payload: WSSubscribePayload{}}},
		{"unknown type", WSMessage{Type: "command", ID: "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteJSON(tt.msg); err != nil {
				t.Fatalf("WriteJSON: %v", err)
			}
			if resp := readMessage(t, conn); resp.Type != WSTypeError || resp.ID != tt.msg.ID {
				t.Errorf("response = %+v, want error for %s", resp, tt.msg.ID)
			}
		})
	}
}

func TestWebSocket_Unsubscribe(t *testing.T) {
	srv, _ := testServer(t, "")

	conn, _, err := dialWS(t, srv, "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	channels := WSSubscribePayload{Channels: []string{ChannelSaunaState}}
	if err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: channels}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	readMessage(t, conn) // response
	readMessage(t, conn) // snapshot

	if err := conn.WriteJSON(WSMessage{Type: WSTypeUnsubscribe, ID: "2", Payload: channels}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if resp := readMessage(t, conn); resp.Type != WSTypeResponse || resp.ID != "2" {
		t.Fatalf("response = %+v, want unsubscribe response", resp)
	}

	srv.hub.BroadcastStatus(klafs.Status{SaunaID: "364cc9db"})
	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if resp := readMessage(t, conn); resp.Type != WSTypePong {
		t.Errorf("next message = %+v, want pong (no event after unsubscribe)", resp)
	}
}

func TestHub_RunClosesClients(t *testing.T) {
	hub := NewHub(logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelSaunaState: {}},
	}
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, ok := <-client.send; ok {
		t.Error("send queue still open after shutdown")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("clients = %d after shutdown", hub.ClientCount())
	}

	// Late broadcasts and unregisters must not panic.
	hub.BroadcastStatus(klafs.Status{})
	hub.Unregister(client)
}
