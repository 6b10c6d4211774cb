package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/klafs-vdc/internal/bridges/klafs"
)

// WSClient is one WebSocket connection.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn

	// send is the outbound queue drained by writePump. It is closed
	// exactly once, under mu, and closed is set at the same time.
	send   chan []byte
	closed bool

	mu            sync.RWMutex
	subscriptions map[string]struct{}

	// snapshot returns the status sent to new state subscribers.
	snapshot func() klafs.Status
}

// wsRequest is an inbound frame; the payload is decoded per type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// enqueue queues data for writing. It reports false if the client is gone
// or its queue is full.
func (c *WSClient) enqueue(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) closeQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// shutdown closes the queue and the socket during hub shutdown.
func (c *WSClient) shutdown() {
	c.closeQueue()
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) extendReadDeadline() error {
	return c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	//nolint:errcheck // best-effort deadline
	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error { return c.extendReadDeadline() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // best-effort deadline
		c.extendReadDeadline()
		c.dispatch(data)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind = websocket.TextMessage
			data []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				//nolint:errcheck // best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			data = msg
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		//nolint:errcheck // a failed deadline surfaces as a write error
		c.conn.SetWriteDeadline(time.Now().Add(wsPongWait))
		if err := c.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}

func (c *WSClient) dispatch(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.subscribe(req)
	case WSTypeUnsubscribe:
		c.unsubscribe(req)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.reply(req.ID, WSTypeError, errorPayload("unknown message type: "+req.Type))
	}
}

func (c *WSClient) channels(req wsRequest) ([]string, bool) {
	var p WSSubscribePayload
	if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &p) != nil || len(p.Channels) == 0 {
		c.reply(req.ID, WSTypeError, errorPayload("payload.channels is required"))
		return nil, false
	}
	return p.Channels, true
}

func (c *WSClient) subscribe(req wsRequest) {
	channels, ok := c.channels(req)
	if !ok {
		return
	}
	for _, ch := range channels {
		if _, known := knownChannels[ch]; !known {
			c.reply(req.ID, WSTypeError, errorPayload("unknown channel: "+ch))
			return
		}
	}

	c.mu.Lock()
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket client subscribed", "channels", channels)
	c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": channels})

	if c.snapshot == nil {
		return
	}
	for _, ch := range channels {
		if ch == ChannelSaunaState {
			if data, err := encodeEvent(ChannelSaunaState, c.snapshot()); err == nil {
				c.enqueue(data)
			}
			return
		}
	}
}

func (c *WSClient) unsubscribe(req wsRequest) {
	channels, ok := c.channels(req)
	if !ok {
		return
	}

	c.mu.Lock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()

	c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": channels})
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: wsTimestamp(),
		Payload:   payload,
	})
	if err == nil {
		c.enqueue(data)
	}
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}
