package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ToFut/Tredy-sub001/pkg/runtime"
)

// Conn wraps one client websocket. It serializes writes and implements
// runtime.Emitter so a session can push events straight to its client.
type Conn struct {
	ID          string
	ConnectedAt time.Time

	ws     *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex
	closed  bool
}

// NewConn wraps an upgraded websocket connection
func NewConn(id string, ws *websocket.Conn, logger zerolog.Logger) *Conn {
	return &Conn{
		ID:          id,
		ConnectedAt: time.Now(),
		ws:          ws,
		logger:      logger.With().Str("client_id", id).Logger(),
	}
}

// Emit writes one event envelope to the client. Best-effort: a failed
// write is logged and dropped, the runtime never blocks on delivery.
func (c *Conn) Emit(event runtime.Event) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return
	}
	if err := c.ws.WriteJSON(event); err != nil {
		c.logger.Warn().Err(err).Str("event", event.Type).Msg("Failed to deliver event")
	}
}

// Close shuts the underlying websocket down once
func (c *Conn) Close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.ws.Close()
}

// inboundMessage is the envelope clients send. Free-text chat arrives
// either as a bare string frame or as {type, message}.
type inboundMessage struct {
	Type     string `json:"type"`
	Feedback string `json:"feedback"`
	Message  string `json:"message"`
}

// parseInbound extracts the feedback or chat text from a client frame
func parseInbound(raw []byte) (msgType, content string) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err == nil && msg.Type != "" {
		if msg.Type == "awaitingFeedback" {
			return msg.Type, msg.Feedback
		}
		return msg.Type, msg.Message
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return "", text
	}
	return "", string(raw)
}
