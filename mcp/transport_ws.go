package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// WebSocketTransport carries JSON-RPC messages over one accepted
// websocket connection. Writes are serialized; the server loop is the
// sole reader.
type WebSocketTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// NewWebSocketTransport wraps an accepted websocket connection.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

// Send writes one message as a text frame.
func (t *WebSocketTransport) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.isClosed() {
		return fmt.Errorf("websocket transport is closed")
	}
	return t.conn.Write(ctx, websocket.MessageText, body)
}

// Receive reads the next text frame.
func (t *WebSocketTransport) Receive(ctx context.Context) (*Message, error) {
	if t.isClosed() {
		return nil, fmt.Errorf("websocket transport is closed")
	}

	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// Close closes the connection with a normal closure status.
func (t *WebSocketTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close(websocket.StatusNormalClosure, "closing")
}

func (t *WebSocketTransport) isClosed() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.closed
}
