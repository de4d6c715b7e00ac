package relay

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// WSDialer connects to a websocket fan-out hub at a fixed address, the
// default preview endpoint is ws://localhost:2000. Keyframe records travel
// as JSON text messages, audio chunks as binary messages.
type WSDialer struct {
	URL string
}

func NewWSDialer(url string) *WSDialer {
	return &WSDialer{URL: url}
}

func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial hub %s: %w", d.URL, err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteRecord(v any) error {
	return c.conn.WriteJSON(v)
}

func (c *wsConn) WriteBinary(p []byte) error {
	return c.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
