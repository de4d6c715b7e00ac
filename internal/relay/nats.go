package relay

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/faceflow-labs/faceflow-core/internal/bus"
	"github.com/faceflow-labs/faceflow-core/internal/protocol"
)

// NATSDialer publishes relay items over an already connected bus client.
// Keyframe records go to the keyframe subject, audio chunks to the audio
// subject, so subscribers pick the channel they want.
type NATSDialer struct {
	client *bus.Client
}

func NewNATSDialer(client *bus.Client) *NATSDialer {
	return &NATSDialer{client: client}
}

func (d *NATSDialer) Dial(ctx context.Context) (Conn, error) {
	if d.client == nil || !d.client.Healthy() {
		return nil, errors.New("bus connection not available")
	}
	return &natsConn{client: d.client}, nil
}

type natsConn struct {
	client *bus.Client
}

func (c *natsConn) WriteRecord(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Conn().Publish(protocol.SubjectKeyframe, data)
}

func (c *natsConn) WriteBinary(p []byte) error {
	return c.client.Conn().Publish(protocol.SubjectAudio, p)
}

func (c *natsConn) Close() error {
	// The bus client outlives individual relay connections.
	return nil
}
