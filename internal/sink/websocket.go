package sink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dtiendzai123/newheadlockengine/pkg/core"
	"github.com/dtiendzai123/newheadlockengine/pkg/streaming"
)

// Config holds WebSocket driver configuration.
type Config struct {
	URL    string
	Secret string
}

// WebSocketDriver streams aim output to the host injector endpoint.
// Deltas are fire-and-forget; fire signals wait for an ack so a dropped
// trigger is surfaced to the caller.
type WebSocketDriver struct {
	conn *connection
	cfg  Config
}

// NewWebSocketDriver creates a WebSocket-backed driver.
func NewWebSocketDriver(cfg Config, logger *slog.Logger) *WebSocketDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketDriver{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Dial connects to the injector endpoint.
func (d *WebSocketDriver) Dial() error {
	return d.conn.dial(d.cfg.URL, d.cfg.Secret)
}

// SendDelta streams one aim adjustment. Non-blocking; stale deltas are
// dropped rather than queued behind a slow connection.
func (d *WebSocketDriver) SendDelta(delta core.AimDelta) error {
	data, err := marshalEnvelope(streaming.TypeAimDelta, streaming.AimDeltaMessage{
		Delta:     delta,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	d.conn.send(data)
	return nil
}

// SendFire delivers a trigger signal and waits for the injector's ack.
func (d *WebSocketDriver) SendFire() error {
	data, err := marshalEnvelope(streaming.TypeFire, streaming.FireMessage{
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return d.conn.sendAndWait(data, streaming.TypeFire, ackTimeout)
}

// Close shuts the connection down.
func (d *WebSocketDriver) Close() error {
	return d.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
