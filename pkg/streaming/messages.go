package streaming

import (
	"encoding/json"

	"github.com/dtiendzai123/newheadlockengine/pkg/core"
)

// Message type constants matching the host-extension streaming protocol.
const (
	TypeSessionStart = "session_start"
	TypeSessionEnd   = "session_end"
	TypeEntityState  = "entity_state"
	TypeViewerState  = "viewer_state"
	TypeControl      = "control"
	TypeAimDelta     = "aim_delta"
	TypeFire         = "fire"
	TypeAck          = "ack"
)

// Envelope wraps every message sent in either direction.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the peer's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"`
	For  string `json:"for"`
	OK   bool   `json:"ok"`
}

// SessionStartMessage announces the host session the feed belongs to.
type SessionStartMessage struct {
	Session core.Session `json:"session"`
}

// EntityRecord is one entity snapshot on the wire. Coordinate triples
// are "x,y,z" strings, matching the host's serializer. Optional fields
// are empty strings / nil when the host has nothing to report.
type EntityRecord struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Alive    bool   `json:"alive"`
	IsPlayer bool   `json:"isPlayer"`

	Position string `json:"position"`
	Velocity string `json:"velocity,omitempty"`

	Health    *float64 `json:"health,omitempty"`
	MaxHealth *float64 `json:"maxHealth,omitempty"`

	Head      string            `json:"head,omitempty"`
	Skeleton  map[string]string `json:"skeleton,omitempty"`
	BoundsMin string            `json:"boundsMin,omitempty"`
	BoundsMax string            `json:"boundsMax,omitempty"`
	SizeHint  *float64          `json:"sizeHint,omitempty"`
}

// EntityStateMessage is a batch of entity snapshots for one host frame.
type EntityStateMessage struct {
	Frame    uint64         `json:"frame"`
	Entities []EntityRecord `json:"entities"`
}

// ViewerStateMessage carries the observer pose for the same frame.
type ViewerStateMessage struct {
	EntityID  string `json:"entityId"`
	Position  string `json:"position"`
	Direction string `json:"direction"`
}

// ControlMessage is a control-plane command routed to the dispatcher.
type ControlMessage struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// AimDeltaMessage is the per-tick aim adjustment sent to the host injector.
type AimDeltaMessage struct {
	Delta     core.AimDelta `json:"delta"`
	Timestamp int64         `json:"timestamp"`
}

// FireMessage is the discrete trigger signal sent to the host injector.
type FireMessage struct {
	Timestamp int64 `json:"timestamp"`
}
