package core

import "time"

// Session describes the host-simulation session the extension is
// attached to.
type Session struct {
	SessionName string `json:"sessionName"`
	WorldName   string `json:"worldName"`
	HostVersion string `json:"hostVersion"`
	StartedAt   time.Time
}

// SessionStats is a read-only snapshot of the controller's cumulative
// counters. Counters are monotonic and reset only by process restart.
type SessionStats struct {
	LocksAcquired  uint64        `json:"locksAcquired"`
	Ticks          uint64        `json:"ticks"`
	ActiveTime     time.Duration `json:"activeTime"`
	LastActivation time.Time     `json:"lastActivation"`

	// LocksPerSecond is derived from LocksAcquired over ActiveTime;
	// zero when no active time has accrued.
	LocksPerSecond float64 `json:"locksPerSecond"`
}
