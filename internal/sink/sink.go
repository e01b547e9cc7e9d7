// Package sink delivers aim deltas and fire signals to the host's input
// injector.
package sink

import (
	"log/slog"

	"github.com/dtiendzai123/newheadlockengine/pkg/core"
)

// Driver is the input-sink contract the controller emits through.
type Driver interface {
	// SendDelta delivers a two-axis aim adjustment for the current tick.
	SendDelta(delta core.AimDelta) error
	// SendFire delivers a discrete trigger signal.
	SendFire() error
	Close() error
}

// NullDriver logs emitted output instead of injecting it. Used for dry
// runs and as the fallback when no injector endpoint is configured.
type NullDriver struct {
	logger *slog.Logger
}

// NewNullDriver creates a logging-only driver.
func NewNullDriver(logger *slog.Logger) *NullDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &NullDriver{logger: logger}
}

func (d *NullDriver) SendDelta(delta core.AimDelta) error {
	d.logger.Debug("aim delta (dry run)", "yaw", delta.Yaw, "pitch", delta.Pitch)
	return nil
}

func (d *NullDriver) SendFire() error {
	d.logger.Debug("fire signal (dry run)")
	return nil
}

func (d *NullDriver) Close() error { return nil }
