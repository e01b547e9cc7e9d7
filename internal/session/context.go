package session

import (
	"sync"

	"github.com/dtiendzai123/newheadlockengine/pkg/core"
)

// Context holds the current host session and the latest viewer pose.
// The feed writes from its read goroutine; the tick loop reads.
type Context struct {
	mu      sync.RWMutex
	session *core.Session
	viewer  *core.ViewerState
}

// NewContext creates a Context with default values.
func NewContext() *Context {
	return &Context{
		session: &core.Session{SessionName: "No session attached"},
	}
}

// Session returns the current session.
func (c *Context) Session() *core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SetSession replaces the current session.
func (c *Context) SetSession(s *core.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

// Viewer returns the latest viewer pose and whether one has been received.
func (c *Context) Viewer() (core.ViewerState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.viewer == nil {
		return core.ViewerState{}, false
	}
	return *c.viewer, true
}

// SetViewer replaces the latest viewer pose.
func (c *Context) SetViewer(v core.ViewerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewer = &v
}

// ClearViewer drops the viewer pose. The feed calls this when its stream
// breaks so consumers stop acting on a stale pose.
func (c *Context) ClearViewer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewer = nil
}
