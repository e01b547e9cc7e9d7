package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtiendzai123/newheadlockengine/internal/aimlock"
	"github.com/dtiendzai123/newheadlockengine/internal/cache"
	"github.com/dtiendzai123/newheadlockengine/internal/controller"
	"github.com/dtiendzai123/newheadlockengine/internal/detector"
	"github.com/dtiendzai123/newheadlockengine/internal/logging"
	"github.com/dtiendzai123/newheadlockengine/internal/session"
	"github.com/dtiendzai123/newheadlockengine/internal/sink"
	"github.com/dtiendzai123/newheadlockengine/pkg/core"
	"github.com/dtiendzai123/newheadlockengine/pkg/vmath"
)

func newTestDeps(t *testing.T) (Dependencies, *controller.Controller) {
	t.Helper()

	det, err := detector.New(detector.DefaultConfig())
	require.NoError(t, err)
	lock, err := aimlock.New(aimlock.DefaultConfig())
	require.NoError(t, err)
	ctl, err := controller.New(controller.DefaultConfig(), det, lock, sink.NewNullDriver(nil))
	require.NoError(t, err)

	lm := logging.NewSlogManager()
	lm.Setup(os.Stderr, "error", nil)

	return Dependencies{
		LogManager: lm,
		Session:    session.NewContext(),
		Controller: func() *controller.Controller { return ctl },
		Cache:      cache.NewEntityCache(),
		StatusDir:  t.TempDir(),
	}, ctl
}

func TestSnapshot_Idle(t *testing.T) {
	deps, _ := newTestDeps(t)
	s := NewService(deps)

	st := s.Snapshot()

	assert.False(t, st.Active)
	assert.False(t, st.Locked)
	assert.Empty(t, st.TrackedEntity)
	assert.Equal(t, 0, st.CachedEntities)
	assert.Equal(t, "No session attached", st.Session.SessionName)
	assert.False(t, st.Time.IsZero())
}

func TestSnapshot_ReflectsPipelineState(t *testing.T) {
	deps, ctl := newTestDeps(t)
	s := NewService(deps)

	deps.Session.SetSession(&core.Session{SessionName: "duel_4", WorldName: "arena"})

	pos := vmath.New(0, 0, 10)
	deps.Cache.Upsert(&core.Entity{ID: "u1", Type: "enemy", Alive: true, Position: &pos})
	deps.Cache.Upsert(&core.Entity{ID: "u2", Type: "teammate", Alive: true, Position: &pos})

	ctl.Activate()
	viewer := core.ViewerState{Direction: vmath.New(0, 0, 1)}
	ctl.Tick(viewer, deps.Cache.Snapshot())

	st := s.Snapshot()
	assert.True(t, st.Active)
	assert.True(t, st.Locked)
	assert.Equal(t, "u1", st.TrackedEntity)
	assert.Equal(t, 2, st.CachedEntities)
	assert.Equal(t, "duel_4", st.Session.SessionName)
	assert.Equal(t, uint64(1), st.Stats.Ticks)
	assert.Equal(t, uint64(1), st.Stats.LocksAcquired)
}

func TestService_StartWritesStatusFile(t *testing.T) {
	deps, _ := newTestDeps(t)
	s := NewService(deps)
	s.interval = 10 * time.Millisecond

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.True(t, s.IsRunning())

	path := filepath.Join(deps.StatusDir, "status.json")
	var st Status
	require.Eventually(t, func() bool {
		raw, err := os.ReadFile(path)
		if err != nil || len(raw) == 0 {
			return false
		}
		return json.Unmarshal(raw, &st) == nil
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, "No session attached", st.Session.SessionName)
	assert.False(t, st.Active)
}

func TestService_StartTwice(t *testing.T) {
	deps, _ := newTestDeps(t)
	s := NewService(deps)
	s.interval = 10 * time.Millisecond

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	s.Stop()

	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
}

func TestService_StopWithoutStart(t *testing.T) {
	deps, _ := newTestDeps(t)
	s := NewService(deps)

	s.Stop()
	assert.False(t, s.IsRunning())
}
