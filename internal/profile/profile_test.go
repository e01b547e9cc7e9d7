package profile

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtiendzai123/newheadlockengine/internal/aimlock"
	"github.com/dtiendzai123/newheadlockengine/internal/controller"
	"github.com/dtiendzai123/newheadlockengine/internal/detector"
)

func defaultParams() Params {
	return Params{
		Detection:  detector.DefaultConfig(),
		AimLock:    aimlock.DefaultConfig(),
		Controller: controller.DefaultConfig(),
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	t.Cleanup(viper.Reset)
	viper.Set("profileDB.driver", "sqlite")
	viper.Set("profileDB.path", filepath.Join(t.TempDir(), "profiles.db"))

	s := NewStore(zerolog.Nop())
	require.NoError(t, s.Connect())
	require.True(t, s.IsValid)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, defaultParams().Validate())

	bad := defaultParams()
	bad.AimLock.LockStrength = 2.0
	assert.Error(t, bad.Validate())

	bad = defaultParams()
	bad.Detection.ScanRadius = -1
	assert.Error(t, bad.Validate())

	bad = defaultParams()
	bad.Controller.UpdateInterval = 0
	assert.Error(t, bad.Validate())
}

func TestStore_SaveAndLoad(t *testing.T) {
	s := newTestStore(t)

	params := defaultParams()
	params.Detection.ScanRadius = 250
	params.AimLock.Smoothing = 0.35
	require.NoError(t, s.Save("aggressive", params))

	got, err := s.Load("aggressive")
	require.NoError(t, err)
	assert.Equal(t, 250.0, got.Detection.ScanRadius)
	assert.Equal(t, 0.35, got.AimLock.Smoothing)
	assert.Equal(t, params.Controller.UpdateInterval, got.Controller.UpdateInterval)
}

func TestStore_SaveOverwrites(t *testing.T) {
	s := newTestStore(t)

	first := defaultParams()
	first.Detection.ScanRadius = 100
	require.NoError(t, s.Save("main", first))

	second := defaultParams()
	second.Detection.ScanRadius = 300
	require.NoError(t, s.Save("main", second))

	got, err := s.Load("main")
	require.NoError(t, err)
	assert.Equal(t, 300.0, got.Detection.ScanRadius)

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, names)
}

func TestStore_SaveRejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	require.Error(t, s.Save("", defaultParams()))

	bad := defaultParams()
	bad.AimLock.LockStrength = -1
	require.Error(t, s.Save("broken", bad))

	names, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_List(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("charlie", defaultParams()))
	require.NoError(t, s.Save("alpha", defaultParams()))
	require.NoError(t, s.Save("bravo", defaultParams()))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("doomed", defaultParams()))
	require.NoError(t, s.Delete("doomed"))

	_, err := s.Load("doomed")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, s.Delete("doomed"))
}

func TestStore_CloseWithoutConnect(t *testing.T) {
	s := NewStore(zerolog.Nop())
	assert.NoError(t, s.Close())
}
