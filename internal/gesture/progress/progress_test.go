package progress

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gesture.arbiter/internal/fsutil"
	"github.com/banshee-data/gesture.arbiter/internal/gesture"
)

func TestState_Counters(t *testing.T) {
	s := NewState()
	assert.Equal(t, int64(1), s.IncUserGestureCount(101))
	assert.Equal(t, int64(2), s.IncUserGestureCount(101))
	s.IncCommonGestureCount(102)
	s.IncFailedGestureCount(0)
	assert.Equal(t, int64(4), s.Total())
}

func TestState_CustomFlags(t *testing.T) {
	s := NewState()
	wand := gesture.Profile{Name: "wand", Sub: "v1"}

	s.EnableCustom(gesture.Indexed(103))
	s.EnableCustom(gesture.Indexed(101))
	s.EnableCustom(gesture.Named("fire", wand))
	s.EnableCustom(gesture.Label{})

	assert.True(t, s.CustomEnabled(gesture.Indexed(101)))
	assert.False(t, s.CustomEnabled(gesture.Indexed(102)))
	assert.True(t, s.CustomEnabled(gesture.Named("fire", wand)))
	assert.Equal(t, []gesture.Label{gesture.Indexed(101), gesture.Indexed(103)}, s.CustomIndexed())
	assert.Equal(t, []gesture.Label{gesture.Named("fire", wand)}, s.CustomNamed(wand))

	s.ResetCustom()
	assert.Empty(t, s.CustomIndexed())
	assert.Empty(t, s.CustomNamed(wand))
}

func TestState_CloneIsDeep(t *testing.T) {
	s := NewState()
	s.IncUserGestureCount(1)
	c := s.Clone()
	c.IncUserGestureCount(1)
	assert.Equal(t, int64(1), s.UserGestureCount[1])
	assert.Equal(t, int64(2), c.UserGestureCount[1])
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	mem := fsutil.NewMemoryFileSystem()
	store, err := NewFileStore(mem, dir, "")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	s := NewState()
	s.TrainProgress[3] = 0.6
	s.EnableCustom(gesture.Indexed(101))
	s.UsePredefinedUserGesture["fire"] = true
	s.IncFailedGestureCount(0)
	require.NoError(t, store.Save(ctx, s))

	assert.Equal(t, []string{store.Path()}, mem.Files())

	got, err := store.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(nil, dir, "state.json")
	require.NoError(t, err)

	s := NewState()
	s.IncCommonGestureCount(102)
	require.NoError(t, store.Save(context.Background(), s))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CommonGestureCount[102])
	assert.NotNil(t, got.UseUserGesture)
}

func TestFileStore_RejectsEscape(t *testing.T) {
	_, err := NewFileStore(nil, t.TempDir(), "../escape.json")
	assert.Error(t, err)
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	mem := fsutil.NewMemoryFileSystem()
	store, err := NewFileStore(mem, dir, "")
	require.NoError(t, err)
	require.NoError(t, mem.MkdirAll(dir, 0o755))
	require.NoError(t, mem.WriteFile(store.Path(), []byte("{not json"), 0o644))

	_, err = store.Load(context.Background())
	assert.Error(t, err)
}
