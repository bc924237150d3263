package manager

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gesture.arbiter/internal/config"
	"github.com/banshee-data/gesture.arbiter/internal/fsutil"
	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/arbiter"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/engine"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/engine/enginetest"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/progress"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/training"
	"github.com/banshee-data/gesture.arbiter/internal/timeutil"
)

var (
	heart = gesture.Indexed(gesture.Heart)
	down  = gesture.Indexed(gesture.Down)
	wand  = gesture.Profile{Name: "wand", Sub: "v1"}
)

func sample(id int64) gesture.Sample {
	s := gesture.Sample{ID: gesture.SampleID(id)}
	for i := 0; i < 40; i++ {
		s.Entries = append(s.Entries, gesture.NewEntry(float32(i*16), float32(id), 0, 0))
	}
	return s
}

type recorder struct {
	NopObserver
	trigger   func(*TriggerArgs)
	smart     []arbiter.Decision
	named     []arbiter.Decision
	trained   []training.Outcome
	added     []map[gesture.Label]int
	sigMatch  []bool
	onSmart   func()
	predefHit []gesture.Label
}

func (r *recorder) OnGestureTriggered(_ gesture.SampleID, args *TriggerArgs) {
	if r.trigger != nil {
		r.trigger(args)
	}
}

func (r *recorder) OnSmartIdentifyMatch(_ gesture.SampleID, d arbiter.Decision) {
	r.smart = append(r.smart, d)
	if r.onSmart != nil {
		r.onSmart()
	}
}

func (r *recorder) OnSmartIdentifyDeveloperDefinedMatch(_ gesture.SampleID, d arbiter.Decision) {
	r.named = append(r.named, d)
}

func (r *recorder) OnPlayerSignatureTrained(_ gesture.SampleID, out training.Outcome) {
	r.trained = append(r.trained, out)
}

func (r *recorder) OnPlayerGestureAdd(_ gesture.SampleID, counts map[gesture.Label]int) {
	r.added = append(r.added, counts)
}

func (r *recorder) OnPlayerSignatureMatch(_ gesture.SampleID, match bool, _ gesture.Label) {
	r.sigMatch = append(r.sigMatch, match)
}

func (r *recorder) OnDeveloperDefinedMatch(_ gesture.SampleID, l gesture.Label, _ gesture.Confidence) {
	r.predefHit = append(r.predefHit, l)
}

func newManager(t *testing.T, fake *enginetest.Fake, obs Observer, store progress.Store) *Manager {
	t.Helper()
	m, err := New(Options{
		Binding:  fake,
		Config:   config.EmptyArbiterConfig(),
		Store:    store,
		Observer: obs,
		Clock:    timeutil.NewMockClock(time.Unix(1700000000, 0)),
	})
	require.NoError(t, err)
	return m
}

// scoreByID makes the common recognizer answer the first candidate with a
// per-sample score.
func scoreByID(scores map[gesture.SampleID]gesture.CommonScore) func(gesture.Sample, []gesture.Label) engine.CommonResult {
	return func(s gesture.Sample, c []gesture.Label) engine.CommonResult {
		return engine.CommonResult{Label: c[0], Score: scores[s.ID]}
	}
}

func TestNew_RequiresBinding(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestHandleSample_SmartIdentify(t *testing.T) {
	fake := &enginetest.Fake{CommonFn: func(gesture.Sample, []gesture.Label) engine.CommonResult {
		return engine.CommonResult{Label: heart, Score: 0.95}
	}}
	rec := &recorder{}
	m := newManager(t, fake, rec, nil)
	ctx := context.Background()

	require.NoError(t, m.SetTarget(ctx, []gesture.Label{heart, down}))
	require.NoError(t, m.SetMode(ctx, gesture.ModeSmartIdentify))

	id, err := m.HandleSample(ctx, sample(7))
	require.NoError(t, err)
	assert.Equal(t, gesture.SampleID(7), id)

	require.Len(t, rec.smart, 1)
	assert.Equal(t, heart, rec.smart[0].Label)
	assert.Equal(t, 0, fake.Count(enginetest.OpClassifyCustom))

	_, ok := m.Cache().Get(7)
	assert.True(t, ok)
	assert.Equal(t, int64(1), m.Progress().CommonGestureCount[gesture.Heart])
}

func TestHandleSample_AssignsID(t *testing.T) {
	m := newManager(t, &enginetest.Fake{}, nil, nil)
	s := sample(0)
	s.ID = 0
	id, err := m.HandleSample(context.Background(), s)
	require.NoError(t, err)
	assert.NotZero(t, id)
	_, ok := m.Cache().Get(id)
	assert.True(t, ok)
}

func TestHandleSample_Empty(t *testing.T) {
	m := newManager(t, &enginetest.Fake{}, nil, nil)
	_, err := m.HandleSample(context.Background(), gesture.Sample{ID: 1})
	assert.ErrorIs(t, err, ErrEmptySample)
	assert.Equal(t, 0, m.Cache().Len())
}

func TestHandleSample_TriggerCancels(t *testing.T) {
	fake := &enginetest.Fake{}
	rec := &recorder{trigger: func(a *TriggerArgs) { a.Continue = false }}
	m := newManager(t, fake, rec, nil)
	ctx := context.Background()
	require.NoError(t, m.SetTarget(ctx, []gesture.Label{heart}))
	require.NoError(t, m.SetMode(ctx, gesture.ModeSmartIdentify))

	_, err := m.HandleSample(ctx, sample(1))
	require.NoError(t, err)
	assert.Equal(t, 0, fake.Count(enginetest.OpClassifyCommon))
	assert.Equal(t, 1, m.Cache().Len())
}

func TestHandleSample_TriggerRedirects(t *testing.T) {
	fake := &enginetest.Fake{}
	rec := &recorder{trigger: func(a *TriggerArgs) {
		a.Mode = gesture.ModeIdentifyPlayerSignature
		a.Targets = []gesture.Label{gesture.Indexed(1)}
	}}
	m := newManager(t, fake, rec, nil)
	require.NoError(t, m.SetMode(context.Background(), gesture.ModeSmartIdentify))

	_, err := m.HandleSample(context.Background(), sample(1))
	require.NoError(t, err)
	assert.Equal(t, 0, fake.Count(enginetest.OpClassifyCommon))
	assert.Equal(t, 1, fake.Count(enginetest.OpIdentifySignature))
	assert.Equal(t, []bool{false}, rec.sigMatch)
}

func TestHandleSample_ObserverMayCallBack(t *testing.T) {
	fake := &enginetest.Fake{}
	rec := &recorder{}
	m := newManager(t, fake, rec, nil)
	var seen gesture.Mode
	rec.onSmart = func() { seen = m.Mode() }

	ctx := context.Background()
	require.NoError(t, m.SetTarget(ctx, []gesture.Label{heart}))
	require.NoError(t, m.SetMode(ctx, gesture.ModeSmartIdentify))
	_, err := m.HandleSample(ctx, sample(1))
	require.NoError(t, err)
	assert.Equal(t, gesture.ModeSmartIdentify, seen)
}

func TestReplay(t *testing.T) {
	fake := &enginetest.Fake{}
	rec := &recorder{}
	m := newManager(t, fake, rec, nil)
	ctx := context.Background()

	for i := int64(1); i <= 12; i++ {
		_, err := m.HandleSample(ctx, sample(i))
		require.NoError(t, err)
	}

	err := m.Replay(ctx, gesture.ModeSmartIdentify, []gesture.Label{heart}, 1)
	assert.ErrorIs(t, err, ErrSampleUnavailable)

	require.NoError(t, m.Replay(ctx, gesture.ModeSmartIdentify, []gesture.Label{heart}, 12))
	assert.Len(t, rec.smart, 1)
}

func TestSmartTrain_FlushOnModeChange(t *testing.T) {
	fake := &enginetest.Fake{CommonFn: scoreByID(map[gesture.SampleID]gesture.CommonScore{
		1: 0.95, 2: 0.85, 3: 0.82,
	})}
	m := newManager(t, fake, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.SetTarget(ctx, []gesture.Label{heart}))
	require.NoError(t, m.SetMode(ctx, gesture.ModeSmartTrain))
	for i := int64(1); i <= 3; i++ {
		_, err := m.HandleSample(ctx, sample(i))
		require.NoError(t, err)
	}
	assert.Empty(t, fake.Sets())

	require.NoError(t, m.SetMode(ctx, gesture.ModeSmartIdentify))

	sets := fake.Sets()
	require.Len(t, sets, 1)
	assert.Equal(t, heart, sets[0].Label)
	var ids []gesture.SampleID
	for _, s := range sets[0].Samples {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []gesture.SampleID{3, 2, 1}, ids)
	assert.True(t, m.Progress().UseUserGesture[gesture.Heart])

	var stored []gesture.SampleID
	for _, s := range m.Selector().Collection()[heart] {
		stored = append(stored, s.ID)
	}
	assert.Equal(t, []gesture.SampleID{1, 2, 3}, stored)
}

func TestSmartTrain_SimilarityFilter(t *testing.T) {
	fake := &enginetest.Fake{
		CommonFn: scoreByID(map[gesture.SampleID]gesture.CommonScore{1: 0.95, 2: 0.85, 3: 0.82}),
		SimilarFn: func(_, b gesture.Sample) bool {
			return b.ID != 2
		},
	}
	m := newManager(t, fake, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.SetTarget(ctx, []gesture.Label{heart}))
	require.NoError(t, m.SetMode(ctx, gesture.ModeSmartTrain))
	for i := int64(1); i <= 3; i++ {
		_, err := m.HandleSample(ctx, sample(i))
		require.NoError(t, err)
	}
	require.NoError(t, m.SetMode(ctx, gesture.ModeNone))

	sets := fake.Sets()
	require.Len(t, sets, 1)
	require.Len(t, sets[0].Samples, 2)
	assert.Equal(t, gesture.SampleID(3), sets[0].Samples[0].ID)
	assert.Equal(t, gesture.SampleID(1), sets[0].Samples[1].ID)
}

func TestSmartTrain_TooFewSamplesDoesNotTrain(t *testing.T) {
	fake := &enginetest.Fake{CommonFn: scoreByID(map[gesture.SampleID]gesture.CommonScore{1: 0.95, 2: 0.85})}
	m := newManager(t, fake, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.SetTarget(ctx, []gesture.Label{heart}))
	require.NoError(t, m.SetMode(ctx, gesture.ModeSmartTrain))
	for i := int64(1); i <= 2; i++ {
		_, err := m.HandleSample(ctx, sample(i))
		require.NoError(t, err)
	}
	require.NoError(t, m.SetMode(ctx, gesture.ModeNone))

	assert.Empty(t, fake.Sets())
	assert.False(t, m.Progress().UseUserGesture[gesture.Heart])
}

func TestSmartTrainDeveloperDefined_FlushOnTargetChange(t *testing.T) {
	fire := gesture.Named("fire", wand)
	fake := &enginetest.Fake{
		PredefinedFn: func(s gesture.Sample, _ gesture.Profile, c []gesture.Label) engine.PredefinedResult {
			return engine.PredefinedResult{Label: c[0], Score: gesture.Confidence(0.9 + float64(s.ID)/100)}
		},
	}
	m := newManager(t, fake, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.SetClassifier(ctx, "wand", "v1"))
	require.NoError(t, m.SetDeveloperDefinedTarget(ctx, []string{"fire"}))
	require.NoError(t, m.SetMode(ctx, gesture.ModeSmartTrainDeveloperDefined))
	for i := int64(1); i <= 3; i++ {
		_, err := m.HandleSample(ctx, sample(i))
		require.NoError(t, err)
	}
	require.NoError(t, m.SetDeveloperDefinedTarget(ctx, []string{"ice"}))

	sets := fake.Sets()
	require.Len(t, sets, 1)
	assert.Equal(t, fire, sets[0].Label)
	assert.True(t, m.Progress().UsePredefinedUserGesture["fire"])
}

func TestSmartTrainDeveloperDefined_FlushOnClassifierChange(t *testing.T) {
	fire := gesture.Named("fire", wand)
	fake := &enginetest.Fake{
		PredefinedFn: func(s gesture.Sample, _ gesture.Profile, c []gesture.Label) engine.PredefinedResult {
			return engine.PredefinedResult{Label: c[0], Score: gesture.Confidence(0.9 + float64(s.ID)/100)}
		},
	}
	m := newManager(t, fake, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.SetClassifier(ctx, "wand", "v1"))
	require.NoError(t, m.SetDeveloperDefinedTarget(ctx, []string{"fire"}))
	require.NoError(t, m.SetMode(ctx, gesture.ModeSmartTrainDeveloperDefined))
	for i := int64(1); i <= 3; i++ {
		_, err := m.HandleSample(ctx, sample(i))
		require.NoError(t, err)
	}

	require.NoError(t, m.SetClassifier(ctx, "staff", "v2"))
	sets := fake.Sets()
	require.Len(t, sets, 1)
	assert.Equal(t, fire, sets[0].Label)
	assert.Len(t, sets[0].Samples, 3)
	assert.Equal(t, gesture.Profile{Name: "staff", Sub: "v2"}, m.Profile())

	// the session was closed, so a later target change has nothing to flush
	require.NoError(t, m.SetDeveloperDefinedTarget(ctx, []string{"ice"}))
	assert.Len(t, fake.Sets(), 1)
	_, n := m.Selector().Pending()
	assert.Zero(t, n)
}

func TestSmartIdentifyDeveloperDefined(t *testing.T) {
	fire := gesture.Named("fire", wand)
	fake := &enginetest.Fake{
		PredefinedFn: func(gesture.Sample, gesture.Profile, []gesture.Label) engine.PredefinedResult {
			return engine.PredefinedResult{Label: fire, Score: 1.4}
		},
	}
	rec := &recorder{}
	m := newManager(t, fake, rec, nil)
	ctx := context.Background()

	require.NoError(t, m.SetMode(ctx, gesture.ModeSmartIdentifyDeveloperDefined|gesture.ModeDeveloperDefined))
	_, err := m.HandleSample(ctx, sample(1))
	require.NoError(t, err)
	assert.Empty(t, rec.named, "no classifier yet")

	require.NoError(t, m.SetClassifier(ctx, "wand", "v1"))
	require.NoError(t, m.SetDeveloperDefinedTarget(ctx, []string{"fire", "ice"}))
	_, err = m.HandleSample(ctx, sample(2))
	require.NoError(t, err)

	require.Len(t, rec.named, 1)
	assert.Equal(t, fire, rec.named[0].Label)
	assert.Equal(t, []gesture.Label{fire}, rec.predefHit)
}

func TestTrainPlayerSignature(t *testing.T) {
	slot := gesture.Indexed(1)
	fake := &enginetest.Fake{TrainFn: func(l gesture.Label, _ gesture.Sample, _ engine.WeakSecurityFunc) engine.TrainResult {
		return engine.TrainResult{Label: l, Progress: 0.2, Security: gesture.SecurityNormal}
	}}
	rec := &recorder{}
	m := newManager(t, fake, rec, nil)
	ctx := context.Background()

	require.NoError(t, m.SetTarget(ctx, []gesture.Label{slot}))
	require.NoError(t, m.SetMode(ctx, gesture.ModeTrainPlayerSignature))
	_, err := m.HandleSample(ctx, sample(1))
	require.NoError(t, err)

	require.Len(t, rec.trained, 1)
	assert.Equal(t, 0.2, rec.trained[0].Progress)
	assert.Equal(t, 0.2, m.Progress().TrainProgress[1])
	assert.False(t, m.IsLowSecureSignature())
}

func TestPlayerGesture_AddThenSet(t *testing.T) {
	slot := gesture.Indexed(5)
	fake := &enginetest.Fake{}
	rec := &recorder{}
	m := newManager(t, fake, rec, nil)
	ctx := context.Background()

	require.NoError(t, m.SetTarget(ctx, []gesture.Label{slot}))
	require.NoError(t, m.SetMode(ctx, gesture.ModeAddPlayerGesture))
	for i := int64(1); i <= 2; i++ {
		_, err := m.HandleSample(ctx, sample(i))
		require.NoError(t, err)
	}
	require.Len(t, rec.added, 2)
	assert.Equal(t, map[gesture.Label]int{slot: 2}, rec.added[1])

	got, err := m.SetPlayerGesture(ctx, []gesture.Label{slot, gesture.Indexed(6)}, true)
	require.NoError(t, err)
	assert.Equal(t, map[gesture.Label]int{slot: 2}, got)
	assert.Empty(t, m.PendingPlayerGestures())
	require.Len(t, fake.Sets(), 1)
}

func TestDeleteAndReset(t *testing.T) {
	fake := &enginetest.Fake{}
	m := newManager(t, fake, nil, nil)
	ok, err := m.DeletePlayerRecord(context.Background(), gesture.Indexed(1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []gesture.Label{gesture.Indexed(1)}, fake.Deleted())

	m.state.EnableCustom(heart)
	m.ResetSmartTrain()
	assert.Empty(t, m.Progress().CustomIndexed())
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := progress.NewFileStore(fsutil.NewMemoryFileSystem(), dir, "")
	require.NoError(t, err)
	ctx := context.Background()

	m := newManager(t, &enginetest.Fake{}, nil, store)
	require.NoError(t, m.Load(ctx))
	m.state.EnableCustom(heart)
	m.state.IncUserGestureCount(gesture.Heart)
	require.NoError(t, m.Save(ctx))

	other := newManager(t, &enginetest.Fake{}, nil, store)
	require.NoError(t, other.Load(ctx))
	if diff := cmp.Diff(m.Progress(), other.Progress()); diff != "" {
		t.Errorf("loaded state mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestUpdateGestureStat(t *testing.T) {
	fake := &enginetest.Fake{CommonFn: scoreByID(map[gesture.SampleID]gesture.CommonScore{1: 0.95, 2: 0.95, 3: 0.95})}
	m := newManager(t, fake, nil, nil)
	ctx := context.Background()
	m.Selector().Restore(heart, []gesture.Sample{sample(1), sample(2), sample(3)})

	require.NoError(t, m.UpdateGestureStat(ctx, false))
	assert.True(t, m.Stats().Exists(gesture.Profile{}))
	assert.Equal(t, 3, fake.Count(enginetest.OpClassifyCommon))

	require.NoError(t, m.UpdateGestureStat(ctx, false))
	assert.Equal(t, 3, fake.Count(enginetest.OpClassifyCommon))
}
