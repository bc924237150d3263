package training

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/engine"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/engine/enginetest"
)

var slot = gesture.Indexed(1)

func sampleOf(n int) gesture.Sample {
	s := gesture.Sample{ID: gesture.SampleID(n)}
	for i := 0; i < n; i++ {
		s.Entries = append(s.Entries, gesture.NewEntry(float32(i*16), 1, 0, 0))
	}
	return s
}

// scripted replays a fixed list of train results.
type scripted struct {
	steps []engine.TrainResult
	weak  []gesture.SecurityLevel
}

func (sc *scripted) fake() *enginetest.Fake {
	return &enginetest.Fake{
		TrainFn: func(l gesture.Label, _ gesture.Sample, weak engine.WeakSecurityFunc) engine.TrainResult {
			for _, lvl := range sc.weak {
				weak(lvl)
			}
			r := sc.steps[0]
			sc.steps = sc.steps[1:]
			r.Label = l
			return r
		},
	}
}

func engineErr() *gesture.EngineError { return gesture.NewEngineError(-210) }

func TestTrain_ThreeConsecutiveFailuresDeleteOnce(t *testing.T) {
	sc := &scripted{steps: []engine.TrainResult{
		{Progress: 0.2},
		{Progress: 0.4},
		{Progress: 0.6},
		{Progress: 0.6, Err: engineErr()},
		{Progress: 0.6, Err: engineErr()},
		{Progress: 0.6, Err: engineErr()},
	}}
	fake := sc.fake()
	tr := New(fake, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := tr.Train(ctx, slot, sampleOf(60))
		require.NoError(t, err)
		assert.Nil(t, out.Err)
	}

	out, err := tr.Train(ctx, slot, sampleOf(60))
	require.NoError(t, err)
	assert.NotNil(t, out.Err)
	assert.Equal(t, 0.6, out.Progress)
	assert.Equal(t, 1, tr.FailCount())

	_, err = tr.Train(ctx, slot, sampleOf(60))
	require.NoError(t, err)
	assert.Equal(t, 2, tr.FailCount())
	assert.Equal(t, 0, fake.Count(enginetest.OpDeleteLabel))

	out, err = tr.Train(ctx, slot, sampleOf(60))
	require.NoError(t, err)
	assert.True(t, out.Deleted)
	assert.Equal(t, 0.0, out.Progress)
	assert.Equal(t, 0, tr.FailCount())
	assert.Equal(t, 1, fake.Count(enginetest.OpDeleteLabel))
	assert.Equal(t, []gesture.Label{slot}, fake.Deleted())
}

func TestTrain_FailureBeforeHalfwayResets(t *testing.T) {
	sc := &scripted{steps: []engine.TrainResult{
		{Progress: 0.2},
		{Progress: 0.2, Err: engineErr()},
	}}
	fake := sc.fake()
	tr := New(fake, Options{})

	_, err := tr.Train(context.Background(), slot, sampleOf(60))
	require.NoError(t, err)
	out, err := tr.Train(context.Background(), slot, sampleOf(60))
	require.NoError(t, err)

	assert.True(t, out.Deleted)
	assert.Equal(t, 0.0, out.Progress)
	assert.Equal(t, 1, fake.Count(enginetest.OpDeleteLabel))
}

func TestTrain_ShortSampleIsTooFewWord(t *testing.T) {
	sc := &scripted{steps: []engine.TrainResult{
		{Progress: 0.2},
		{Progress: 0.4},
		{Progress: 0.6},
		{Progress: 0.6, Err: engineErr()},
	}}
	tr := New(sc.fake(), Options{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := tr.Train(ctx, slot, sampleOf(100))
		require.NoError(t, err)
	}

	// 40 < 0.65 * 100
	out, err := tr.Train(ctx, slot, sampleOf(40))
	require.NoError(t, err)
	require.NotNil(t, out.Err)
	assert.Equal(t, gesture.SignTooFewWord, out.Err.Code)
	assert.Equal(t, 0.6, out.Progress)
	assert.False(t, out.Deleted)
	assert.Equal(t, 1, tr.FailCount())
}

func TestTrain_Mistouch(t *testing.T) {
	sc := &scripted{steps: []engine.TrainResult{
		{Progress: 0.2},
		{Progress: 0.2, Err: engineErr()},
	}}
	fake := sc.fake()
	tr := New(fake, Options{})

	_, err := tr.Train(context.Background(), slot, sampleOf(60))
	require.NoError(t, err)
	out, err := tr.Train(context.Background(), slot, sampleOf(30))
	require.NoError(t, err)

	require.NotNil(t, out.Err)
	assert.Equal(t, gesture.SignWithMistouch, out.Err.Code)
	assert.False(t, out.Deleted)
	assert.Equal(t, 0, fake.Count(enginetest.OpDeleteLabel))
}

func TestTrain_ErrorOnFirstSampleReportsZero(t *testing.T) {
	sc := &scripted{steps: []engine.TrainResult{{Progress: 0, Err: engineErr()}}}
	tr := New(sc.fake(), Options{})

	out, err := tr.Train(context.Background(), slot, sampleOf(60))
	require.NoError(t, err)
	assert.NotNil(t, out.Err)
	assert.Equal(t, 0.0, out.Progress)
	assert.False(t, out.Deleted)
}

func TestTrain_SuccessClearsFailures(t *testing.T) {
	sc := &scripted{steps: []engine.TrainResult{
		{Progress: 0.2},
		{Progress: 0.4},
		{Progress: 0.6},
		{Progress: 0.6, Err: engineErr()},
		{Progress: 0.8},
	}}
	tr := New(sc.fake(), Options{})
	for i := 0; i < 4; i++ {
		_, err := tr.Train(context.Background(), slot, sampleOf(60))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tr.FailCount())

	_, err := tr.Train(context.Background(), slot, sampleOf(60))
	require.NoError(t, err)
	assert.Equal(t, 0, tr.FailCount())
}

func TestTrain_WeakSignature(t *testing.T) {
	sc := &scripted{
		steps: []engine.TrainResult{{Progress: 0.2}, {Progress: 0.4}, {Progress: 0.6}},
		weak:  []gesture.SecurityLevel{gesture.SecurityPoor},
	}
	tr := New(sc.fake(), Options{})
	ctx := context.Background()

	// one weak report per accepted step never accumulates
	for i := 0; i < 3; i++ {
		out, err := tr.Train(ctx, slot, sampleOf(35))
		require.NoError(t, err)
		assert.False(t, out.Weak)
		assert.False(t, tr.IsLowSecureSignature())
	}
}

func TestTrain_WeakSignatureAcrossFailures(t *testing.T) {
	sc := &scripted{
		steps: []engine.TrainResult{
			{Progress: 0.2},
			{Progress: 0.6, Err: engineErr()},
			{Progress: 0.6, Err: engineErr()},
			{Progress: 0.8},
		},
	}
	tr := New(sc.fake(), Options{})
	ctx := context.Background()

	out, err := tr.Train(ctx, slot, sampleOf(35))
	require.NoError(t, err)
	assert.False(t, out.Weak)

	// two weak reports on a rejected step stay under the threshold
	sc.weak = []gesture.SecurityLevel{gesture.SecurityPoor, gesture.SecurityPoor}
	out, err = tr.Train(ctx, slot, sampleOf(35))
	require.NoError(t, err)
	assert.False(t, out.Weak)
	assert.False(t, tr.IsLowSecureSignature())

	// the third crosses it during the next rejected step
	sc.weak = []gesture.SecurityLevel{gesture.SecurityPoor}
	out, err = tr.Train(ctx, slot, sampleOf(35))
	require.NoError(t, err)
	assert.True(t, out.Weak)
	assert.True(t, tr.IsLowSecureSignature())

	// an accepted step clears it
	sc.weak = nil
	out, err = tr.Train(ctx, slot, sampleOf(35))
	require.NoError(t, err)
	assert.False(t, out.Weak)
	assert.False(t, tr.IsLowSecureSignature())
}

func TestTrain_BindingError(t *testing.T) {
	fake := &enginetest.Fake{Err: engine.ErrEngineTimeout}
	tr := New(fake, Options{})
	_, err := tr.Train(context.Background(), slot, sampleOf(60))
	assert.ErrorIs(t, err, engine.ErrEngineTimeout)
}
