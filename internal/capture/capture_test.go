package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/serialmux"
	"github.com/banshee-data/gesture.arbiter/internal/timeutil"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// scriptedSource hands out readings in order and signals every poll.
type scriptedSource struct {
	mu       sync.Mutex
	readings [][3]float32
	polled   chan struct{}
}

func (s *scriptedSource) AngularVelocity() (x, y, z float32, ok bool) {
	defer func() { s.polled <- struct{}{} }()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.readings) == 0 {
		return 0, 0, 0, false
	}
	r := s.readings[0]
	s.readings = s.readings[1:]
	return r[0], r[1], r[2], true
}

func waitTicker(t *testing.T, clock *timeutil.MockClock, n int) *timeutil.MockTicker {
	t.Helper()
	require.Eventually(t, func() bool { return len(clock.Tickers()) >= n }, time.Second, time.Millisecond)
	return clock.Tickers()[n-1]
}

func TestSamplerRecordsEntriesWhileRunning(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	src := &scriptedSource{
		readings: [][3]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}},
		polled:   make(chan struct{}, 8),
	}
	s := NewSampler(src, clock, 0, gesture.NewIDSource(clock))

	var draws []bool
	s.OnDraw = func(start bool) { draws = append(draws, start) }

	s.Start()
	assert.True(t, s.Capturing())
	ticker := waitTicker(t, clock, 1)
	for i := 1; i <= 3; i++ {
		ticker.Trigger(epoch.Add(time.Duration(i) * DefaultInterval))
		<-src.polled
	}
	s.Stop()
	assert.False(t, s.Capturing())
	assert.True(t, ticker.Stopped())

	select {
	case sample := <-s.Samples():
		require.Len(t, sample.Entries, 3)
		assert.NotZero(t, sample.ID)
		assert.Equal(t, gesture.NewEntry(0, 1, 2, 3), sample.Entries[0])
		assert.Equal(t, gesture.NewEntry(16, 4, 5, 6), sample.Entries[1])
		assert.Equal(t, [3]float32{7, 8, 9}, sample.Entries[2].Rotation())
	case <-time.After(time.Second):
		t.Fatal("no sample emitted")
	}
	assert.Equal(t, []bool{true, false}, draws)
}

func TestSamplerDropsEmptyCapture(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	src := &scriptedSource{polled: make(chan struct{}, 8)}
	s := NewSampler(src, clock, time.Millisecond, nil)

	s.Start()
	ticker := waitTicker(t, clock, 1)
	ticker.Trigger(epoch.Add(time.Millisecond))
	<-src.polled
	s.Stop()

	select {
	case sample := <-s.Samples():
		t.Fatalf("unexpected sample %v", sample.ID)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSamplerStartStopIdempotent(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	s := NewSampler(&scriptedSource{polled: make(chan struct{}, 8)}, clock, 0, nil)
	s.Stop()
	s.Start()
	s.Start()
	waitTicker(t, clock, 1)
	s.Stop()
	s.Stop()
	assert.Len(t, clock.Tickers(), 1)
}

type signalling struct {
	MotionSource
	polled chan struct{}
}

func (s signalling) AngularVelocity() (x, y, z float32, ok bool) {
	defer func() { s.polled <- struct{}{} }()
	return s.MotionSource.AngularVelocity()
}

// chanMux is a SerialMuxInterface whose lines come from a test channel.
type chanMux struct {
	serialmux.DisabledSerialMux
	lines        chan string
	unsubscribed chan string
}

func (m *chanMux) Subscribe() (string, chan string) { return "test", m.lines }
func (m *chanMux) Unsubscribe(id string)            { m.unsubscribed <- id }

func TestSerialSourceDrivesSampler(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	mux := &chanMux{lines: make(chan string), unsubscribed: make(chan string, 1)}
	src := NewSerialSource(mux)
	polled := make(chan struct{}, 8)
	s := NewSampler(signalling{src, polled}, clock, 0, nil)
	src.Attach(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- src.Run(ctx) }()

	mux.lines <- "G,16,9,9,9"
	mux.lines <- "T,1"
	ticker := waitTicker(t, clock, 1)

	// the reading from before the press is discarded
	_, _, _, ok := src.AngularVelocity()
	assert.False(t, ok)

	mux.lines <- "G,16,0.5,-1,2"
	mux.lines <- "bogus"
	mux.lines <- `{"battery":80}`
	mux.lines <- "G,16,nope,1,1"
	require.Eventually(t, func() bool { return src.Malformed() == 1 }, time.Second, time.Millisecond)
	ticker.Trigger(epoch.Add(DefaultInterval))
	<-polled
	mux.lines <- "T,0"

	select {
	case sample := <-s.Samples():
		require.Len(t, sample.Entries, 1)
		assert.Equal(t, [3]float32{0.5, -1, 2}, sample.Entries[0].Rotation())
	case <-time.After(time.Second):
		t.Fatal("no sample emitted")
	}
	assert.Equal(t, 80.0, src.Status()["battery"])

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Equal(t, "test", <-mux.unsubscribed)
}

func TestSerialSourceReturnsWhenSubscriptionCloses(t *testing.T) {
	mux := &chanMux{lines: make(chan string), unsubscribed: make(chan string, 1)}
	src := NewSerialSource(mux)
	close(mux.lines)
	assert.NoError(t, src.Run(context.Background()))
}
