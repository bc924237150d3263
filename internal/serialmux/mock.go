package serialmux

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/engine/dtw"
	"github.com/banshee-data/gesture.arbiter/internal/timeutil"
)

// MockOptions shapes the synthetic stream of a MockIMUPort.
type MockOptions struct {
	Interval time.Duration // between gyro lines, default 16ms
	Entries  int           // gyro lines per gesture, default 60
	Pause    time.Duration // idle time between gestures, default 1s
	Shapes   []int         // gesture indices to cycle, default Heart, Down, C
	Noise    float64       // jitter magnitude, default 0.05
	Seed     int64
	Clock    timeutil.Clock
}

func (o MockOptions) withDefaults() MockOptions {
	if o.Interval <= 0 {
		o.Interval = 16 * time.Millisecond
	}
	if o.Entries <= 0 {
		o.Entries = 60
	}
	if o.Pause <= 0 {
		o.Pause = time.Second
	}
	if len(o.Shapes) == 0 {
		o.Shapes = []int{gesture.Heart, gesture.Down, gesture.C}
	}
	if o.Noise == 0 {
		o.Noise = 0.05
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	return o
}

// MockIMUPort is a SerialPorter that plays built-in gesture shapes as
// trigger-framed gyro lines and records the commands written to it.
type MockIMUPort struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	opts MockOptions

	mu       sync.Mutex
	commands []string
	stop     chan struct{}
	once     sync.Once
}

// NewMockIMUPort starts the synthetic stream.
func NewMockIMUPort(opts MockOptions) *MockIMUPort {
	r, w := io.Pipe()
	p := &MockIMUPort{r: r, w: w, opts: opts.withDefaults(), stop: make(chan struct{})}
	go p.run()
	return p
}

// NewMockSerialMux returns a mux over a fresh MockIMUPort.
func NewMockSerialMux(opts MockOptions) *SerialMux[*MockIMUPort] {
	p := NewMockIMUPort(opts)
	return NewSerialMux(p, StreamOptions{Interval: p.opts.Interval})
}

func (p *MockIMUPort) run() {
	defer p.w.Close()
	rng := rand.New(rand.NewSource(p.opts.Seed))
	ticker := p.opts.Clock.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	dtMs := float32(p.opts.Interval) / float32(time.Millisecond)

	for i := 0; ; i++ {
		shape := p.opts.Shapes[i%len(p.opts.Shapes)]
		entries := dtw.Jitter(dtw.Shape(shape, p.opts.Entries, dtMs, 2.0), rng, p.opts.Noise)

		if !p.emit("T,1") {
			return
		}
		for _, e := range entries {
			select {
			case <-ticker.C():
			case <-p.stop:
				return
			}
			r := e.Rotation()
			if !p.emit(fmt.Sprintf("G,%.1f,%.4f,%.4f,%.4f", dtMs, r[0], r[1], r[2])) {
				return
			}
		}
		if !p.emit("T,0") {
			return
		}

		select {
		case <-p.opts.Clock.After(p.opts.Pause):
		case <-p.stop:
			return
		}
	}
}

func (p *MockIMUPort) emit(line string) bool {
	select {
	case <-p.stop:
		return false
	default:
	}
	_, err := io.WriteString(p.w, line+"\n")
	return err == nil
}

func (p *MockIMUPort) Read(b []byte) (int, error) { return p.r.Read(b) }

// Write records newline-separated commands.
func (p *MockIMUPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sc := bufio.NewScanner(strings.NewReader(string(b)))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			p.commands = append(p.commands, line)
		}
	}
	return len(b), nil
}

// Commands returns every command written so far.
func (p *MockIMUPort) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.commands...)
}

func (p *MockIMUPort) Close() error {
	p.once.Do(func() {
		close(p.stop)
		p.r.Close()
	})
	return nil
}
