// Package serialmux shares one IMU serial connection between several
// readers. Every line the device prints is fanned out to all subscribers,
// and commands from any caller are written to the device one at a time.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

var ErrWriteFailed = errors.New("short write to serial port")

// subscriberBuffer is sized for several hundred milliseconds of gyro lines
// at the default stream rate.
const subscriberBuffer = 256

// SerialMuxInterface is what the capture layer and the HTTP server need
// from a multiplexer.
type SerialMuxInterface interface {
	// Subscribe returns an id and a channel of device lines. Lines are
	// dropped for a subscriber whose buffer is full.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	SendCommand(string) error
	// Monitor reads lines until ctx ends or the port fails.
	Monitor(context.Context) error
	Close() error

	// Initialize configures the device stream.
	Initialize() error

	// AttachAdminRoutes registers the /debug/ serial console.
	AttachAdminRoutes(*http.ServeMux)
}

// StreamOptions is the device stream configuration sent by Initialize.
type StreamOptions struct {
	Interval time.Duration // gyro sample interval, default 16ms
}

func (o StreamOptions) rateHz() int {
	if o.Interval <= 0 {
		o.Interval = 16 * time.Millisecond
	}
	hz := int(time.Second / o.Interval)
	if hz < 1 {
		hz = 1
	}
	return hz
}

// SerialMux multiplexes a port of type T.
type SerialMux[T SerialPorter] struct {
	port   T
	stream StreamOptions
	now    func() time.Time

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
	commandMu    sync.Mutex
	closed       bool
}

// NewSerialMux wraps port.
func NewSerialMux[T SerialPorter](port T, stream StreamOptions) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		stream:      stream,
		now:         time.Now,
		subscribers: make(map[string]chan string),
	}
}

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closed {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialize stamps the device clock and selects the gyro and trigger
// streams in CSV form.
func (s *SerialMux[T]) Initialize() error {
	if err := s.SendCommand(fmt.Sprintf("SYNC=%d", s.now().UnixMilli())); err != nil {
		return fmt.Errorf("failed to synchronize clock: %w", err)
	}
	for _, command := range []string{
		"RESET",                                   // factory defaults
		"FMT=CSV",                                 // G,<dt>,<x>,<y>,<z> lines
		fmt.Sprintf("RATE=%d", s.stream.rateHz()), // gyro rate in Hz
		"GYRO=1",                                  // angular velocity stream
		"TRIG=1",                                  // trigger button edges
	} {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand writes command followed by a newline.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor scans the port in a helper goroutine so the loop can also watch
// ctx.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- strings.TrimSpace(scan.Text()):
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErr <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return err
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if line == "" {
				continue
			}
			s.broadcast(line)
		}
	}
}

func (s *SerialMux[T]) broadcast(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closed {
		return
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.subscriberMu.Lock()
	if s.closed {
		s.subscriberMu.Unlock()
		return nil
	}
	s.closed = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}
