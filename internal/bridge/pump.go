package bridge

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/xunzhou/rttpty/internal/debug"
	"github.com/xunzhou/rttpty/internal/jlink"
)

// State is the pump lifecycle state.
type State int32

const (
	// StateIdle is pre-discovery; the pump exists but has not run.
	StateIdle State = iota
	// StateRunning is the active data-moving loop.
	StateRunning
	// StateDraining performs the final flush after a stop request.
	StateDraining
	// StateStopped is terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Endpoint is the host-side byte stream the pump feeds. *pty.PTY
// implements it; tests substitute in-memory fakes.
type Endpoint interface {
	io.ReadWriter
	// Wait reports whether the endpoint is readable, blocking at most
	// timeout.
	Wait(timeout time.Duration) (bool, error)
	Path() string
}

// Pump timing and sizing defaults. The backoff bounds both idle CPU use
// and stop-request latency, so it stays in the low tens of milliseconds.
const (
	DefaultBackoff       = 20 * time.Millisecond
	DefaultMaxReadErrors = 10
	chunkSize            = 4096
	downStallLimit       = 50
	downStallPause       = time.Millisecond
)

// Pump moves bytes between a resolved RTT buffer pair and the endpoint.
// Single control flow: Run owns both legs; the only cross-goroutine
// interaction is the stop flag and the byte counters, all atomic.
type Pump struct {
	transport jlink.Transport
	endpoint  Endpoint
	upIndex   int
	downIndex int
	bidir     bool

	// Backoff is the idle sleep and the downstream readiness-wait
	// bound.
	Backoff time.Duration
	// MaxReadErrors caps consecutive transient transport read failures
	// before the session is abandoned.
	MaxReadErrors int

	stop  atomic.Bool
	state atomic.Int32
	rx    atomic.Uint64 // target -> host bytes
	tx    atomic.Uint64 // host -> target bytes
}

// NewPump builds a pump for the resolved up-buffer. The pump starts in
// StateIdle; Run moves it through the remaining states.
func NewPump(transport jlink.Transport, endpoint Endpoint, upIndex int) *Pump {
	return &Pump{
		transport:     transport,
		endpoint:      endpoint,
		upIndex:       upIndex,
		downIndex:     -1,
		Backoff:       DefaultBackoff,
		MaxReadErrors: DefaultMaxReadErrors,
	}
}

// EnableDownstream activates the host->target leg using the given
// down-buffer. Must be called before Run.
func (p *Pump) EnableDownstream(downIndex int) {
	p.downIndex = downIndex
	p.bidir = true
}

// RequestStop asks the loop to stop. Safe from any goroutine, including
// signal-delivery context; the loop observes it within one backoff
// interval and performs a final drain.
func (p *Pump) RequestStop() {
	p.stop.Store(true)
}

// State returns the current lifecycle state.
func (p *Pump) State() State {
	return State(p.state.Load())
}

// Counters returns total bytes moved target->host and host->target.
func (p *Pump) Counters() (rx, tx uint64) {
	return p.rx.Load(), p.tx.Load()
}

func (p *Pump) setState(s State) {
	p.state.Store(int32(s))
	debug.LogPump(s.String(), p.rx.Load(), p.tx.Load())
}

// Run executes the pump loop until a stop is requested or a hard I/O
// failure occurs on either side. It always finishes in StateStopped,
// draining one last upstream chunk on the way out. The returned error is
// nil for a requested stop and non-nil for a failure-driven one.
func (p *Pump) Run() error {
	buf := make([]byte, chunkSize)
	consecutive := 0
	var runErr error

	p.setState(StateRunning)

	for !p.stop.Load() {
		moved := false

		// Upstream leg: target -> endpoint, always active.
		n, err := p.transport.RTTRead(p.upIndex, buf)
		if err != nil {
			consecutive++
			if consecutive >= p.MaxReadErrors {
				runErr = fmt.Errorf("transport failed after %d consecutive read errors: %w", consecutive, err)
				break
			}
			time.Sleep(p.Backoff)
			continue
		}
		consecutive = 0
		if n > 0 {
			if err := writeFull(p.endpoint, buf[:n]); err != nil {
				// Consumer gone; nothing left to deliver to.
				runErr = fmt.Errorf("endpoint write failed: %w", err)
				break
			}
			p.rx.Add(uint64(n))
			moved = true
		}

		// Downstream leg: endpoint -> target, bidirectional only. The
		// readiness wait doubles as the idle backoff when the upstream
		// leg had nothing.
		if p.bidir {
			timeout := p.Backoff
			if moved {
				timeout = 0
			}
			ready, err := p.endpoint.Wait(timeout)
			if err != nil {
				runErr = fmt.Errorf("endpoint wait failed: %w", err)
				break
			}
			if ready {
				m, err := p.endpoint.Read(buf)
				if err != nil {
					runErr = fmt.Errorf("endpoint read failed: %w", err)
					break
				}
				if m > 0 {
					if err := p.writeDown(buf[:m]); err != nil {
						runErr = fmt.Errorf("down-buffer write failed: %w", err)
						break
					}
					p.tx.Add(uint64(m))
				}
			}
			continue
		}

		if !moved {
			time.Sleep(p.Backoff)
		}
	}

	p.setState(StateDraining)
	p.drain(buf)
	p.setState(StateStopped)

	return runErr
}

// drain makes one final non-blocking upstream attempt so bytes buffered
// at stop time are not lost.
func (p *Pump) drain(buf []byte) {
	n, err := p.transport.RTTRead(p.upIndex, buf)
	if err != nil || n == 0 {
		return
	}
	if err := writeFull(p.endpoint, buf[:n]); err != nil {
		debug.Log("pump: drain write failed: %v", err)
		return
	}
	p.rx.Add(uint64(n))
}

// writeDown writes a chunk into the down-buffer, retrying the remainder
// on partial acceptance. Down-buffers can be far smaller than a chunk
// (tens of bytes), so short writes are the normal case, not an error.
// A write that makes no progress for downStallLimit attempts escalates.
func (p *Pump) writeDown(data []byte) error {
	stalled := 0
	for len(data) > 0 {
		n, err := p.transport.RTTWrite(p.downIndex, data)
		if err != nil {
			return err
		}
		if n == 0 {
			stalled++
			if stalled >= downStallLimit {
				return fmt.Errorf("down-buffer made no progress for %d attempts (%d bytes pending)", stalled, len(data))
			}
			time.Sleep(downStallPause)
			continue
		}
		stalled = 0
		data = data[n:]
	}
	return nil
}

// writeFull completes a short endpoint write.
func writeFull(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}
