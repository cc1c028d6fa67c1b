// Package bridge connects a resolved RTT buffer pair to a host PTY and
// owns the session lifecycle around the pump.
package bridge

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/xunzhou/rttpty/internal/debug"
	"github.com/xunzhou/rttpty/internal/jlink"
	"github.com/xunzhou/rttpty/internal/pty"
	"github.com/xunzhou/rttpty/internal/rtt"
)

// EndpointError means the host-side PTY pair could not be allocated.
type EndpointError struct {
	Err error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("failed to allocate PTY: %v", e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// Config is the fully-resolved bridge configuration. Argument parsing
// happens in the CLI; the bridge consumes final values only.
type Config struct {
	Device        string
	Serial        int
	SpeedKHz      int
	BufferName    string
	Bidirectional bool
	Spec          jlink.SearchSpec
	LinkPath      string

	// Backoff bounds idle sleeps and the downstream readiness wait.
	// Zero means DefaultBackoff.
	Backoff time.Duration
	// DetectTimeout bounds control-block detection. Zero means the
	// activator default.
	DetectTimeout time.Duration
	// SettleDelay is the post-start detection settle time. Zero means
	// the activator default.
	SettleDelay time.Duration

	// Out receives user-facing progress messages. Nil discards them.
	Out io.Writer
}

// Snapshot is a read-only view of the bridge for status display.
type Snapshot struct {
	State      State
	Device     string
	BufferName string
	UpIndex    int
	DownIndex  int
	PTYPath    string
	LinkPath   string
	RxBytes    uint64
	TxBytes    uint64
}

// Bridge orchestrates startup ordering, the pump, and exactly-once
// reverse-order teardown. One Bridge serves one run.
type Bridge struct {
	cfg     Config
	session *jlink.Session

	mu        sync.Mutex
	endpoint  *pty.PTY
	pump      *Pump
	upIndex   int
	downIndex int
	rttUp     bool

	earlyStop    atomic.Bool
	teardownOnce sync.Once
}

// New builds a bridge over an unopened probe session.
func New(session *jlink.Session, cfg Config) *Bridge {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	return &Bridge{
		cfg:       cfg,
		session:   session,
		upIndex:   -1,
		downIndex: -1,
	}
}

// Stop requests an orderly shutdown. Safe from any goroutine; it never
// performs teardown itself, it only flags the pump (or aborts a startup
// still in progress).
func (b *Bridge) Stop() {
	b.earlyStop.Store(true)
	b.mu.Lock()
	p := b.pump
	b.mu.Unlock()
	if p != nil {
		p.RequestStop()
	}
}

// InstallSignalHandlers wires INT, TERM and QUIT to Stop. The handler
// goroutine does nothing but flag the stop; teardown stays on the main
// control flow.
func (b *Bridge) InstallSignalHandlers() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-ch
		debug.Log("bridge: signal %v, requesting stop", sig)
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		b.Stop()
	}()
}

// Snapshot returns the current bridge status for display.
func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		State:      StateIdle,
		Device:     b.cfg.Device,
		BufferName: b.cfg.BufferName,
		UpIndex:    b.upIndex,
		DownIndex:  b.downIndex,
	}
	if b.endpoint != nil {
		snap.PTYPath = b.endpoint.Path()
		snap.LinkPath = b.endpoint.LinkPath()
	}
	if b.pump != nil {
		snap.State = b.pump.State()
		snap.RxBytes, snap.TxBytes = b.pump.Counters()
	}
	return snap
}

// Run executes the whole lifecycle: connect, activate, discover,
// allocate, pump, teardown. Teardown runs on every exit path, including
// startup failures past partial acquisition. The returned error is nil
// only for a clean, stop-requested shutdown.
func (b *Bridge) Run() error {
	defer b.Teardown()

	fmt.Fprintln(b.cfg.Out, "Connecting to J-Link...")
	if err := b.session.Open(jlink.Options{
		Serial:    b.cfg.Serial,
		Interface: jlink.InterfaceSWD,
		SpeedKHz:  b.cfg.SpeedKHz,
	}); err != nil {
		return err
	}
	fmt.Fprintf(b.cfg.Out, "Connected to:\n  %s\n  S/N: %d\n", b.session.ProductName(), b.session.SerialNumber())

	if b.earlyStop.Load() {
		return nil
	}

	fmt.Fprintf(b.cfg.Out, "Connecting to %s...\n", b.cfg.Device)
	if err := b.session.ConnectTarget(b.cfg.Device); err != nil {
		return err
	}

	fmt.Fprintf(b.cfg.Out, "Configuring RTT (%s)...\n", b.cfg.Spec)
	activator := rtt.NewActivator(b.session)
	if b.cfg.SettleDelay > 0 {
		activator.SettleDelay = b.cfg.SettleDelay
	}
	if b.cfg.DetectTimeout > 0 {
		activator.DetectTimeout = b.cfg.DetectTimeout
	}
	if err := activator.Activate(b.cfg.Spec); err != nil {
		return err
	}
	b.mu.Lock()
	b.rttUp = true
	b.mu.Unlock()

	if b.earlyStop.Load() {
		return nil
	}

	catalog := rtt.NewCatalog(b.session)
	up, err := catalog.FindByName(b.cfg.BufferName, jlink.Up)
	if err != nil {
		return err
	}
	fmt.Fprintf(b.cfg.Out, "Using up-buffer #%d %q (size=%d)\n", up.Index, up.Name, up.Size)

	down := jlink.BufferDescriptor{Index: -1}
	if b.cfg.Bidirectional {
		down, err = catalog.FindByName(b.cfg.BufferName, jlink.Down)
		if err != nil {
			return err
		}
		fmt.Fprintf(b.cfg.Out, "Using down-buffer #%d %q (size=%d)\n", down.Index, down.Name, down.Size)
	}

	endpoint, err := pty.New()
	if err != nil {
		return &EndpointError{Err: err}
	}
	b.mu.Lock()
	b.endpoint = endpoint
	b.upIndex = up.Index
	b.downIndex = down.Index
	b.mu.Unlock()
	fmt.Fprintf(b.cfg.Out, "PTY name is %s\n", endpoint.Path())

	if b.cfg.LinkPath != "" {
		if err := endpoint.PublishLink(b.cfg.LinkPath); err != nil {
			// Degraded but usable: the canonical path still works.
			fmt.Fprintf(os.Stderr, "Warning: %v\nContinuing without symlink...\n", err)
		} else {
			fmt.Fprintf(b.cfg.Out, "Created symlink %s -> %s\n", b.cfg.LinkPath, endpoint.Path())
		}
	}

	pump := NewPump(b.session, endpoint, up.Index)
	if b.cfg.Bidirectional {
		pump.EnableDownstream(down.Index)
	}
	if b.cfg.Backoff > 0 {
		pump.Backoff = b.cfg.Backoff
	}
	b.mu.Lock()
	b.pump = pump
	b.mu.Unlock()

	// A stop that raced startup must not strand the pump in Running.
	if b.earlyStop.Load() {
		pump.RequestStop()
	}

	fmt.Fprintln(b.cfg.Out, "RTT bridge active. Press Ctrl+C to exit.")
	return pump.Run()
}

// Teardown releases everything acquired, in reverse order: stop RTT,
// release the PTY (closes descriptors, removes the link), disconnect the
// probe. Runs at most once; every step is attempted even when an earlier
// one fails, and failures are logged, never propagated.
func (b *Bridge) Teardown() {
	b.teardownOnce.Do(func() {
		debug.LogSection("bridge teardown")

		b.mu.Lock()
		endpoint := b.endpoint
		rttUp := b.rttUp
		b.mu.Unlock()

		if rttUp {
			if err := b.session.RTTStop(); err != nil {
				debug.Log("teardown: RTT stop failed: %v", err)
			}
		}
		if endpoint != nil {
			if err := endpoint.Release(); err != nil {
				debug.Log("teardown: PTY release failed: %v", err)
			}
		}
		if err := b.session.Disconnect(); err != nil {
			debug.Log("teardown: disconnect failed: %v", err)
		}
	})
}
