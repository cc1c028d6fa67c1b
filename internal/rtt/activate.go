package rtt

import (
	"fmt"
	"time"

	"github.com/xunzhou/rttpty/internal/debug"
	"github.com/xunzhou/rttpty/internal/jlink"
)

// Activation timing. The settle delays are required behavior, not
// tuning: control-block detection races the start command, and skipping
// them produces intermittent detection failures on real hardware.
const (
	DefaultSettleDelay   = 500 * time.Millisecond
	DefaultDetectTimeout = 5 * time.Second
	DefaultDetectPoll    = 200 * time.Millisecond
)

// Activator starts the RTT subsystem and waits for control-block
// detection to converge.
type Activator struct {
	transport jlink.Transport

	// SettleDelay is slept after range configuration and after the
	// start command before detection is polled.
	SettleDelay time.Duration
	// DetectTimeout bounds the wait for the control block.
	DetectTimeout time.Duration
	// DetectPoll is the interval between detection checks.
	DetectPoll time.Duration
}

// NewActivator returns an activator with the default timing.
func NewActivator(transport jlink.Transport) *Activator {
	return &Activator{
		transport:     transport,
		SettleDelay:   DefaultSettleDelay,
		DetectTimeout: DefaultDetectTimeout,
		DetectPoll:    DefaultDetectPoll,
	}
}

// Activate starts RTT with the given search spec and blocks until the
// control block is detected or DetectTimeout elapses. A halted target
// fails fast with a *jlink.StartError; a started-but-undetected control
// block fails with *jlink.DetectionTimeout.
func (a *Activator) Activate(spec jlink.SearchSpec) error {
	running, err := a.transport.TargetRunning()
	if err != nil {
		return &jlink.StartError{Spec: spec, Err: fmt.Errorf("target state query failed: %w", err)}
	}
	if !running {
		return &jlink.StartError{Spec: spec, Err: fmt.Errorf("target core is halted; RTT detection requires a running core")}
	}

	debug.LogSection(fmt.Sprintf("RTT activation (%s)", spec))
	if err := a.transport.RTTStart(spec); err != nil {
		return err
	}

	// Let the probe-side search run before the first status check.
	time.Sleep(a.SettleDelay)

	deadline := time.Now().Add(a.DetectTimeout)
	for {
		if a.active() {
			debug.Log("activate: control block detected")
			return nil
		}
		if time.Now().After(deadline) {
			// Best-effort stop so a retry starts clean.
			a.transport.RTTStop()
			return &jlink.DetectionTimeout{Spec: spec, Wait: a.DetectTimeout.String()}
		}
		time.Sleep(a.DetectPoll)
	}
}

// active reports whether the control block has been located. When the
// driver lacks the status query, a nonzero up-buffer count serves as the
// compatibility fallback.
func (a *Activator) active() bool {
	active, supported := a.transport.RTTActive()
	if supported {
		return active
	}
	count, err := a.transport.NumBuffers(jlink.Up)
	return err == nil && count > 0
}
