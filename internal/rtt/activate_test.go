package rtt

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xunzhou/rttpty/internal/jlink"
)

// fastActivator returns an activator with timing shrunk for tests.
func fastActivator(transport jlink.Transport) *Activator {
	a := NewActivator(transport)
	a.SettleDelay = time.Millisecond
	a.DetectTimeout = 50 * time.Millisecond
	a.DetectPoll = time.Millisecond
	return a
}

func TestActivateImmediate(t *testing.T) {
	transport := newFakeTransport()
	transport.activeAfter = 0

	if err := fastActivator(transport).Activate(jlink.SearchSpec{}); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if !transport.started {
		t.Error("RTT not started")
	}
}

func TestActivateConvergesAfterPolls(t *testing.T) {
	transport := newFakeTransport()
	transport.activeAfter = 3

	if err := fastActivator(transport).Activate(jlink.SearchSpec{}); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if transport.activeCalls <= 3 {
		t.Errorf("activeCalls = %d, want > 3 (detection polled)", transport.activeCalls)
	}
}

func TestActivateDetectionTimeout(t *testing.T) {
	transport := newFakeTransport()
	transport.activeAfter = -1 // never converges

	err := fastActivator(transport).Activate(jlink.SearchSpec{})
	var timeout *jlink.DetectionTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("error = %v, want *jlink.DetectionTimeout", err)
	}
	if !transport.stopped {
		t.Error("RTT not stopped after detection timeout")
	}
}

func TestActivateHaltedTarget(t *testing.T) {
	transport := newFakeTransport()
	transport.targetRunning = false

	err := fastActivator(transport).Activate(jlink.SearchSpec{})
	var startErr *jlink.StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("error = %v, want *jlink.StartError", err)
	}
	if transport.started {
		t.Error("RTT started against a halted target")
	}
}

func TestActivateStartFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.startErr = fmt.Errorf("probe rejected start")

	err := fastActivator(transport).Activate(jlink.SearchSpec{Mode: jlink.ExplicitAddress, Address: 0x20000000})
	var startErr *jlink.StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("error = %v, want *jlink.StartError", err)
	}
}

func TestActivateStatusQueryFallback(t *testing.T) {
	// Driver without the status query: a nonzero up-buffer count stands
	// in for "active".
	transport := newFakeTransport()
	transport.statusSupported = false
	transport.up = []jlink.BufferDescriptor{
		{Index: 0, Direction: jlink.Up, Name: "Terminal", Size: 1024},
	}

	if err := fastActivator(transport).Activate(jlink.SearchSpec{}); err != nil {
		t.Fatalf("Activate() with fallback error = %v", err)
	}
}

func TestActivateStatusQueryFallbackTimeout(t *testing.T) {
	transport := newFakeTransport()
	transport.statusSupported = false // and no buffers ever appear

	err := fastActivator(transport).Activate(jlink.SearchSpec{})
	var timeout *jlink.DetectionTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("error = %v, want *jlink.DetectionTimeout", err)
	}
}
