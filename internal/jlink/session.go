package jlink

import (
	"fmt"

	"github.com/xunzhou/rttpty/internal/debug"
)

// Options configures a probe session.
type Options struct {
	// Serial selects a specific probe; 0 means any.
	Serial int
	// Interface is the target debug interface (SWD by default).
	Interface Interface
	// SpeedKHz is the interface clock. Validated before opening.
	SpeedKHz int
}

// Session wraps a Driver with connection-state tracking and the
// open/configure ordering the vendor library requires. It implements
// Transport; the bridge never touches the Driver directly.
type Session struct {
	driver    Driver
	opened    bool
	connected bool
	device    string
}

// NewSession wraps a driver. The session starts disconnected.
func NewSession(driver Driver) *Session {
	return &Session{driver: driver}
}

// Open opens the probe and applies interface and speed settings.
// Returns a *ConnectError on any failure; nothing is left acquired.
func (s *Session) Open(opts Options) error {
	if s.opened {
		return nil
	}
	if err := ValidateSpeed(opts.SpeedKHz); err != nil {
		return &ConnectError{Err: err}
	}
	if err := s.driver.Open(opts.Serial); err != nil {
		return &ConnectError{Err: err}
	}
	s.opened = true

	if err := s.driver.SelectInterface(opts.Interface); err != nil {
		s.Disconnect()
		return &ConnectError{Err: err}
	}
	if err := s.driver.SetSpeed(opts.SpeedKHz); err != nil {
		s.Disconnect()
		return &ConnectError{Err: err}
	}
	debug.Log("session: probe open (serial=%d speed=%dkHz)", opts.Serial, opts.SpeedKHz)
	return nil
}

// ConnectTarget connects to the named target device. Returns a
// *TargetError on failure; the probe stays open for teardown.
func (s *Session) ConnectTarget(device string) error {
	if !s.opened {
		return &TargetError{Device: device, Err: fmt.Errorf("probe not open")}
	}
	if err := s.driver.SetDevice(device); err != nil {
		return &TargetError{Device: device, Err: err}
	}
	if err := s.driver.Connect(); err != nil {
		return &TargetError{Device: device, Err: err}
	}
	s.connected = true
	s.device = device
	debug.Log("session: target %s connected", device)
	return nil
}

// Connected reports whether the target is attached.
func (s *Session) Connected() bool { return s.connected }

// ProductName returns the probe's product string, or empty when
// unavailable.
func (s *Session) ProductName() string {
	if !s.opened {
		return ""
	}
	return s.driver.ProductName()
}

// SerialNumber returns the probe serial, or 0 when unavailable.
func (s *Session) SerialNumber() int {
	if !s.opened {
		return 0
	}
	return s.driver.SerialNumber()
}

// TargetRunning reports whether the target core is executing. RTT
// control-block detection needs a running core, so activation checks
// this first.
func (s *Session) TargetRunning() (bool, error) {
	halted, err := s.driver.Halted()
	if err != nil {
		return false, err
	}
	return !halted, nil
}

func (s *Session) RTTStart(spec SearchSpec) error {
	if err := s.driver.RTTStart(spec); err != nil {
		return &StartError{Spec: spec, Err: err}
	}
	debug.Log("session: RTT started (%s)", spec)
	return nil
}

func (s *Session) RTTActive() (bool, bool) {
	return s.driver.RTTActive()
}

func (s *Session) NumBuffers(dir Direction) (int, error) {
	return s.driver.RTTNumBuffers(dir)
}

func (s *Session) BufferDescriptor(index int, dir Direction) (BufferDescriptor, error) {
	return s.driver.RTTDescriptor(index, dir)
}

func (s *Session) RTTRead(index int, p []byte) (int, error) {
	return s.driver.RTTRead(index, p)
}

func (s *Session) RTTWrite(index int, p []byte) (int, error) {
	return s.driver.RTTWrite(index, p)
}

func (s *Session) RTTStop() error {
	err := s.driver.RTTStop()
	debug.LogTransport("RTT stop", err)
	return err
}

// Disconnect closes the probe. Safe to call repeatedly and on a session
// that never fully opened.
func (s *Session) Disconnect() error {
	if !s.opened {
		return nil
	}
	err := s.driver.Close()
	s.opened = false
	s.connected = false
	debug.LogTransport("disconnect", err)
	return err
}
