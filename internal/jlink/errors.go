package jlink

import (
	"fmt"
	"strings"
)

// ConnectError means the probe itself could not be opened.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to open J-Link: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TargetError means the probe is up but the target device could not be
// reached.
type TargetError struct {
	Device string
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("failed to connect to device %q: %v", e.Device, e.Err)
}

func (e *TargetError) Unwrap() error { return e.Err }

// StartError means the RTT subsystem refused to start.
type StartError struct {
	Spec SearchSpec
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start RTT (%s): %v", e.Spec, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// DetectionTimeout means RTT started but the control block was not
// located within the configured wait. Distinct from a connection error:
// the probe and target are fine, the firmware side is not.
type DetectionTimeout struct {
	Spec SearchSpec
	Wait string
}

func (e *DetectionTimeout) Error() string {
	return fmt.Sprintf("RTT control block not found after %s (%s)", e.Wait, e.Spec)
}

// NotFoundError means a buffer with the requested name does not exist in
// the catalog. It is a user configuration error, not a transport
// failure, and carries the names that do exist.
type NotFoundError struct {
	Name      string
	Direction Direction
	Available []string
}

func (e *NotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("no %s-buffer named %q (no buffers configured)", e.Direction, e.Name)
	}
	return fmt.Sprintf("no %s-buffer named %q (available: %s)",
		e.Direction, e.Name, strings.Join(e.Available, ", "))
}
