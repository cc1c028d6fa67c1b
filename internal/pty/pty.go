// Package pty allocates the host-side terminal endpoint of the bridge.
package pty

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/xunzhou/rttpty/internal/debug"
)

// PTY is a pseudo-terminal pair. The master side is owned by the bridge
// and never exposed; consumers attach to the slave path (directly or via
// a published symlink). The slave fd is held open so master I/O does not
// fail before a consumer attaches.
type PTY struct {
	master    *os.File
	slave     *os.File
	slavePath string
	linkPath  string
	released  bool
}

// New allocates a new PTY pair via /dev/ptmx.
func New() (*PTY, error) {
	masterFile, err := os.OpenFile("/dev/ptmx", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open /dev/ptmx: %w", err)
	}

	masterFd := int(masterFile.Fd())

	// Resolve the pty number for the slave path
	var ptn int
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(masterFd), syscall.TIOCGPTN, uintptr(unsafe.Pointer(&ptn))); errno != 0 {
		masterFile.Close()
		return nil, fmt.Errorf("ioctl TIOCGPTN failed: %v", errno)
	}

	// Unlock slave
	unlock := 0
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(masterFd), syscall.TIOCSPTLCK, uintptr(unsafe.Pointer(&unlock))); errno != 0 {
		masterFile.Close()
		return nil, fmt.Errorf("ioctl TIOCSPTLCK failed: %v", errno)
	}

	slavePath := fmt.Sprintf("/dev/pts/%d", ptn)
	slaveFile, err := os.OpenFile(slavePath, os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		masterFile.Close()
		return nil, fmt.Errorf("failed to open slave %s: %w", slavePath, err)
	}

	debug.Log("pty: allocated master_fd=%d slave=%s", masterFd, slavePath)

	return &PTY{
		master:    masterFile,
		slave:     slaveFile,
		slavePath: slavePath,
	}, nil
}

// Path returns the host-visible slave path.
func (p *PTY) Path() string {
	return p.slavePath
}

// Read reads pending bytes from the master side (consumer input).
func (p *PTY) Read(buf []byte) (int, error) {
	if p.released {
		return 0, fmt.Errorf("pty released")
	}
	return p.master.Read(buf)
}

// Write delivers bytes to the master side (target output to consumers).
func (p *PTY) Write(data []byte) (int, error) {
	if p.released {
		return 0, fmt.Errorf("pty released")
	}
	return p.master.Write(data)
}

// Wait blocks until the master side is readable or the timeout elapses.
// This is the bridge's only bounded suspension point on the endpoint, so
// the timeout directly bounds stop-request latency.
func (p *PTY) Wait(timeout time.Duration) (bool, error) {
	if p.released {
		return false, fmt.Errorf("pty released")
	}

	fds := []unix.PollFd{{
		Fd:     int32(p.master.Fd()),
		Events: unix.POLLIN,
	}}

	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, fmt.Errorf("poll failed: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	// POLLERR/POLLHUP surface through the next read
	return fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0, nil
}

// PublishLink creates a symlink at linkPath pointing at the slave path,
// so consumers have a stable name across runs. An existing symlink is
// replaced; an existing regular file is refused. The link is removed on
// Release only when this call created it.
func (p *PTY) PublishLink(linkPath string) error {
	if fi, err := os.Lstat(linkPath); err == nil {
		if fi.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("path exists and is not a symlink: %s", linkPath)
		}
		if err := os.Remove(linkPath); err != nil {
			return fmt.Errorf("failed to replace existing symlink %s: %w", linkPath, err)
		}
	}

	if dir := filepath.Dir(linkPath); dir != "" && dir != "." {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory for symlink: %w", err)
			}
		}
	}

	if err := os.Symlink(p.slavePath, linkPath); err != nil {
		return fmt.Errorf("failed to create symlink %s: %w", linkPath, err)
	}

	p.linkPath = linkPath
	debug.Log("pty: published link %s -> %s", linkPath, p.slavePath)
	return nil
}

// LinkPath returns the published symlink path, or empty if none.
func (p *PTY) LinkPath() string {
	return p.linkPath
}

// Release closes both sides of the pair and removes the published link.
// Idempotent; invoked on every exit path.
func (p *PTY) Release() error {
	if p.released {
		return nil
	}
	p.released = true

	debug.Log("pty: releasing %s", p.slavePath)

	if p.master != nil {
		p.master.Close()
		p.master = nil
	}
	if p.slave != nil {
		p.slave.Close()
		p.slave = nil
	}

	if p.linkPath != "" {
		if fi, err := os.Lstat(p.linkPath); err == nil && fi.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(p.linkPath); err != nil {
				debug.Log("pty: failed to remove link %s: %v", p.linkPath, err)
			}
		}
		p.linkPath = ""
	}

	return nil
}
