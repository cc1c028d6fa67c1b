// Package rtt resolves RTT buffers and brings the RTT subsystem up.
package rtt

import (
	"fmt"
	"strings"

	"github.com/xunzhou/rttpty/internal/debug"
	"github.com/xunzhou/rttpty/internal/jlink"
)

// Catalog enumerates and resolves RTT buffers over a transport. It holds
// no state: every call re-queries the probe, since the buffer table is
// not guaranteed stable between calls.
type Catalog struct {
	transport jlink.Transport
}

// NewCatalog returns a catalog over the given transport.
func NewCatalog(transport jlink.Transport) *Catalog {
	return &Catalog{transport: transport}
}

// List fetches all buffer descriptors for one direction, in index order.
// An empty catalog is valid and returns an empty slice, not an error.
func (c *Catalog) List(dir jlink.Direction) ([]jlink.BufferDescriptor, error) {
	count, err := c.transport.NumBuffers(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s-buffer count: %w", dir, err)
	}

	descs := make([]jlink.BufferDescriptor, 0, count)
	for i := 0; i < count; i++ {
		desc, err := c.transport.BufferDescriptor(i, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s-buffer #%d: %w", dir, i, err)
		}
		desc.Name = normalizeName(desc.Name)
		descs = append(descs, desc)
	}
	return descs, nil
}

// FindByName resolves a buffer by exact name match after trailing-NUL
// normalization. Returns the lowest-index match. A missing name is a
// *jlink.NotFoundError carrying the available names; it is not a
// transport failure.
func (c *Catalog) FindByName(name string, dir jlink.Direction) (jlink.BufferDescriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return jlink.BufferDescriptor{}, fmt.Errorf("empty buffer name")
	}

	descs, err := c.List(dir)
	if err != nil {
		return jlink.BufferDescriptor{}, err
	}

	available := make([]string, 0, len(descs))
	for _, desc := range descs {
		if desc.Name == name {
			if desc.Size == 0 {
				return jlink.BufferDescriptor{}, fmt.Errorf("%s-buffer %q has invalid size 0", dir, name)
			}
			debug.Log("catalog: resolved %s-buffer %q -> #%d (size=%d)", dir, name, desc.Index, desc.Size)
			return desc, nil
		}
		available = append(available, desc.Name)
	}

	return jlink.BufferDescriptor{}, &jlink.NotFoundError{
		Name:      name,
		Direction: dir,
		Available: available,
	}
}

// normalizeName strips the trailing NUL padding of the target-side
// fixed-capacity label.
func normalizeName(s string) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s
}
