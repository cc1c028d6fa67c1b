package rtt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/xunzhou/rttpty/internal/jlink"
)

// fakeTransport scripts the probe side for catalog and activation tests.
type fakeTransport struct {
	up   []jlink.BufferDescriptor
	down []jlink.BufferDescriptor

	countErr error
	descErr  error

	targetRunning bool
	startErr      error
	started       bool
	stopped       bool

	statusSupported bool
	activeAfter     int // RTTActive calls before reporting active; -1 means never
	activeCalls     int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{targetRunning: true, statusSupported: true}
}

func (f *fakeTransport) ConnectTarget(device string) error { return nil }

func (f *fakeTransport) TargetRunning() (bool, error) { return f.targetRunning, nil }

func (f *fakeTransport) RTTStart(spec jlink.SearchSpec) error {
	if f.startErr != nil {
		return &jlink.StartError{Spec: spec, Err: f.startErr}
	}
	f.started = true
	return nil
}

func (f *fakeTransport) RTTActive() (bool, bool) {
	if !f.statusSupported {
		return false, false
	}
	f.activeCalls++
	if f.activeAfter < 0 {
		return false, true
	}
	return f.activeCalls > f.activeAfter, true
}

func (f *fakeTransport) NumBuffers(dir jlink.Direction) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	if dir == jlink.Up {
		return len(f.up), nil
	}
	return len(f.down), nil
}

func (f *fakeTransport) BufferDescriptor(index int, dir jlink.Direction) (jlink.BufferDescriptor, error) {
	if f.descErr != nil {
		return jlink.BufferDescriptor{}, f.descErr
	}
	descs := f.up
	if dir == jlink.Down {
		descs = f.down
	}
	if index < 0 || index >= len(descs) {
		return jlink.BufferDescriptor{}, fmt.Errorf("index %d out of range", index)
	}
	return descs[index], nil
}

func (f *fakeTransport) RTTRead(index int, p []byte) (int, error)  { return 0, nil }
func (f *fakeTransport) RTTWrite(index int, p []byte) (int, error) { return len(p), nil }

func (f *fakeTransport) RTTStop() error {
	f.stopped = true
	return nil
}

func (f *fakeTransport) Disconnect() error { return nil }

func TestFindByName(t *testing.T) {
	transport := newFakeTransport()
	transport.up = []jlink.BufferDescriptor{
		{Index: 0, Direction: jlink.Up, Name: "Terminal\x00\x00\x00", Size: 16384},
		{Index: 1, Direction: jlink.Up, Name: "Logger\x00", Size: 4096},
	}

	catalog := NewCatalog(transport)

	tests := []struct {
		name      string
		wantIndex int
		wantErr   bool
	}{
		{"Terminal", 0, false},
		{"Logger", 1, false},
		{"terminal", 0, true}, // case-sensitive
		{"Term", 0, true},     // exact match, no prefixes
		{"Missing", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := catalog.FindByName(tt.name, jlink.Up)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindByName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if !tt.wantErr && desc.Index != tt.wantIndex {
				t.Errorf("FindByName(%q) index = %d, want %d", tt.name, desc.Index, tt.wantIndex)
			}
		})
	}
}

func TestFindByNameFirstMatchWins(t *testing.T) {
	transport := newFakeTransport()
	transport.up = []jlink.BufferDescriptor{
		{Index: 0, Direction: jlink.Up, Name: "Terminal", Size: 1024},
		{Index: 1, Direction: jlink.Up, Name: "Terminal", Size: 2048},
	}

	desc, err := NewCatalog(transport).FindByName("Terminal", jlink.Up)
	if err != nil {
		t.Fatalf("FindByName() error = %v", err)
	}
	if desc.Index != 0 {
		t.Errorf("index = %d, want lowest-index match 0", desc.Index)
	}
}

func TestFindByNameEmptyCatalog(t *testing.T) {
	catalog := NewCatalog(newFakeTransport())

	_, err := catalog.FindByName("Terminal", jlink.Up)
	var notFound *jlink.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *jlink.NotFoundError", err)
	}
	if len(notFound.Available) != 0 {
		t.Errorf("available = %v, want empty", notFound.Available)
	}
}

func TestFindByNameListsAvailable(t *testing.T) {
	transport := newFakeTransport()
	transport.down = []jlink.BufferDescriptor{
		{Index: 0, Direction: jlink.Down, Name: "Terminal\x00", Size: 16},
		{Index: 1, Direction: jlink.Down, Name: "Shell\x00\x00", Size: 64},
	}

	_, err := NewCatalog(transport).FindByName("Console", jlink.Down)
	var notFound *jlink.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *jlink.NotFoundError", err)
	}
	if len(notFound.Available) != 2 {
		t.Fatalf("available = %v, want both catalog names", notFound.Available)
	}
	if notFound.Available[0] != "Terminal" || notFound.Available[1] != "Shell" {
		t.Errorf("available = %v, want normalized [Terminal Shell]", notFound.Available)
	}
}

func TestFindByNameTransportErrorIsNotNotFound(t *testing.T) {
	transport := newFakeTransport()
	transport.countErr = fmt.Errorf("probe disconnected")

	_, err := NewCatalog(transport).FindByName("Terminal", jlink.Up)
	if err == nil {
		t.Fatal("FindByName() with failing transport succeeded")
	}
	var notFound *jlink.NotFoundError
	if errors.As(err, &notFound) {
		t.Error("transport failure reported as NotFound")
	}
}

func TestFindByNameRejectsZeroSize(t *testing.T) {
	transport := newFakeTransport()
	transport.up = []jlink.BufferDescriptor{
		{Index: 0, Direction: jlink.Up, Name: "Terminal", Size: 0},
	}

	_, err := NewCatalog(transport).FindByName("Terminal", jlink.Up)
	if err == nil {
		t.Fatal("FindByName() accepted a zero-size buffer")
	}
}

func TestFindByNameEmptyName(t *testing.T) {
	_, err := NewCatalog(newFakeTransport()).FindByName("  ", jlink.Up)
	if err == nil {
		t.Fatal("FindByName() accepted an empty name")
	}
}

func TestListEmpty(t *testing.T) {
	descs, err := NewCatalog(newFakeTransport()).List(jlink.Up)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(descs) != 0 {
		t.Errorf("List() = %v, want empty", descs)
	}
}

func TestListNormalizesNames(t *testing.T) {
	transport := newFakeTransport()
	transport.up = []jlink.BufferDescriptor{
		{Index: 0, Direction: jlink.Up, Name: "Terminal\x00\x00\x00\x00", Size: 1024},
	}

	descs, err := NewCatalog(transport).List(jlink.Up)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if descs[0].Name != "Terminal" {
		t.Errorf("name = %q, want %q", descs[0].Name, "Terminal")
	}
}
