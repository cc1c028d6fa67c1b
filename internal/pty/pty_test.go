package pty

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewAllocatesPair(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Release()

	if !strings.HasPrefix(p.Path(), "/dev/pts/") {
		t.Errorf("Path() = %q, want /dev/pts/N", p.Path())
	}
	if _, err := os.Stat(p.Path()); err != nil {
		t.Errorf("slave path not usable: %v", err)
	}
}

func TestWaitTimesOutWithoutData(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Release()

	start := time.Now()
	ready, err := p.Wait(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if ready {
		t.Error("Wait() ready with no data")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Wait() blocked %v, want bounded by timeout", elapsed)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := p.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := p.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}

	if _, err := p.Write([]byte("x")); err == nil {
		t.Error("Write() after Release() succeeded")
	}
	if _, err := p.Wait(time.Millisecond); err == nil {
		t.Error("Wait() after Release() succeeded")
	}
}

func TestPublishLink(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Release()

	link := filepath.Join(t.TempDir(), "rtt0")
	if err := p.PublishLink(link); err != nil {
		t.Fatalf("PublishLink() error = %v", err)
	}

	target, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("Readlink() error = %v", err)
	}
	if target != p.Path() {
		t.Errorf("link target = %q, want %q", target, p.Path())
	}

	if err := p.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Errorf("link still present after Release(): %v", err)
	}
}

func TestPublishLinkReplacesStaleSymlink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "rtt0")
	if err := os.Symlink("/dev/null", link); err != nil {
		t.Fatalf("setup symlink: %v", err)
	}

	p, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Release()

	if err := p.PublishLink(link); err != nil {
		t.Fatalf("PublishLink() over stale symlink error = %v", err)
	}
	if target, _ := os.Readlink(link); target != p.Path() {
		t.Errorf("link target = %q, want %q", target, p.Path())
	}
}

func TestPublishLinkRefusesRegularFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-link")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("setup file: %v", err)
	}

	p, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Release()

	if err := p.PublishLink(path); err == nil {
		t.Fatal("PublishLink() replaced a regular file")
	}

	// The pre-existing file must survive teardown untouched.
	p.Release()
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "data" {
		t.Errorf("pre-existing file damaged: %q, %v", data, err)
	}
}

func TestPublishLinkCreatesParentDir(t *testing.T) {
	link := filepath.Join(t.TempDir(), "nested", "dir", "rtt0")

	p, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Release()

	if err := p.PublishLink(link); err != nil {
		t.Fatalf("PublishLink() with missing parent error = %v", err)
	}
	if _, err := os.Readlink(link); err != nil {
		t.Errorf("Readlink() error = %v", err)
	}
}
