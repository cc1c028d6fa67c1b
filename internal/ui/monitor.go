package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/xunzhou/rttpty/internal/bridge"
)

const monitorTick = 100 * time.Millisecond

// SnapshotFunc reports the current bridge status.
type SnapshotFunc func() bridge.Snapshot

// StopFunc requests a bridge stop.
type StopFunc func()

// Monitor is the Bubble Tea model for the live bridge status view. The
// bridge runs in its own goroutine; the monitor only reads snapshots and
// forwards the quit request.
type Monitor struct {
	snapshot SnapshotFunc
	stop     StopFunc
	done     <-chan error

	snap     bridge.Snapshot
	runErr   error
	stopping bool
	quitting bool
}

// NewMonitor creates a monitor model. done delivers the bridge's Run
// result when it finishes.
func NewMonitor(snapshot SnapshotFunc, stop StopFunc, done <-chan error) Monitor {
	return Monitor{
		snapshot: snapshot,
		stop:     stop,
		done:     done,
		snap:     snapshot(),
	}
}

// Err returns the bridge's terminal error, if any, once the monitor has
// quit.
func (m Monitor) Err() error {
	return m.runErr
}

type tickMsg time.Time

type bridgeDoneMsg struct {
	err error
}

func tick() tea.Cmd {
	return tea.Tick(monitorTick, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForDone(ch <-chan error) tea.Cmd {
	return func() tea.Msg {
		return bridgeDoneMsg{err: <-ch}
	}
}

// Init starts the tick loop and the bridge-exit watcher.
func (m Monitor) Init() tea.Cmd {
	return tea.Batch(tick(), waitForDone(m.done))
}

// Update handles messages and updates the model.
func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// Request a stop; quit once the bridge reports done so
			// teardown is observed.
			m.stopping = true
			m.stop()
			return m, nil
		}

	case tickMsg:
		m.snap = m.snapshot()
		return m, tick()

	case bridgeDoneMsg:
		m.runErr = msg.err
		m.snap = m.snapshot()
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the status panel.
func (m Monitor) View() string {
	if m.quitting {
		return ""
	}

	s := titleStyle.Render("rttpty") + "\n\n"

	state := statusStyle.Render(m.snap.State.String())
	if m.runErr != nil {
		state = errorStyle.Render(fmt.Sprintf("%s (%v)", m.snap.State, m.runErr))
	} else if m.stopping {
		state = dimStyle.Render(m.snap.State.String() + " (stop requested)")
	}

	s += fmt.Sprintf("  %s %s\n", dimStyle.Render("state: "), state)
	s += fmt.Sprintf("  %s %s\n", dimStyle.Render("device:"), m.snap.Device)
	s += fmt.Sprintf("  %s %s", dimStyle.Render("buffer:"), m.snap.BufferName)
	if m.snap.UpIndex >= 0 {
		s += dimStyle.Render(fmt.Sprintf(" (up #%d", m.snap.UpIndex))
		if m.snap.DownIndex >= 0 {
			s += dimStyle.Render(fmt.Sprintf(", down #%d", m.snap.DownIndex))
		}
		s += dimStyle.Render(")")
	}
	s += "\n"

	if m.snap.PTYPath != "" {
		s += fmt.Sprintf("  %s %s\n", dimStyle.Render("pty:   "), m.snap.PTYPath)
	}
	if m.snap.LinkPath != "" {
		s += fmt.Sprintf("  %s %s\n", dimStyle.Render("link:  "), m.snap.LinkPath)
	}

	s += fmt.Sprintf("\n  %s %s   %s %s\n",
		dimStyle.Render("rx:"), formatBytes(m.snap.RxBytes),
		dimStyle.Render("tx:"), formatBytes(m.snap.TxBytes))

	s += helpStyle.Render("  q: stop bridge and quit")
	return s
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
