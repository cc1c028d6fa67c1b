package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/xunzhou/rttpty/internal/bridge"
	"github.com/xunzhou/rttpty/internal/config"
	"github.com/xunzhou/rttpty/internal/debug"
	"github.com/xunzhou/rttpty/internal/jlink"
	"github.com/xunzhou/rttpty/internal/rtt"
	"github.com/xunzhou/rttpty/internal/ui"
)

const version = "0.1.0"

// Exit codes, stable for scripting.
const (
	exitOK       = 0
	exitUsage    = 1
	exitConnect  = 2
	exitTarget   = 3
	exitDetect   = 4
	exitNotFound = 5
	exitEndpoint = 6
	exitRuntime  = 7
)

var (
	deviceName  string
	probeSerial int
	speedKHz    int
	addressSpec string
	configPath  string
	debugMode   bool

	bufferName string
	bidir      bool
	linkPath   string
	monitor    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		formatError(err)
		os.Exit(exitCodeFor(err))
	}
}

// usageError marks configuration mistakes detected before any resource
// acquisition.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var (
		usageErr    *usageError
		connectErr  *jlink.ConnectError
		targetErr   *jlink.TargetError
		startErr    *jlink.StartError
		detectErr   *jlink.DetectionTimeout
		notFoundErr *jlink.NotFoundError
		endpointErr *bridge.EndpointError
	)
	switch {
	case errors.As(err, &usageErr):
		return exitUsage
	case errors.As(err, &connectErr):
		return exitConnect
	case errors.As(err, &targetErr):
		return exitTarget
	case errors.As(err, &startErr), errors.As(err, &detectErr):
		return exitDetect
	case errors.As(err, &notFoundErr):
		return exitNotFound
	case errors.As(err, &endpointErr):
		return exitEndpoint
	}
	return exitRuntime
}

func formatError(err error) {
	errStr := err.Error()
	fmt.Fprintln(os.Stderr, "\n\033[31m✗ Error\033[0m")
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 50))

	words := strings.Fields(errStr)
	var line string
	maxWidth := 48

	for _, word := range words {
		if len(line)+len(word)+1 > maxWidth {
			fmt.Fprintln(os.Stderr, "  "+line)
			line = word
		} else if line == "" {
			line = word
		} else {
			line += " " + word
		}
	}
	if line != "" {
		fmt.Fprintln(os.Stderr, "  "+line)
	}

	fmt.Fprintln(os.Stderr, strings.Repeat("─", 50))
	fmt.Fprintln(os.Stderr)
}

var rootCmd = &cobra.Command{
	Use:   "rttpty",
	Short: "RTT to PTY bridge for J-Link probes",
	Long: `rttpty bridges a target's RTT channel to a host pseudo-terminal, so
standard terminal tools (screen, minicom, picocom) can read and write the
RTT buffer as if it were a serial port.

Examples:
  # List available buffers
  rttpty list -d NRF54L15_M33

  # Basic RTT to PTY bridge
  rttpty -d NRF54L15_M33 -b Terminal

  # With a specific RTT control-block address
  rttpty -d NRF54L15_M33 -a 0x200044E0

  # With a search range
  rttpty -d NRF54L15_M33 -a 0x20000000,0x40000

  # Bidirectional, with a stable symlink
  rttpty -d NRF54L15_M33 -b Terminal -2 -l /tmp/rtt0`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debugMode {
			if err := debug.Enable(); err != nil {
				return fmt.Errorf("failed to enable debug logging: %w", err)
			}
			debug.Log("Command: %s %v", cmd.Name(), args)
		}
		return nil
	},
	RunE: runBridge,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available RTT buffers and exit",
	Long: `Connects to the target, starts RTT, prints the up- and down-buffer
catalogs, then disconnects.`,
	RunE: runList,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "target device name")
	rootCmd.PersistentFlags().IntVarP(&probeSerial, "serial", "s", 0, "J-Link serial number")
	rootCmd.PersistentFlags().IntVarP(&speedKHz, "speed", "S", 0, "SWD/JTAG speed in kHz")
	rootCmd.PersistentFlags().StringVarP(&addressSpec, "address", "a", "", "RTT address (hex) or search range (start,size)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.config/rttpty/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to /tmp/rttpty-debug.log")

	rootCmd.Flags().StringVarP(&bufferName, "buffer", "b", "", "buffer name to bridge")
	rootCmd.Flags().BoolVarP(&bidir, "bidir", "2", false, "enable bidirectional communication")
	rootCmd.Flags().StringVarP(&linkPath, "link", "l", "", "create symlink to PTY at this path")
	rootCmd.Flags().BoolVarP(&monitor, "monitor", "m", false, "show a live status view while bridging")

	rootCmd.AddCommand(listCmd)
}

// resolveConfig merges the config file with flags; flags win when set.
func resolveConfig() (bridge.Config, error) {
	fileCfg, err := config.Load(configPath)
	if err != nil {
		return bridge.Config{}, &usageError{err: fmt.Errorf("failed to load config: %w", err)}
	}

	cfg := bridge.Config{
		Device:        fileCfg.Device,
		Serial:        probeSerial,
		SpeedKHz:      fileCfg.SpeedKHz,
		BufferName:    fileCfg.Buffer,
		Bidirectional: bidir,
		LinkPath:      fileCfg.Link,
		Backoff:       time.Duration(fileCfg.PollIntervalMs) * time.Millisecond,
		DetectTimeout: time.Duration(fileCfg.DetectTimeoutMs) * time.Millisecond,
		SettleDelay:   time.Duration(fileCfg.SettleDelayMs) * time.Millisecond,
		Out:           os.Stdout,
	}

	if deviceName != "" {
		cfg.Device = deviceName
	}
	if speedKHz != 0 {
		cfg.SpeedKHz = speedKHz
	}
	if bufferName != "" {
		cfg.BufferName = bufferName
	}
	if linkPath != "" {
		cfg.LinkPath = linkPath
	}

	if err := jlink.ValidateSpeed(cfg.SpeedKHz); err != nil {
		return bridge.Config{}, &usageError{err: err}
	}
	if strings.TrimSpace(cfg.BufferName) == "" {
		return bridge.Config{}, &usageError{err: fmt.Errorf("buffer name cannot be empty")}
	}

	if addressSpec != "" {
		spec, err := jlink.ParseSearchSpec(addressSpec)
		if err != nil {
			return bridge.Config{}, &usageError{err: err}
		}
		cfg.Spec = spec
	}

	return cfg, nil
}

func openSession() (*jlink.Session, error) {
	driver, err := jlink.NewDriver()
	if err != nil {
		return nil, &jlink.ConnectError{Err: err}
	}
	return jlink.NewSession(driver), nil
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	session, err := openSession()
	if err != nil {
		return err
	}

	if monitor {
		// The TUI owns the terminal; progress messages would fight
		// with it.
		cfg.Out = nil
	}

	b := bridge.New(session, cfg)
	b.InstallSignalHandlers()

	if !monitor {
		return b.Run()
	}

	done := make(chan error, 1)
	go func() {
		done <- b.Run()
	}()

	model := ui.NewMonitor(b.Snapshot, b.Stop, done)
	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		b.Stop()
		<-done
		return fmt.Errorf("monitor failed: %w", err)
	}
	if m, ok := final.(ui.Monitor); ok && m.Err() != nil {
		return m.Err()
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	session, err := openSession()
	if err != nil {
		return err
	}
	defer session.Disconnect()

	fmt.Println("Connecting to J-Link...")
	if err := session.Open(jlink.Options{
		Serial:    cfg.Serial,
		Interface: jlink.InterfaceSWD,
		SpeedKHz:  cfg.SpeedKHz,
	}); err != nil {
		return err
	}

	fmt.Printf("Connecting to %s...\n", cfg.Device)
	if err := session.ConnectTarget(cfg.Device); err != nil {
		return err
	}

	activator := rtt.NewActivator(session)
	if cfg.SettleDelay > 0 {
		activator.SettleDelay = cfg.SettleDelay
	}
	if cfg.DetectTimeout > 0 {
		activator.DetectTimeout = cfg.DetectTimeout
	}
	if err := activator.Activate(cfg.Spec); err != nil {
		return err
	}
	defer session.RTTStop()

	catalog := rtt.NewCatalog(session)
	up, err := catalog.List(jlink.Up)
	if err != nil {
		return err
	}
	down, err := catalog.List(jlink.Down)
	if err != nil {
		return err
	}

	fmt.Print(ui.RenderCatalog(up, down))
	return nil
}
