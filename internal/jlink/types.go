package jlink

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction identifies which way an RTT buffer moves data.
type Direction int

const (
	// Up is target -> host.
	Up Direction = iota
	// Down is host -> target.
	Down
)

// String returns the catalog label for the direction.
func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Interface selects the target debug interface.
type Interface int

const (
	InterfaceJTAG Interface = 0
	InterfaceSWD  Interface = 1
)

// Speed limits for the debug interface clock, in kHz.
const (
	MinSpeedKHz = 5
	MaxSpeedKHz = 50000
)

// BufferDescriptor is a read-only snapshot of one RTT buffer as reported
// by the probe. Name may carry trailing NUL padding from the target-side
// fixed-capacity label; Catalog normalizes it before comparisons.
type BufferDescriptor struct {
	Index     int
	Direction Direction
	Name      string
	Size      int
}

// SearchMode selects how the RTT control block is located.
type SearchMode int

const (
	// AutoDetect lets the probe search target RAM on its own.
	AutoDetect SearchMode = iota
	// ExplicitAddress pins the control block to a known address.
	ExplicitAddress
	// SearchRange restricts the search to a window of target memory.
	SearchRange
)

// SearchSpec describes where to find the RTT control block. Immutable
// once constructed; consumed by RTT activation.
type SearchSpec struct {
	Mode    SearchMode
	Address uint64
	Size    uint64
}

// String renders the spec the way it is logged and printed to the user.
func (s SearchSpec) String() string {
	switch s.Mode {
	case ExplicitAddress:
		return fmt.Sprintf("address 0x%X", s.Address)
	case SearchRange:
		return fmt.Sprintf("search range 0x%X,0x%X", s.Address, s.Size)
	default:
		return "auto-detect"
	}
}

// ParseSearchSpec parses the -a/--address argument: either a single
// control-block address ("0x200044E0") or a search range ("start,size").
// Numbers are hex with 0x prefix, decimal otherwise.
func ParseSearchSpec(s string) (SearchSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SearchSpec{}, fmt.Errorf("empty address string")
	}

	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		if len(parts) != 2 {
			return SearchSpec{}, fmt.Errorf("invalid search range %q (expected 'start,size')", s)
		}
		start, err := parseNumber(parts[0])
		if err != nil {
			return SearchSpec{}, fmt.Errorf("invalid range start in %q: %w", s, err)
		}
		size, err := parseNumber(parts[1])
		if err != nil {
			return SearchSpec{}, fmt.Errorf("invalid range size in %q: %w", s, err)
		}
		if size == 0 {
			return SearchSpec{}, fmt.Errorf("invalid range size 0x%X (must be > 0)", size)
		}
		if size > 0xFFFFFFFF {
			return SearchSpec{}, fmt.Errorf("range size 0x%X too large (maximum 0xFFFFFFFF)", size)
		}
		return SearchSpec{Mode: SearchRange, Address: start, Size: size}, nil
	}

	addr, err := parseNumber(s)
	if err != nil {
		return SearchSpec{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return SearchSpec{Mode: ExplicitAddress, Address: addr}, nil
}

func parseNumber(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// ValidateSpeed checks the interface clock is inside the supported
// window before any connection is attempted.
func ValidateSpeed(kHz int) error {
	if kHz < MinSpeedKHz {
		return fmt.Errorf("speed too low: %d kHz (minimum: %d kHz)", kHz, MinSpeedKHz)
	}
	if kHz > MaxSpeedKHz {
		return fmt.Errorf("speed too high: %d kHz (maximum: %d kHz)", kHz, MaxSpeedKHz)
	}
	return nil
}

// Transport is the probe capability consumed by the bridge. A Session
// wraps a Driver into this interface; tests substitute mocks.
//
// RTTRead returning (0, nil) means no data available, which is normal.
// RTTWrite may accept fewer bytes than offered when the target-side
// buffer is smaller than the chunk; callers retry the remainder.
type Transport interface {
	ConnectTarget(device string) error
	TargetRunning() (bool, error)
	RTTStart(spec SearchSpec) error
	// RTTActive reports whether the RTT control block has been located.
	// supported is false when the underlying driver lacks the status
	// query; callers fall back to buffer-count probing.
	RTTActive() (active, supported bool)
	NumBuffers(dir Direction) (int, error)
	BufferDescriptor(index int, dir Direction) (BufferDescriptor, error)
	RTTRead(index int, p []byte) (int, error)
	RTTWrite(index int, p []byte) (int, error)
	RTTStop() error
	Disconnect() error
}
