package jlink

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/xunzhou/rttpty/internal/debug"
)

// Driver is the low-level probe binding. Session wraps it into the
// Transport capability; nothing above this file knows how the vendor
// library is reached.
type Driver interface {
	Open(serial int) error
	SetDevice(name string) error
	SelectInterface(iface Interface) error
	SetSpeed(kHz int) error
	Connect() error
	Halted() (bool, error)
	ProductName() string
	SerialNumber() int
	RTTStart(spec SearchSpec) error
	RTTStop() error
	// RTTActive reports (active, supported). supported is false when
	// the loaded library version lacks the status query.
	RTTActive() (bool, bool)
	RTTNumBuffers(dir Direction) (int, error)
	RTTDescriptor(index int, dir Direction) (BufferDescriptor, error)
	RTTRead(index int, p []byte) (int, error)
	RTTWrite(index int, p []byte) (int, error)
	Close() error
}

// RTTERMINAL control commands of the vendor API.
const (
	rttCmdStart      = 0
	rttCmdStop       = 1
	rttCmdGetDesc    = 2
	rttCmdGetNumBuf  = 3
	rttCmdGetStat    = 4
	rttBufNameLength = 32
)

// rttStartBlock mirrors JLINK_RTTERMINAL_START.
type rttStartBlock struct {
	ConfigBlockAddress uint32
	Dummy0             uint32
	Dummy1             uint32
	Dummy2             uint32
}

// rttBufDesc mirrors JLINK_RTTERMINAL_BUFDESC.
type rttBufDesc struct {
	BufferIndex  int32
	Direction    uint32
	Name         [rttBufNameLength]byte
	SizeOfBuffer uint32
	Flags        uint32
}

// rttStatus mirrors JLINK_RTTERMINAL_STATUS.
type rttStatus struct {
	NumBytesTransferred uint32
	NumBytesRead        uint32
	HostOverflowCount   int32
	IsRunning           int32
	NumUpBuffers        int32
	NumDownBuffers      int32
	Dummy0              uint32
	Dummy1              uint32
}

// libraryPaths are the locations the vendor library is looked up in when
// JLINK_LIB is not set, in order.
var libraryPaths = []string{
	"/opt/SEGGER/JLink/libjlinkarm.so",
	"/usr/lib/libjlinkarm.so",
	"/usr/local/lib/libjlinkarm.so",
	"/Applications/SEGGER/JLink/libjlinkarm.dylib",
}

// seggerDriver binds the SEGGER shared library via dlopen. One process
// owns at most one probe connection, matching the vendor API.
type seggerDriver struct {
	opened bool

	selectByUSBSN func(uint32) int32
	open          func() uintptr
	close_        func()
	execCommand   func(string, unsafe.Pointer, int32) int32
	tifSelect     func(int32) int32
	setSpeed      func(uint32)
	connect       func() int32
	isHalted      func() int32
	getSN         func() int32
	emuProduct    func(unsafe.Pointer, uint32)
	rttControl    func(uint32, unsafe.Pointer) int32
	rttRead       func(uint32, unsafe.Pointer, uint32) int32
	rttWrite      func(uint32, unsafe.Pointer, uint32) int32
}

// NewDriver loads the vendor J-Link library and resolves the symbols the
// bridge needs. The JLINK_LIB environment variable overrides the search
// path.
func NewDriver() (Driver, error) {
	path := os.Getenv("JLINK_LIB")
	candidates := libraryPaths
	if path != "" {
		candidates = []string{path}
	}

	var lib uintptr
	var lastErr error
	for _, c := range candidates {
		var err error
		lib, err = purego.Dlopen(c, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			debug.Log("jlink: loaded %s", c)
			break
		}
		lib = 0
		lastErr = err
	}
	if lib == 0 {
		return nil, fmt.Errorf("J-Link library not found (set JLINK_LIB or install the SEGGER tools): %w", lastErr)
	}

	d := &seggerDriver{}
	purego.RegisterLibFunc(&d.selectByUSBSN, lib, "JLINKARM_EMU_SelectByUSBSN")
	purego.RegisterLibFunc(&d.open, lib, "JLINKARM_Open")
	purego.RegisterLibFunc(&d.close_, lib, "JLINKARM_Close")
	purego.RegisterLibFunc(&d.execCommand, lib, "JLINKARM_ExecCommand")
	purego.RegisterLibFunc(&d.tifSelect, lib, "JLINKARM_TIF_Select")
	purego.RegisterLibFunc(&d.setSpeed, lib, "JLINKARM_SetSpeed")
	purego.RegisterLibFunc(&d.connect, lib, "JLINKARM_Connect")
	purego.RegisterLibFunc(&d.isHalted, lib, "JLINKARM_IsHalted")
	purego.RegisterLibFunc(&d.getSN, lib, "JLINKARM_GetSN")
	purego.RegisterLibFunc(&d.emuProduct, lib, "JLINKARM_EMU_GetProductName")
	purego.RegisterLibFunc(&d.rttControl, lib, "JLINK_RTTERMINAL_Control")
	purego.RegisterLibFunc(&d.rttRead, lib, "JLINK_RTTERMINAL_Read")
	purego.RegisterLibFunc(&d.rttWrite, lib, "JLINK_RTTERMINAL_Write")

	return d, nil
}

func (d *seggerDriver) Open(serial int) error {
	if serial != 0 {
		if rc := d.selectByUSBSN(uint32(serial)); rc < 0 {
			return fmt.Errorf("no probe with serial %d", serial)
		}
	}
	// JLINKARM_Open returns a C error string, NULL on success.
	if p := d.open(); p != 0 {
		return fmt.Errorf("%s", goString(p))
	}
	d.opened = true
	return nil
}

func (d *seggerDriver) SetDevice(name string) error {
	return d.exec(fmt.Sprintf("Device = %s", name))
}

func (d *seggerDriver) SelectInterface(iface Interface) error {
	// Returns the previously selected interface, not an error code.
	d.tifSelect(int32(iface))
	return nil
}

func (d *seggerDriver) SetSpeed(kHz int) error {
	d.setSpeed(uint32(kHz))
	return nil
}

func (d *seggerDriver) Connect() error {
	if rc := d.connect(); rc < 0 {
		return fmt.Errorf("connect failed (rc=%d)", rc)
	}
	return nil
}

func (d *seggerDriver) Halted() (bool, error) {
	rc := d.isHalted()
	if rc < 0 {
		return false, fmt.Errorf("halt query failed (rc=%d)", rc)
	}
	return rc > 0, nil
}

func (d *seggerDriver) ProductName() string {
	buf := make([]byte, 64)
	d.emuProduct(unsafe.Pointer(&buf[0]), uint32(len(buf)))
	return trimPadding(string(buf))
}

func (d *seggerDriver) SerialNumber() int {
	return int(d.getSN())
}

func (d *seggerDriver) RTTStart(spec SearchSpec) error {
	switch spec.Mode {
	case ExplicitAddress:
		block := rttStartBlock{ConfigBlockAddress: uint32(spec.Address)}
		if rc := d.rttControl(rttCmdStart, unsafe.Pointer(&block)); rc < 0 {
			return fmt.Errorf("RTT start failed (rc=%d)", rc)
		}
	case SearchRange:
		// Ranges are configured through the command interface before
		// start, same as the vendor tools do.
		cmd := fmt.Sprintf("SetRTTSearchRanges 0x%X 0x%X", spec.Address, spec.Size)
		if err := d.exec(cmd); err != nil {
			return err
		}
		if rc := d.rttControl(rttCmdStart, nil); rc < 0 {
			return fmt.Errorf("RTT start failed (rc=%d)", rc)
		}
	default:
		if rc := d.rttControl(rttCmdStart, nil); rc < 0 {
			return fmt.Errorf("RTT start failed (rc=%d)", rc)
		}
	}
	return nil
}

func (d *seggerDriver) RTTStop() error {
	if rc := d.rttControl(rttCmdStop, nil); rc < 0 {
		return fmt.Errorf("RTT stop failed (rc=%d)", rc)
	}
	return nil
}

func (d *seggerDriver) RTTActive() (bool, bool) {
	var st rttStatus
	rc := d.rttControl(rttCmdGetStat, unsafe.Pointer(&st))
	if rc < 0 {
		// Older library versions reject GETSTAT; callers fall back to
		// buffer-count probing.
		return false, false
	}
	return st.IsRunning != 0, true
}

func (d *seggerDriver) RTTNumBuffers(dir Direction) (int, error) {
	arg := uint32(dir)
	rc := d.rttControl(rttCmdGetNumBuf, unsafe.Pointer(&arg))
	if rc < 0 {
		return 0, fmt.Errorf("buffer count query failed (rc=%d)", rc)
	}
	return int(rc), nil
}

func (d *seggerDriver) RTTDescriptor(index int, dir Direction) (BufferDescriptor, error) {
	desc := rttBufDesc{BufferIndex: int32(index), Direction: uint32(dir)}
	if rc := d.rttControl(rttCmdGetDesc, unsafe.Pointer(&desc)); rc < 0 {
		return BufferDescriptor{}, fmt.Errorf("descriptor query failed for %s-buffer #%d (rc=%d)", dir, index, rc)
	}
	return BufferDescriptor{
		Index:     index,
		Direction: dir,
		Name:      string(desc.Name[:]),
		Size:      int(desc.SizeOfBuffer),
	}, nil
}

func (d *seggerDriver) RTTRead(index int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	rc := d.rttRead(uint32(index), unsafe.Pointer(&p[0]), uint32(len(p)))
	if rc < 0 {
		return 0, fmt.Errorf("RTT read failed (rc=%d)", rc)
	}
	return int(rc), nil
}

func (d *seggerDriver) RTTWrite(index int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	rc := d.rttWrite(uint32(index), unsafe.Pointer(&p[0]), uint32(len(p)))
	if rc < 0 {
		return 0, fmt.Errorf("RTT write failed (rc=%d)", rc)
	}
	return int(rc), nil
}

func (d *seggerDriver) Close() error {
	if d.opened {
		d.close_()
		d.opened = false
	}
	return nil
}

// exec runs a command-string against the library, surfacing the error
// text the library writes into the output buffer.
func (d *seggerDriver) exec(cmd string) error {
	errBuf := make([]byte, 256)
	rc := d.execCommand(cmd, unsafe.Pointer(&errBuf[0]), int32(len(errBuf)))
	msg := trimPadding(string(errBuf))
	if rc < 0 || msg != "" {
		if msg == "" {
			msg = fmt.Sprintf("rc=%d", rc)
		}
		return fmt.Errorf("command %q failed: %s", cmd, msg)
	}
	debug.Log("jlink: exec %q ok", cmd)
	return nil
}

// goString copies a NUL-terminated C string.
func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	var out []byte
	for i := 0; ; i++ {
		b := *(*byte)(unsafe.Pointer(p + uintptr(i)))
		if b == 0 {
			break
		}
		out = append(out, b)
	}
	return string(out)
}

// trimPadding strips everything from the first NUL byte on, the fixed
// C-buffer convention used throughout the vendor API.
func trimPadding(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return s[:i]
		}
	}
	return s
}
