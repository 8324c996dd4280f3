// Package bridge drives a CH347 USB multi-protocol bridge in HID mode.
// One Bridge owns one chip. The chip exposes an I2C master, an SPI master
// and four GPIO lines behind a single command pipe, and the driver keeps
// it in exactly one of those modes at a time.
package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hidbridge/ch347/internal/usb"
)

// Mode is the configured operating mode of the bridge. A freshly opened
// chip is in ModeUnknown until one of the Init calls configures it.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeI2CMaster
	ModeSPIMaster
	ModeGPIO
)

func (m Mode) String() string {
	switch m {
	case ModeI2CMaster:
		return "i2c-master"
	case ModeSPIMaster:
		return "spi-master"
	case ModeGPIO:
		return "gpio"
	default:
		return "unknown"
	}
}

// ClockRate selects the system clock the chip derives its bus timings from.
type ClockRate byte

const (
	Clock60MHz ClockRate = iota
	Clock24MHz
	Clock48MHz
	Clock80MHz
)

func (c ClockRate) String() string {
	switch c {
	case Clock60MHz:
		return "60MHz"
	case Clock24MHz:
		return "24MHz"
	case Clock48MHz:
		return "48MHz"
	case Clock80MHz:
		return "80MHz"
	default:
		return fmt.Sprintf("ClockRate(%d)", byte(c))
	}
}

// Chip identifiers reported by the version command.
var supportedChips = map[uint16]string{
	0x0347: "CH347T",
	0x0348: "CH347F",
}

// DefaultTimeout bounds each command round trip with the chip.
const DefaultTimeout = time.Second

// Bridge is a handle to one CH347 chip. All methods are safe for
// concurrent use; each operation holds the internal lock for its full
// duration, including multi-transaction operations like ScanI2CBus.
type Bridge struct {
	mu      sync.Mutex
	dev     usb.Device
	mode    Mode
	clock   ClockRate
	timeout time.Duration

	open         func(index uint32) (usb.Device, error)
	openBySerial func(serial string) (usb.Device, error)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeout overrides the per-command response timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.timeout = d }
}

// WithOpener overrides how the bridge acquires a device by index.
func WithOpener(open func(index uint32) (usb.Device, error)) Option {
	return func(b *Bridge) { b.open = open }
}

// WithSerialOpener overrides how the bridge acquires a device by serial.
func WithSerialOpener(open func(serial string) (usb.Device, error)) Option {
	return func(b *Bridge) { b.openBySerial = open }
}

// New creates a closed Bridge. Call Open or OpenBySerial before use.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		clock:   Clock60MHz,
		timeout: DefaultTimeout,
		open: func(index uint32) (usb.Device, error) {
			return usb.Open(index)
		},
		openBySerial: func(serial string) (usb.Device, error) {
			return usb.OpenBySerial(serial)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open claims the index-th enumerated bridge and verifies it is a
// supported chip variant. The handle is released again if verification
// fails.
func (b *Bridge) Open(index uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev != nil {
		return ErrAlreadyOpen
	}

	dev, err := b.open(index)
	if err != nil {
		return &DeviceError{Op: "open", Code: statusDeviceNotFound, Err: err}
	}
	return b.attachLocked(dev)
}

// OpenBySerial claims the bridge with the given serial number. An empty
// serial claims the first available bridge.
func (b *Bridge) OpenBySerial(serial string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev != nil {
		return ErrAlreadyOpen
	}

	dev, err := b.openBySerial(serial)
	if err != nil {
		return &DeviceError{Op: "open", Code: statusDeviceNotFound, Err: err}
	}
	return b.attachLocked(dev)
}

func (b *Bridge) attachLocked(dev usb.Device) error {
	b.dev = dev

	chip, _, err := b.versionLocked()
	if err != nil {
		b.detachLocked()
		return err
	}
	name, ok := supportedChips[chip]
	if !ok {
		b.detachLocked()
		return fmt.Errorf("%w: chip id 0x%04X", ErrUnsupportedDevice, chip)
	}

	b.mode = ModeUnknown
	b.clock = Clock60MHz
	log.Info().
		Str("chip", name).
		Str("serial", dev.Info().Serial).
		Msg("Bridge opened")
	return nil
}

func (b *Bridge) detachLocked() {
	if err := b.dev.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to release device handle")
	}
	b.dev = nil
}

// Close releases the device handle. It is idempotent and never fails
// observably; internal failures are logged.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return
	}
	if b.mode != ModeUnknown {
		if _, err := b.exchangeLocked("chip reset", cmdChipReset, nil); err != nil {
			log.Warn().Err(err).Stringer("mode", b.mode).Msg("Failed to de-initialize mode on close")
		}
	}
	serial := b.dev.Info().Serial
	b.detachLocked()
	b.mode = ModeUnknown
	log.Info().Str("serial", serial).Msg("Bridge closed")
}

// IsOpen reports whether the bridge currently holds a device handle.
func (b *Bridge) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev != nil
}

// Mode returns the currently configured operating mode.
func (b *Bridge) Mode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// Info returns the USB device info of the open handle, or the zero value
// when the bridge is closed.
func (b *Bridge) Info() usb.DeviceInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev == nil {
		return usb.DeviceInfo{}
	}
	return b.dev.Info()
}

// requireModeLocked gates protocol operations on the configured mode.
func (b *Bridge) requireModeLocked(m Mode) error {
	if b.dev == nil {
		return ErrNotOpen
	}
	if b.mode != m {
		return fmt.Errorf("%w: need %s, have %s", ErrWrongMode, m, b.mode)
	}
	return nil
}

// SetClockRate switches the chip's system clock. The rate sticks until
// the next chip reset.
func (b *Bridge) SetClockRate(rate ClockRate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return ErrNotOpen
	}
	if rate > Clock80MHz {
		return fmt.Errorf("%w: clock rate %d", ErrInvalidParameter, byte(rate))
	}
	if _, err := b.exchangeLocked("set clock rate", cmdSetClock, []byte{byte(rate)}); err != nil {
		return err
	}
	b.clock = rate
	log.Debug().Stringer("rate", rate).Msg("System clock changed")
	return nil
}

// ClockRate returns the configured system clock. A closed bridge reports
// the chip's power-on default of 60MHz.
func (b *Bridge) ClockRate() ClockRate {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev == nil {
		return Clock60MHz
	}
	return b.clock
}

// ResetChip performs a full chip reset. Bus configuration on the chip is
// lost; the driver-side mode is left for the caller to re-initialize.
func (b *Bridge) ResetChip() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return ErrNotOpen
	}
	_, err := b.exchangeLocked("chip reset", cmdChipReset, nil)
	return err
}

// VersionString returns a human-readable chip and firmware version, or an
// empty string when the bridge is closed.
func (b *Bridge) VersionString() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return ""
	}
	chip, firmware, err := b.versionLocked()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read version")
		return ""
	}
	return fmt.Sprintf("chip 0x%04X, firmware 0x%04X", chip, firmware)
}

// ChipMode returns the raw chip mode byte reported by the firmware, or 0
// if the query fails or the bridge is closed.
func (b *Bridge) ChipMode() byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return 0
	}
	results, err := b.exchangeLocked("get chip mode", cmdGetChipMode, nil)
	if err != nil || len(results) < 1 {
		log.Warn().Err(err).Msg("Failed to read chip mode")
		return 0
	}
	return results[0]
}

func (b *Bridge) versionLocked() (chip, firmware uint16, err error) {
	results, err := b.exchangeLocked("get version", cmdGetVersion, nil)
	if err != nil {
		return 0, 0, err
	}
	if len(results) < 4 {
		return 0, 0, &DeviceError{Op: "get version", Code: statusIOError,
			Err: fmt.Errorf("version response of %d bytes is too short", len(results))}
	}
	chip = uint16(results[0]) | uint16(results[1])<<8
	firmware = uint16(results[2]) | uint16(results[3])<<8
	return chip, firmware, nil
}

// Write sends raw bytes to the device, bypassing command framing. It is
// an escape hatch for vendor-specific sequences; a short write is a hard
// failure.
func (b *Bridge) Write(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return ErrNotOpen
	}
	if len(p) == 0 {
		return nil
	}
	n, err := b.dev.Write(p)
	if err != nil {
		return &DeviceError{Op: "raw write", Code: statusIOError, Err: err}
	}
	if n != len(p) {
		return &IncompleteTransferError{Op: "raw write", Requested: len(p), Actual: n}
	}
	return nil
}

// Read reads up to n raw bytes from the device, bypassing command
// framing. It returns whatever arrived before the timeout, which may be
// nothing; only transport failures are errors.
func (b *Bridge) Read(n int, timeout time.Duration) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return nil, ErrNotOpen
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative read length", ErrInvalidParameter)
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	got, err := b.readLocked(buf, timeout)
	if err == errReadTimeout {
		log.Debug().Int("requested", n).Msg("Raw read timed out")
		return buf[:0], nil
	}
	if err != nil {
		return nil, &DeviceError{Op: "raw read", Code: statusIOError, Err: err}
	}
	return buf[:got], nil
}
