// Package oled drives an SSD1306-style monochrome OLED over an I2C
// bridge. All drawing happens in an in-memory framebuffer; UpdateScreen
// pushes the buffer to the panel page by page.
package oled

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hidbridge/ch347/internal/bridge"
)

// Bus is the I2C transport the display writes through. *bridge.Bridge
// satisfies it.
type Bus interface {
	I2CWrite(addr byte, data []byte, flags bridge.I2CFlags) error
	IsOpen() bool
}

const (
	// DefaultAddress is the usual SSD1306 I2C address.
	DefaultAddress byte = 0x3C

	DefaultWidth  = 128
	DefaultHeight = 64

	// pageHeight is the number of pixel rows per memory page.
	pageHeight = 8

	// Control bytes prefixing every I2C transaction.
	ctrlCommand byte = 0x00
	ctrlData    byte = 0x40
)

// Panel command bytes.
const (
	cmdDisplayOff    byte = 0xAE
	cmdDisplayOn     byte = 0xAF
	cmdMemoryMode    byte = 0x20
	cmdStartLine     byte = 0x40
	cmdContrast      byte = 0x81
	cmdSegRemap      byte = 0xA1
	cmdMuxRatio      byte = 0xA8
	cmdComScanDec    byte = 0xC8
	cmdDisplayOffset byte = 0xD3
	cmdClockDivide   byte = 0xD5
	cmdPrecharge     byte = 0xD9
	cmdComPins       byte = 0xDA
	cmdVCOMHDeselect byte = 0xDB
	cmdChargePump    byte = 0x8D
	cmdNormalDisplay byte = 0xA6
	cmdInvertedMode  byte = 0xA7
	cmdEntireOn      byte = 0xA4
	cmdPageAddress   byte = 0xB0
	cmdColumnLow     byte = 0x00
	cmdColumnHigh    byte = 0x10
)

var (
	// ErrNotInitialized is returned by panel operations before Init.
	ErrNotInitialized = errors.New("display is not initialized")

	// ErrBusClosed is returned when the underlying bridge is not open.
	ErrBusClosed = errors.New("display bus is not open")
)

// Color is the state of a pixel.
type Color int

const (
	Black Color = iota
	White
)

// Display is a framebuffer-backed OLED panel. All methods are safe for
// concurrent use.
type Display struct {
	mu     sync.Mutex
	bus    Bus
	addr   byte
	width  int
	height int
	pages  int

	buffer      []byte
	cursorX     int
	cursorY     int
	inverted    bool
	initialized bool
	owned       bool
}

// DisplayOption configures a Display.
type DisplayOption func(*Display)

// WithAddress sets a non-default I2C address.
func WithAddress(addr byte) DisplayOption {
	return func(d *Display) { d.addr = addr }
}

// WithSize sets the panel dimensions. A height that is not a multiple of
// 8 gets a padded last memory page; the extra rows are never addressable.
func WithSize(width, height int) DisplayOption {
	return func(d *Display) {
		d.width = width
		d.height = height
	}
}

// WithOwnedBridge marks the bus as owned by the display: Close will
// close the bridge too. By default the display borrows the bus.
func WithOwnedBridge() DisplayOption {
	return func(d *Display) { d.owned = true }
}

// New creates a display over the given bus. The framebuffer starts
// black; nothing is sent to the panel until Init.
func New(bus Bus, opts ...DisplayOption) *Display {
	d := &Display{
		bus:    bus,
		addr:   DefaultAddress,
		width:  DefaultWidth,
		height: DefaultHeight,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.width < 1 {
		d.width = DefaultWidth
	}
	if d.height < 1 {
		d.height = DefaultHeight
	}
	d.pages = (d.height + pageHeight - 1) / pageHeight
	d.buffer = make([]byte, d.width*d.pages)
	return d
}

// Width returns the panel width in pixels.
func (d *Display) Width() int { return d.width }

// Height returns the panel height in pixels.
func (d *Display) Height() int { return d.height }

// Initialized reports whether Init has completed.
func (d *Display) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

// Inverted reports whether the panel is in inverted mode.
func (d *Display) Inverted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inverted
}

// writeCommand sends one command byte as its own two-byte transaction.
// The panel rejects batched command streams on some clones, so each
// command goes out separately.
func (d *Display) writeCommand(cmd byte) error {
	if err := d.bus.I2CWrite(d.addr, []byte{ctrlCommand, cmd}, bridge.I2CFlagStartStop); err != nil {
		return fmt.Errorf("command 0x%02X: %w", cmd, err)
	}
	return nil
}

func (d *Display) writeCommands(cmds ...byte) error {
	for _, cmd := range cmds {
		if err := d.writeCommand(cmd); err != nil {
			return err
		}
	}
	return nil
}

// writeData sends a data block as a single transaction with one leading
// control byte.
func (d *Display) writeData(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	buf := make([]byte, 1+len(data))
	buf[0] = ctrlData
	copy(buf[1:], data)
	if err := d.bus.I2CWrite(d.addr, buf, bridge.I2CFlagStartStop); err != nil {
		return fmt.Errorf("data block of %d bytes: %w", len(data), err)
	}
	return nil
}

// Init powers up and configures the panel, clears it and resets the
// cursor. Calling Init on an initialized display is a no-op and sends
// nothing to the hardware.
func (d *Display) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		log.Debug().Msg("Display already initialized")
		return nil
	}
	if d.bus == nil || !d.bus.IsOpen() {
		return ErrBusClosed
	}

	// Let the supply settle before configuration
	time.Sleep(100 * time.Millisecond)

	err := d.writeCommands(
		cmdDisplayOff,
		cmdMemoryMode, 0x00, // horizontal addressing
		cmdStartLine,
		cmdContrast, 0xFF,
		cmdSegRemap,
		cmdMuxRatio, byte(d.height-1),
		cmdComScanDec,
		cmdDisplayOffset, 0x00,
		cmdClockDivide, 0x80,
		cmdPrecharge, 0xF1,
		cmdComPins, 0x12,
		cmdVCOMHDeselect, 0x40,
		cmdChargePump, 0x14,
		cmdNormalDisplay,
		cmdEntireOn,
		cmdDisplayOn,
	)
	if err != nil {
		return fmt.Errorf("display init: %w", err)
	}

	d.fillLocked(Black)
	if err := d.updateScreenLocked(); err != nil {
		return fmt.Errorf("display init: %w", err)
	}

	d.cursorX = 0
	d.cursorY = 0
	d.initialized = true
	log.Info().Int("width", d.width).Int("height", d.height).Msg("Display initialized")
	return nil
}

// DisplayOn re-enables the charge pump and turns the panel on.
func (d *Display) DisplayOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}
	return d.writeCommands(cmdChargePump, 0x14, cmdDisplayOn)
}

// DisplayOff turns the panel off. The framebuffer is preserved.
func (d *Display) DisplayOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}
	return d.writeCommand(cmdDisplayOff)
}

// SetContrast sets the panel contrast, 0 to 255.
func (d *Display) SetContrast(contrast byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}
	return d.writeCommands(cmdContrast, contrast)
}

// InvertDisplay puts the panel into inverted or normal mode. It is a
// no-op if the panel is already in the requested mode.
func (d *Display) InvertDisplay(invert bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}
	if invert == d.inverted {
		return nil
	}
	return d.toggleInvertLocked()
}

// ToggleInvert flips between normal and inverted mode. The framebuffer
// is complemented in step with the panel so later partial updates stay
// consistent.
func (d *Display) ToggleInvert() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}
	return d.toggleInvertLocked()
}

func (d *Display) toggleInvertLocked() error {
	for i := range d.buffer {
		d.buffer[i] = ^d.buffer[i]
	}

	cmd := cmdInvertedMode
	if d.inverted {
		cmd = cmdNormalDisplay
	}
	if err := d.writeCommand(cmd); err != nil {
		return err
	}
	d.inverted = !d.inverted
	log.Debug().Bool("inverted", d.inverted).Msg("Display invert toggled")
	return nil
}

// Fill sets every pixel in the framebuffer to the given color. The panel
// is not touched until UpdateScreen.
func (d *Display) Fill(color Color) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fillLocked(color)
}

// Clear fills the framebuffer with black.
func (d *Display) Clear() {
	d.Fill(Black)
}

func (d *Display) fillLocked(color Color) {
	pattern := byte(0x00)
	if color == White {
		pattern = 0xFF
	}
	for i := range d.buffer {
		d.buffer[i] = pattern
	}
}

// UpdateScreen pushes the framebuffer to the panel page by page. Each
// page is addressed with three commands and written as one data block.
// The update aborts on the first failed page.
func (d *Display) UpdateScreen() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}
	return d.updateScreenLocked()
}

func (d *Display) updateScreenLocked() error {
	for page := 0; page < d.pages; page++ {
		if err := d.writeCommands(cmdPageAddress|byte(page), cmdColumnLow, cmdColumnHigh); err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		start := page * d.width
		if err := d.writeData(d.buffer[start : start+d.width]); err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
	}
	return nil
}

// Close releases the display. If the bridge was handed over with
// WithOwnedBridge it is closed too; a borrowed bus is left alone.
func (d *Display) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.initialized = false
	if !d.owned {
		return
	}
	if closer, ok := d.bus.(interface{ Close() }); ok {
		closer.Close()
	}
}
