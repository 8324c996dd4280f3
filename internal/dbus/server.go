// SPDX-License-Identifier: GPL-3.0-only

// Package dbus provides the D-Bus service for CH347 bridges and the OLED
// panels attached to them.
package dbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hidbridge/ch347/internal/bridge"
	"github.com/hidbridge/ch347/internal/contrast"
	"github.com/hidbridge/ch347/internal/oled"
	"github.com/hidbridge/ch347/internal/scan"
	"github.com/hidbridge/ch347/internal/usb"
)

// ErrEmptySerial is returned when an empty serial number is provided.
var ErrEmptySerial = errors.New("serial cannot be empty")

// ErrRateLimitExceeded is returned when display requests exceed the rate limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrUnrenderableText is returned when text contains a rune the built-in
// font cannot render.
var ErrUnrenderableText = errors.New("text contains an unrenderable character")

const (
	// rateLimitPerSecond is the maximum number of display operations per second.
	rateLimitPerSecond = 20

	// rateLimitBurst is the maximum burst size for display operations.
	rateLimitBurst = 5
)

const (
	// ServiceName is the D-Bus service name.
	ServiceName = "io.github.hidbridge.CH347"

	// ObjectPath is the D-Bus object path.
	ObjectPath = "/io/github/hidbridge/CH347"

	// InterfaceName is the D-Bus interface name.
	InterfaceName = "io.github.hidbridge.CH347"
)

// IntrospectXML is the D-Bus introspection XML for the service.
const IntrospectXML = `
<node name="` + ObjectPath + `">
  <interface name="` + InterfaceName + `">
    <method name="ListBridges">
      <arg name="bridges" type="a(ss)" direction="out"/>
    </method>
    <method name="ScanBus">
      <arg name="serial" type="s" direction="in"/>
      <arg name="addresses" type="ay" direction="out"/>
    </method>
    <method name="ShowText">
      <arg name="serial" type="s" direction="in"/>
      <arg name="text" type="s" direction="in"/>
    </method>
    <method name="ClearDisplay">
      <arg name="serial" type="s" direction="in"/>
    </method>
    <method name="SetContrast">
      <arg name="serial" type="s" direction="in"/>
      <arg name="percent" type="u" direction="in"/>
    </method>
    <method name="SetInverted">
      <arg name="serial" type="s" direction="in"/>
      <arg name="inverted" type="b" direction="in"/>
    </method>
    <signal name="BridgeAdded">
      <arg name="serial" type="s"/>
      <arg name="productName" type="s"/>
    </signal>
    <signal name="BridgeRemoved">
      <arg name="serial" type="s"/>
    </signal>
    <signal name="ContrastChanged">
      <arg name="serial" type="s"/>
      <arg name="percent" type="u"/>
    </signal>
  </interface>
  ` + introspect.IntrospectDataString + `
</node>
`

// BridgeManager is an interface for managing bridges.
// This allows for mocking in tests.
type BridgeManager interface {
	// ListBridges returns information about all open bridges.
	ListBridges() []usb.DeviceInfo

	// GetBridge returns a bridge by serial number.
	GetBridge(serial string) (*bridge.Bridge, error)

	// Refresh re-enumerates connected bridges.
	Refresh() error
}

// DeviceErrorHandler is called when a device error (e.g., bridge
// unplugged) is detected, so the caller can trigger re-enumeration.
type DeviceErrorHandler func(serial string, err error)

// BridgeInfo represents bridge information returned via D-Bus.
// Serializes to D-Bus type (ss), serial and product name.
type BridgeInfo struct {
	Serial      string
	ProductName string
}

// Server implements the D-Bus service for bridge and display control.
//
// Thread safety:
//   - Bridges and displays are individually thread-safe.
//   - connMu protects the D-Bus connection field for signal emission.
//   - handlerMu protects the deviceErrorHandler field.
//   - displayMu protects the per-serial display cache.
type Server struct {
	conn               *dbus.Conn
	connMu             sync.RWMutex
	manager            BridgeManager
	rateLimiter        *rate.Limiter
	handlerMu          sync.RWMutex
	deviceErrorHandler DeviceErrorHandler

	displayMu sync.Mutex
	displays  map[string]*oled.Display
}

// NewServer creates a new D-Bus server with the given bridge manager.
func NewServer(manager BridgeManager) *Server {
	return &Server{
		manager:     manager,
		rateLimiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
		displays:    make(map[string]*oled.Display),
	}
}

// Start connects to the session bus and exports the service.
func (s *Server) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	// Ensure connection is closed if setup fails
	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	err = conn.Export(s, ObjectPath, InterfaceName)
	if err != nil {
		return fmt.Errorf("failed to export server: %w", err)
	}

	err = conn.Export(introspect.Introspectable(IntrospectXML), ObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	success = true
	log.Info().Str("service", ServiceName).Msg("D-Bus service started")
	return nil
}

// Stop disconnects from the session bus.
func (s *Server) Stop() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// SetDeviceErrorHandler sets the callback invoked when device errors are
// detected. This is typically used to trigger re-enumeration when a
// bridge is found to be unplugged during an operation.
//
// This method is thread-safe and can be called at any time.
func (s *Server) SetDeviceErrorHandler(handler DeviceErrorHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.deviceErrorHandler = handler
}

// DropDisplay discards the cached display state for a serial. Called
// when a bridge disappears so a reconnected chip starts fresh.
func (s *Server) DropDisplay(serial string) {
	s.displayMu.Lock()
	defer s.displayMu.Unlock()
	delete(s.displays, serial)
}

// handleDeviceError checks if the error indicates an unplugged bridge
// and triggers recovery. Returns true if recovery was triggered.
func (s *Server) handleDeviceError(serial string, err error) bool {
	if err == nil || !bridge.IsDeviceGone(err) {
		return false
	}

	log.Warn().
		Err(err).
		Str("serial", serial).
		Msg("Device error detected, triggering recovery")

	s.DropDisplay(serial)

	s.handlerMu.RLock()
	handler := s.deviceErrorHandler
	s.handlerMu.RUnlock()

	if handler != nil {
		// Run recovery asynchronously to not block the D-Bus response
		go handler(serial, err)
	}

	return true
}

// displayFor returns the cached display for a serial, building and
// initializing it on first use. The bus is put into I2C master mode as
// part of the build.
func (s *Server) displayFor(serial string) (*oled.Display, error) {
	s.displayMu.Lock()
	defer s.displayMu.Unlock()

	if d, ok := s.displays[serial]; ok {
		return d, nil
	}

	br, err := s.manager.GetBridge(serial)
	if err != nil {
		return nil, err
	}
	if err := br.InitI2CMaster(bridge.I2CSpeed400K); err != nil {
		return nil, err
	}

	d := oled.New(br)
	if err := d.Init(); err != nil {
		return nil, err
	}
	s.displays[serial] = d
	return d, nil
}

// ListBridges returns a list of all connected bridges.
// Returns an array of structs: [{Serial, ProductName}, ...]
func (s *Server) ListBridges() ([]BridgeInfo, *dbus.Error) {
	bridges := s.manager.ListBridges()
	result := make([]BridgeInfo, len(bridges))
	for i, b := range bridges {
		result[i] = BridgeInfo{Serial: b.Serial, ProductName: b.Product}
	}

	log.Debug().Int("count", len(result)).Msg("Listed bridges")
	return result, nil
}

// ScanBus scans the full usable I2C address range of a bridge and
// returns the addresses that acknowledged.
func (s *Server) ScanBus(serial string) ([]byte, *dbus.Error) {
	if serial == "" {
		return nil, dbus.MakeFailedError(ErrEmptySerial)
	}

	br, err := s.manager.GetBridge(serial)
	if err != nil {
		log.Error().Err(err).Str("serial", serial).Msg("Failed to get bridge")
		return nil, dbus.MakeFailedError(err)
	}

	addresses, err := scan.New(br).Scan(0x03, 0x77)
	if err != nil {
		s.handleDeviceError(serial, err)
		log.Error().Err(err).Str("serial", serial).Msg("Bus scan failed")
		return nil, dbus.MakeFailedError(err)
	}

	// The scan drops the bridge out of any display session
	s.DropDisplay(serial)

	log.Debug().Str("serial", serial).Int("found", len(addresses)).Msg("Scanned bus")
	return addresses, nil
}

// ShowText clears the attached display and renders text at the origin.
func (s *Server) ShowText(serial, text string) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for ShowText")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	if serial == "" {
		return dbus.MakeFailedError(ErrEmptySerial)
	}

	d, err := s.displayFor(serial)
	if err != nil {
		s.handleDeviceError(serial, err)
		log.Error().Err(err).Str("serial", serial).Msg("Failed to get display")
		return dbus.MakeFailedError(err)
	}

	d.Clear()
	d.SetCursor(0, 0)
	if offending, ok := d.PutString(text, oled.Font8x8, oled.White); !ok {
		return dbus.MakeFailedError(fmt.Errorf("%w: %q", ErrUnrenderableText, offending))
	}
	if err := d.UpdateScreen(); err != nil {
		s.handleDeviceError(serial, err)
		log.Error().Err(err).Str("serial", serial).Msg("Failed to update display")
		return dbus.MakeFailedError(err)
	}

	log.Debug().Str("serial", serial).Int("length", len(text)).Msg("Text shown")
	return nil
}

// ClearDisplay blanks the attached display.
func (s *Server) ClearDisplay(serial string) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for ClearDisplay")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	if serial == "" {
		return dbus.MakeFailedError(ErrEmptySerial)
	}

	d, err := s.displayFor(serial)
	if err != nil {
		s.handleDeviceError(serial, err)
		return dbus.MakeFailedError(err)
	}

	d.Clear()
	if err := d.UpdateScreen(); err != nil {
		s.handleDeviceError(serial, err)
		return dbus.MakeFailedError(err)
	}

	log.Debug().Str("serial", serial).Msg("Display cleared")
	return nil
}

// SetContrast sets the display contrast as a percentage (0-100).
func (s *Server) SetContrast(serial string, percent uint32) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for SetContrast")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	if serial == "" {
		return dbus.MakeFailedError(ErrEmptySerial)
	}

	d, err := s.displayFor(serial)
	if err != nil {
		s.handleDeviceError(serial, err)
		return dbus.MakeFailedError(err)
	}

	if percent > 100 {
		percent = 100
	}

	// #nosec G115 -- percent is clamped to 0-100, safe for uint8
	if err := d.SetContrast(contrast.PercentToLevel(uint8(percent))); err != nil {
		s.handleDeviceError(serial, err)
		log.Error().Err(err).Str("serial", serial).Msg("Failed to set contrast")
		return dbus.MakeFailedError(err)
	}

	log.Debug().Str("serial", serial).Uint32("percent", percent).Msg("Set contrast")
	s.emitContrastChanged(serial, percent)

	return nil
}

// SetInverted puts the display into inverted or normal mode.
func (s *Server) SetInverted(serial string, inverted bool) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for SetInverted")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	if serial == "" {
		return dbus.MakeFailedError(ErrEmptySerial)
	}

	d, err := s.displayFor(serial)
	if err != nil {
		s.handleDeviceError(serial, err)
		return dbus.MakeFailedError(err)
	}

	if err := d.InvertDisplay(inverted); err != nil {
		s.handleDeviceError(serial, err)
		return dbus.MakeFailedError(err)
	}

	log.Debug().Str("serial", serial).Bool("inverted", inverted).Msg("Set inverted")
	return nil
}

// emitContrastChanged emits the ContrastChanged signal.
func (s *Server) emitContrastChanged(serial string, percent uint32) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	err := conn.Emit(ObjectPath, InterfaceName+".ContrastChanged", serial, percent)
	if err != nil {
		log.Error().Err(err).Msg("Failed to emit ContrastChanged signal")
	}
}

// EmitBridgeAdded emits the BridgeAdded signal.
func (s *Server) EmitBridgeAdded(serial, productName string) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	err := conn.Emit(ObjectPath, InterfaceName+".BridgeAdded", serial, productName)
	if err != nil {
		log.Error().Err(err).Msg("Failed to emit BridgeAdded signal")
	}
	log.Info().Str("serial", serial).Str("product", productName).Msg("Bridge added")
}

// EmitBridgeRemoved emits the BridgeRemoved signal.
func (s *Server) EmitBridgeRemoved(serial string) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	s.DropDisplay(serial)

	if conn == nil {
		return
	}

	err := conn.Emit(ObjectPath, InterfaceName+".BridgeRemoved", serial)
	if err != nil {
		log.Error().Err(err).Msg("Failed to emit BridgeRemoved signal")
	}
	log.Info().Str("serial", serial).Msg("Bridge removed")
}
