// Package udev provides hot-plug detection for CH347 bridges via netlink/udev events.
package udev

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"
)

const (
	// netlinkBufferSize is the receive buffer size for the netlink socket.
	// A larger buffer prevents ENOBUFS errors during USB hot-plug events.
	// USB hot-plug generates many netlink messages rapidly; 2MB handles typical scenarios.
	netlinkBufferSize = 2 * 1024 * 1024 // 2 MB

	// removeDebounceWindow suppresses duplicate REMOVE events for the same
	// PRODUCT. Unplugging a composite USB device emits one REMOVE per
	// interface, which would otherwise trigger several refreshes.
	removeDebounceWindow = 2 * time.Second

	// removeEntryMaxAge is how long debounce timestamps are kept before
	// being garbage collected.
	removeEntryMaxAge = time.Minute
)

const (
	// WCHVendorIDPattern matches the WCH vendor ID in the udev PRODUCT
	// variable. Kernels vary in leading-zero stripping and hex case.
	WCHVendorIDPattern = "0?1[aA]86"

	// CH347HIDProductIDPattern matches the CH347 HID-mode product ID.
	CH347HIDProductIDPattern = "55[dD][cC]"
)

// EventType represents the type of device event.
type EventType int

const (
	// EventAdd indicates a device was connected.
	EventAdd EventType = iota
	// EventRemove indicates a device was disconnected.
	EventRemove
)

// Event represents a device hot-plug event.
type Event struct {
	Type EventType
}

// EventHandler is called when a device event occurs.
type EventHandler func(event Event)

// RecoveryHandler is called when the monitor recovers from an error condition
// (e.g., netlink buffer overflow) and needs to trigger a refresh.
type RecoveryHandler func()

// Monitor watches for CH347 bridge connect/disconnect events.
type Monitor struct {
	conn            *netlink.UEventConn
	handler         EventHandler
	recoveryHandler RecoveryHandler
	quit            chan struct{}
	stopped         bool
	lastRemoveTime  map[string]time.Time
	mu              sync.Mutex
}

// NewMonitor creates a new udev monitor with the given event handler.
func NewMonitor(handler EventHandler) *Monitor {
	return &Monitor{
		handler:        handler,
		lastRemoveTime: make(map[string]time.Time),
	}
}

// SetRecoveryHandler sets the handler called when the monitor recovers from errors.
// This should trigger a bridge refresh to recover from potentially missed events.
func (m *Monitor) SetRecoveryHandler(handler RecoveryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveryHandler = handler
}

// Start begins monitoring for device events.
// This method is non-blocking; events are processed in a background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("monitor already started")
	}

	m.conn = &netlink.UEventConn{}
	if err := m.conn.Connect(netlink.UdevEvent); err != nil {
		m.conn = nil
		return fmt.Errorf("failed to connect to netlink: %w", err)
	}

	// Increase socket receive buffer to prevent ENOBUFS during rapid USB hot-plug events
	if err := setSocketBufferSize(m.conn.Fd, netlinkBufferSize); err != nil {
		log.Warn().Err(err).Int("size", netlinkBufferSize).Msg("Failed to set netlink buffer size")
		// Continue anyway - the default buffer may still work for most cases
	} else {
		log.Debug().Int("size", netlinkBufferSize).Msg("Netlink socket buffer size configured")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	matcher := m.createMatcher()

	m.quit = m.conn.Monitor(queue, errs, matcher)
	m.stopped = false

	go m.processEvents(queue, errs)

	log.Info().Msg("udev monitor started")
	return nil
}

// Stop stops the monitor and releases resources.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}

	m.stopped = true

	// Signal the monitor goroutine to stop
	select {
	case m.quit <- struct{}{}:
	default:
	}

	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("failed to close netlink connection: %w", err)
	}

	m.conn = nil
	log.Info().Msg("udev monitor stopped")
	return nil
}

// createMatcher creates a matcher for CH347 bridge events.
func (m *Monitor) createMatcher() *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}

	// The PRODUCT env var format is "vendorId/productId/bcdDevice"
	// (e.g., "1a86/55dc/241"). The pattern is anchored so that a longer
	// product ID sharing the prefix cannot match.
	productPattern := fmt.Sprintf("^%s/%s/[^/]+$", WCHVendorIDPattern, CH347HIDProductIDPattern)

	for _, action := range []string{"add", "remove"} {
		action := action
		rules.AddRule(netlink.RuleDefinition{
			Action: &action,
			Env: map[string]string{
				"SUBSYSTEM": "^usb$",
				"PRODUCT":   productPattern,
			},
		})
	}

	return rules
}

// processEvents handles incoming udev events.
func (m *Monitor) processEvents(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case event, ok := <-queue:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				return
			}
			m.mu.Lock()
			stopped := m.stopped
			recoveryHandler := m.recoveryHandler
			m.mu.Unlock()
			if stopped {
				return
			}

			// Handle netlink buffer overflow (ENOBUFS) gracefully.
			// When this occurs, events may have been dropped, so we trigger
			// a recovery refresh to re-enumerate bridges.
			if isBufferOverflowError(err) {
				log.Warn().Msg("Netlink buffer overflow detected, triggering recovery refresh")
				if recoveryHandler != nil {
					go recoveryHandler()
				}
				continue
			}

			log.Error().Err(err).Msg("udev monitor error")
		}
	}
}

// setSocketBufferSize sets the receive buffer size for a socket.
// It first tries SO_RCVBUFFORCE (requires CAP_NET_ADMIN), then falls back to SO_RCVBUF.
func setSocketBufferSize(fd int, size int) error {
	err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUFFORCE, size)
	if err == nil {
		return nil
	}

	// SO_RCVBUF is limited by net.core.rmem_max; the kernel caps the
	// value and doubles it internally
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

// isBufferOverflowError checks if the error is a netlink buffer overflow (ENOBUFS).
func isBufferOverflowError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOBUFS) {
		return true
	}
	// The udev library wraps some socket errors into plain strings
	return strings.Contains(strings.ToLower(err.Error()), "no buffer space available")
}

// shouldDebounceRemove reports whether a REMOVE event for the given
// PRODUCT arrived within the debounce window of the previous one. Stale
// entries are cleaned up on the way.
func (m *Monitor) shouldDebounceRemove(product string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for p, ts := range m.lastRemoveTime {
		if now.Sub(ts) > removeEntryMaxAge {
			delete(m.lastRemoveTime, p)
		}
	}

	if last, ok := m.lastRemoveTime[product]; ok && now.Sub(last) < removeDebounceWindow {
		return true
	}
	m.lastRemoveTime[product] = now
	return false
}

// handleEvent processes a single udev event.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	// Filter for usb_device type only (not usb_interface) on ADD events.
	// For REMOVE events, DEVTYPE may not be present since the device is
	// already gone, so every REMOVE is considered and duplicates are
	// handled by debouncing instead.
	devtype := uevent.Env["DEVTYPE"]
	if uevent.Action == netlink.ADD && devtype != "usb_device" {
		return
	}

	log.Debug().
		Str("action", string(uevent.Action)).
		Str("devpath", uevent.KObj).
		Str("product", uevent.Env["PRODUCT"]).
		Msg("USB device event")

	var eventType EventType
	switch uevent.Action {
	case netlink.ADD:
		eventType = EventAdd
		log.Info().Str("product", uevent.Env["PRODUCT"]).Msg("CH347 bridge connected")
	case netlink.REMOVE:
		if m.shouldDebounceRemove(uevent.Env["PRODUCT"]) {
			log.Debug().Str("product", uevent.Env["PRODUCT"]).Msg("Duplicate REMOVE suppressed")
			return
		}
		eventType = EventRemove
		log.Info().Str("product", uevent.Env["PRODUCT"]).Msg("CH347 bridge disconnected")
	default:
		return
	}

	if m.handler != nil {
		m.handler(Event{Type: eventType})
	}
}
