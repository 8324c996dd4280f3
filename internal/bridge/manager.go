// SPDX-License-Identifier: GPL-3.0-only

package bridge

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hidbridge/ch347/internal/usb"
)

// Manager tracks the set of connected bridges, keyed by serial number.
// It is the reconciliation point for hotplug events: Refresh diffs the
// bus against the open set, opening new chips and releasing gone ones.
type Manager struct {
	bridges    map[string]*Bridge // serial -> bridge
	mu         sync.RWMutex
	enumerator usb.DeviceEnumerator
	opener     func(serial string) (*Bridge, error)
}

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(*Manager)

// WithManagerEnumerator sets a custom device enumerator for testing.
func WithManagerEnumerator(fn usb.DeviceEnumerator) ManagerOption {
	return func(m *Manager) {
		m.enumerator = fn
	}
}

// WithManagerOpener sets a custom bridge opener for testing.
func WithManagerOpener(fn func(serial string) (*Bridge, error)) ManagerOption {
	return func(m *Manager) {
		m.opener = fn
	}
}

// NewManager creates a new bridge manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		bridges:    make(map[string]*Bridge),
		enumerator: usb.Enumerate,
		opener:     defaultOpener,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// defaultOpener opens a bridge over the real HID transport.
func defaultOpener(serial string) (*Bridge, error) {
	b := New()
	if err := b.OpenBySerial(serial); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBridges returns information about all open bridges.
func (m *Manager) ListBridges() []usb.DeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]usb.DeviceInfo, 0, len(m.bridges))
	for _, b := range m.bridges {
		infos = append(infos, b.Info())
	}
	return infos
}

// GetBridge returns a bridge by serial number.
func (m *Manager) GetBridge(serial string) (*Bridge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bridges[serial]
	if !ok {
		return nil, fmt.Errorf("bridge with serial %s not found", serial)
	}
	return b, nil
}

// Refresh re-enumerates connected bridges and updates the internal state.
// It opens new bridges and closes disconnected ones.
func (m *Manager) Refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	currentDevices, err := m.enumerator()
	if err != nil {
		return fmt.Errorf("failed to enumerate bridges: %w", err)
	}

	currentSerials := make(map[string]usb.DeviceInfo)
	for _, info := range currentDevices {
		currentSerials[info.Serial] = info
	}

	// Close bridges whose device is gone
	for serial, b := range m.bridges {
		if _, exists := currentSerials[serial]; !exists {
			log.Info().Str("serial", serial).Msg("Bridge disconnected")
			b.Close()
			delete(m.bridges, serial)
		}
	}

	// Open newly arrived bridges
	for serial, info := range currentSerials {
		if _, exists := m.bridges[serial]; !exists {
			b, err := m.opener(serial)
			if err != nil {
				log.Error().Err(err).Str("serial", serial).Msg("Failed to open bridge")
				continue
			}
			m.bridges[serial] = b
			log.Info().Str("serial", serial).Str("product", info.Product).Msg("Bridge connected")
		}
	}

	return nil
}

// Close closes all open bridges.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for serial, b := range m.bridges {
		b.Close()
		delete(m.bridges, serial)
	}
}

// Count returns the number of open bridges.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bridges)
}
