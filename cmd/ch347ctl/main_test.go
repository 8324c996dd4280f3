// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidbridge/ch347/internal/bridge"
	"github.com/hidbridge/ch347/internal/dbus"
	"github.com/hidbridge/ch347/internal/usb"
)

// fakeDevice implements usb.Device for testing. It acknowledges every
// request and answers the version handshake with a CH347T identity.
type fakeDevice struct {
	serial  string
	product string
	lastCmd byte
}

func (f *fakeDevice) Write(p []byte) (int, error) {
	f.lastCmd = p[2]
	return len(p), nil
}

func (f *fakeDevice) Read(p []byte) (int, error) {
	p[0] = 0x06
	p[1] = 0x00
	p[2] = f.lastCmd
	p[3] = 0x00
	copy(p[4:], []byte{0x47, 0x03, 0x00, 0x01})
	return len(p), nil
}

func (f *fakeDevice) Close() error {
	return nil
}

func (f *fakeDevice) Info() usb.DeviceInfo {
	return usb.DeviceInfo{
		Serial:  f.serial,
		Product: f.product,
	}
}

// newTestManager builds a manager whose enumerator reports the given
// bridges and whose opener hands out bridges over fake devices.
func newTestManager(infos []usb.DeviceInfo) *bridge.Manager {
	enumerator := func() ([]usb.DeviceInfo, error) {
		return infos, nil
	}
	opener := func(serial string) (*bridge.Bridge, error) {
		br := bridge.New(bridge.WithSerialOpener(func(s string) (usb.Device, error) {
			return &fakeDevice{serial: s}, nil
		}))
		if err := br.OpenBySerial(serial); err != nil {
			return nil, err
		}
		return br, nil
	}
	return bridge.NewManager(bridge.WithManagerEnumerator(enumerator), bridge.WithManagerOpener(opener))
}

func TestGetBridgesSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		bridges []usb.DeviceInfo
	}{
		{
			name:    "empty manager returns empty snapshot",
			bridges: []usb.DeviceInfo{},
		},
		{
			name: "single bridge",
			bridges: []usb.DeviceInfo{
				{Serial: "CH0001", Product: "CH347T"},
			},
		},
		{
			name: "multiple bridges",
			bridges: []usb.DeviceInfo{
				{Serial: "CH0001", Product: "CH347T"},
				{Serial: "CH0002", Product: "CH347T"},
				{Serial: "CH0003", Product: "CH347F"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := newTestManager(tt.bridges)
			require.NoError(t, manager.Refresh())

			snapshot := getBridgesSnapshot(manager)
			assert.Len(t, snapshot, len(tt.bridges))

			for _, b := range tt.bridges {
				info, exists := snapshot[b.Serial]
				assert.True(t, exists, "serial %s should exist in snapshot", b.Serial)
				assert.Equal(t, b.Serial, info.Serial)
			}
		})
	}
}

func TestDiffBridges(t *testing.T) {
	tests := []struct {
		name            string
		oldBridges      map[string]usb.DeviceInfo
		newBridges      map[string]usb.DeviceInfo
		expectedAdded   int
		expectedRemoved int
	}{
		{
			name:            "no changes",
			oldBridges:      map[string]usb.DeviceInfo{"CH0001": {Serial: "CH0001"}},
			newBridges:      map[string]usb.DeviceInfo{"CH0001": {Serial: "CH0001"}},
			expectedAdded:   0,
			expectedRemoved: 0,
		},
		{
			name:            "one bridge added",
			oldBridges:      map[string]usb.DeviceInfo{},
			newBridges:      map[string]usb.DeviceInfo{"CH0001": {Serial: "CH0001", Product: "CH347T"}},
			expectedAdded:   1,
			expectedRemoved: 0,
		},
		{
			name:            "one bridge removed",
			oldBridges:      map[string]usb.DeviceInfo{"CH0001": {Serial: "CH0001"}},
			newBridges:      map[string]usb.DeviceInfo{},
			expectedAdded:   0,
			expectedRemoved: 1,
		},
		{
			name:            "one added one removed",
			oldBridges:      map[string]usb.DeviceInfo{"CH0001": {Serial: "CH0001"}},
			newBridges:      map[string]usb.DeviceInfo{"CH0002": {Serial: "CH0002", Product: "CH347T"}},
			expectedAdded:   1,
			expectedRemoved: 1,
		},
		{
			name: "multiple changes",
			oldBridges: map[string]usb.DeviceInfo{
				"CH0001": {Serial: "CH0001"},
				"CH0002": {Serial: "CH0002"},
			},
			newBridges: map[string]usb.DeviceInfo{
				"CH0002": {Serial: "CH0002"},
				"CH0003": {Serial: "CH0003", Product: "CH347T"},
				"CH0004": {Serial: "CH0004", Product: "CH347F"},
			},
			expectedAdded:   2, // CH0003 and CH0004
			expectedRemoved: 1, // CH0001
		},
		{
			name:            "both empty",
			oldBridges:      map[string]usb.DeviceInfo{},
			newBridges:      map[string]usb.DeviceInfo{},
			expectedAdded:   0,
			expectedRemoved: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := diffBridges(tt.oldBridges, tt.newBridges)

			assert.Len(t, changes.added, tt.expectedAdded, "added count mismatch")
			assert.Len(t, changes.removed, tt.expectedRemoved, "removed count mismatch")

			// Verify added bridges have correct info
			for _, added := range changes.added {
				_, existsInNew := tt.newBridges[added.Serial]
				_, existsInOld := tt.oldBridges[added.Serial]
				assert.True(t, existsInNew, "added bridge should exist in new")
				assert.False(t, existsInOld, "added bridge should not exist in old")
			}

			// Verify removed serials
			for _, removedSerial := range changes.removed {
				_, existsInNew := tt.newBridges[removedSerial]
				_, existsInOld := tt.oldBridges[removedSerial]
				assert.False(t, existsInNew, "removed bridge should not exist in new")
				assert.True(t, existsInOld, "removed bridge should exist in old")
			}
		})
	}
}

func TestRefreshBridgesWithRetry_SuccessOnFirstAttempt(t *testing.T) {
	manager := newTestManager([]usb.DeviceInfo{{Serial: "CH0001", Product: "CH347T"}})

	found, err := refreshBridgesWithRetry(manager, 3)

	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, manager.Count())
}

func TestRefreshBridgesWithRetry_NoBridgesFound(t *testing.T) {
	manager := newTestManager([]usb.DeviceInfo{})

	// Use 0 retries to make test fast
	found, err := refreshBridgesWithRetry(manager, 0)

	assert.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, manager.Count())
}

// TestRefreshBridgesWithRetry_SkipsWhenNoBridgesFound verifies the
// found=false result that lets the hotplug handler skip the diff after a
// transiently empty enumeration, instead of emitting BridgeRemoved for
// every known bridge.
func TestRefreshBridgesWithRetry_SkipsWhenNoBridgesFound(t *testing.T) {
	manager := newTestManager([]usb.DeviceInfo{})

	found, err := refreshBridgesWithRetry(manager, 0)

	assert.NoError(t, err)
	assert.False(t, found, "Should return found=false when no bridges found")
	assert.Equal(t, 0, manager.Count())
}

// TestDiffBridges_WithPreviousBridgesAndEmptyNew verifies that diffBridges
// marks every previous bridge as removed when the new snapshot is empty.
// The hotplug handler's found guard keeps this from firing spuriously.
func TestDiffBridges_WithPreviousBridgesAndEmptyNew(t *testing.T) {
	oldBridges := map[string]usb.DeviceInfo{
		"CH0001": {Serial: "CH0001", Product: "CH347T"},
		"CH0002": {Serial: "CH0002", Product: "CH347F"},
	}
	newBridges := map[string]usb.DeviceInfo{}

	changes := diffBridges(oldBridges, newBridges)

	assert.Len(t, changes.added, 0, "No bridges should be added")
	assert.Len(t, changes.removed, 2, "Both bridges should be marked as removed")
	assert.Contains(t, changes.removed, "CH0001")
	assert.Contains(t, changes.removed, "CH0002")
}

// TestEmitBridgeChanges_OnlyEmitsForActualChanges verifies that
// emitBridgeChanges processes the bridgeChanges struct without panicking.
// Signals cannot be captured without a D-Bus connection.
func TestEmitBridgeChanges_OnlyEmitsForActualChanges(t *testing.T) {
	mockManager := &mockBridgeManager{bridges: []usb.DeviceInfo{}}
	server := dbus.NewServer(mockManager)

	tests := []struct {
		name    string
		changes bridgeChanges
	}{
		{
			name:    "empty changes",
			changes: bridgeChanges{},
		},
		{
			name: "only additions",
			changes: bridgeChanges{
				added: []usb.DeviceInfo{
					{Serial: "CH0001", Product: "CH347T"},
				},
			},
		},
		{
			name: "only removals",
			changes: bridgeChanges{
				removed: []string{"CH0001"},
			},
		},
		{
			name: "both additions and removals",
			changes: bridgeChanges{
				added:   []usb.DeviceInfo{{Serial: "CH0002", Product: "CH347T"}},
				removed: []string{"CH0001"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic
			assert.NotPanics(t, func() {
				emitBridgeChanges(server, tt.changes)
			})
		})
	}
}

func TestParseByte(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		want    byte
		wantErr bool
	}{
		{name: "hex with prefix", arg: "0x3c", want: 0x3c},
		{name: "uppercase hex", arg: "0x3C", want: 0x3c},
		{name: "decimal", arg: "60", want: 60},
		{name: "zero", arg: "0", want: 0},
		{name: "out of range", arg: "256", wantErr: true},
		{name: "not a number", arg: "zz", wantErr: true},
		{name: "empty", arg: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseByte(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// mockBridgeManager implements dbus.BridgeManager for testing.
type mockBridgeManager struct {
	bridges []usb.DeviceInfo
}

func (m *mockBridgeManager) ListBridges() []usb.DeviceInfo {
	return m.bridges
}

func (m *mockBridgeManager) GetBridge(serial string) (*bridge.Bridge, error) {
	return nil, nil
}

func (m *mockBridgeManager) Refresh() error {
	return nil
}
