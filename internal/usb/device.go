// Package usb provides the HID transport for the CH347 bridge chip.
package usb

//go:generate mockgen -source=device.go -destination=mocks/device_mock.go -package=mocks

// DeviceInfo is an immutable snapshot of a bridge interface produced by
// enumeration.
type DeviceInfo struct {
	Path    string
	Serial  string
	Product string
	Index   uint32
}

// Device is the raw report transport to one CH347 HID interface.
// This interface allows for mocking in tests.
type Device interface {
	// Write sends one output report to the device.
	Write(p []byte) (int, error)

	// Read reads one input report from the device, blocking until one
	// arrives.
	Read(p []byte) (int, error)

	// Close closes the device handle.
	Close() error

	// Info returns information about the device.
	Info() DeviceInfo
}

// DeviceOpener is a function type that opens a bridge device.
type DeviceOpener func(serial string) (Device, error)

// DeviceEnumerator is a function type that enumerates bridge devices.
type DeviceEnumerator func() ([]DeviceInfo, error)
