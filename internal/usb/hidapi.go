package usb

import (
	"errors"
	"fmt"

	karalabehid "github.com/karalabe/hid"
)

const (
	// VendorID is the USB vendor ID of the CH347 (WCH).
	VendorID uint16 = 0x1A86

	// ProductID is the USB product ID of the CH347 in HID mode (mode 2).
	ProductID uint16 = 0x55DC

	// BridgeInterface is the USB interface carrying SPI/I2C/GPIO traffic.
	// Interface 0 is the UART endpoint and is not used here.
	BridgeInterface = 1
)

// HIDAPIDevice wraps a karalabe/hid device to implement the Device interface.
type HIDAPIDevice struct {
	device karalabehid.Device
	info   DeviceInfo
}

// Verify HIDAPIDevice implements Device interface.
var _ Device = (*HIDAPIDevice)(nil)

// NewHIDAPIDevice creates a new HIDAPIDevice from an open hid.Device.
func NewHIDAPIDevice(device karalabehid.Device, info DeviceInfo) *HIDAPIDevice {
	return &HIDAPIDevice{
		device: device,
		info:   info,
	}
}

// Write sends one output report to the device.
func (d *HIDAPIDevice) Write(p []byte) (int, error) {
	return d.device.Write(p)
}

// Read reads one input report from the device.
func (d *HIDAPIDevice) Read(p []byte) (int, error) {
	return d.device.Read(p)
}

// Close closes the device handle.
func (d *HIDAPIDevice) Close() error {
	return d.device.Close()
}

// Info returns information about the device.
func (d *HIDAPIDevice) Info() DeviceInfo {
	return d.info
}

// Enumerate returns a list of all connected CH347 bridge interfaces, in
// enumeration order.
func Enumerate() ([]DeviceInfo, error) {
	var bridges []DeviceInfo

	devices, err := karalabehid.Enumerate(VendorID, ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}

	var index uint32
	for _, device := range devices {
		if device.Interface != BridgeInterface {
			continue
		}
		bridges = append(bridges, DeviceInfo{
			Path:    device.Path,
			Serial:  device.Serial,
			Product: device.Product,
			Index:   index,
		})
		index++
	}

	return bridges, nil
}

// Open opens the bridge interface with the given enumeration index.
func Open(index uint32) (*HIDAPIDevice, error) {
	return open(func(info DeviceInfo) bool { return info.Index == index },
		fmt.Sprintf("bridge with index %d not found", index))
}

// OpenBySerial opens a bridge interface by serial number. If serial is
// empty, the first available bridge is opened.
func OpenBySerial(serial string) (*HIDAPIDevice, error) {
	if serial == "" {
		return open(func(DeviceInfo) bool { return true }, "no CH347 bridge found")
	}
	return open(func(info DeviceInfo) bool { return info.Serial == serial },
		fmt.Sprintf("bridge with serial %s not found", serial))
}

func open(match func(DeviceInfo) bool, missing string) (*HIDAPIDevice, error) {
	devices, err := karalabehid.Enumerate(VendorID, ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	var index uint32
	for _, deviceInfo := range devices {
		if deviceInfo.Interface != BridgeInterface {
			continue
		}
		info := DeviceInfo{
			Path:    deviceInfo.Path,
			Serial:  deviceInfo.Serial,
			Product: deviceInfo.Product,
			Index:   index,
		}
		index++

		if !match(info) {
			continue
		}

		device, err := deviceInfo.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open bridge %s: %w", deviceInfo.Serial, err)
		}
		return NewHIDAPIDevice(device, info), nil
	}

	return nil, errors.New(missing)
}
