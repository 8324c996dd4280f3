package bridge

// Vendor status codes returned in the second byte of every response frame.
// Codes below 0x40 describe the USB session, codes from 0x40 up describe
// the bridged bus. The split mirrors the two error types the driver
// surfaces: DeviceError and ProtocolError.
const (
	statusOK             byte = 0x00
	statusIOError        byte = 0x01
	statusDeviceNotFound byte = 0x02
	statusAccessDenied   byte = 0x03
	statusInvalidHandle  byte = 0x04

	statusNotConfigured byte = 0x40
	statusBusy          byte = 0x41
	statusFailed        byte = 0x42
	statusBadParameter  byte = 0x43
	statusUnsupported   byte = 0x44
	statusAddressNACKed byte = 0x45
)

// translateStatus maps a vendor status byte onto the driver's error
// taxonomy. A zero status is success and maps to nil.
func translateStatus(op string, code byte) error {
	switch {
	case code == statusOK:
		return nil
	case code < statusNotConfigured:
		return &DeviceError{Op: op, Code: code}
	default:
		return &ProtocolError{Op: op, Code: code}
	}
}
