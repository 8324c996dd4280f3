package bridge

import (
	"errors"
	"fmt"
)

// Sentinel errors for driver-level misuse. Hardware-reported failures are
// carried by DeviceError and ProtocolError instead.
var (
	// ErrNotOpen is returned when an operation requires an open bridge.
	ErrNotOpen = errors.New("bridge is not open")

	// ErrAlreadyOpen is returned when Open is called on a live instance.
	ErrAlreadyOpen = errors.New("bridge is already open")

	// ErrUnsupportedDevice is returned when the opened device is not a
	// supported CH347 variant.
	ErrUnsupportedDevice = errors.New("device is not a supported CH347 variant")

	// ErrWrongMode is returned when an operation requires a different
	// configured mode.
	ErrWrongMode = errors.New("bridge is in the wrong mode")

	// ErrInvalidParameter is returned for arguments outside the documented
	// hard bounds of an operation.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// DeviceError reports a transport-level failure: the USB exchange itself
// failed or the device rejected the session. Code is the vendor status.
type DeviceError struct {
	Op   string
	Code byte
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: device error 0x%02X: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: device error 0x%02X", e.Op, e.Code)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// ProtocolError reports a chip-level failure: the bridge understood the
// command but could not complete it on the bus. Code is the vendor status.
type ProtocolError struct {
	Op   string
	Code byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol error 0x%02X", e.Op, e.Code)
}

// IncompleteTransferError reports a write that moved fewer bytes than
// requested. Writes have no resume semantics, so this is a hard failure.
type IncompleteTransferError struct {
	Op        string
	Requested int
	Actual    int
}

func (e *IncompleteTransferError) Error() string {
	return fmt.Sprintf("%s incomplete: %d/%d bytes", e.Op, e.Actual, e.Requested)
}

// IsDeviceGone reports whether err indicates the device has disappeared
// (unplugged, handle invalidated). Callers use this to trigger
// re-enumeration rather than retrying the failed call.
func IsDeviceGone(err error) bool {
	var de *DeviceError
	if !errors.As(err, &de) {
		return false
	}
	switch de.Code {
	case statusIOError, statusDeviceNotFound, statusInvalidHandle:
		return true
	}
	return false
}
