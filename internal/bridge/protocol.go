package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Every exchange with the chip is a single 512-byte HID report in each
// direction. Requests carry a little-endian payload length, a command
// byte and the command body; responses echo the command byte followed by
// a status byte and the command results.
const (
	packetLen = 512

	// request: [lenLo lenHi cmd body...], length counts cmd + body
	reqHeaderLen = 3
	maxBody      = packetLen - reqHeaderLen

	// response: [lenLo lenHi cmd status results...]
	respHeaderLen = 4
)

// Command bytes understood by the bridge firmware.
const (
	cmdGetVersion  byte = 0x01
	cmdGetChipMode byte = 0x02
	cmdChipReset   byte = 0x03
	cmdSetClock    byte = 0x04

	cmdI2CInit   byte = 0x10
	cmdI2CWrite  byte = 0x11
	cmdI2CRead   byte = 0x12
	cmdI2CStatus byte = 0x13
	cmdI2CReset  byte = 0x14

	cmdSPIInit     byte = 0x20
	cmdSPIRead     byte = 0x21
	cmdSPIWrite    byte = 0x22
	cmdSPITransfer byte = 0x23

	cmdGPIOInit  byte = 0x30
	cmdGPIORead  byte = 0x31
	cmdGPIOWrite byte = 0x32
)

var errReadTimeout = errors.New("read timed out")

// encodeRequest frames a command into a full-size output report.
func encodeRequest(cmd byte, body []byte) ([]byte, error) {
	if len(body) > maxBody {
		return nil, fmt.Errorf("%w: request body of %d bytes exceeds %d", ErrInvalidParameter, len(body), maxBody)
	}
	buf := make([]byte, packetLen)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(1+len(body)))
	buf[2] = cmd
	copy(buf[reqHeaderLen:], body)
	return buf, nil
}

// decodeResponse unpacks an input report into its echoed command byte,
// vendor status and result payload.
func decodeResponse(buf []byte) (cmd, status byte, results []byte, err error) {
	if len(buf) < respHeaderLen {
		return 0, 0, nil, fmt.Errorf("response of %d bytes is too short", len(buf))
	}
	length := int(binary.LittleEndian.Uint16(buf[0:2]))
	if length < 2 || 2+length > len(buf) {
		return 0, 0, nil, fmt.Errorf("response declares %d payload bytes in a %d byte report", length, len(buf))
	}
	return buf[2], buf[3], buf[respHeaderLen : 2+length], nil
}

// exchangeLocked performs one request/response round trip. The caller must
// hold b.mu. Transport failures come back as DeviceError, vendor statuses
// go through translateStatus.
func (b *Bridge) exchangeLocked(op string, cmd byte, body []byte) ([]byte, error) {
	req, err := encodeRequest(cmd, body)
	if err != nil {
		return nil, err
	}
	if _, err := b.dev.Write(req); err != nil {
		return nil, &DeviceError{Op: op, Code: statusIOError, Err: err}
	}
	buf := make([]byte, packetLen)
	n, err := b.readLocked(buf, b.timeout)
	if err != nil {
		return nil, &DeviceError{Op: op, Code: statusIOError, Err: err}
	}
	gotCmd, status, results, err := decodeResponse(buf[:n])
	if err != nil {
		return nil, &DeviceError{Op: op, Code: statusIOError, Err: err}
	}
	if gotCmd != cmd {
		return nil, &DeviceError{Op: op, Code: statusIOError,
			Err: fmt.Errorf("command echo mismatch: sent 0x%02X, got 0x%02X", cmd, gotCmd)}
	}
	if err := translateStatus(op, status); err != nil {
		return nil, err
	}
	return results, nil
}

// readLocked reads one input report, giving up after the timeout. HID
// reads block until the device produces a report, so the read runs in its
// own goroutine. A zero or negative timeout blocks indefinitely.
func (b *Bridge) readLocked(p []byte, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return b.dev.Read(p)
	}
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := b.dev.Read(p)
		ch <- result{n, err}
	}()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-time.After(timeout):
		return 0, errReadTimeout
	}
}
