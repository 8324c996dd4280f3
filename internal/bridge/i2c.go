package bridge

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog/log"
)

// I2CSpeed is the bus speed in kbit/s.
type I2CSpeed uint16

const (
	I2CSpeed100K  I2CSpeed = 100
	I2CSpeed400K  I2CSpeed = 400
	I2CSpeed1000K I2CSpeed = 1000
)

// I2CFlags control the START/STOP framing of a transfer. Combining
// transfers without a STOP keeps the bus claimed for a repeated START.
type I2CFlags byte

const (
	I2CFlagNone          I2CFlags = 0x00
	I2CFlagStart         I2CFlags = 0x02
	I2CFlagRepeatedStart I2CFlags = 0x03
	I2CFlagStop          I2CFlags = 0x04

	I2CFlagStartStop         = I2CFlagStart | I2CFlagStop
	I2CFlagRepeatedStartStop = I2CFlagRepeatedStart | I2CFlagStop
)

// Bus status bits reported by I2CStatus.
const (
	I2CStatusControllerBusy  byte = 0x01
	I2CStatusError           byte = 0x02
	I2CStatusAddressNACK     byte = 0x04
	I2CStatusDataNACK        byte = 0x08
	I2CStatusArbitrationLost byte = 0x10
	I2CStatusIdle            byte = 0x20
	I2CStatusBusBusy         byte = 0x40
)

// MaxTransfer is the largest payload a single I2C or SPI transfer can
// carry, bounded by the fixed report size.
const MaxTransfer = 480

// InitI2CMaster configures the chip as an I2C master at the given speed
// and switches the bridge into I2C mode. It may be called again at any
// time to change speed or to leave another mode.
func (b *Bridge) InitI2CMaster(speed I2CSpeed) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return ErrNotOpen
	}
	switch speed {
	case I2CSpeed100K, I2CSpeed400K, I2CSpeed1000K:
	default:
		return fmt.Errorf("%w: i2c speed %d kbit/s", ErrInvalidParameter, speed)
	}

	body := make([]byte, 2)
	binary.LittleEndian.PutUint16(body, uint16(speed))
	if _, err := b.exchangeLocked("i2c init", cmdI2CInit, body); err != nil {
		return err
	}
	b.mode = ModeI2CMaster
	log.Debug().Uint16("speed_kbps", uint16(speed)).Msg("I2C master initialized")
	return nil
}

// I2CWrite writes data to the 7-bit address addr with the given framing.
// An empty payload is a no-op. A partial write is a hard failure and is
// reported as IncompleteTransferError.
func (b *Bridge) I2CWrite(addr byte, data []byte, flags I2CFlags) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireModeLocked(ModeI2CMaster); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if addr > 0x7F {
		return fmt.Errorf("%w: i2c address 0x%02X", ErrInvalidParameter, addr)
	}
	if len(data) > MaxTransfer {
		return fmt.Errorf("%w: i2c write of %d bytes exceeds %d", ErrInvalidParameter, len(data), MaxTransfer)
	}

	body := make([]byte, 4+len(data))
	body[0] = addr
	body[1] = byte(flags)
	binary.LittleEndian.PutUint16(body[2:4], uint16(len(data)))
	copy(body[4:], data)

	results, err := b.exchangeLocked("i2c write", cmdI2CWrite, body)
	if err != nil {
		return err
	}
	if len(results) < 2 {
		return &DeviceError{Op: "i2c write", Code: statusIOError,
			Err: fmt.Errorf("write response of %d bytes is too short", len(results))}
	}
	written := int(binary.LittleEndian.Uint16(results[0:2]))
	if written != len(data) {
		return &IncompleteTransferError{Op: "i2c write", Requested: len(data), Actual: written}
	}
	return nil
}

// I2CRead reads up to n bytes from the 7-bit address addr. Short reads
// are not an error; the returned slice holds what the device delivered.
func (b *Bridge) I2CRead(addr byte, n int, flags I2CFlags) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireModeLocked(ModeI2CMaster); err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	if addr > 0x7F {
		return nil, fmt.Errorf("%w: i2c address 0x%02X", ErrInvalidParameter, addr)
	}
	if n < 0 || n > MaxTransfer {
		return nil, fmt.Errorf("%w: i2c read of %d bytes", ErrInvalidParameter, n)
	}

	body := make([]byte, 4)
	body[0] = addr
	body[1] = byte(flags)
	binary.LittleEndian.PutUint16(body[2:4], uint16(n))

	results, err := b.exchangeLocked("i2c read", cmdI2CRead, body)
	if err != nil {
		return nil, err
	}
	if len(results) < 2 {
		return nil, &DeviceError{Op: "i2c read", Code: statusIOError,
			Err: fmt.Errorf("read response of %d bytes is too short", len(results))}
	}
	count := int(binary.LittleEndian.Uint16(results[0:2]))
	if count > len(results)-2 || count > n {
		return nil, &DeviceError{Op: "i2c read", Code: statusIOError,
			Err: fmt.Errorf("read response declares %d bytes, carries %d", count, len(results)-2)}
	}
	if count < n {
		log.Debug().Int("requested", n).Int("actual", count).Msg("Short I2C read")
	}
	data := make([]byte, count)
	copy(data, results[2:2+count])
	return data, nil
}

// I2CStatus returns the raw bus status bits.
func (b *Bridge) I2CStatus() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireModeLocked(ModeI2CMaster); err != nil {
		return 0, err
	}
	results, err := b.exchangeLocked("i2c status", cmdI2CStatus, nil)
	if err != nil {
		return 0, err
	}
	if len(results) < 1 {
		return 0, &DeviceError{Op: "i2c status", Code: statusIOError,
			Err: fmt.Errorf("empty status response")}
	}
	return results[0], nil
}

// I2CResetBus recovers a wedged bus by clocking it free. The configured
// speed is preserved.
func (b *Bridge) I2CResetBus() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireModeLocked(ModeI2CMaster); err != nil {
		return err
	}
	_, err := b.exchangeLocked("i2c bus reset", cmdI2CReset, nil)
	return err
}

// ScanI2CBus probes every address in [start, end] with a zero-length
// addressed transfer and returns the addresses that acknowledged, in
// ascending order. The bus is held for the entire scan.
func (b *Bridge) ScanI2CBus(start, end byte, flags I2CFlags) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireModeLocked(ModeI2CMaster); err != nil {
		return nil, err
	}
	if start > end || end > 0x7F {
		return nil, fmt.Errorf("%w: scan range 0x%02X-0x%02X", ErrInvalidParameter, start, end)
	}

	var found []byte
	for addr := start; ; addr++ {
		body := []byte{addr, byte(flags), 0x00, 0x00}
		_, err := b.exchangeLocked("i2c probe", cmdI2CWrite, body)
		switch err.(type) {
		case nil:
			found = append(found, addr)
		case *ProtocolError:
			// no acknowledgment at this address
		default:
			return nil, err
		}
		if addr == end {
			break
		}
	}
	log.Debug().Int("found", len(found)).Msg("I2C bus scan complete")
	return found, nil
}
