package bridge

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog/log"
)

// SPIIOMode selects how many data lines a transfer uses.
type SPIIOMode byte

const (
	SPISingle SPIIOMode = iota
	SPIDual
	SPIQuad
)

// SPIClockDiv divides the system clock down to the SPI clock. The
// divisor doubles with each step, from 2 up to 512.
type SPIClockDiv byte

const (
	SPIClockDiv2 SPIClockDiv = iota
	SPIClockDiv4
	SPIClockDiv8
	SPIClockDiv16
	SPIClockDiv32
	SPIClockDiv64
	SPIClockDiv128
	SPIClockDiv256
	SPIClockDiv512
)

// SPIPolarity is the idle level of the clock line.
type SPIPolarity byte

const (
	SPIClockIdleLow SPIPolarity = iota
	SPIClockIdleHigh
)

// SPIPhase selects which clock edge samples the data lines.
type SPIPhase byte

const (
	SPISampleLeading SPIPhase = iota
	SPISampleTrailing
)

// InitSPIMaster configures the chip as an SPI master and switches the
// bridge into SPI mode.
func (b *Bridge) InitSPIMaster(ioMode SPIIOMode, div SPIClockDiv, polarity SPIPolarity, phase SPIPhase) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return ErrNotOpen
	}
	if ioMode > SPIQuad {
		return fmt.Errorf("%w: spi io mode %d", ErrInvalidParameter, byte(ioMode))
	}
	if div > SPIClockDiv512 {
		return fmt.Errorf("%w: spi clock divisor %d", ErrInvalidParameter, byte(div))
	}
	if polarity > SPIClockIdleHigh {
		return fmt.Errorf("%w: spi clock polarity %d", ErrInvalidParameter, byte(polarity))
	}
	if phase > SPISampleTrailing {
		return fmt.Errorf("%w: spi clock phase %d", ErrInvalidParameter, byte(phase))
	}

	body := []byte{byte(ioMode), byte(div), byte(polarity), byte(phase)}
	if _, err := b.exchangeLocked("spi init", cmdSPIInit, body); err != nil {
		return err
	}
	b.mode = ModeSPIMaster
	log.Debug().
		Uint8("io_mode", byte(ioMode)).
		Uint8("clock_div", byte(div)).
		Msg("SPI master initialized")
	return nil
}

// SPIRead clocks in up to n bytes. end controls whether chip select is
// released afterwards; leaving it asserted chains transfers into one
// transaction. Short reads are not an error.
func (b *Bridge) SPIRead(n int, end bool) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireModeLocked(ModeSPIMaster); err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	if n < 0 || n > MaxTransfer {
		return nil, fmt.Errorf("%w: spi read of %d bytes", ErrInvalidParameter, n)
	}

	body := make([]byte, 3)
	body[0] = boolByte(end)
	binary.LittleEndian.PutUint16(body[1:3], uint16(n))

	results, err := b.exchangeLocked("spi read", cmdSPIRead, body)
	if err != nil {
		return nil, err
	}
	return spiData("spi read", results, n)
}

// SPIWrite clocks out data. A partial write is a hard failure and is
// reported as IncompleteTransferError.
func (b *Bridge) SPIWrite(data []byte, end bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireModeLocked(ModeSPIMaster); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if len(data) > MaxTransfer {
		return fmt.Errorf("%w: spi write of %d bytes exceeds %d", ErrInvalidParameter, len(data), MaxTransfer)
	}

	body := make([]byte, 3+len(data))
	body[0] = boolByte(end)
	binary.LittleEndian.PutUint16(body[1:3], uint16(len(data)))
	copy(body[3:], data)

	results, err := b.exchangeLocked("spi write", cmdSPIWrite, body)
	if err != nil {
		return err
	}
	if len(results) < 2 {
		return &DeviceError{Op: "spi write", Code: statusIOError,
			Err: fmt.Errorf("write response of %d bytes is too short", len(results))}
	}
	written := int(binary.LittleEndian.Uint16(results[0:2]))
	if written != len(data) {
		return &IncompleteTransferError{Op: "spi write", Requested: len(data), Actual: written}
	}
	return nil
}

// SPITransfer clocks data out while clocking the response in. The
// returned slice may be shorter than the input if the device stalled.
func (b *Bridge) SPITransfer(data []byte, end bool) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireModeLocked(ModeSPIMaster); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []byte{}, nil
	}
	if len(data) > MaxTransfer {
		return nil, fmt.Errorf("%w: spi transfer of %d bytes exceeds %d", ErrInvalidParameter, len(data), MaxTransfer)
	}

	body := make([]byte, 3+len(data))
	body[0] = boolByte(end)
	binary.LittleEndian.PutUint16(body[1:3], uint16(len(data)))
	copy(body[3:], data)

	results, err := b.exchangeLocked("spi transfer", cmdSPITransfer, body)
	if err != nil {
		return nil, err
	}
	return spiData("spi transfer", results, len(data))
}

// spiData unpacks a count-prefixed SPI result payload.
func spiData(op string, results []byte, requested int) ([]byte, error) {
	if len(results) < 2 {
		return nil, &DeviceError{Op: op, Code: statusIOError,
			Err: fmt.Errorf("response of %d bytes is too short", len(results))}
	}
	count := int(binary.LittleEndian.Uint16(results[0:2]))
	if count > len(results)-2 || count > requested {
		return nil, &DeviceError{Op: op, Code: statusIOError,
			Err: fmt.Errorf("response declares %d bytes, carries %d", count, len(results)-2)}
	}
	if count < requested {
		log.Debug().Str("op", op).Int("requested", requested).Int("actual", count).Msg("Short SPI transfer")
	}
	data := make([]byte, count)
	copy(data, results[2:2+count])
	return data, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
