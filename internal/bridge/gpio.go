package bridge

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// GPIODirection configures a GPIO line as input or output.
type GPIODirection byte

const (
	GPIOInput GPIODirection = iota
	GPIOOutput
)

// GPIOPort identifies one of the bridge's four GPIO lines.
type GPIOPort byte

const (
	GPIOPort0 GPIOPort = iota
	GPIOPort1
	GPIOPort2
	GPIOPort3

	gpioPortCount = 4
)

// InitGPIO configures all four lines at once and switches the bridge
// into GPIO mode.
func (b *Bridge) InitGPIO(dir0, dir1, dir2, dir3 GPIODirection) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return ErrNotOpen
	}
	for i, dir := range [gpioPortCount]GPIODirection{dir0, dir1, dir2, dir3} {
		if dir > GPIOOutput {
			return fmt.Errorf("%w: gpio %d direction %d", ErrInvalidParameter, i, byte(dir))
		}
	}

	body := []byte{byte(dir0), byte(dir1), byte(dir2), byte(dir3)}
	if _, err := b.exchangeLocked("gpio init", cmdGPIOInit, body); err != nil {
		return err
	}
	b.mode = ModeGPIO
	log.Debug().Msg("GPIO initialized")
	return nil
}

// ReadGPIO samples one line. The configured direction is not checked;
// reading an output line returns its driven level.
func (b *Bridge) ReadGPIO(port GPIOPort) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireModeLocked(ModeGPIO); err != nil {
		return false, err
	}
	if port >= gpioPortCount {
		return false, fmt.Errorf("%w: gpio port %d", ErrInvalidParameter, byte(port))
	}

	results, err := b.exchangeLocked("gpio read", cmdGPIORead, []byte{byte(port)})
	if err != nil {
		return false, err
	}
	if len(results) < 1 {
		return false, &DeviceError{Op: "gpio read", Code: statusIOError,
			Err: fmt.Errorf("empty gpio response")}
	}
	return results[0] != 0, nil
}

// WriteGPIO drives one line. The configured direction is not checked;
// the chip defines what a write to an input line does.
func (b *Bridge) WriteGPIO(port GPIOPort, level bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireModeLocked(ModeGPIO); err != nil {
		return err
	}
	if port >= gpioPortCount {
		return fmt.Errorf("%w: gpio port %d", ErrInvalidParameter, byte(port))
	}

	if _, err := b.exchangeLocked("gpio write", cmdGPIOWrite, []byte{byte(port), boolByte(level)}); err != nil {
		return err
	}
	log.Debug().Uint8("port", byte(port)).Bool("level", level).Msg("GPIO line set")
	return nil
}
