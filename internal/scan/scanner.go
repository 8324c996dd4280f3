// Package scan provides bus discovery and register-level memory access
// on top of an I2C-configured bridge.
package scan

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hidbridge/ch347/internal/bridge"
)

// Bridge is the subset of the bridge driver the scanner needs.
// *bridge.Bridge satisfies it.
type Bridge interface {
	InitI2CMaster(speed bridge.I2CSpeed) error
	I2CWrite(addr byte, data []byte, flags bridge.I2CFlags) error
	I2CRead(addr byte, n int, flags bridge.I2CFlags) ([]byte, error)
	I2CResetBus() error
	ScanI2CBus(start, end byte, flags bridge.I2CFlags) ([]byte, error)
}

// Scanner runs discovery and memory operations against one bridge. Each
// operation configures the bus at 400kbit/s before touching it, so a
// bridge in any mode can be handed over.
type Scanner struct {
	br Bridge
}

// New creates a Scanner over the given bridge.
func New(br Bridge) *Scanner {
	return &Scanner{br: br}
}

// Scan probes the address range for responding devices. A reversed pair
// is swapped, then both bounds are clamped to [0x00, 0x7F]. The bus is
// released with a reset after the scan; a failed release is logged but
// does not fail the scan.
func (s *Scanner) Scan(start, end int) ([]byte, error) {
	if start > end {
		start, end = end, start
	}
	if start < 0x00 {
		start = 0x00
	}
	if start > 0x7F {
		start = 0x7F
	}
	if end < 0x00 {
		end = 0x00
	}
	if end > 0x7F {
		end = 0x7F
	}

	if err := s.br.InitI2CMaster(bridge.I2CSpeed400K); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	addresses, err := s.br.ScanI2CBus(byte(start), byte(end), bridge.I2CFlagStartStop)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	if err := s.br.I2CResetBus(); err != nil {
		log.Warn().Err(err).Msg("Failed to release bus after scan")
	}

	log.Info().
		Str("range", fmt.Sprintf("0x%02X-0x%02X", start, end)).
		Int("found", len(addresses)).
		Msg("Bus scan finished")
	return addresses, nil
}

// ReadMemory reads length bytes from a register offset of a slave
// device: the offset is written with a bare START, then the data is read
// with a repeated START and a closing STOP. The result may be shorter
// than requested.
func (s *Scanner) ReadMemory(slaveAddr byte, offset byte, length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("read memory: %w: length %d", bridge.ErrInvalidParameter, length)
	}

	if err := s.br.InitI2CMaster(bridge.I2CSpeed400K); err != nil {
		return nil, fmt.Errorf("read memory: %w", err)
	}

	if err := s.br.I2CWrite(slaveAddr, []byte{offset}, bridge.I2CFlagStart); err != nil {
		return nil, fmt.Errorf("read memory: %w", err)
	}
	data, err := s.br.I2CRead(slaveAddr, length, bridge.I2CFlagRepeatedStartStop)
	if err != nil {
		return nil, fmt.Errorf("read memory: %w", err)
	}

	log.Debug().
		Uint8("slave", slaveAddr).
		Uint8("offset", offset).
		Int("length", length).
		Msg("Memory read")
	return data, nil
}

// WriteMemory writes data at a register offset of a slave device as a
// single offset-prefixed transaction.
func (s *Scanner) WriteMemory(slaveAddr byte, offset byte, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("write memory: %w: empty payload", bridge.ErrInvalidParameter)
	}

	if err := s.br.InitI2CMaster(bridge.I2CSpeed400K); err != nil {
		return fmt.Errorf("write memory: %w", err)
	}

	payload := make([]byte, 1+len(data))
	payload[0] = offset
	copy(payload[1:], data)
	if err := s.br.I2CWrite(slaveAddr, payload, bridge.I2CFlagStartStop); err != nil {
		return fmt.Errorf("write memory: %w", err)
	}

	log.Debug().
		Uint8("slave", slaveAddr).
		Uint8("offset", offset).
		Int("length", len(data)).
		Msg("Memory written")
	return nil
}

// ReadRegistersHex reads length consecutive single-byte registers and
// formats them as space-separated hex. Unreadable registers show as "??".
func (s *Scanner) ReadRegistersHex(slaveAddr byte, start byte, length int) string {
	parts := make([]string, 0, length)
	for i := 0; i < length; i++ {
		b, err := s.ReadMemory(slaveAddr, start+byte(i), 1)
		if err != nil || len(b) == 0 {
			parts = append(parts, "??")
			continue
		}
		parts = append(parts, fmt.Sprintf("%02x", b[0]))
	}
	return strings.Join(parts, " ")
}
