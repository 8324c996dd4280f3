package bridge_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hidbridge/ch347/internal/bridge"
	"github.com/hidbridge/ch347/internal/usb"
	"github.com/hidbridge/ch347/internal/usb/mocks"
)

// expectExchange queues one command round trip on the mock device. The
// response echoes whatever command byte the request carried, followed by
// the given status and result bytes. check, if set, receives the request
// body (everything after the command byte).
func expectExchange(dev *mocks.MockDevice, status byte, results []byte, check func(body []byte)) {
	var cmd byte
	dev.EXPECT().Write(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		cmd = p[2]
		if check != nil {
			length := int(binary.LittleEndian.Uint16(p[0:2]))
			check(p[3 : 2+length])
		}
		return len(p), nil
	})
	dev.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		binary.LittleEndian.PutUint16(p[0:2], uint16(2+len(results)))
		p[2] = cmd
		p[3] = status
		copy(p[4:], results)
		return len(p), nil
	})
}

// ch347tVersion is a version response for a supported chip variant.
var ch347tVersion = []byte{0x47, 0x03, 0x00, 0x01}

// openTestBridge opens a bridge over a mock device, consuming the
// version handshake.
func openTestBridge(t *testing.T, ctrl *gomock.Controller) (*bridge.Bridge, *mocks.MockDevice) {
	t.Helper()

	dev := mocks.NewMockDevice(ctrl)
	dev.EXPECT().Info().Return(usb.DeviceInfo{Serial: "CH0001", Product: "CH347"}).AnyTimes()
	expectExchange(dev, 0x00, ch347tVersion, nil)

	b := bridge.New(bridge.WithOpener(func(index uint32) (usb.Device, error) {
		return dev, nil
	}))
	require.NoError(t, b.Open(0))
	return b, dev
}

func TestBridge_Open(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, _ := openTestBridge(t, ctrl)
	assert.True(t, b.IsOpen())
	assert.Equal(t, bridge.ModeUnknown, b.Mode())
	assert.Equal(t, "CH0001", b.Info().Serial)
}

func TestBridge_Open_AlreadyOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, _ := openTestBridge(t, ctrl)
	err := b.Open(0)
	assert.ErrorIs(t, err, bridge.ErrAlreadyOpen)
}

func TestBridge_Open_OpenerFails(t *testing.T) {
	b := bridge.New(bridge.WithOpener(func(index uint32) (usb.Device, error) {
		return nil, errors.New("no such device")
	}))

	err := b.Open(3)
	var devErr *bridge.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.False(t, b.IsOpen())
}

func TestBridge_Open_UnsupportedDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dev := mocks.NewMockDevice(ctrl)
	dev.EXPECT().Info().Return(usb.DeviceInfo{Serial: "XX9999"}).AnyTimes()
	expectExchange(dev, 0x00, []byte{0x34, 0x12, 0x00, 0x01}, nil)
	dev.EXPECT().Close().Return(nil).Times(1) // handle must be released

	b := bridge.New(bridge.WithOpener(func(index uint32) (usb.Device, error) {
		return dev, nil
	}))

	err := b.Open(0)
	assert.ErrorIs(t, err, bridge.ErrUnsupportedDevice)
	assert.False(t, b.IsOpen())
}

func TestBridge_OpenBySerial(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dev := mocks.NewMockDevice(ctrl)
	dev.EXPECT().Info().Return(usb.DeviceInfo{Serial: "CH0042"}).AnyTimes()
	expectExchange(dev, 0x00, ch347tVersion, nil)

	var requested string
	b := bridge.New(bridge.WithSerialOpener(func(serial string) (usb.Device, error) {
		requested = serial
		return dev, nil
	}))

	require.NoError(t, b.OpenBySerial("CH0042"))
	assert.Equal(t, "CH0042", requested)
	assert.True(t, b.IsOpen())
}

func TestBridge_Close_Idempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openTestBridge(t, ctrl)
	dev.EXPECT().Close().Return(nil).Times(1)

	b.Close()
	assert.False(t, b.IsOpen())

	// Second close is a no-op
	b.Close()
}

func TestBridge_Close_DeinitializesActiveMode(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openTestBridge(t, ctrl)
	expectExchange(dev, 0x00, nil, nil) // i2c init
	require.NoError(t, b.InitI2CMaster(bridge.I2CSpeed400K))

	expectExchange(dev, 0x00, nil, nil) // chip reset on close
	dev.EXPECT().Close().Return(nil)
	b.Close()
}

func TestBridge_ClockRate_DefaultWhenClosed(t *testing.T) {
	b := bridge.New()
	assert.Equal(t, bridge.Clock60MHz, b.ClockRate())
}

func TestBridge_SetClockRate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openTestBridge(t, ctrl)
	expectExchange(dev, 0x00, nil, func(body []byte) {
		assert.Equal(t, []byte{byte(bridge.Clock80MHz)}, body)
	})

	require.NoError(t, b.SetClockRate(bridge.Clock80MHz))
	assert.Equal(t, bridge.Clock80MHz, b.ClockRate())
}

func TestBridge_SetClockRate_Invalid(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No exchange expected for a rejected rate
	b, _ := openTestBridge(t, ctrl)
	err := b.SetClockRate(bridge.ClockRate(9))
	assert.ErrorIs(t, err, bridge.ErrInvalidParameter)
	assert.Equal(t, bridge.Clock60MHz, b.ClockRate())
}

func TestBridge_VersionString(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openTestBridge(t, ctrl)
	expectExchange(dev, 0x00, []byte{0x47, 0x03, 0x21, 0x43}, nil)
	assert.Equal(t, "chip 0x0347, firmware 0x4321", b.VersionString())
}

func TestBridge_VersionString_Closed(t *testing.T) {
	b := bridge.New()
	assert.Equal(t, "", b.VersionString())
}

func TestBridge_ChipMode(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openTestBridge(t, ctrl)
	expectExchange(dev, 0x00, []byte{0x02}, nil)
	assert.Equal(t, byte(0x02), b.ChipMode())
}

func TestBridge_ChipMode_Closed(t *testing.T) {
	b := bridge.New()
	assert.Equal(t, byte(0), b.ChipMode())
}

func TestBridge_ResetChip(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openTestBridge(t, ctrl)
	expectExchange(dev, 0x00, nil, nil)
	require.NoError(t, b.ResetChip())
}

func TestBridge_NotOpen(t *testing.T) {
	b := bridge.New()

	assert.ErrorIs(t, b.SetClockRate(bridge.Clock24MHz), bridge.ErrNotOpen)
	assert.ErrorIs(t, b.ResetChip(), bridge.ErrNotOpen)
	assert.ErrorIs(t, b.InitI2CMaster(bridge.I2CSpeed400K), bridge.ErrNotOpen)
	assert.ErrorIs(t, b.InitSPIMaster(bridge.SPISingle, bridge.SPIClockDiv8, bridge.SPIClockIdleLow, bridge.SPISampleLeading), bridge.ErrNotOpen)
	assert.ErrorIs(t, b.InitGPIO(bridge.GPIOInput, bridge.GPIOInput, bridge.GPIOInput, bridge.GPIOInput), bridge.ErrNotOpen)
	assert.ErrorIs(t, b.Write([]byte{0x01}), bridge.ErrNotOpen)

	_, err := b.Read(4, time.Millisecond)
	assert.ErrorIs(t, err, bridge.ErrNotOpen)
}

func TestBridge_RawWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openTestBridge(t, ctrl)
	dev.EXPECT().Write([]byte{0xDE, 0xAD}).Return(2, nil)
	require.NoError(t, b.Write([]byte{0xDE, 0xAD}))
}

func TestBridge_RawWrite_Short(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openTestBridge(t, ctrl)
	dev.EXPECT().Write(gomock.Any()).Return(1, nil)

	err := b.Write([]byte{0xDE, 0xAD, 0xBE})
	var incomplete *bridge.IncompleteTransferError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 3, incomplete.Requested)
	assert.Equal(t, 1, incomplete.Actual)
}

func TestBridge_RawRead_Timeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openTestBridge(t, ctrl)
	dev.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		time.Sleep(200 * time.Millisecond)
		return 0, nil
	})

	data, err := b.Read(16, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, data)
}
