package bridge_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hidbridge/ch347/internal/bridge"
	"github.com/hidbridge/ch347/internal/usb/mocks"
)

func TestBridge_InitI2CMaster(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openTestBridge(t, ctrl)
	expectExchange(dev, 0x00, nil, func(body []byte) {
		assert.Equal(t, uint16(400), binary.LittleEndian.Uint16(body))
	})

	require.NoError(t, b.InitI2CMaster(bridge.I2CSpeed400K))
	assert.Equal(t, bridge.ModeI2CMaster, b.Mode())
}

func TestBridge_InitI2CMaster_InvalidSpeed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, _ := openTestBridge(t, ctrl)
	err := b.InitI2CMaster(bridge.I2CSpeed(250))
	assert.ErrorIs(t, err, bridge.ErrInvalidParameter)
	assert.Equal(t, bridge.ModeUnknown, b.Mode())
}

// openI2CBridge opens a bridge and puts it into I2C master mode.
func openI2CBridge(t *testing.T, ctrl *gomock.Controller) (*bridge.Bridge, *mocks.MockDevice) {
	t.Helper()
	b, dev := openTestBridge(t, ctrl)
	expectExchange(dev, 0x00, nil, nil)
	require.NoError(t, b.InitI2CMaster(bridge.I2CSpeed400K))
	return b, dev
}

func TestBridge_I2CWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openI2CBridge(t, ctrl)
	expectExchange(dev, 0x00, []byte{0x03, 0x00}, func(body []byte) {
		assert.Equal(t, byte(0x3C), body[0])
		assert.Equal(t, byte(bridge.I2CFlagStartStop), body[1])
		assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(body[2:4]))
		assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, body[4:7])
	})

	require.NoError(t, b.I2CWrite(0x3C, []byte{0xAA, 0xBB, 0xCC}, bridge.I2CFlagStartStop))
}

func TestBridge_I2CWrite_Incomplete(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openI2CBridge(t, ctrl)
	expectExchange(dev, 0x00, []byte{0x03, 0x00}, nil) // 3 of 4 bytes written

	err := b.I2CWrite(0x3C, []byte{1, 2, 3, 4}, bridge.I2CFlagStartStop)
	var incomplete *bridge.IncompleteTransferError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 4, incomplete.Requested)
	assert.Equal(t, 3, incomplete.Actual)
}

func TestBridge_I2CWrite_EmptyPayloadIsNoOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No exchange expected
	b, _ := openI2CBridge(t, ctrl)
	require.NoError(t, b.I2CWrite(0x3C, nil, bridge.I2CFlagStartStop))
}

func TestBridge_I2CWrite_WrongMode(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// Mode is never initialized, so no hardware traffic may happen
	b, _ := openTestBridge(t, ctrl)
	err := b.I2CWrite(0x3C, []byte{0x01}, bridge.I2CFlagStartStop)
	assert.ErrorIs(t, err, bridge.ErrWrongMode)
}

func TestBridge_I2CWrite_InvalidAddress(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, _ := openI2CBridge(t, ctrl)
	err := b.I2CWrite(0x80, []byte{0x01}, bridge.I2CFlagStartStop)
	assert.ErrorIs(t, err, bridge.ErrInvalidParameter)
}

func TestBridge_I2CRead(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openI2CBridge(t, ctrl)
	expectExchange(dev, 0x00, []byte{0x04, 0x00, 0x11, 0x22, 0x33, 0x44}, func(body []byte) {
		assert.Equal(t, byte(0x50), body[0])
		assert.Equal(t, uint16(4), binary.LittleEndian.Uint16(body[2:4]))
	})

	data, err := b.I2CRead(0x50, 4, bridge.I2CFlagStartStop)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, data)
}

func TestBridge_I2CRead_ShortReadIsNotAnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openI2CBridge(t, ctrl)
	expectExchange(dev, 0x00, []byte{0x02, 0x00, 0x11, 0x22}, nil)

	data, err := b.I2CRead(0x50, 8, bridge.I2CFlagStartStop)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x22}, data)
}

func TestBridge_I2CRead_ZeroLength(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, _ := openI2CBridge(t, ctrl)
	data, err := b.I2CRead(0x50, 0, bridge.I2CFlagStartStop)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestBridge_I2CRead_DeviceStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openI2CBridge(t, ctrl)
	expectExchange(dev, 0x04, nil, nil) // session-level failure

	_, err := b.I2CRead(0x50, 4, bridge.I2CFlagStartStop)
	var devErr *bridge.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, byte(0x04), devErr.Code)
	assert.True(t, bridge.IsDeviceGone(err))
}

func TestBridge_I2CStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openI2CBridge(t, ctrl)
	expectExchange(dev, 0x00, []byte{bridge.I2CStatusIdle}, nil)

	status, err := b.I2CStatus()
	require.NoError(t, err)
	assert.Equal(t, bridge.I2CStatusIdle, status)
}

func TestBridge_I2CResetBus(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openI2CBridge(t, ctrl)
	expectExchange(dev, 0x00, nil, nil)
	require.NoError(t, b.I2CResetBus())
}

func TestBridge_ScanI2CBus(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openI2CBridge(t, ctrl)

	// Probes for every address; only 0x3C and 0x50 acknowledge.
	var lastCmd, lastAddr byte
	dev.EXPECT().Write(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		lastCmd = p[2]
		lastAddr = p[3]
		return len(p), nil
	}).AnyTimes()
	dev.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		status := byte(0x45) // address not acknowledged
		if lastAddr == 0x3C || lastAddr == 0x50 {
			status = 0x00
		}
		binary.LittleEndian.PutUint16(p[0:2], 4)
		p[2] = lastCmd
		p[3] = status
		p[4], p[5] = 0x00, 0x00
		return len(p), nil
	}).AnyTimes()

	found, err := b.ScanI2CBus(0x03, 0x77, bridge.I2CFlagStartStop)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x3C, 0x50}, found)
}

func TestBridge_ScanI2CBus_InvalidRange(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, _ := openI2CBridge(t, ctrl)

	_, err := b.ScanI2CBus(0x50, 0x03, bridge.I2CFlagStartStop)
	assert.ErrorIs(t, err, bridge.ErrInvalidParameter)

	_, err = b.ScanI2CBus(0x03, 0x80, bridge.I2CFlagStartStop)
	assert.ErrorIs(t, err, bridge.ErrInvalidParameter)
}

func TestBridge_ScanI2CBus_AbortsOnDeviceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b, dev := openI2CBridge(t, ctrl)
	expectExchange(dev, 0x01, nil, nil) // first probe fails at session level

	_, err := b.ScanI2CBus(0x03, 0x77, bridge.I2CFlagStartStop)
	var devErr *bridge.DeviceError
	require.ErrorAs(t, err, &devErr)
}
