package nvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemDeviceErasedFill(t *testing.T) {
	assert := assert.New(t)
	d := NewMemDevice(16)
	assert.Equal(uint32(16), d.Size())
	b, err := d.ReadByte(0)
	assert.NoError(err)
	assert.Equal(byte(0xFF), b, "fresh EEPROM reads erased")

	d2 := NewMemDeviceFill(4, 0x00)
	b, err = d2.ReadByte(3)
	assert.NoError(err)
	assert.Equal(byte(0x00), b)
}

func TestMemDeviceReadWrite(t *testing.T) {
	assert := assert.New(t)
	d := NewMemDevice(32)

	assert.NoError(d.WriteByte(5, 0xAB))
	b, err := d.ReadByte(5)
	assert.NoError(err)
	assert.Equal(byte(0xAB), b)

	assert.NoError(d.WriteAt(10, []byte{1, 2, 3}))
	buf := make([]byte, 3)
	assert.NoError(d.ReadAt(10, buf))
	assert.Equal([]byte{1, 2, 3}, buf)
}

func TestMemDeviceOutOfRange(t *testing.T) {
	assert := assert.New(t)
	d := NewMemDevice(8)

	_, err := d.ReadByte(8)
	assert.ErrorIs(err, ErrOutOfRange)
	assert.ErrorIs(d.WriteByte(8, 0), ErrOutOfRange)
	assert.ErrorIs(d.ReadAt(6, make([]byte, 3)), ErrOutOfRange)
	assert.ErrorIs(d.WriteAt(6, make([]byte, 3)), ErrOutOfRange)
}

func TestMemDeviceWriteCount(t *testing.T) {
	assert := assert.New(t)
	d := NewMemDevice(8)
	assert.Equal(uint64(0), d.WriteCount(3))
	d.WriteByte(3, 1)
	d.WriteByte(3, 2)
	assert.Equal(uint64(2), d.WriteCount(3))
	assert.Equal(uint64(0), d.WriteCount(4))
}

func TestMemDevicePowerLoss(t *testing.T) {
	assert := assert.New(t)
	d := NewMemDeviceFill(8, 0x00)
	d.SetWriteErrorAfter(3)

	assert.NoError(d.WriteByte(0, 0x11))
	assert.NoError(d.WriteByte(1, 0x22))
	err := d.WriteAt(2, []byte{0x33, 0x44})
	assert.ErrorIs(err, ErrPowerLoss)

	// the interrupted write and everything after it never hit the medium
	assert.Equal([]byte{0x11, 0x22, 0x00, 0x00}, d.Bytes()[:4])

	// disarmed after firing
	assert.NoError(d.WriteByte(2, 0x33))
}

func TestMemDevicePowerLossPartialRange(t *testing.T) {
	assert := assert.New(t)
	d := NewMemDeviceFill(8, 0x00)
	d.SetWriteErrorAfter(3)

	err := d.WriteAt(0, []byte{1, 2, 3, 4})
	assert.ErrorIs(err, ErrPowerLoss)
	assert.Equal([]byte{1, 2, 0, 0}, d.Bytes()[:4], "prefix applied, rest lost")
}
