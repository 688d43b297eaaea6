package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserData(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(3, UserData(8, false))
	assert.Equal(2, UserData(8, true))
	assert.Equal(11, UserData(16, false))
	assert.Equal(10, UserData(16, true))
	assert.Equal(27, UserData(32, false))
	assert.Equal(59, UserData(64, false))
}

func TestEndByte(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(byte(0xA0), EndByte(false))
	assert.Equal(byte(0xA1), EndByte(true))
}

func TestEncodeLayout(t *testing.T) {
	assert := assert.New(t)
	h := Header{Slot: 1, Age: 2, Start: true, End: true, Next: 5, Len: 1}
	img := Encode(8, h, []byte{0xB1, 0xB2}, nil)

	assert.Len(img, 8)
	assert.Equal(byte(1), img[0], "slot")
	assert.Equal(byte(0x80|0x20|0x10), img[1], "age 2, start, end")
	assert.Equal(byte(5), img[2], "next")
	assert.Equal(byte(1), img[3], "length field")
	assert.Equal([]byte{0xB1, 0xB2, 0x00}, img[4:7], "payload zero padded")
	assert.Equal(byte(0xA0), img[7], "end marker")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, crc := range []CRCFunc{nil, CRC8} {
		h := Header{Slot: 17, Age: 3, Start: true, End: false, Next: 9, Len: 41}
		payload := make([]byte, UserData(16, crc != nil))
		for i := range payload {
			payload[i] = byte(i + 1)
		}
		img := Encode(16, h, payload, crc)
		got, data, err := Decode(img, 250, crc)
		assert.NoError(t, err)
		assert.Equal(t, h, got)
		assert.Equal(t, payload, data)
	}
}

func TestDecodeUnused(t *testing.T) {
	assert := assert.New(t)
	img := Encode(8, Header{Slot: 1, Start: true, End: true, Len: 0}, []byte{0xAA}, nil)

	img[0] = 0x00
	_, _, err := Decode(img, 250, nil)
	assert.ErrorIs(err, ErrUnused)

	img[0] = 0xFF
	_, _, err = Decode(img, 250, nil)
	assert.ErrorIs(err, ErrUnused)

	img[0] = 0xFB // reserved range
	_, _, err = Decode(img, 250, nil)
	assert.ErrorIs(err, ErrUnused)

	img[0] = 9 // beyond the configured last slot
	_, _, err = Decode(img, 8, nil)
	assert.ErrorIs(err, ErrUnused)
}

func TestDecodeEndMarker(t *testing.T) {
	assert := assert.New(t)
	img := Encode(8, Header{Slot: 1, Start: true, End: true, Len: 0}, []byte{0xAA}, nil)

	img[7] = 0x00
	_, _, err := Decode(img, 250, nil)
	assert.ErrorIs(err, ErrNoEnd, "uncommitted cluster")

	img[7] = 0xA1
	_, _, err = Decode(img, 250, nil)
	assert.ErrorIs(err, ErrNoEnd, "CRC marker on a no-CRC configuration")
}

func TestDecodeSkipCRCReserved(t *testing.T) {
	assert := assert.New(t)
	img := Encode(8, Header{Slot: 1, Start: true, End: true, Len: 0}, []byte{0xAA}, nil)
	img[1] |= FlagSkipCRC
	_, _, err := Decode(img, 250, nil)
	assert.ErrorIs(err, ErrReservedFlag)
}

func TestDecodeBadCRC(t *testing.T) {
	assert := assert.New(t)
	img := Encode(16, Header{Slot: 3, Start: true, End: true, Len: 1}, []byte{1, 2}, CRC8)
	img[4] ^= 0xFF
	_, _, err := Decode(img, 250, CRC8)
	assert.ErrorIs(err, ErrBadCRC)
}

func TestDecodeContinuationLength(t *testing.T) {
	assert := assert.New(t)
	h := Header{Slot: 2, Age: 1, End: true, Next: 4, Len: 200}
	img := Encode(16, h, nil, nil)
	// CRC builds need the field to bound the checksum extent
	imgCRC := Encode(16, h, nil, CRC8)

	_, _, err := Decode(img, 250, nil)
	assert.NoError(err, "field is not load-bearing without CRC")
	_, _, err = Decode(imgCRC, 250, CRC8)
	assert.ErrorIs(err, ErrBadLength)
}

func TestDecodeStartExtentClamp(t *testing.T) {
	assert := assert.New(t)
	// a start cluster of a long chain carries a full cluster's worth
	h := Header{Slot: 1, Start: true, Next: 2, Len: 255}
	payload := make([]byte, UserData(16, true))
	img := Encode(16, h, payload, CRC8)
	got, data, err := Decode(img, 250, CRC8)
	assert.NoError(err)
	assert.Equal(uint8(255), got.Len)
	assert.Len(data, UserData(16, true))
}

func TestOldestAge(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		mask      uint8
		age       uint8
		anomalous bool
	}{
		{0b0001, 0, false},
		{0b0010, 1, false},
		{0b0100, 2, false},
		{0b1000, 3, false},
		{0b0011, 1, false}, // rewrite window 0 -> 1
		{0b0110, 2, false}, // rewrite window 1 -> 2
		{0b1100, 3, false}, // rewrite window 2 -> 3
		{0b1001, 0, false}, // rewrite window 3 -> 0
		{0b0101, 2, true},  // gap in the cycle
		{0b1010, 3, true},  // gap in the cycle
		{0b0111, 2, true},
		{0b1011, 1, true},
		{0b1101, 0, true},
		{0b1110, 3, true},
		{0b1111, 3, true},
	}
	for _, c := range cases {
		age, anomalous := OldestAge(c.mask)
		assert.Equal(c.age, age, "mask %#b", c.mask)
		assert.Equal(c.anomalous, anomalous, "mask %#b", c.mask)
	}
}

func TestCRC8Deterministic(t *testing.T) {
	assert := assert.New(t)
	a := Sum(CRC8, 0, []byte{1, 2, 3})
	b := Sum(CRC8, 0, []byte{1, 2, 3})
	assert.Equal(a, b)
	c := Sum(CRC8, 0, []byte{1, 2, 4})
	assert.NotEqual(a, c)
}
