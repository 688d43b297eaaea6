// Package cluster implements the on-medium cluster format.
//
// A cluster is the fixed-size unit of allocation and commit:
//
//	byte 0    slot number; 0x00 or 0xFF means the cluster is unused,
//	          0x01..0xFA is a valid slot, 0xFB..0xFE are reserved
//	byte 1    bits 7-6 age, bit 5 start of chain, bit 4 end of chain,
//	          bit 3 reserved (skip CRC, not supported), bits 2-0 reserved
//	byte 2    next cluster index, or the cluster's own index at chain end
//	byte 3    start cluster: user length - 1; else bytes used here
//	byte 4..  user payload
//	byte n-2  CRC-8 over bytes 0..3 and the used payload (CRC builds only;
//	          otherwise one more payload byte)
//	byte n-1  end marker, 0xA0 without CRC, 0xA1 with CRC; written last,
//	          any other value makes the cluster invalid
package cluster

import (
	"errors"

	"github.com/tchajed/marshal"
)

const (
	// HeaderSize is the fixed prefix before the payload.
	HeaderSize = 4

	// MinSize and MaxSize bound the cluster size.
	MinSize = 7
	MaxSize = 256

	// MaxClusters is the largest addressable cluster count.
	MaxClusters = 256

	// FirstSlot and MaxSlot bound usable slot numbers.
	FirstSlot uint8 = 1
	MaxSlot   uint8 = 250

	// MaxPayload is the largest payload a single slot can hold.
	MaxPayload = 256

	endMarker    byte = 0xA0
	endMarkerCRC byte = 0xA1

	ageShift = 6

	// FlagStart and FlagEnd mark the first and last cluster of a chain.
	FlagStart byte = 0x20
	FlagEnd   byte = 0x10

	// FlagSkipCRC is reserved; a cluster carrying it does not decode.
	FlagSkipCRC byte = 0x08
)

var (
	ErrUnused       = errors.New("cluster: unused or out-of-range slot byte")
	ErrNoEnd        = errors.New("cluster: end marker missing")
	ErrBadCRC       = errors.New("cluster: CRC mismatch")
	ErrReservedFlag = errors.New("cluster: reserved flag set")
	ErrBadLength    = errors.New("cluster: length field out of range")
)

// Header is the decoded form of a cluster's first four bytes.
type Header struct {
	Slot  uint8
	Age   uint8 // 0..3
	Start bool
	End   bool
	Next  uint8
	Len   uint8 // raw length field
}

// UserData reports the payload capacity of one cluster.
func UserData(size int, withCRC bool) int {
	if withCRC {
		return size - 6
	}
	return size - 5
}

// EndByte is the commit marker value for the configuration.
func EndByte(withCRC bool) byte {
	if withCRC {
		return endMarkerCRC
	}
	return endMarker
}

// Age extracts the generation counter from a flags byte.
func Age(flags byte) uint8 {
	return flags >> ageShift
}

func (h *Header) flags() byte {
	f := h.Age << ageShift
	if h.Start {
		f |= FlagStart
	}
	if h.End {
		f |= FlagEnd
	}
	return f
}

// Sum folds data into a running CRC.
func Sum(crc CRCFunc, sum byte, data []byte) byte {
	for _, b := range data {
		sum = crc(sum, b)
	}
	return sum
}

// Encode produces the full byte image of one cluster. payload holds only
// the bytes used in this cluster; the gap up to the CRC byte is zero
// filled. The caller controls physical write ordering by slicing the
// image.
func Encode(size int, h Header, payload []byte, crc CRCFunc) []byte {
	u := UserData(size, crc != nil)
	if len(payload) > u {
		panic("cluster: payload exceeds cluster capacity")
	}
	hdr := []byte{h.Slot, h.flags(), h.Next, h.Len}
	enc := marshal.NewEnc(uint64(size))
	enc.PutBytes(hdr)
	enc.PutBytes(payload)
	if pad := u - len(payload); pad > 0 {
		enc.PutBytes(make([]byte, pad))
	}
	if crc != nil {
		sum := Sum(crc, 0, hdr)
		sum = Sum(crc, sum, payload)
		enc.PutBytes([]byte{sum})
	}
	enc.PutBytes([]byte{EndByte(crc != nil)})
	return enc.Finish()
}

// Decode validates the raw image of one cluster and returns its header and
// the payload bytes used in it. lastSlot is the highest slot number the
// configuration allows.
func Decode(raw []byte, lastSlot uint8, crc CRCFunc) (Header, []byte, error) {
	size := len(raw)
	u := UserData(size, crc != nil)
	dec := marshal.NewDec(raw)
	hdr := dec.GetBytes(HeaderSize)

	slot := hdr[0]
	if slot < FirstSlot || slot > lastSlot {
		return Header{}, nil, ErrUnused
	}
	if raw[size-1] != EndByte(crc != nil) {
		return Header{}, nil, ErrNoEnd
	}
	flags := hdr[1]
	if flags&FlagSkipCRC != 0 {
		return Header{}, nil, ErrReservedFlag
	}
	h := Header{
		Slot:  slot,
		Age:   Age(flags),
		Start: flags&FlagStart != 0,
		End:   flags&FlagEnd != 0,
		Next:  hdr[2],
		Len:   hdr[3],
	}

	// Bytes of payload this cluster actually carries. A start cluster of a
	// longer chain carries a full cluster's worth. A continuation's length
	// field feeds the CRC extent, so it is only load-bearing on CRC builds.
	var used int
	if h.Start {
		used = int(h.Len) + 1
		if used > u {
			used = u
		}
	} else {
		used = int(h.Len)
		if used > u {
			if crc != nil {
				return Header{}, nil, ErrBadLength
			}
			used = u
		}
	}
	payload := dec.GetBytes(uint64(used))

	if crc != nil {
		sum := Sum(crc, 0, hdr)
		sum = Sum(crc, sum, payload)
		if sum != raw[size-2] {
			return Header{}, nil, ErrBadCRC
		}
	}
	return h, payload, nil
}
