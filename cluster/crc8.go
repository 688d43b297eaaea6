package cluster

import "github.com/sigurn/crc8"

// CRCFunc folds one byte into a running 8-bit CRC. The engine starts every
// cluster's sum at zero.
type CRCFunc func(crc byte, data byte) byte

var crc8Table = crc8.MakeTable(crc8.CRC8)

// CRC8 is the default checksum for CRC-enabled configurations.
func CRC8(crc byte, data byte) byte {
	return crc8.Update(crc, []byte{data}, crc8Table)
}
