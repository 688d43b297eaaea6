package slotnvm

import (
	"github.com/FraMuCoder/go-slotnvm/alloc"
	"github.com/FraMuCoder/go-slotnvm/cluster"
	"github.com/FraMuCoder/go-slotnvm/nvm"
)

// Preset constructors for the common cluster sizes. The CRC variants
// spend one payload byte per cluster on a CRC-8.

func New16(dev nvm.Device, provision int, rnd alloc.Rand) (*SlotNVM, error) {
	return New(dev, Config{ClusterSize: 16, Provision: provision, Rand: rnd})
}

func New32(dev nvm.Device, provision int, rnd alloc.Rand) (*SlotNVM, error) {
	return New(dev, Config{ClusterSize: 32, Provision: provision, Rand: rnd})
}

func New64(dev nvm.Device, provision int, rnd alloc.Rand) (*SlotNVM, error) {
	return New(dev, Config{ClusterSize: 64, Provision: provision, Rand: rnd})
}

func New16CRC(dev nvm.Device, provision int, rnd alloc.Rand) (*SlotNVM, error) {
	return New(dev, Config{ClusterSize: 16, Provision: provision, CRC: cluster.CRC8, Rand: rnd})
}

func New32CRC(dev nvm.Device, provision int, rnd alloc.Rand) (*SlotNVM, error) {
	return New(dev, Config{ClusterSize: 32, Provision: provision, CRC: cluster.CRC8, Rand: rnd})
}

func New64CRC(dev nvm.Device, provision int, rnd alloc.Rand) (*SlotNVM, error) {
	return New(dev, Config{ClusterSize: 64, Provision: provision, CRC: cluster.CRC8, Rand: rnd})
}
