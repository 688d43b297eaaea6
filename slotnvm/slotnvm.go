// Package slotnvm is a crash-tolerant, wear-aware slot store for small
// byte-addressable non-volatile memory.
//
// Hosts store, replace, and erase up to 250 slots of 1..256 bytes each.
// A slot's data lives in a chain of fixed-size clusters; every rewrite
// goes to freshly placed clusters under a new mod-4 generation and
// becomes visible with a single end-marker byte write, so a power loss at
// any point leaves the slot readable as either the previous value or the
// new one. Open scans the medium, resolves competing generations, and
// invalidates everything that did not commit.
//
// The engine is single-threaded and owns the medium exclusively between
// Open and shutdown. Callers serialize externally if they share an
// instance.
package slotnvm

import (
	"errors"
	"fmt"

	"github.com/FraMuCoder/go-slotnvm/alloc"
	"github.com/FraMuCoder/go-slotnvm/bitmap"
	"github.com/FraMuCoder/go-slotnvm/cluster"
	"github.com/FraMuCoder/go-slotnvm/nvm"
	"github.com/FraMuCoder/go-slotnvm/util"
)

// Config carries the construction parameters. The zero value of every
// field except ClusterSize is usable.
type Config struct {
	// ClusterSize is the bytes per cluster, 7..256. Typical values are
	// 16, 32, 64, 128, 256.
	ClusterSize int

	// Provision is the byte count held back so slots up to this size can
	// always be rewritten. Rounded up to whole clusters of user data.
	Provision int

	// LastSlot is the highest usable slot number, at most 250. 0 selects
	// the cluster count, capped at 250.
	LastSlot uint8

	// CRC enables a per-cluster CRC-8 at the cost of one payload byte.
	// nil disables it. Media written with and without CRC are mutually
	// unreadable and mount as empty.
	CRC cluster.CRCFunc

	// Rand picks wear-leveling start points. nil degrades placement to
	// first-fit. The engine never seeds it.
	Rand alloc.Rand
}

// SlotNVM is one engine instance bound to one device.
type SlotNVM struct {
	dev nvm.Device
	crc cluster.CRCFunc

	clusterSize uint32
	clusterCnt  uint32
	userData    uint32 // payload bytes per cluster
	provision   uint32 // reserve, rounded to whole clusters of user data
	firstSlot   uint8
	lastSlot    uint8

	open  bool
	used  *bitmap.Bitmap  // clusters holding valid records
	avail *bitmap.SlotSet // slots with a readable chain
	place *alloc.Alloc
}

// New binds an engine to a device. Geometry and configuration bounds are
// checked here; the medium itself is not touched until Open.
func New(dev nvm.Device, cfg Config) (*SlotNVM, error) {
	if dev == nil {
		return nil, errors.New("slotnvm: nil device")
	}
	if cfg.ClusterSize < cluster.MinSize || cfg.ClusterSize > cluster.MaxSize {
		return nil, fmt.Errorf("slotnvm: cluster size %d outside %d..%d",
			cfg.ClusterSize, cluster.MinSize, cluster.MaxSize)
	}
	clusterCnt := dev.Size() / uint32(cfg.ClusterSize)
	if clusterCnt == 0 {
		return nil, errors.New("slotnvm: device smaller than one cluster")
	}
	if clusterCnt > cluster.MaxClusters {
		return nil, fmt.Errorf("slotnvm: %d clusters, max %d; increase the cluster size",
			clusterCnt, cluster.MaxClusters)
	}
	userData := uint32(cluster.UserData(cfg.ClusterSize, cfg.CRC != nil))
	if cfg.Provision < 0 || 2*uint32(cfg.Provision) > clusterCnt*userData {
		return nil, fmt.Errorf("slotnvm: provision %d over half of %d usable bytes",
			cfg.Provision, clusterCnt*userData)
	}
	lastSlot := cfg.LastSlot
	if lastSlot == 0 {
		lastSlot = uint8(util.Min(uint64(clusterCnt), uint64(cluster.MaxSlot)))
	}
	if lastSlot > cluster.MaxSlot {
		lastSlot = cluster.MaxSlot
	}

	used := bitmap.MkBitmap(clusterCnt)
	s := &SlotNVM{
		dev:         dev,
		crc:         cfg.CRC,
		clusterSize: uint32(cfg.ClusterSize),
		clusterCnt:  clusterCnt,
		userData:    userData,
		provision:   uint32(util.RoundUp(uint64(cfg.Provision), uint64(userData))) * userData,
		firstSlot:   cluster.FirstSlot,
		lastSlot:    lastSlot,
		used:        used,
		avail:       bitmap.MkSlotSet(cluster.FirstSlot, lastSlot),
		place:       alloc.MkAlloc(used, uint16(clusterCnt), cfg.Rand),
	}
	return s, nil
}

// IsOpen reports whether Open has succeeded.
func (s *SlotNVM) IsOpen() bool {
	return s.open
}

// IsSlotAvailable reports whether the slot holds readable data.
func (s *SlotNVM) IsSlotAvailable(slot uint8) bool {
	return s.avail.Test(slot)
}

// Size is the total payload capacity of the medium, reserve included.
func (s *SlotNVM) Size() int {
	return int(s.clusterCnt * s.userData)
}

// UsableSize is the payload capacity outside the rewrite reserve.
func (s *SlotNVM) UsableSize() int {
	return int(s.clusterCnt*s.userData - s.provision)
}

// Free is the writable payload capacity left, net of the reserve.
func (s *SlotNVM) Free() int {
	free := s.clusterCnt*s.userData - s.used.Count()*s.userData
	if free < s.provision {
		return 0
	}
	return int(free - s.provision)
}

func (s *SlotNVM) caddr(c uint8) uint32 {
	return uint32(c) * s.clusterSize
}

func (s *SlotNVM) endByte() byte {
	return cluster.EndByte(s.crc != nil)
}

// findStartCluster locates the start cluster of the slot's current chain.
func (s *SlotNVM) findStartCluster(slot uint8) (uint8, bool, error) {
	for c := uint32(0); c < s.clusterCnt; c++ {
		if !s.used.Test(c) {
			continue
		}
		addr := c * s.clusterSize
		b, err := s.dev.ReadByte(addr)
		if err != nil {
			return 0, false, readErr(err)
		}
		if b != slot {
			continue
		}
		// end marker already vetted at Open
		flags, err := s.dev.ReadByte(addr + 1)
		if err != nil {
			return 0, false, readErr(err)
		}
		if flags&cluster.FlagStart != 0 {
			return uint8(c), true, nil
		}
	}
	return 0, false, nil
}

// clearCluster invalidates one cluster. Zeroing the slot byte is enough,
// the recovery scan rejects slot 0.
func (s *SlotNVM) clearCluster(c uint8) error {
	if err := s.dev.WriteByte(s.caddr(c), 0x00); err != nil {
		return writeErr(err)
	}
	s.used.Clear(uint32(c))
	return nil
}

// clearChain tears down a chain from its first cluster. The first cluster
// is cleared unconditionally so the chain loses its start even if the
// walk aborts; later failures are left for the next Open to harvest. A
// depth limit stops runaway walks over damaged next pointers.
func (s *SlotNVM) clearChain(first uint8) error {
	addr := s.caddr(first)
	if err := s.dev.WriteByte(addr, 0x00); err != nil {
		return writeErr(err)
	}
	s.used.Clear(uint32(first))

	maxDepth := int(util.RoundUp(cluster.MaxPayload, uint64(s.userData)))
	for {
		flags, err := s.dev.ReadByte(addr + 1)
		if err != nil {
			break
		}
		if flags&cluster.FlagEnd == 0 {
			next, err := s.dev.ReadByte(addr + 2)
			if err != nil {
				break
			}
			addr = s.caddr(next)
			if err := s.dev.WriteByte(addr, 0x00); err != nil {
				break
			}
			s.used.Clear(uint32(next))
		}
		maxDepth--
		if flags&cluster.FlagEnd != 0 || maxDepth <= 0 {
			break
		}
	}
	return nil
}

// WriteSlot stores data under slot, replacing any previous value. The new
// chain is written from its last cluster backwards; each cluster becomes
// valid only with its final end-marker byte, and the previous chain is
// torn down only after the whole new chain committed. A power loss
// anywhere leaves the slot at the old or the new value after reopening.
func (s *SlotNVM) WriteSlot(slot uint8, data []byte) error {
	if !s.open {
		return ErrNotOpen
	}
	if len(data) < 1 || len(data) > cluster.MaxPayload {
		return ErrBadLength
	}
	if slot < s.firstSlot || slot > s.lastSlot {
		return ErrBadSlot
	}
	util.DPrintf(1, "WriteSlot: slot %d len %d\n", slot, len(data))

	oldStart, overwrite, err := s.findStartCluster(slot)
	if err != nil {
		return err
	}
	free := s.Free()
	var newAge uint8
	if overwrite {
		addr := s.caddr(oldStart)
		flags, err := s.dev.ReadByte(addr + 1)
		if err != nil {
			return readErr(err)
		}
		newAge = (cluster.Age(flags) + 1) & 0x03
		lenField, err := s.dev.ReadByte(addr + 3)
		if err != nil {
			return readErr(err)
		}
		released := uint32(util.RoundUp(uint64(lenField)+1, uint64(s.userData))) * s.userData
		free += int(util.Min(uint64(released), uint64(s.provision)))
	}
	if free < len(data) {
		return ErrOutOfSpace
	}

	needed := (len(data)-1)/int(s.userData) + 1
	newClusters := make([]uint8, needed)
	cursor := s.place.ResetCursor()
	for i := 0; i < needed; i++ {
		var c uint8
		cursor, c, err = s.place.Next(cursor)
		if err != nil {
			return ErrOutOfSpace
		}
		newClusters[i] = c
	}

	// write backwards so every later cluster is committed before any
	// earlier one; the start cluster's end marker is the commit point of
	// the whole chain
	for i := needed - 1; i >= 0; i-- {
		c := newClusters[i]
		addr := s.caddr(c)

		stale, err := s.dev.ReadByte(addr + s.clusterSize - 1)
		if err != nil {
			return readErr(err)
		}
		if stale == s.endByte() {
			// stale marker from a prior life of this cluster; kill it
			// before the header makes the cluster look live again
			if err := s.dev.WriteByte(addr+s.clusterSize-1, 0x00); err != nil {
				return writeErr(err)
			}
		}

		offset := i * int(s.userData)
		toCopy := len(data) - offset
		if toCopy > int(s.userData) {
			toCopy = int(s.userData)
		}
		h := cluster.Header{
			Slot:  slot,
			Age:   newAge,
			Start: i == 0,
			End:   i == needed-1,
		}
		if i == needed-1 {
			h.Next = c
		} else {
			h.Next = newClusters[i+1]
		}
		if i == 0 {
			h.Len = uint8(len(data) - 1)
		} else {
			h.Len = uint8(toCopy)
		}
		img := cluster.Encode(int(s.clusterSize), h, data[offset:offset+toCopy], s.crc)

		if err := s.dev.WriteAt(addr, img[:cluster.HeaderSize]); err != nil {
			return writeErr(err)
		}
		if err := s.dev.WriteAt(addr+cluster.HeaderSize, img[cluster.HeaderSize:cluster.HeaderSize+toCopy]); err != nil {
			return writeErr(err)
		}
		if s.crc != nil {
			if err := s.dev.WriteByte(addr+s.clusterSize-2, img[s.clusterSize-2]); err != nil {
				return writeErr(err)
			}
		}
		if err := s.dev.WriteByte(addr+s.clusterSize-1, img[s.clusterSize-1]); err != nil {
			return writeErr(err)
		}
		s.used.Set(uint32(c))
	}

	if overwrite {
		// too late to fail the write; leftovers are harvested at next Open
		if err := s.clearChain(oldStart); err != nil {
			util.DPrintf(1, "WriteSlot: teardown of cluster %d failed: %v\n", oldStart, err)
		}
	} else {
		s.avail.Set(slot)
	}
	return nil
}

// ReadSlot copies the slot's data into buf and returns its length. When
// buf is too small nothing is read and the returned SizeError carries the
// needed length, so a nil buf queries the size.
func (s *SlotNVM) ReadSlot(slot uint8, buf []byte) (int, error) {
	if !s.open {
		return 0, ErrNotOpen
	}
	if slot < s.firstSlot || slot > s.lastSlot {
		return 0, ErrBadSlot
	}
	start, found, err := s.findStartCluster(slot)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}
	addr := s.caddr(start)
	lenField, err := s.dev.ReadByte(addr + 3)
	if err != nil {
		return 0, readErr(err)
	}
	needed := int(lenField) + 1
	if needed > len(buf) {
		return needed, &SizeError{Needed: needed}
	}

	remaining := needed
	pos := 0
	for {
		flags, err := s.dev.ReadByte(addr + 1)
		if err != nil {
			return 0, readErr(err)
		}
		n := remaining
		if n > int(s.userData) {
			n = int(s.userData)
		}
		if err := s.dev.ReadAt(addr+cluster.HeaderSize, buf[pos:pos+n]); err != nil {
			return 0, readErr(err)
		}
		pos += n
		remaining -= n
		if flags&cluster.FlagEnd != 0 || remaining == 0 {
			break
		}
		next, err := s.dev.ReadByte(addr + 2)
		if err != nil {
			return 0, readErr(err)
		}
		if uint32(next) >= s.clusterCnt {
			return 0, fmt.Errorf("%w: chain of slot %d leaves the medium", ErrCorrupt, slot)
		}
		addr = s.caddr(next)
	}
	return needed, nil
}

// SlotSize reports the length of the slot's data.
func (s *SlotNVM) SlotSize(slot uint8) (int, error) {
	n, err := s.ReadSlot(slot, nil)
	var se *SizeError
	if errors.As(err, &se) {
		return n, nil
	}
	return n, err
}

// EraseSlot removes the slot's data. Erasing an absent slot reports
// ErrNotFound.
func (s *SlotNVM) EraseSlot(slot uint8) error {
	if !s.open {
		return ErrNotOpen
	}
	if slot < s.firstSlot || slot > s.lastSlot {
		return ErrBadSlot
	}
	util.DPrintf(1, "EraseSlot: slot %d\n", slot)
	start, found, err := s.findStartCluster(slot)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if err := s.clearChain(start); err != nil {
		return err
	}
	s.avail.Clear(slot)
	return nil
}
