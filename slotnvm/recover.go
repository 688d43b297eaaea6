package slotnvm

import (
	"github.com/FraMuCoder/go-slotnvm/bitmap"
	"github.com/FraMuCoder/go-slotnvm/cluster"
	"github.com/FraMuCoder/go-slotnvm/util"
)

// Open mounts the medium. Every cluster is validated, competing
// generations per slot are resolved, and whatever did not commit is
// invalidated, so the indices describe exactly the committed state. Open
// is once-only; a second call on the same instance fails.
func (s *SlotNVM) Open() error {
	if s.open {
		return ErrAlreadyOpen
	}
	s.used.Reset()
	s.avail.Reset()

	// pass 1: structural validation of each cluster on its own
	raw := make([]byte, s.clusterSize)
	for c := uint32(0); c < s.clusterCnt; c++ {
		if err := s.dev.ReadAt(c*s.clusterSize, raw); err != nil {
			return readErr(err)
		}
		h, _, err := cluster.Decode(raw, s.lastSlot, s.crc)
		if err != nil {
			util.DPrintf(5, "Open: cluster %d skipped: %v\n", c, err)
			continue
		}
		s.used.Set(c)
		s.avail.Set(h.Slot)
	}

	// pass 2: chain resolution per slot
	for slot := s.firstSlot; ; slot++ {
		if s.avail.Test(slot) {
			if err := s.recoverSlot(slot); err != nil {
				return err
			}
		}
		if slot == s.lastSlot {
			break
		}
	}

	s.open = true
	return nil
}

// recoverSlot picks the winning generation of one slot and invalidates
// every other cluster carrying its number. Candidates are tried in the
// order the age table dictates; a generation whose chain is incomplete,
// ringed, or over-long loses its claim and the next one is tried.
func (s *SlotNVM) recoverSlot(slot uint8) error {
	inSlot := bitmap.MkBitmap(s.clusterCnt)
	var first [4]uint8
	var mask uint8

	for c := uint32(0); c < s.clusterCnt; c++ {
		if !s.used.Test(c) {
			continue
		}
		addr := c * s.clusterSize
		b, err := s.dev.ReadByte(addr)
		if err != nil {
			return readErr(err)
		}
		if b != slot {
			continue
		}
		inSlot.Set(c)
		flags, err := s.dev.ReadByte(addr + 1)
		if err != nil {
			return readErr(err)
		}
		if flags&cluster.FlagStart != 0 {
			age := cluster.Age(flags)
			first[age] = uint8(c)
			mask |= 1 << age
		}
	}

	foundValid := false
	var valid *bitmap.Bitmap
	for !foundValid && mask != 0 {
		age, anomalous := cluster.OldestAge(mask)
		if anomalous {
			util.DPrintf(2, "recoverSlot: slot %d age mask %#x anomalous, dropping age %d\n",
				slot, mask, age)
			mask &^= 1 << age
			continue
		}
		valid = bitmap.MkBitmap(s.clusterCnt)
		start := first[age]
		valid.Set(uint32(start))
		addr := s.caddr(start)
		flags, err := s.dev.ReadByte(addr + 1)
		if err != nil {
			return readErr(err)
		}
		lenField, err := s.dev.ReadByte(addr + 3)
		if err != nil {
			return readErr(err)
		}
		// a complete chain has exactly as many clusters as the payload
		// needs, so its capacity stays below limit; reaching limit means
		// a ring or trailing damage
		limit := uint32(lenField) + 1 + s.userData
		curMax := s.userData

		walkErr := false
		for !walkErr && flags&cluster.FlagEnd == 0 {
			next, err := s.dev.ReadByte(addr + 2)
			if err != nil {
				return readErr(err)
			}
			valid.Set(uint32(next))
			if inSlot.Test(uint32(next)) {
				addr = s.caddr(next)
				flags, err = s.dev.ReadByte(addr + 1)
				if err != nil {
					return readErr(err)
				}
				if cluster.Age(flags) != age {
					walkErr = true
					break
				}
				if flags&cluster.FlagStart != 0 {
					walkErr = true
				} else {
					curMax += s.userData
					if curMax >= limit {
						walkErr = true
					}
				}
			} else {
				walkErr = true
			}
		}
		if curMax < uint32(lenField)+1 {
			walkErr = true
		}

		if !walkErr {
			foundValid = true
		} else {
			mask &^= 1 << age
		}
	}

	for c := uint32(0); c < s.clusterCnt; c++ {
		if !inSlot.Test(c) {
			continue
		}
		if foundValid && valid.Test(c) {
			continue
		}
		// a failed invalidation resurfaces at the next Open
		if err := s.clearCluster(uint8(c)); err != nil {
			util.DPrintf(1, "recoverSlot: clearing cluster %d failed: %v\n", c, err)
		}
	}
	if !foundValid {
		s.avail.Clear(slot)
	}
	return nil
}
