// Package alloc places new clusters on the medium. A randomized starting
// point followed by a next-fit probe spreads writes roughly uniformly over
// the cluster array without keeping wear counters on the medium.
package alloc

import (
	"errors"

	"github.com/FraMuCoder/go-slotnvm/bitmap"
	"github.com/FraMuCoder/go-slotnvm/util"
)

// ErrNoSpace is returned when a full probe cycle finds no free cluster.
var ErrNoSpace = errors.New("alloc: no free cluster")

// Rand supplies the probe starting point. *math/rand.Rand satisfies it;
// the engine never seeds, the host does.
type Rand interface {
	Intn(n int) int
}

// Alloc hands out free clusters. It only reads the used-cluster bitmap;
// the caller marks clusters used once they are committed, so consecutive
// allocations within one write stay distinct by continuing the probe from
// the returned cursor.
type Alloc struct {
	used *bitmap.Bitmap
	n    uint16
	rnd  Rand
}

func MkAlloc(used *bitmap.Bitmap, n uint16, rnd Rand) *Alloc {
	return &Alloc{
		used: used,
		n:    n,
		rnd:  rnd,
	}
}

// ResetCursor starts a fresh probe for the first cluster of a write. The
// returned cursor is the starting cluster offset by the cluster count, so
// Next probes the starting cluster itself first. With no Rand configured
// the probe starts at cluster 0.
func (a *Alloc) ResetCursor() uint16 {
	if a.rnd != nil {
		return a.n + uint16(a.rnd.Intn(int(a.n)))
	}
	return a.n
}

// Next probes from cursor+1, wrapping around, and returns the first free
// cluster together with the cursor to continue from. A fresh cursor from
// ResetCursor probes its starting cluster first. A full cycle without a
// free cluster fails.
func (a *Alloc) Next(cursor uint16) (uint16, uint8, error) {
	probes := a.n - 1
	if cursor >= a.n {
		cursor = (cursor - 1) % a.n
		probes = a.n
	}
	start := cursor
	for i := uint16(0); i < probes; i++ {
		cursor++
		if cursor >= a.n {
			cursor = 0
		}
		if !a.used.Test(uint32(cursor)) {
			util.DPrintf(10, "alloc: cursor %d -> cluster %d\n", start, cursor)
			return cursor, uint8(cursor), nil
		}
	}
	return cursor, 0, ErrNoSpace
}
