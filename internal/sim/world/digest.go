package world

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/cespare/xxhash/v2"
)

// StateDigest hashes entities and inventory contents in id order. Timers and
// agent configs are excluded.
func (w *World) StateDigest() string {
	h := xxhash.New()
	var b [8]byte
	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(b[:], v)
		_, _ = h.Write(b[:])
	}
	str := func(s string) {
		u64(uint64(len(s)))
		_, _ = h.WriteString(s)
	}

	u64(uint64(w.nextID))
	for _, id := range w.sortedIDs(nil) {
		e := w.entities[id]
		u64(uint64(e.id))
		str(e.group)
		str(string(e.category))
		u64(math.Float64bits(e.pos.X))
		u64(math.Float64bits(e.pos.Y))
		u64(math.Float64bits(e.pos.Z))
		str(e.name)
		u64(uint64(e.crafterID))
		if e.inv == nil {
			u64(0)
			continue
		}
		u64(uint64(e.inv.Capacity()) + 1)
		u64(uint64(len(e.inv.items)))
		for _, it := range e.inv.items {
			u64(uint64(it.ID))
			str(it.Type)
		}
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}
