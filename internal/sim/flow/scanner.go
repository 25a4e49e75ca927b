package flow

import "iter"

// Candidate is a scan hit and its distance from the scan origin.
type Candidate struct {
	Entity   Entity
	Distance float64
}

// EntitySource enumerates live entities of one category.
type EntitySource interface {
	EntitiesByCategory(c Category) iter.Seq[Entity]
}

type Scanner struct {
	src EntitySource
}

func NewScanner(src EntitySource) Scanner { return Scanner{src: src} }

// Scan lazily yields entities of the given categories within radius of origin.
// Nothing is cached: every call walks the world again. Output is in source
// order, not sorted by distance.
func (s Scanner) Scan(origin Vec3, radius float64, cats ...Category) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		if s.src == nil {
			return
		}
		seen := make(map[Category]bool, len(cats))
		for _, cat := range cats {
			if seen[cat] {
				continue
			}
			seen[cat] = true
			for e := range s.src.EntitiesByCategory(cat) {
				c, ok := admit(e, cat, origin, radius)
				if !ok {
					continue
				}
				if !yield(c) {
					return
				}
			}
		}
	}
}

func admit(e Entity, cat Category, origin Vec3, radius float64) (Candidate, bool) {
	if e == nil || !e.Alive() || e.Category() != cat {
		return Candidate{}, false
	}
	pos, ok := e.Position()
	if !ok || e.Group() == "" {
		return Candidate{}, false
	}
	d := origin.Dist(pos)
	if d > radius {
		return Candidate{}, false
	}
	// Machine output mid-cycle belongs to the crafter.
	if cat == CategoryMinable && e.ClaimedByCrafter() {
		return Candidate{}, false
	}
	return Candidate{Entity: e, Distance: d}, true
}
