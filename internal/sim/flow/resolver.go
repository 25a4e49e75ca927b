package flow

import "iter"

type HolderSource interface {
	Holders() iter.Seq[Holder]
}

// Target is a resolved forward destination.
type Target struct {
	ID        int64
	Pos       Vec3
	HasPos    bool
	Inventory Inventory
}

// Resolver finds the live container carrying a target id. It walks every
// holder on each call; target sets are small and liveness changes between ticks.
type Resolver struct {
	src HolderSource
}

func NewResolver(src HolderSource) Resolver { return Resolver{src: src} }

func (r Resolver) Resolve(targetID int64) (Inventory, bool) {
	t, ok := r.Locate(targetID)
	if !ok {
		return nil, false
	}
	return t.Inventory, true
}

// Locate is Resolve plus the target's position.
func (r Resolver) Locate(targetID int64) (Target, bool) {
	if r.src == nil {
		return Target{}, false
	}
	for h := range r.src.Holders() {
		if h == nil || h.ID() != targetID {
			continue
		}
		if !h.Alive() {
			return Target{}, false
		}
		inv, ok := h.Inventory()
		if !ok || inv == nil {
			return Target{}, false
		}
		pos, hasPos := h.Position()
		return Target{ID: targetID, Pos: pos, HasPos: hasPos, Inventory: inv}, true
	}
	return Target{}, false
}
