package flow

import (
	"iter"
	"sort"
)

type fakeEntity struct {
	id      int64
	group   string
	cat     Category
	pos     Vec3
	noPos   bool
	dead    bool
	claimed bool
	inv     *fakeInv
	ready   bool
}

func (e *fakeEntity) ID() int64              { return e.id }
func (e *fakeEntity) Group() string          { return e.group }
func (e *fakeEntity) Category() Category     { return e.cat }
func (e *fakeEntity) Alive() bool            { return !e.dead }
func (e *fakeEntity) ClaimedByCrafter() bool { return e.claimed }
func (e *fakeEntity) Position() (Vec3, bool) { return e.pos, !e.noPos }

func (e *fakeEntity) Inventory() (Inventory, bool) {
	if e.inv == nil || !e.ready {
		return nil, false
	}
	return e.inv, true
}

type fakeInv struct {
	capacity int
	items    []Item

	// Force Add/Remove failures to exercise rollback paths.
	rejectAdd    bool
	rejectRemove bool
}

func newInv(capacity int, items ...Item) *fakeInv {
	return &fakeInv{capacity: capacity, items: items}
}

func (f *fakeInv) IsFull() bool { return len(f.items) >= f.capacity }

func (f *fakeInv) Add(it Item) bool {
	if f.rejectAdd || f.IsFull() {
		return false
	}
	f.items = append(f.items, it)
	return true
}

func (f *fakeInv) Remove(it Item) bool {
	if f.rejectRemove {
		return false
	}
	for i, x := range f.items {
		if x == it {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakeInv) Contents() []Item {
	out := make([]Item, len(f.items))
	copy(out, f.items)
	return out
}

func (f *fakeInv) count(t string) int { return TakeSnapshot(f.items).Count(t) }

type fakeWorld struct {
	ents        map[int64]*fakeEntity
	failDespawn bool
}

func newWorld(ents ...*fakeEntity) *fakeWorld {
	w := &fakeWorld{ents: map[int64]*fakeEntity{}}
	for _, e := range ents {
		w.ents[e.id] = e
	}
	return w
}

func (w *fakeWorld) sorted() []*fakeEntity {
	out := make([]*fakeEntity, 0, len(w.ents))
	for _, e := range w.ents {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (w *fakeWorld) EntitiesByCategory(c Category) iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for _, e := range w.sorted() {
			if e.cat != c || e.dead {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

func (w *fakeWorld) Holders() iter.Seq[Holder] {
	return func(yield func(Holder) bool) {
		for _, e := range w.sorted() {
			if e.inv == nil {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

func (w *fakeWorld) Despawn(id int64) bool {
	if w.failDespawn {
		return false
	}
	e, ok := w.ents[id]
	if !ok || e.dead {
		return false
	}
	delete(w.ents, id)
	return true
}

func (w *fakeWorld) has(id int64) bool {
	_, ok := w.ents[id]
	return ok
}

func items(t string, firstID int64, n int) []Item {
	out := make([]Item, n)
	for i := range out {
		out[i] = Item{ID: firstID + int64(i), Type: t}
	}
	return out
}
