package world

import (
	"sort"

	"containerflow.ai/internal/protocol"
	"containerflow.ai/internal/sim/flow"
)

// Inventory is an ordered, slot-bounded list of items. Enumeration order is
// insertion order.
type Inventory struct {
	capacity int
	items    []flow.Item
}

func NewInventory(capacity int) *Inventory {
	if capacity < 0 {
		capacity = 0
	}
	return &Inventory{capacity: capacity}
}

func (inv *Inventory) Capacity() int { return inv.capacity }
func (inv *Inventory) Len() int      { return len(inv.items) }

func (inv *Inventory) IsFull() bool { return len(inv.items) >= inv.capacity }

func (inv *Inventory) Add(it flow.Item) bool {
	if it.Type == "" || inv.IsFull() {
		return false
	}
	if inv.indexOf(it.ID) >= 0 {
		return false
	}
	inv.items = append(inv.items, it)
	return true
}

func (inv *Inventory) Remove(it flow.Item) bool {
	i := inv.indexOf(it.ID)
	if i < 0 || inv.items[i].Type != it.Type {
		return false
	}
	copy(inv.items[i:], inv.items[i+1:])
	inv.items = inv.items[:len(inv.items)-1]
	return true
}

func (inv *Inventory) Contents() []flow.Item {
	out := make([]flow.Item, len(inv.items))
	copy(out, inv.items)
	return out
}

func (inv *Inventory) Stacks() []protocol.ItemStack {
	snap := flow.TakeSnapshot(inv.items)
	out := make([]protocol.ItemStack, 0, len(snap))
	for item, n := range snap {
		out = append(out, protocol.ItemStack{Item: item, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

func (inv *Inventory) indexOf(id int64) int {
	for i := range inv.items {
		if inv.items[i].ID == id {
			return i
		}
	}
	return -1
}
