package flow

import "sort"

// Snapshot is a per-call count of an inventory's contents by item type.
type Snapshot map[string]int

func TakeSnapshot(items []Item) Snapshot {
	s := make(Snapshot, len(items))
	for _, it := range items {
		if it.Type == "" {
			continue
		}
		s[it.Type]++
	}
	return s
}

func SnapshotOf(inv Inventory) Snapshot {
	if inv == nil {
		return Snapshot{}
	}
	return TakeSnapshot(inv.Contents())
}

func (s Snapshot) Count(itemType string) int { return s[itemType] }

func (s Snapshot) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// Types returns the item types present, sorted.
func (s Snapshot) Types() []string {
	out := make([]string, 0, len(s))
	for t, n := range s {
		if n <= 0 {
			continue
		}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
