package world

import (
	"fmt"

	"containerflow.ai/internal/persistence/snapshot"
	"containerflow.ai/internal/sim/flow"
)

// ExportSnapshot captures entities and inventories. Must run on the world
// goroutine.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    w.tick.Load(),
			Digest:  w.StateDigest(),
		},
		NextID: w.nextID,
	}
	for _, id := range w.sortedIDs(nil) {
		e := w.entities[id]
		ev := snapshot.EntityV1{
			ID:        e.id,
			Group:     e.group,
			Category:  string(e.category),
			Pos:       e.pos.ToArray(),
			Name:      e.name,
			CrafterID: e.crafterID,
		}
		if e.inv != nil {
			inv := &snapshot.InventoryV1{Capacity: e.inv.Capacity(), Items: []snapshot.ItemV1{}}
			for _, it := range e.inv.items {
				inv.Items = append(inv.Items, snapshot.ItemV1{ID: it.ID, Type: it.Type})
			}
			ev.Inventory = inv
		}
		s.Entities = append(s.Entities, ev)
	}
	return s
}

// ImportSnapshot replaces the world content. Agents are recreated for eligible
// containers and reload their config from the store. Call before Run.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("import: %w: %d", snapshot.ErrVersion, s.Header.Version)
	}
	for _, id := range sortedKeys(w.agents) {
		w.agents[id].Close()
	}
	w.agents = map[int64]*flow.Agent{}
	w.entities = map[int64]*Entity{}
	w.tick.Store(s.Header.Tick)
	w.nextID = 1

	for _, ev := range s.Entities {
		spec := SpawnSpec{
			ID:        ev.ID,
			Group:     ev.Group,
			Category:  flow.Category(ev.Category),
			Pos:       flow.Vec3{X: ev.Pos[0], Y: ev.Pos[1], Z: ev.Pos[2]},
			Name:      ev.Name,
			CrafterID: ev.CrafterID,
		}
		if ev.Inventory != nil {
			spec.Capacity = ev.Inventory.Capacity
			for _, it := range ev.Inventory.Items {
				spec.Items = append(spec.Items, flow.Item{ID: it.ID, Type: it.Type})
			}
		}
		if _, err := w.Spawn(spec); err != nil {
			return fmt.Errorf("import entity %d: %w", ev.ID, err)
		}
	}
	if s.NextID > w.nextID {
		w.nextID = s.NextID
	}
	return nil
}
