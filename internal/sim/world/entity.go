package world

import (
	"strings"

	"containerflow.ai/internal/sim/flow"
)

// Entity is a world object. Containers additionally carry an inventory that
// becomes visible once the inventory subsystem has initialized.
type Entity struct {
	id        int64
	group     string
	category  flow.Category
	pos       flow.Vec3
	name      string
	crafterID int64
	alive     bool

	inv     *Inventory
	readyAt uint64
	ready   bool
}

func (e *Entity) ID() int64                   { return e.id }
func (e *Entity) Group() string               { return e.group }
func (e *Entity) Category() flow.Category     { return e.category }
func (e *Entity) Position() (flow.Vec3, bool) { return e.pos, e.alive }
func (e *Entity) Alive() bool                 { return e != nil && e.alive }
func (e *Entity) ClaimedByCrafter() bool      { return e.crafterID != 0 }
func (e *Entity) Name() string                { return e.name }
func (e *Entity) CrafterID() int64            { return e.crafterID }

func (e *Entity) Inventory() (flow.Inventory, bool) {
	if e.inv == nil || !e.ready {
		return nil, false
	}
	return e.inv, true
}

// RawInventory returns the inventory regardless of readiness.
func (e *Entity) RawInventory() *Inventory { return e.inv }

// SpawnSpec describes an entity to add to the world.
type SpawnSpec struct {
	ID        int64 // 0 = allocate
	Group     string
	Category  flow.Category
	Pos       flow.Vec3
	Name      string
	CrafterID int64
	Capacity  int // containers only; 0 = world default
	Items     []flow.Item
}

func isAgentContainer(prefix, group string) bool {
	return prefix != "" && strings.HasPrefix(group, prefix)
}
