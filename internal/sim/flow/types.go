package flow

import (
	"iter"
	"math"
)

// Category groups world entities by how the flow agent treats them.
type Category string

const (
	CategoryContainer Category = "CONTAINER"
	CategoryLoose     Category = "LOOSE"
	CategoryMinable   Category = "MINABLE"
	CategoryOther     Category = "OTHER"
)

type Vec3 struct {
	X float64
	Y float64
	Z float64
}

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

func (v Vec3) Dist(o Vec3) float64 {
	d := v.Sub(o)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

func (v Vec3) ToArray() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Entity is the read-only view of a world object the flow core observes.
type Entity interface {
	ID() int64
	Group() string
	Category() Category
	// Position reports false when the entity has no resolvable world position.
	Position() (Vec3, bool)
	Alive() bool
	// ClaimedByCrafter is true while an auto-crafter owns the entity's output cycle.
	ClaimedByCrafter() bool
}

// Item is one discrete unit. Type is the group id of the entity it came from;
// ID stays the originating entity id so a unit can be removed by identity.
type Item struct {
	ID   int64
	Type string
}

// Inventory is a slot-bounded item store belonging to exactly one entity.
type Inventory interface {
	IsFull() bool
	// Add returns false (and changes nothing) when the item is rejected.
	Add(it Item) bool
	// Remove returns false when the item is not present.
	Remove(it Item) bool
	// Contents returns a stable copy taken at call time.
	Contents() []Item
}

// Holder associates a live container-capable entity with its inventory handle.
type Holder interface {
	Entity
	// Inventory reports false until the entity's inventory subsystem is ready.
	Inventory() (Inventory, bool)
}

// World is the host simulation as seen by the flow core.
type World interface {
	EntitiesByCategory(c Category) iter.Seq[Entity]
	Holders() iter.Seq[Holder]
	// Despawn removes a live entity from the world; false if it was already gone.
	Despawn(id int64) bool
}
