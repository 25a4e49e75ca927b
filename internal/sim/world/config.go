package world

type WorldConfig struct {
	ID         string
	TickRateHz int

	// Ticks between a container spawning and its inventory handle becoming ready.
	InventoryReadyTicks int
	// Containers whose group starts with this prefix get a flow agent.
	ContainerPrefix   string
	ContainerCapacity int

	Spawner SpawnerConfig
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.InventoryReadyTicks < 0 {
		c.InventoryReadyTicks = 0
	}
	if c.ContainerPrefix == "" {
		c.ContainerPrefix = "Container"
	}
	if c.ContainerCapacity <= 0 {
		c.ContainerCapacity = 30
	}
}
