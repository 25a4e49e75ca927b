package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"containerflow.ai/internal/sim/flow"
	"containerflow.ai/internal/sim/locator"
	"containerflow.ai/internal/sim/world"
)

var ErrInvalid = errors.New("invalid tuning")

//go:embed tuning.schema.json
var schemaJSON string

type Tuning struct {
	Enabled    bool `yaml:"enabled"`
	Debug      bool `yaml:"debug"`
	TickRateHz int  `yaml:"tick_rate_hz"`

	World   World   `yaml:"world"`
	Flow    Flow    `yaml:"flow"`
	Locator Locator `yaml:"locator"`
	Spawner Spawner `yaml:"spawner"`
}

type World struct {
	ID                  string `yaml:"id"`
	InventoryReadyTicks int    `yaml:"inventory_ready_ticks"`
	ContainerCapacity   int    `yaml:"container_capacity"`
}

type Flow struct {
	CollectRadius     float64 `yaml:"collect_radius"`
	ForwardRadius     float64 `yaml:"forward_radius"`
	CollectMaxPerItem int     `yaml:"collect_max_per_item"`
	ForwardMaxPerItem int     `yaml:"forward_max_per_item"`
	IntervalSeconds   float64 `yaml:"interval_seconds"`
	IncludeMinables   bool    `yaml:"include_minables"`
	ContainerPrefix   string  `yaml:"container_prefix"`
}

type Locator struct {
	MaxDistance float64 `yaml:"max_distance"`
	GoldenOnly  bool    `yaml:"golden_only"`
	Top         int     `yaml:"top"`
}

type Spawner struct {
	EverySeconds  float64    `yaml:"every_seconds"`
	Center        [3]float64 `yaml:"center"`
	Radius        float64    `yaml:"radius"`
	LooseGroups   []string   `yaml:"loose_groups"`
	MinableGroups []string   `yaml:"minable_groups"`
	MaxLive       int        `yaml:"max_live"`
	Seed          int64      `yaml:"seed"`
}

func Defaults() Tuning {
	return Tuning{
		Enabled:    true,
		TickRateHz: 5,
		World: World{
			ID:                  "world_1",
			InventoryReadyTicks: 1,
			ContainerCapacity:   30,
		},
		Flow: Flow{
			CollectRadius:   50,
			ForwardRadius:   50,
			IntervalSeconds: 5,
			IncludeMinables: true,
			ContainerPrefix: "Container",
		},
		Locator: Locator{
			MaxDistance: 5000,
			Top:         10,
		},
		Spawner: Spawner{
			Radius:  32,
			MaxLive: 64,
			Seed:    1,
		},
	}
}

// Load reads a tuning file. Keys missing from the file keep their defaults.
func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if len(bytes.TrimSpace(raw)) == 0 {
		return t, nil
	}
	if err := Validate(raw); err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

var schema = jsonschema.MustCompileString("tuning.schema.json", schemaJSON)

// Validate checks a YAML document against the embedded schema.
func Validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	if doc == nil {
		return nil
	}
	// Re-encode through JSON so the validator sees JSON value types.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// FlowSettings are the per-tick flow scalars.
func (t Tuning) FlowSettings() flow.Settings {
	return flow.Settings{
		Enabled:           t.Enabled,
		CollectRadius:     t.Flow.CollectRadius,
		ForwardRadius:     t.Flow.ForwardRadius,
		CollectMaxPerItem: t.Flow.CollectMaxPerItem,
		ForwardMaxPerItem: t.Flow.ForwardMaxPerItem,
		Interval:          seconds(t.Flow.IntervalSeconds),
		IncludeMinables:   t.Flow.IncludeMinables,
	}
}

func (t Tuning) WorldConfig() world.WorldConfig {
	return world.WorldConfig{
		ID:                  t.World.ID,
		TickRateHz:          t.TickRateHz,
		InventoryReadyTicks: t.World.InventoryReadyTicks,
		ContainerPrefix:     t.Flow.ContainerPrefix,
		ContainerCapacity:   t.World.ContainerCapacity,
		Spawner: world.SpawnerConfig{
			Every:         seconds(t.Spawner.EverySeconds),
			Center:        flow.Vec3{X: t.Spawner.Center[0], Y: t.Spawner.Center[1], Z: t.Spawner.Center[2]},
			Radius:        t.Spawner.Radius,
			LooseGroups:   t.Spawner.LooseGroups,
			MinableGroups: t.Spawner.MinableGroups,
			MaxLive:       t.Spawner.MaxLive,
			Seed:          t.Spawner.Seed,
		},
	}
}

func (t Tuning) LocatorOptions() locator.Options {
	return locator.Options{MaxDistance: t.Locator.MaxDistance, GoldenOnly: t.Locator.GoldenOnly}
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }
