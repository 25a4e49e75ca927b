package world

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"containerflow.ai/internal/sim/flow"
)

var (
	ErrStopped   = errors.New("world stopped")
	ErrNoAgent   = errors.New("no flow agent for entity")
	ErrNoEntity  = errors.New("entity not found")
	ErrDuplicate = errors.New("entity id already in use")
)

// AuditWriter receives one JSON-encodable record per flow event.
type AuditWriter interface {
	Write(v any) error
}

type Options struct {
	Log      *zap.Logger
	Store    flow.StateStore
	Settings flow.SettingsFunc
	Audit    AuditWriter
}

// World owns every entity, inventory and flow agent. All state is mutated on
// a single goroutine: Run's loop, or the caller of Step in tests.
type World struct {
	cfg      WorldConfig
	log      *zap.Logger
	store    flow.StateStore
	settings flow.SettingsFunc
	audit    AuditWriter

	tick   atomic.Uint64
	nextID int64

	entities map[int64]*Entity
	agents   map[int64]*flow.Agent
	spawner  *spawner

	observers map[string]*observer

	cmds     chan command
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type command struct {
	fn   func(w *World)
	done chan struct{}
}

// StepReport aggregates agent reports for one frame.
type StepReport struct {
	Tick      uint64
	AgentsRan int
	Collected int
	Forwarded int
}

func New(cfg WorldConfig, opts Options) *World {
	cfg.applyDefaults()
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Settings == nil {
		opts.Settings = flow.Static(flow.DefaultSettings())
	}
	w := &World{
		cfg:       cfg,
		log:       opts.Log.With(zap.String("world_id", cfg.ID)),
		store:     opts.Store,
		settings:  opts.Settings,
		audit:     opts.Audit,
		nextID:    1,
		entities:  map[int64]*Entity{},
		agents:    map[int64]*flow.Agent{},
		observers: map[string]*observer{},
		cmds:      make(chan command, 1024),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	w.spawner = newSpawner(cfg.Spawner)
	return w
}

func (w *World) ID() string              { return w.cfg.ID }
func (w *World) Config() WorldConfig     { return w.cfg }
func (w *World) CurrentTick() uint64     { return w.tick.Load() }
func (w *World) Settings() flow.Settings { return w.settings() }

// Spawn adds an entity. Agent-eligible containers get a flow agent right away;
// the agent stays initializing until the inventory is ready.
func (w *World) Spawn(s SpawnSpec) (int64, error) {
	if s.Group == "" {
		return 0, fmt.Errorf("spawn: empty group")
	}
	if s.Category == "" {
		s.Category = flow.CategoryOther
	}
	id := s.ID
	if id == 0 {
		id = w.allocID()
	} else {
		if _, ok := w.entities[id]; ok {
			return 0, fmt.Errorf("spawn %d: %w", id, ErrDuplicate)
		}
		if id >= w.nextID {
			w.nextID = id + 1
		}
	}
	e := &Entity{
		id:        id,
		group:     s.Group,
		category:  s.Category,
		pos:       s.Pos,
		name:      s.Name,
		crafterID: s.CrafterID,
		alive:     true,
	}
	if s.Category == flow.CategoryContainer {
		capacity := s.Capacity
		if capacity <= 0 {
			capacity = w.cfg.ContainerCapacity
		}
		e.inv = NewInventory(capacity)
		for _, it := range s.Items {
			if it.ID == 0 {
				it.ID = w.allocID()
			}
			if e.inv.Add(it) && it.ID >= w.nextID {
				w.nextID = it.ID + 1
			}
		}
		e.readyAt = w.tick.Load() + uint64(w.cfg.InventoryReadyTicks)
	}
	w.entities[id] = e

	if e.inv != nil && isAgentContainer(w.cfg.ContainerPrefix, e.group) {
		w.agents[id] = flow.NewAgent(e, flow.Deps{
			World:    w,
			Store:    w.store,
			Settings: w.settings,
			Log:      w.log,
			Sink:     w,
		})
		w.log.Debug("flow agent added", zap.Int64("container_id", id), zap.String("group", e.group))
	}
	w.attachReady()
	return id, nil
}

// Destroy removes an entity. A container's agent is torn down first, which
// persists its config one last time.
func (w *World) Destroy(id int64) bool {
	e := w.entities[id]
	if e == nil || !e.alive {
		return false
	}
	if a := w.agents[id]; a != nil {
		a.Close()
		delete(w.agents, id)
	}
	e.alive = false
	delete(w.entities, id)
	return true
}

func (w *World) Despawn(id int64) bool { return w.Destroy(id) }

func (w *World) Entity(id int64) (*Entity, bool) {
	e, ok := w.entities[id]
	return e, ok && e.alive
}

func (w *World) Agent(id int64) (*flow.Agent, bool) {
	a, ok := w.agents[id]
	return a, ok
}

func (w *World) EntityCount() int { return len(w.entities) }

func (w *World) EntitiesByCategory(c flow.Category) iter.Seq[flow.Entity] {
	ids := w.sortedIDs(func(e *Entity) bool { return e.category == c })
	return w.yieldLive(ids)
}

// Entities yields every live entity in id order.
func (w *World) Entities() iter.Seq[flow.Entity] {
	return w.yieldLive(w.sortedIDs(nil))
}

func (w *World) Holders() iter.Seq[flow.Holder] {
	ids := w.sortedIDs(func(e *Entity) bool { return e.inv != nil })
	return func(yield func(flow.Holder) bool) {
		for _, id := range ids {
			e := w.entities[id]
			if e == nil || !e.alive {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Step advances the world by one frame of dt.
func (w *World) Step(dt time.Duration) StepReport {
	return w.step(dt, nil)
}

func (w *World) step(dt time.Duration, cmds []command) StepReport {
	nowTick := w.tick.Load()

	for _, c := range cmds {
		c.fn(w)
		close(c.done)
	}

	w.spawner.step(w, dt)
	w.attachReady()

	rep := StepReport{Tick: nowTick}
	for _, id := range sortedKeys(w.agents) {
		a := w.agents[id]
		if a == nil {
			continue
		}
		r := a.Tick(dt)
		if r.Ran {
			rep.AgentsRan++
		}
		rep.Collected += r.Collected
		rep.Forwarded += r.Forwarded
	}

	w.tick.Add(1)
	return rep
}

// Close tears every agent down. Call after Run has returned.
func (w *World) Close() {
	for _, id := range sortedKeys(w.agents) {
		w.agents[id].Close()
	}
	w.agents = map[int64]*flow.Agent{}
	for id, o := range w.observers {
		close(o.out)
		delete(w.observers, id)
	}
}

func (w *World) attachReady() {
	nowTick := w.tick.Load()
	for _, e := range w.entities {
		if e.inv != nil && !e.ready && nowTick >= e.readyAt {
			e.ready = true
		}
	}
	for _, id := range sortedKeys(w.agents) {
		e := w.entities[id]
		a := w.agents[id]
		if e != nil && e.ready && a.State() == flow.StateInitializing {
			a.Attach(e.inv)
		}
	}
}

func (w *World) allocID() int64 {
	for {
		id := w.nextID
		w.nextID++
		if _, ok := w.entities[id]; !ok {
			return id
		}
	}
}

func (w *World) sortedIDs(keep func(*Entity) bool) []int64 {
	ids := make([]int64, 0, len(w.entities))
	for id, e := range w.entities {
		if e == nil || !e.alive {
			continue
		}
		if keep != nil && !keep(e) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *World) yieldLive(ids []int64) iter.Seq[flow.Entity] {
	return func(yield func(flow.Entity) bool) {
		for _, id := range ids {
			e := w.entities[id]
			if e == nil || !e.alive {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

func sortedKeys[V any](m map[int64]V) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
