package flow

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNINITIALIZED"
	}
}

const persistTimeout = 2 * time.Second

type Deps struct {
	World    World
	Store    StateStore
	Settings SettingsFunc
	Log      *zap.Logger
	Sink     Sink
}

// Report summarizes one Tick call. Counts are diagnostics only.
type Report struct {
	Ran       bool
	Collected int
	Forwarded int
}

// Agent runs the collect/forward flows for one container entity.
//
// Agent is not safe for concurrent use: the host world calls every method from
// its single simulation goroutine.
type Agent struct {
	owner    Entity
	world    World
	scanner  Scanner
	resolver Resolver
	store    StateStore
	settings SettingsFunc
	log      *zap.Logger
	sink     Sink

	state State
	cfg   AgentConfig
	inv   Inventory
	timer time.Duration
}

// NewAgent loads the persisted config for owner and waits for Attach.
func NewAgent(owner Entity, deps Deps) *Agent {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Settings == nil {
		deps.Settings = Static(DefaultSettings())
	}
	a := &Agent{
		owner:    owner,
		world:    deps.World,
		scanner:  NewScanner(deps.World),
		resolver: NewResolver(deps.World),
		store:    deps.Store,
		settings: deps.Settings,
		log:      deps.Log.With(zap.Int64("container_id", owner.ID()), zap.String("group", owner.Group())),
		sink:     deps.Sink,
	}
	a.load()
	a.state = StateInitializing
	return a
}

func (a *Agent) ID() int64           { return a.owner.ID() }
func (a *Agent) State() State        { return a.state }
func (a *Agent) Config() AgentConfig { return a.cfg.clone() }
func (a *Agent) Ready() bool         { return a.state == StateActive && a.inv != nil }

// Attach hands the agent its inventory once the owner's inventory is ready.
func (a *Agent) Attach(inv Inventory) {
	if a.state != StateInitializing || inv == nil {
		return
	}
	a.inv = inv
	a.state = StateActive
	a.log.Debug("flow agent ready")
}

func (a *Agent) ToggleCollect() {
	if a.state == StateClosed {
		return
	}
	a.cfg.Collect = !a.cfg.Collect
	a.timer = 0
	a.log.Debug("collect toggled", zap.Bool("enabled", a.cfg.Collect))
	a.emit(Event{Kind: EventToggle, Detail: "collect=" + onOff(a.cfg.Collect)})
	a.persist()
}

func (a *Agent) ToggleForward() {
	if a.state == StateClosed {
		return
	}
	a.cfg.Forward = !a.cfg.Forward
	a.timer = 0
	a.log.Debug("forward toggled", zap.Bool("enabled", a.cfg.Forward))
	a.emit(Event{Kind: EventToggle, Detail: "forward=" + onOff(a.cfg.Forward)})
	a.persist()
}

// SetTarget sets the forward target. The target is not validated here.
func (a *Agent) SetTarget(id int64) {
	if a.state == StateClosed {
		return
	}
	a.cfg.Target = &id
	a.persist()
}

func (a *Agent) ClearTarget() {
	if a.state == StateClosed {
		return
	}
	a.cfg.Target = nil
	a.persist()
}

// Close tears the agent down with one final persistence write.
func (a *Agent) Close() {
	if a.state == StateClosed {
		return
	}
	a.persist()
	a.state = StateClosed
	a.inv = nil
}

// Tick advances the shared timer and, when due, runs collect then forward.
func (a *Agent) Tick(dt time.Duration) Report {
	if !a.Ready() {
		return Report{}
	}
	s := a.settings()
	if !s.Enabled {
		return Report{}
	}
	if dt > 0 {
		a.timer += dt
	}
	if a.timer < s.Interval {
		return Report{}
	}
	a.timer = 0

	r := Report{Ran: true}
	if a.cfg.Collect {
		r.Collected = a.collect(s)
	}
	if a.cfg.Forward {
		r.Forwarded = a.forward(s)
	}
	return r
}

func (a *Agent) collect(s Settings) int {
	if a.inv.IsFull() {
		return 0
	}
	origin, ok := a.owner.Position()
	if !ok {
		return 0
	}
	cats := []Category{CategoryLoose}
	if s.IncludeMinables {
		cats = append(cats, CategoryMinable)
	}
	quota := NewQuotaTracker(SnapshotOf(a.inv), s.CollectMaxPerItem)

	n := 0
	for c := range a.scanner.Scan(origin, s.CollectRadius, cats...) {
		if a.inv.IsFull() {
			break
		}
		e := c.Entity
		if e.ID() == a.owner.ID() {
			continue
		}
		it := Item{ID: e.ID(), Type: e.Group()}
		if !quota.TryAdmit(it.Type) {
			continue
		}
		if !a.inv.Add(it) {
			quota.Release(it.Type)
			continue
		}
		if !a.world.Despawn(it.ID) {
			// Entity went away between scan and despawn; keep the unit single.
			a.inv.Remove(it)
			quota.Release(it.Type)
			continue
		}
		n++
		a.emit(Event{Kind: EventCollect, Item: it.Type, ItemID: it.ID})
	}
	if n > 0 {
		a.log.Debug("collection cycle complete", zap.Int("collected", n))
	}
	return n
}

func (a *Agent) forward(s Settings) int {
	items := a.inv.Contents()
	if len(items) == 0 {
		return 0
	}
	targetID, ok := a.cfg.TargetID()
	if !ok {
		return 0
	}
	if targetID == a.owner.ID() {
		a.log.Debug("forward target is self; skipping")
		return 0
	}
	t, ok := a.resolver.Locate(targetID)
	if !ok {
		a.log.Debug("forward target not available", zap.Int64("target_id", targetID))
		a.emit(Event{Kind: EventTargetMissing, TargetID: targetID})
		return 0
	}
	if s.ForwardRadius > 0 {
		origin, hasOrigin := a.owner.Position()
		if !hasOrigin || !t.HasPos || origin.Dist(t.Pos) > s.ForwardRadius {
			a.log.Debug("forward target out of range", zap.Int64("target_id", targetID))
			return 0
		}
	}
	dst := t.Inventory
	quota := NewQuotaTracker(SnapshotOf(dst), s.ForwardMaxPerItem)

	n := 0
	for _, it := range items {
		if dst.IsFull() {
			break
		}
		if !quota.TryAdmit(it.Type) {
			continue
		}
		if !dst.Add(it) {
			quota.Release(it.Type)
			continue
		}
		if !a.inv.Remove(it) {
			dst.Remove(it)
			quota.Release(it.Type)
			continue
		}
		n++
		a.emit(Event{Kind: EventForward, Item: it.Type, ItemID: it.ID, TargetID: targetID})
	}
	if n > 0 {
		a.log.Debug("forward cycle complete", zap.Int("forwarded", n), zap.Int64("target_id", targetID))
	}
	return n
}

func (a *Agent) load() {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	cfg, found, err := a.store.Load(ctx, a.owner.ID())
	if err != nil {
		a.log.Warn("load agent state", zap.Error(err))
		return
	}
	if found {
		a.cfg = cfg
	}
}

func (a *Agent) persist() {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := a.store.Save(ctx, a.owner.ID(), a.cfg.clone()); err != nil {
		a.log.Warn("save agent state", zap.Error(err))
	}
}

func (a *Agent) emit(ev Event) {
	if a.sink == nil {
		return
	}
	ev.ContainerID = a.owner.ID()
	a.sink.FlowEvent(ev)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
