package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const tick = time.Second

type harness struct {
	world  *fakeWorld
	owner  *fakeEntity
	store  *MemStore
	events []Event
	agent  *Agent
}

func testSettings() Settings {
	s := DefaultSettings()
	s.Interval = tick
	return s
}

func newHarness(t *testing.T, s Settings, owner *fakeEntity, others ...*fakeEntity) *harness {
	t.Helper()
	h := &harness{owner: owner, store: NewMemStore()}
	h.world = newWorld(append([]*fakeEntity{owner}, others...)...)
	h.agent = NewAgent(owner, Deps{
		World:    h.world,
		Store:    h.store,
		Settings: Static(s),
		Sink:     SinkFunc(func(ev Event) { h.events = append(h.events, ev) }),
	})
	require.Equal(t, StateInitializing, h.agent.State())
	h.agent.Attach(owner.inv)
	require.Equal(t, StateActive, h.agent.State())
	return h
}

func container(id int64, inv *fakeInv) *fakeEntity {
	return &fakeEntity{id: id, group: "ContainerSmall", cat: CategoryContainer, inv: inv, ready: true}
}

func loose(id int64, group string, x float64) *fakeEntity {
	return &fakeEntity{id: id, group: group, cat: CategoryLoose, pos: Vec3{X: x}}
}

func (h *harness) kinds() []EventKind {
	var out []EventKind
	for _, ev := range h.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestAgent_CollectSingleCandidate(t *testing.T) {
	h := newHarness(t, testSettings(), container(1, newInv(10)), loose(2, "OreA", 3))
	h.agent.ToggleCollect()

	r := h.agent.Tick(tick)
	require.True(t, r.Ran)
	require.Equal(t, 1, r.Collected)
	require.Equal(t, []Item{{ID: 2, Type: "OreA"}}, h.owner.inv.items)
	require.False(t, h.world.has(2))
}

func TestAgent_CollectQuotaRejects(t *testing.T) {
	s := testSettings()
	s.CollectMaxPerItem = 5
	h := newHarness(t, s, container(1, newInv(10, items("OreA", 100, 5)...)),
		loose(2, "OreA", 1), loose(3, "OreA", 2))
	h.agent.ToggleCollect()

	r := h.agent.Tick(tick)
	require.Zero(t, r.Collected)
	require.Equal(t, 5, h.owner.inv.count("OreA"))
	require.True(t, h.world.has(2))
	require.True(t, h.world.has(3))
}

func TestAgent_CollectQuotaCountsWithinPass(t *testing.T) {
	s := testSettings()
	s.CollectMaxPerItem = 2
	h := newHarness(t, s, container(1, newInv(10, Item{ID: 100, Type: "OreA"})),
		loose(2, "OreA", 1), loose(3, "OreA", 1), loose(4, "OreB", 1))
	h.agent.ToggleCollect()

	h.agent.Tick(tick)
	require.Equal(t, 2, h.owner.inv.count("OreA"))
	require.Equal(t, 1, h.owner.inv.count("OreB"))
	require.True(t, h.world.has(3))
}

func TestAgent_CollectStopsWhenFull(t *testing.T) {
	h := newHarness(t, testSettings(), container(1, newInv(2)),
		loose(2, "OreA", 1), loose(3, "OreA", 1), loose(4, "OreA", 1), loose(5, "OreA", 1))
	h.agent.ToggleCollect()

	r := h.agent.Tick(tick)
	require.Equal(t, 2, r.Collected)
	require.Len(t, h.owner.inv.items, 2)
	require.True(t, h.world.has(4))
	require.True(t, h.world.has(5))

	r = h.agent.Tick(tick)
	require.True(t, r.Ran)
	require.Zero(t, r.Collected)
}

func TestAgent_CollectIdempotentWithoutCandidates(t *testing.T) {
	inv := newInv(5, Item{ID: 50, Type: "OreA"})
	h := newHarness(t, testSettings(), container(1, inv), loose(2, "OreA", 500))
	h.agent.ToggleCollect()

	h.agent.Tick(tick)
	require.Equal(t, []Item{{ID: 50, Type: "OreA"}}, inv.items)
	require.True(t, h.world.has(2))
}

func TestAgent_CollectMinables(t *testing.T) {
	rock := &fakeEntity{id: 2, group: "Rock", cat: CategoryMinable, pos: Vec3{X: 1}}
	claimed := &fakeEntity{id: 3, group: "Rock", cat: CategoryMinable, pos: Vec3{X: 1}, claimed: true}

	s := testSettings()
	s.IncludeMinables = false
	h := newHarness(t, s, container(1, newInv(5)), rock, claimed)
	h.agent.ToggleCollect()
	h.agent.Tick(tick)
	require.Empty(t, h.owner.inv.items)

	h = newHarness(t, testSettings(), container(1, newInv(5)), rock, claimed)
	h.agent.ToggleCollect()
	h.agent.Tick(tick)
	require.Equal(t, []Item{{ID: 2, Type: "Rock"}}, h.owner.inv.items)
	require.True(t, h.world.has(3))
}

func TestAgent_CollectFailedAddKeepsEntity(t *testing.T) {
	inv := newInv(5)
	inv.rejectAdd = true
	h := newHarness(t, testSettings(), container(1, inv), loose(2, "OreA", 1))
	h.agent.ToggleCollect()

	h.agent.Tick(tick)
	require.True(t, h.world.has(2))
	require.Empty(t, inv.items)
}

func TestAgent_CollectFailedDespawnRollsBack(t *testing.T) {
	h := newHarness(t, testSettings(), container(1, newInv(5)), loose(2, "OreA", 1))
	h.world.failDespawn = true
	h.agent.ToggleCollect()

	r := h.agent.Tick(tick)
	require.Zero(t, r.Collected)
	require.Empty(t, h.owner.inv.items, "item must not exist both in the world and the inventory")
	require.True(t, h.world.has(2))
}

func forwardHarness(t *testing.T, s Settings, src, dst *fakeInv) *harness {
	t.Helper()
	target := container(2, dst)
	target.pos = Vec3{X: 10}
	h := newHarness(t, s, container(1, src), target)
	h.agent.SetTarget(2)
	h.agent.ToggleForward()
	return h
}

func TestAgent_ForwardQuotaMovesPartial(t *testing.T) {
	s := testSettings()
	s.ForwardMaxPerItem = 10
	src := newInv(10, items("OreB", 100, 3)...)
	dst := newInv(20, items("OreB", 200, 8)...)
	h := forwardHarness(t, s, src, dst)

	r := h.agent.Tick(tick)
	require.Equal(t, 2, r.Forwarded)
	require.Equal(t, 10, dst.count("OreB"))
	require.Equal(t, 1, src.count("OreB"))
	require.Equal(t, []Item{{ID: 102, Type: "OreB"}}, src.items, "source order is preserved")
}

func TestAgent_ForwardStopsWhenTargetFull(t *testing.T) {
	src := newInv(10, Item{1001, "OreA"}, Item{1002, "OreB"}, Item{1003, "OreC"})
	dst := newInv(2, Item{2001, "OreZ"})
	h := forwardHarness(t, testSettings(), src, dst)

	r := h.agent.Tick(tick)
	require.Equal(t, 1, r.Forwarded)
	require.Len(t, dst.items, 2)
	require.Equal(t, []Item{{1002, "OreB"}, {1003, "OreC"}}, src.items)
}

func TestAgent_ForwardSkipsTypesOverQuota(t *testing.T) {
	s := testSettings()
	s.ForwardMaxPerItem = 1
	src := newInv(10, Item{1, "OreA"}, Item{2, "OreB"}, Item{3, "OreA"})
	dst := newInv(10, Item{9, "OreA"})
	h := forwardHarness(t, s, src, dst)

	h.agent.Tick(tick)
	require.Equal(t, []Item{{1, "OreA"}, {3, "OreA"}}, src.items)
	require.Equal(t, 1, dst.count("OreB"))
}

func TestAgent_ForwardMissingTarget(t *testing.T) {
	src := newInv(10, items("OreA", 100, 2)...)
	dst := newInv(10)
	h := forwardHarness(t, testSettings(), src, dst)
	h.world.ents[2].dead = true

	r := h.agent.Tick(tick)
	require.True(t, r.Ran)
	require.Zero(t, r.Forwarded)
	require.Len(t, src.items, 2)
	require.Empty(t, dst.items)
	require.Contains(t, h.kinds(), EventTargetMissing)

	h.agent.SetTarget(12345)
	require.NotPanics(t, func() { h.agent.Tick(tick) })
	require.Len(t, src.items, 2)
}

func TestAgent_ForwardGuards(t *testing.T) {
	t.Run("no target", func(t *testing.T) {
		src := newInv(10, items("OreA", 100, 2)...)
		h := newHarness(t, testSettings(), container(1, src))
		h.agent.ToggleForward()
		r := h.agent.Tick(tick)
		require.Zero(t, r.Forwarded)
		require.Len(t, src.items, 2)
	})
	t.Run("self target", func(t *testing.T) {
		src := newInv(10, items("OreA", 100, 2)...)
		h := newHarness(t, testSettings(), container(1, src))
		h.agent.SetTarget(1)
		h.agent.ToggleForward()
		h.agent.Tick(tick)
		require.Len(t, src.items, 2)
	})
	t.Run("out of range", func(t *testing.T) {
		s := testSettings()
		s.ForwardRadius = 5
		src := newInv(10, items("OreA", 100, 2)...)
		dst := newInv(10)
		h := forwardHarness(t, s, src, dst)
		h.agent.Tick(tick)
		require.Empty(t, dst.items)

		s.ForwardRadius = 0
		h = forwardHarness(t, s, src, dst)
		h.agent.Tick(tick)
		require.Len(t, dst.items, 2, "zero radius means unlimited")
	})
	t.Run("failed remove rolls back", func(t *testing.T) {
		src := newInv(10, items("OreA", 100, 2)...)
		src.rejectRemove = true
		dst := newInv(10)
		h := forwardHarness(t, testSettings(), src, dst)
		r := h.agent.Tick(tick)
		require.Zero(t, r.Forwarded)
		require.Empty(t, dst.items)
		require.Len(t, src.items, 2)
	})
}

func TestAgent_CollectThenForwardConservesItems(t *testing.T) {
	src := newInv(3)
	dst := newInv(2)
	target := container(2, dst)
	h := newHarness(t, testSettings(), container(1, src), target,
		loose(10, "OreA", 1), loose(11, "OreB", 1), loose(12, "OreA", 1), loose(13, "OreC", 1))
	h.agent.SetTarget(2)
	h.agent.ToggleCollect()
	h.agent.ToggleForward()

	total := func() int {
		n := len(src.items) + len(dst.items)
		for _, e := range h.world.ents {
			if e.cat == CategoryLoose {
				n++
			}
		}
		return n
	}
	require.Equal(t, 4, total())
	for i := 0; i < 4; i++ {
		h.agent.Tick(tick)
		require.Equal(t, 4, total())
		require.LessOrEqual(t, len(src.items), src.capacity)
		require.LessOrEqual(t, len(dst.items), dst.capacity)
	}
}

func TestAgent_ToggleCollectOffKeepsForward(t *testing.T) {
	src := newInv(10)
	dst := newInv(10)
	target := container(2, dst)
	h := newHarness(t, testSettings(), container(1, src), target, loose(3, "OreA", 1))
	h.agent.SetTarget(2)
	h.agent.ToggleCollect()
	h.agent.ToggleForward()

	h.agent.Tick(tick)
	require.Len(t, dst.items, 1, "collected then forwarded in one tick")

	h.world.ents[4] = loose(4, "OreA", 1)
	src.items = append(src.items, Item{ID: 77, Type: "OreB"})
	h.agent.ToggleCollect()
	require.False(t, h.agent.Config().Collect)

	r := h.agent.Tick(tick)
	require.True(t, r.Ran)
	require.Zero(t, r.Collected)
	require.Equal(t, 1, r.Forwarded)
	require.True(t, h.world.has(4))
}

func TestAgent_IntervalGating(t *testing.T) {
	h := newHarness(t, testSettings(), container(1, newInv(10)), loose(2, "OreA", 1))
	h.agent.ToggleCollect()

	require.False(t, h.agent.Tick(tick/2).Ran)
	require.True(t, h.world.has(2))
	require.True(t, h.agent.Tick(tick/2).Ran)
	require.False(t, h.world.has(2))

	// Toggling resets the shared timer.
	h.agent.Tick(tick / 2)
	h.agent.ToggleForward()
	require.False(t, h.agent.Tick(tick/2).Ran)
}

func TestAgent_DisabledModSkipsTicks(t *testing.T) {
	s := testSettings()
	s.Enabled = false
	h := newHarness(t, s, container(1, newInv(10)), loose(2, "OreA", 1))
	h.agent.ToggleCollect()

	for i := 0; i < 3; i++ {
		require.False(t, h.agent.Tick(tick).Ran)
	}
	require.True(t, h.world.has(2))
}

func TestAgent_NotReadyBeforeAttach(t *testing.T) {
	owner := container(1, newInv(10))
	w := newWorld(owner, loose(2, "OreA", 1))
	a := NewAgent(owner, Deps{World: w, Settings: Static(testSettings())})
	a.ToggleCollect()

	require.False(t, a.Ready())
	require.False(t, a.Tick(tick).Ran)
	require.True(t, w.has(2))

	a.Attach(nil)
	require.Equal(t, StateInitializing, a.State())
}

func TestAgent_PersistsAndRestoresConfig(t *testing.T) {
	h := newHarness(t, testSettings(), container(1, newInv(10)))
	h.agent.ToggleCollect()
	h.agent.SetTarget(42)
	writes := h.store.Writes()
	require.Equal(t, 2, writes)

	h.agent.Close()
	require.Equal(t, StateClosed, h.agent.State())
	require.Equal(t, writes+1, h.store.Writes(), "teardown writes once")
	h.agent.Close()
	h.agent.ToggleForward()
	require.Equal(t, writes+1, h.store.Writes(), "closed agents never write")

	again := NewAgent(h.owner, Deps{World: h.world, Store: h.store})
	cfg := again.Config()
	require.True(t, cfg.Collect)
	require.False(t, cfg.Forward)
	id, ok := cfg.TargetID()
	require.True(t, ok)
	require.Equal(t, int64(42), id)

	again.ClearTarget()
	stored, found, err := h.store.Load(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Nil(t, stored.Target)
}

type failingStore struct{}

func (failingStore) Save(context.Context, int64, AgentConfig) error { return errors.New("disk full") }
func (failingStore) Load(context.Context, int64) (AgentConfig, bool, error) {
	return AgentConfig{}, false, errors.New("disk gone")
}

func TestAgent_StoreFailuresAreNotFatal(t *testing.T) {
	owner := container(1, newInv(10))
	w := newWorld(owner, loose(2, "OreA", 1))
	a := NewAgent(owner, Deps{World: w, Store: failingStore{}, Settings: Static(testSettings())})
	a.Attach(owner.inv)

	require.NotPanics(t, a.ToggleCollect)
	require.True(t, a.Config().Collect)
	a.Tick(tick)
	require.False(t, w.has(2))
}

func TestAgent_EmitsEvents(t *testing.T) {
	h := newHarness(t, testSettings(), container(1, newInv(10)), loose(2, "OreA", 1))
	h.agent.ToggleCollect()
	h.agent.Tick(tick)

	require.Equal(t, []EventKind{EventToggle, EventCollect}, h.kinds())
	require.Equal(t, Event{ContainerID: 1, Kind: EventCollect, Item: "OreA", ItemID: 2}, h.events[1])
}

func TestStateString(t *testing.T) {
	require.Equal(t, "ACTIVE", StateActive.String())
	require.Equal(t, "UNINITIALIZED", StateUninitialized.String())
}
