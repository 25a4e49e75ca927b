package agentdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"containerflow.ai/internal/sim/flow"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "agents.sqlite")
	s, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func ptr(v int64) *int64 { return &v }

func TestStore_SaveLoad(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	_, found, err := s.Load(ctx, 1)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Save(ctx, 1, flow.AgentConfig{Collect: true, Target: ptr(9)}))
	cfg, found, err := s.Load(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, flow.AgentConfig{Collect: true, Target: ptr(9)}, cfg)

	require.NoError(t, s.Flush(ctx))
	cfg, found, err = s.Load(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, flow.AgentConfig{Collect: true, Target: ptr(9)}, cfg, "read back from sqlite")

	require.NoError(t, s.Save(ctx, 1, flow.AgentConfig{Forward: true}))
	require.NoError(t, s.Flush(ctx))
	cfg, _, err = s.Load(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, flow.AgentConfig{Forward: true}, cfg, "null target clears")
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.sqlite")
	s, err := Open(path, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, 3, flow.AgentConfig{Collect: true}))
	require.NoError(t, s.Save(ctx, 2, flow.AgentConfig{Forward: true, Target: ptr(3)}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, _, err = s.Load(ctx, 3)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.Save(ctx, 3, flow.AgentConfig{}), ErrClosed)

	s2, err := Open(path, nil)
	require.NoError(t, err)
	defer s2.Close()
	recs, err := s2.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, int64(2), recs[0].EntityID)
	require.Equal(t, int64(3), *recs[0].Config.Target)
	require.True(t, recs[1].Config.Collect)
	require.False(t, recs[1].UpdatedAt.IsZero())
}

func TestStore_SnapshotIndex(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()
	s.RecordSnapshot(SnapshotRow{Tick: 10, Path: "a", Digest: "d1", Entities: 4, Containers: 1})
	s.RecordSnapshot(SnapshotRow{Tick: 20, Path: "b", Digest: "d2", Entities: 5, Containers: 2})

	rows, err := s.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, uint64(20), rows[0].Tick)
	require.Equal(t, "b", rows[0].Path)

	// Read-only access from a second handle, as the admin tool does.
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	again, err := ListSnapshots(ctx, db)
	require.NoError(t, err)
	require.Equal(t, rows[1].Digest, again[1].Digest)
}

func TestStore_ImplementsStateStore(t *testing.T) {
	var _ flow.StateStore = (*Store)(nil)
}

func TestStore_WorksWithAgent(t *testing.T) {
	s, _ := openTemp(t)
	owner := stubEntity{id: 5}
	a := flow.NewAgent(owner, flow.Deps{Store: s})
	a.ToggleCollect()
	a.SetTarget(8)
	a.Close()

	b := flow.NewAgent(owner, flow.Deps{Store: s})
	cfg := b.Config()
	require.True(t, cfg.Collect)
	id, ok := cfg.TargetID()
	require.True(t, ok)
	require.Equal(t, int64(8), id)
}

type stubEntity struct{ id int64 }

func (e stubEntity) ID() int64                   { return e.id }
func (e stubEntity) Group() string               { return "Container" }
func (e stubEntity) Category() flow.Category     { return flow.CategoryContainer }
func (e stubEntity) Position() (flow.Vec3, bool) { return flow.Vec3{}, true }
func (e stubEntity) Alive() bool                 { return true }
func (e stubEntity) ClaimedByCrafter() bool      { return false }
