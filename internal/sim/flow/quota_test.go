package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuotaTracker_Unlimited(t *testing.T) {
	q := NewQuotaTracker(Snapshot{"OreA": 100}, 0)
	for i := 0; i < 5; i++ {
		require.True(t, q.TryAdmit("OreA"))
	}
	require.Equal(t, 105, q.Count("OreA"))
	require.Equal(t, 5, q.Admitted())
}

func TestQuotaTracker_RunningCountWithinPass(t *testing.T) {
	q := NewQuotaTracker(Snapshot{"OreA": 3}, 5)
	require.True(t, q.TryAdmit("OreA"))
	require.True(t, q.TryAdmit("OreA"))
	require.False(t, q.TryAdmit("OreA"))
	require.Equal(t, 5, q.Count("OreA"))

	require.True(t, q.TryAdmit("OreB"), "types are tracked independently")
}

func TestQuotaTracker_RejectDoesNotMutate(t *testing.T) {
	q := NewQuotaTracker(Snapshot{"OreA": 7}, 5)
	require.False(t, q.TryAdmit("OreA"))
	require.Equal(t, 7, q.Count("OreA"))
	require.Zero(t, q.Admitted())
}

func TestQuotaTracker_Release(t *testing.T) {
	q := NewQuotaTracker(nil, 1)
	require.True(t, q.TryAdmit("OreA"))
	require.False(t, q.TryAdmit("OreA"))
	q.Release("OreA")
	require.True(t, q.TryAdmit("OreA"))

	q.Release("Nothing")
	require.Zero(t, q.Count("Nothing"))
}

func TestQuotaTracker_DoesNotAliasBase(t *testing.T) {
	base := Snapshot{"OreA": 1}
	q := NewQuotaTracker(base, 0)
	q.TryAdmit("OreA")
	require.Equal(t, 1, base["OreA"])
}

func TestQuotaTracker_NegativeLimitIsUnlimited(t *testing.T) {
	q := NewQuotaTracker(Snapshot{"OreA": 50}, -3)
	require.Zero(t, q.Limit())
	require.True(t, q.TryAdmit("OreA"))
}

func TestSnapshot(t *testing.T) {
	s := TakeSnapshot([]Item{{1, "B"}, {2, "A"}, {3, "B"}})
	require.Equal(t, 2, s.Count("B"))
	require.Equal(t, 1, s.Count("A"))
	require.Zero(t, s.Count("C"))
	require.Equal(t, 3, s.Total())
	require.Equal(t, []string{"A", "B"}, s.Types())

	require.Empty(t, SnapshotOf(nil))
}
