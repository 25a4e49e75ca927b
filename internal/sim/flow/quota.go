package flow

// QuotaTracker admits items of a type while the running count for that type
// stays below the limit. The running count starts from a snapshot and is
// updated by every admit made during one pass. A limit of 0 means unlimited.
type QuotaTracker struct {
	limit    int
	counts   map[string]int
	admitted int
}

func NewQuotaTracker(base Snapshot, limit int) *QuotaTracker {
	if limit < 0 {
		limit = 0
	}
	counts := make(map[string]int, len(base))
	for t, n := range base {
		counts[t] = n
	}
	return &QuotaTracker{limit: limit, counts: counts}
}

func (q *QuotaTracker) Limit() int { return q.limit }

func (q *QuotaTracker) TryAdmit(itemType string) bool {
	if q.limit > 0 && q.counts[itemType] >= q.limit {
		return false
	}
	q.counts[itemType]++
	q.admitted++
	return true
}

// Release undoes one admit whose inventory mutation did not go through.
func (q *QuotaTracker) Release(itemType string) {
	if q.counts[itemType] <= 0 {
		return
	}
	q.counts[itemType]--
	if q.admitted > 0 {
		q.admitted--
	}
}

func (q *QuotaTracker) Count(itemType string) int { return q.counts[itemType] }

// Admitted is the number of admits in this pass (net of releases).
func (q *QuotaTracker) Admitted() int { return q.admitted }
