package flow

import (
	"context"
	"sync"
)

// AgentConfig is the persisted per-container flow state.
type AgentConfig struct {
	Collect bool   `json:"collect"`
	Forward bool   `json:"forward"`
	Target  *int64 `json:"target_id,omitempty"`
}

func (c AgentConfig) TargetID() (int64, bool) {
	if c.Target == nil {
		return 0, false
	}
	return *c.Target, true
}

func (c AgentConfig) clone() AgentConfig {
	out := c
	if c.Target != nil {
		id := *c.Target
		out.Target = &id
	}
	return out
}

// StateStore persists agent configs keyed by the owning entity id.
type StateStore interface {
	Save(ctx context.Context, entityID int64, cfg AgentConfig) error
	// Load reports found=false (and a zero config) when nothing is stored.
	Load(ctx context.Context, entityID int64) (cfg AgentConfig, found bool, err error)
}

// MemStore is an in-process StateStore.
type MemStore struct {
	mu     sync.Mutex
	recs   map[int64]AgentConfig
	writes int
}

func NewMemStore() *MemStore { return &MemStore{recs: map[int64]AgentConfig{}} }

func (m *MemStore) Save(_ context.Context, entityID int64, cfg AgentConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[entityID] = cfg.clone()
	m.writes++
	return nil
}

func (m *MemStore) Load(_ context.Context, entityID int64) (AgentConfig, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.recs[entityID]
	if !ok {
		return AgentConfig{}, false, nil
	}
	return cfg.clone(), true, nil
}

// Writes counts Save calls.
func (m *MemStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
