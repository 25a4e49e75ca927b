package world

import (
	"fmt"

	"containerflow.ai/internal/protocol"
	"containerflow.ai/internal/sim/flow"
)

// The helpers below must run on the world goroutine (inside Exec or Step).

func (w *World) ToggleCollect(id int64) (flow.AgentConfig, error) {
	a, err := w.liveAgent(id)
	if err != nil {
		return flow.AgentConfig{}, err
	}
	a.ToggleCollect()
	return a.Config(), nil
}

func (w *World) ToggleForward(id int64) (flow.AgentConfig, error) {
	a, err := w.liveAgent(id)
	if err != nil {
		return flow.AgentConfig{}, err
	}
	a.ToggleForward()
	return a.Config(), nil
}

// SetTarget sets (or clears, when target is nil) an agent's forward target.
func (w *World) SetTarget(id int64, target *int64) (flow.AgentConfig, error) {
	a, err := w.liveAgent(id)
	if err != nil {
		return flow.AgentConfig{}, err
	}
	if target == nil {
		a.ClearTarget()
	} else {
		a.SetTarget(*target)
	}
	return a.Config(), nil
}

func (w *World) AgentStatus(id int64) (protocol.AgentStatus, error) {
	a, err := w.liveAgent(id)
	if err != nil {
		return protocol.AgentStatus{}, err
	}
	e := w.entities[id]
	cfg := a.Config()
	st := protocol.AgentStatus{
		ContainerID: id,
		Group:       e.group,
		Name:        e.name,
		State:       a.State().String(),
		Collect:     cfg.Collect,
		Forward:     cfg.Forward,
		TargetID:    cfg.Target,
		Inventory:   []protocol.ItemStack{},
	}
	if e.inv != nil {
		st.Capacity = e.inv.Capacity()
		st.Inventory = e.inv.Stacks()
	}
	return st, nil
}

// AgentIDs lists containers that carry a flow agent, ascending.
func (w *World) AgentIDs() []int64 { return sortedKeys(w.agents) }

func (w *World) liveAgent(id int64) (*flow.Agent, error) {
	a := w.agents[id]
	if a == nil {
		return nil, fmt.Errorf("container %d: %w", id, ErrNoAgent)
	}
	return a, nil
}
