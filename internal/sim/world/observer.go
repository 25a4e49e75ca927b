package world

import (
	"encoding/json"

	"go.uber.org/zap"

	"containerflow.ai/internal/protocol"
	"containerflow.ai/internal/sim/flow"
)

type observer struct {
	id     string
	out    chan []byte
	filter map[int64]bool // nil = every container
}

// AddObserver registers a flow event stream, or replaces the container filter
// of an existing one. Must run on the world goroutine.
func (w *World) AddObserver(id string, out chan []byte, containers []int64) {
	o := &observer{id: id, out: out}
	if len(containers) > 0 {
		o.filter = make(map[int64]bool, len(containers))
		for _, c := range containers {
			o.filter[c] = true
		}
	}
	if prev := w.observers[id]; prev != nil && prev.out != out {
		close(prev.out)
	}
	w.observers[id] = o
}

// RemoveObserver closes and forgets a stream. Must run on the world goroutine.
func (w *World) RemoveObserver(id string) {
	o := w.observers[id]
	if o == nil {
		return
	}
	close(o.out)
	delete(w.observers, id)
}

func (w *World) ObserverCount() int { return len(w.observers) }

// FlowEvent implements flow.Sink.
func (w *World) FlowEvent(ev flow.Event) {
	msg := protocol.FlowEventMsg{
		Type:        protocol.TypeFlow,
		Tick:        w.tick.Load(),
		WorldID:     w.cfg.ID,
		ContainerID: ev.ContainerID,
		Kind:        string(ev.Kind),
		Item:        ev.Item,
		ItemID:      ev.ItemID,
		TargetID:    ev.TargetID,
		Detail:      ev.Detail,
	}
	if w.audit != nil {
		if err := w.audit.Write(msg); err != nil {
			w.log.Warn("audit write", zap.Error(err))
		}
	}
	if len(w.observers) == 0 {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, o := range w.observers {
		if o.filter != nil && !o.filter[ev.ContainerID] {
			continue
		}
		sendLatest(o.out, b)
	}
}

// sendLatest never blocks the world loop: when the buffer is full the oldest
// queued message is dropped.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
