package flow

type EventKind string

const (
	EventCollect       EventKind = "COLLECT"
	EventForward       EventKind = "FORWARD"
	EventTargetMissing EventKind = "TARGET_MISSING"
	EventToggle        EventKind = "TOGGLE"
)

// Event is one diagnostic flow record. TargetID is set for forward-side events.
type Event struct {
	ContainerID int64     `json:"container_id"`
	Kind        EventKind `json:"kind"`
	Item        string    `json:"item,omitempty"`
	ItemID      int64     `json:"item_id,omitempty"`
	TargetID    int64     `json:"target_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// Sink receives flow events. Implementations must not call back into the agent.
type Sink interface {
	FlowEvent(ev Event)
}

type SinkFunc func(ev Event)

func (f SinkFunc) FlowEvent(ev Event) { f(ev) }
