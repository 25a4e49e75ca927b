package protocol

const Version = "1.0"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeWelcome   = "WELCOME"
	TypeFlow      = "FLOW"
	TypeError     = "ERROR"
)

type SubscribeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Containers      []int64 `json:"containers,omitempty"` // empty = all
}

type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	WorldID         string `json:"world_id"`
	Tick            uint64 `json:"tick"`
}

// FlowEventMsg is one collect/forward record as streamed to observers and
// written to the audit log.
type FlowEventMsg struct {
	Type        string `json:"type"`
	Tick        uint64 `json:"tick"`
	WorldID     string `json:"world_id,omitempty"`
	ContainerID int64  `json:"container_id"`
	Kind        string `json:"kind"`
	Item        string `json:"item,omitempty"`
	ItemID      int64  `json:"item_id,omitempty"`
	TargetID    int64  `json:"target_id,omitempty"`
	Detail      string `json:"detail,omitempty"`
}
