package protocol

type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type AgentStatus struct {
	ContainerID int64       `json:"container_id"`
	Group       string      `json:"group"`
	Name        string      `json:"name,omitempty"`
	State       string      `json:"state"`
	Collect     bool        `json:"collect"`
	Forward     bool        `json:"forward"`
	TargetID    *int64      `json:"target_id"`
	Capacity    int         `json:"capacity"`
	Inventory   []ItemStack `json:"inventory"`
}

type SetTargetReq struct {
	TargetID *int64 `json:"target_id"`
}

type LocatedContainer struct {
	ID        int64      `json:"id"`
	Group     string     `json:"group"`
	Name      string     `json:"name,omitempty"`
	Pos       [3]float64 `json:"pos"`
	Distance  float64    `json:"distance"`
	Golden    bool       `json:"golden"`
	Direction string     `json:"direction"`
}

type LocatorResponse struct {
	Tick       uint64             `json:"tick"`
	Count      int                `json:"count"`
	Containers []LocatedContainer `json:"containers"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
