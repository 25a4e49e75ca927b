package protocol

const (
	// Transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World routing/state.
	ErrWorldBusy    = "E_WORLD_BUSY"
	ErrWorldStopped = "E_WORLD_STOPPED"

	// Agent layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrNoAgent      = "E_NO_AGENT"
	ErrAgentClosed  = "E_AGENT_CLOSED"
	ErrInvalidQuery = "E_INVALID_QUERY"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldBusy:       {},
	ErrWorldStopped:    {},
	ErrBadRequest:      {},
	ErrNoAgent:         {},
	ErrAgentClosed:     {},
	ErrInvalidQuery:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
