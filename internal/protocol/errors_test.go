package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrWorldBusy,
		ErrWorldStopped,
		ErrBadRequest,
		ErrNoAgent,
		ErrAgentClosed,
		ErrInvalidQuery,
		ErrInternal,
	}
	for _, c := range cases {
		require.Truef(t, IsKnownCode(c), "expected known code: %q", c)
	}
	require.False(t, IsKnownCode("E_NOT_DEFINED"))
}
