package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateAssignsID(t *testing.T) {
	var m BaseModel
	require.NoError(t, m.BeforeCreate(nil))
	require.Len(t, m.ID, 36)

	existing := BaseModel{ID: "fixed"}
	require.NoError(t, existing.BeforeCreate(nil))
	require.Equal(t, "fixed", existing.ID)
}

func TestIsValidTransport(t *testing.T) {
	for _, transport := range Transports {
		require.True(t, IsValidTransport(transport))
	}
	require.False(t, IsValidTransport("sms"))
	require.False(t, IsValidTransport(""))
}
