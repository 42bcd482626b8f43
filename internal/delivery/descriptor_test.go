package delivery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeToken(t *testing.T) {
	token, err := DecodeToken([]byte(`" fcm-token "`))
	require.NoError(t, err)
	require.Equal(t, "fcm-token", token)

	_, err = DecodeToken([]byte(`""`))
	require.ErrorIs(t, err, ErrEmptyToken)

	_, err = DecodeToken([]byte(`{"token":"x"}`))
	require.Error(t, err)
}
