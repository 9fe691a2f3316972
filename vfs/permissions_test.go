package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionsEncoding(t *testing.T) {
	p := NewPermissionsFromMode(0100644)
	assert.Equal(t, uint32(0644), p.Mode())
	assert.Equal(t, []byte("644"), p.Encode())
	assert.Equal(t, "rw-r--r--", p.String())
	assert.NotZero(t, p&PermissionsWrite)
	assert.Zero(t, p&PermissionsExecute)

	got, err := ParsePermissions([]byte("750"))
	require.NoError(t, err)
	assert.Equal(t, Permissions(0750), got)
	assert.Equal(t, []byte("007"), Permissions(7).Encode())
}

func TestParsePermissionsInvalid(t *testing.T) {
	for _, in := range []string{"", "64", "6440", "648", "a44"} {
		_, err := ParsePermissions([]byte(in))
		assert.Error(t, err, in)
	}
}
