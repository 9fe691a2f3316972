//go:build unix

package session

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDaemonChildContinues(t *testing.T) {
	t.Setenv(DaemonEnv, "1")
	exited := false
	exit = func(int) { exited = true }
	defer func() { exit = os.Exit }()

	assert.NoError(t, EnterForegroundOrBackground(false))
	assert.False(t, exited)
	assert.Empty(t, os.Getenv(DaemonEnv))
}
