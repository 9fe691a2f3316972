package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*SessionConfig, []string, string, error) {
	t.Helper()
	var out bytes.Buffer
	p := &Parser{Output: &out, Version: "1.2.3"}
	cfg, residual, err := p.Parse(append([]string{"/usr/local/bin/memfs"}, args...))
	return cfg, residual, out.String(), err
}

func TestParseDefaults(t *testing.T) {
	cfg, residual, _, err := parse(t, "/mnt/x")
	require.NoError(t, err)

	assert.Equal(t, "/mnt/x", cfg.MountPoint())
	assert.False(t, cfg.Foreground())
	assert.False(t, cfg.SingleThreaded())
	assert.False(t, cfg.Debug())
	assert.Equal(t, "memfs", cfg.FilesystemLabel())
	assert.Equal(t, []string{"-o", "fsname=memfs"}, residual)
	assert.Equal(t, residual, cfg.PassthroughArgs())
}

func TestParseFlags(t *testing.T) {
	cfg, residual, _, err := parse(t, "-f", "-s", "/mnt/x")
	require.NoError(t, err)

	assert.True(t, cfg.Foreground())
	assert.True(t, cfg.SingleThreaded())
	assert.False(t, cfg.Debug())
	assert.Equal(t, []string{"-o", "fsname=memfs"}, residual)
}

func TestParseDebugIsForwarded(t *testing.T) {
	cfg, residual, _, err := parse(t, "/mnt/x", "-d")
	require.NoError(t, err)
	assert.True(t, cfg.Debug())
	assert.True(t, cfg.Foreground())
	assert.Equal(t, []string{"-d", "-o", "fsname=memfs"}, residual)

	cfg, residual, _, err = parse(t, "-o", "debug,allow_other", "/mnt/x")
	require.NoError(t, err)
	assert.True(t, cfg.Debug())
	assert.True(t, cfg.Foreground())
	assert.Equal(t, []string{"-o", "debug,allow_other", "-o", "fsname=memfs"}, residual)
}

func TestParseFsname(t *testing.T) {
	cfg, residual, _, err := parse(t, "-o", "fsname=vol1", "/mnt/x")
	require.NoError(t, err)
	assert.Equal(t, "vol1", cfg.FilesystemLabel())
	assert.Equal(t, []string{"-o", "fsname=vol1"}, residual)

	cfg, residual, _, err = parse(t, "/mnt/x", "fsname=vol2")
	require.NoError(t, err)
	assert.Equal(t, "vol2", cfg.FilesystemLabel())
	assert.Equal(t, "/mnt/x", cfg.MountPoint())
	assert.Equal(t, []string{"-o", "fsname=vol2"}, residual)
}

func TestParseSecondMountPoint(t *testing.T) {
	_, _, _, err := parse(t, "/mnt/x", "/mnt/y")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	var argErr *ArgumentError
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, "/mnt/y", argErr.Arg)
	assert.Contains(t, err.Error(), "/mnt/y")
}

func TestParseUnknownFlag(t *testing.T) {
	_, _, _, err := parse(t, "-x", "/mnt/x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, _, _, err = parse(t, "--bogus", "/mnt/x")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestParseMissingMountPoint(t *testing.T) {
	_, _, _, err := parse(t, "-f")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestParseHelp(t *testing.T) {
	for _, arg := range []string{"-h", "--help"} {
		cfg, residual, out, err := parse(t, "/mnt/x", arg)
		assert.Nil(t, cfg)
		assert.Nil(t, residual)
		assert.True(t, errors.Is(err, ErrExitRequested))
		assert.True(t, errors.Is(err, ErrHelp))
		assert.Contains(t, out, "usage: memfs mountpoint")
		assert.Contains(t, out, "general options:")
	}
}

func TestParseHelpOnly(t *testing.T) {
	cfg, _, out, err := parse(t, "-ho")
	assert.Nil(t, cfg)
	assert.True(t, errors.Is(err, ErrHelp))
	assert.NotContains(t, out, "usage:")
	assert.Contains(t, out, "general options:")
}

func TestParseVersion(t *testing.T) {
	for _, arg := range []string{"-V", "--version"} {
		cfg, _, out, err := parse(t, arg)
		assert.Nil(t, cfg)
		assert.True(t, errors.Is(err, ErrVersion))
		assert.True(t, errors.Is(err, ErrExitRequested))
		assert.Equal(t, "memfs version 1.2.3\n", out)
	}
}

func TestSessionConfigIsImmutable(t *testing.T) {
	cfg, residual, _, err := parse(t, "/mnt/x")
	require.NoError(t, err)

	residual[0] = "changed"
	args := cfg.PassthroughArgs()
	args[1] = "changed"
	assert.Equal(t, []string{"-o", "fsname=memfs"}, cfg.PassthroughArgs())
}
