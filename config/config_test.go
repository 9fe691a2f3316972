package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig([]string{filepath.Join(t.TempDir(), "missing.ini")})

	assert.False(t, cfg.Debug)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Xattrs)
	assert.Greater(t, cfg.Workers, 0)
	assert.Empty(t, cfg.StatsAddr)
	assert.Empty(t, cfg.BackingDir)
	assert.Zero(t, cfg.DrainTimeout)
}

func TestNewConfigIni(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "fusent.ini")
	data := "[Default]\n" +
		"debug = true\n" +
		"console = false\n" +
		"workers = 3\n" +
		"log_file = /var/log/fusent.log\n" +
		"stats_addr = 127.0.0.1:9090\n" +
		"backing_dir = /srv/data\n" +
		"xattrs = false\n" +
		"drain_timeout = 5s\n"
	assert.NoError(t, os.WriteFile(file, []byte(data), 0644))

	cfg := NewConfig([]string{filepath.Join(dir, "missing.ini"), file})
	assert.True(t, cfg.Debug)
	assert.False(t, cfg.Console)
	assert.False(t, cfg.Xattrs)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "/var/log/fusent.log", cfg.LogFile)
	assert.Equal(t, "127.0.0.1:9090", cfg.StatsAddr)
	assert.Equal(t, "/srv/data", cfg.BackingDir)
	assert.Equal(t, 5*time.Second, cfg.DrainTimeout)
}
