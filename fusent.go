package main

import (
	"context"
	"errors"
	"os"

	"github.com/macos-fuse-t/fusent/config"
	"github.com/macos-fuse-t/fusent/example"
	"github.com/macos-fuse-t/fusent/vfs"
	"github.com/macos-fuse-t/fusent/vfs/memfs"
	log "github.com/sirupsen/logrus"
)

func main() {
	sc, _, err := config.Parse(os.Args)
	if errors.Is(err, config.ErrExitRequested) {
		os.Exit(0)
	}
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}

	homeDir, _ := os.UserHomeDir()
	cfg := config.NewConfig([]string{
		"fusent.ini",
		homeDir + "/.fuse-t/fusent.ini",
	})

	var fs vfs.VFSFileSystem
	if cfg.BackingDir != "" {
		fs = NewPassthroughFS(cfg.BackingDir)
	} else {
		log.Infof("no backing_dir configured, serving an in-memory filesystem")
		fs = memfs.New()
	}

	if err := example.Run(context.Background(), sc, cfg, fs); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
