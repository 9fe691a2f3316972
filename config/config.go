package config

import (
	"runtime"
	"time"

	"github.com/go-ini/ini"
)

const DEFAULT_WORKERS = 32

type AppConfig struct {
	Debug      bool
	Console    bool
	LogFile    string
	Workers    int
	StatsAddr  string
	BackingDir string
	Xattrs     bool

	// DrainTimeout bounds the wait for in-flight requests at shutdown;
	// zero waits for them to finish.
	DrainTimeout time.Duration
}

// NewConfig returns the defaults overlaid with the [Default] section of the
// first ini file that loads. Missing or unreadable files are not an error.
func NewConfig(iniFile []string) AppConfig {
	cfg := AppConfig{
		Debug:   false,
		Console: true,
		LogFile: "fusent.log",
		Workers: min(DEFAULT_WORKERS, 4*runtime.NumCPU()),
		Xattrs:  true,
	}

	var f *ini.File
	var err error
	for _, file := range iniFile {
		if f, err = ini.Load(file); err == nil {
			break
		}
	}
	if f == nil || err != nil {
		return cfg
	}

	s, err := f.GetSection("Default")
	if err != nil {
		return cfg
	}
	if v := s.Key("debug"); v != nil {
		if b, err := v.Bool(); err == nil {
			cfg.Debug = b
		}
	}
	if v := s.Key("console"); v != nil {
		if b, err := v.Bool(); err == nil {
			cfg.Console = b
		}
	}
	if v := s.Key("xattrs"); v != nil {
		if b, err := v.Bool(); err == nil {
			cfg.Xattrs = b
		}
	}
	if v := s.Key("workers"); v != nil {
		if n, err := v.Int(); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := s.Key("drain_timeout"); v != nil {
		if d, err := v.Duration(); err == nil && d >= 0 {
			cfg.DrainTimeout = d
		}
	}
	if s.HasKey("log_file") {
		cfg.LogFile = s.Key("log_file").String()
	}
	cfg.StatsAddr = s.Key("stats_addr").String()
	cfg.BackingDir = s.Key("backing_dir").String()

	return cfg
}
