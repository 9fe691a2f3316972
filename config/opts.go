package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
)

// Version is reported by -V/--version.
var Version = "0.1.0"

var (
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrExitRequested is matched by every error that asks the caller to
	// exit successfully without starting a session.
	ErrExitRequested = errors.New("exit requested")
	ErrHelp          = fmt.Errorf("help requested: %w", ErrExitRequested)
	ErrVersion       = fmt.Errorf("version requested: %w", ErrExitRequested)
)

// ArgumentError names the command line token that could not be accepted.
type ArgumentError struct {
	Arg    string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Arg == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid argument `%s': %s", e.Arg, e.Reason)
}

func (e *ArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// SessionConfig is produced by Parse and never changes afterwards.
type SessionConfig struct {
	foreground      bool
	singleThreaded  bool
	debug           bool
	mountPoint      string
	filesystemLabel string
	passthroughArgs []string
}

func (c *SessionConfig) Foreground() bool        { return c.foreground }
func (c *SessionConfig) SingleThreaded() bool    { return c.singleThreaded }
func (c *SessionConfig) Debug() bool             { return c.debug }
func (c *SessionConfig) MountPoint() string      { return c.mountPoint }
func (c *SessionConfig) FilesystemLabel() string { return c.filesystemLabel }

// PassthroughArgs returns a copy of the arguments forwarded to the mount
// host.
func (c *SessionConfig) PassthroughArgs() []string {
	return append([]string(nil), c.passthroughArgs...)
}

// Parser turns an argument vector into a SessionConfig. Help and version
// text go to Output.
type Parser struct {
	Output  io.Writer
	Version string
}

// Parse uses a Parser writing to stderr.
func Parse(args []string) (*SessionConfig, []string, error) {
	p := &Parser{Output: os.Stderr, Version: Version}
	return p.Parse(args)
}

type parseState struct {
	cfg      SessionConfig
	residual []string
	help     bool
	version  bool
}

// Parse processes args (args[0] is the program name) and returns the
// session configuration together with the residual arguments for the
// lower layer.
func (p *Parser) Parse(args []string) (*SessionConfig, []string, error) {
	prog := "fusent"
	if len(args) > 0 {
		prog = filepath.Base(args[0])
		args = args[1:]
	}

	fs := p.flagSet(prog)

	for _, a := range args {
		if a == "--" {
			break
		}
		if a == "-ho" {
			p.printHelpBody(fs)
			return nil, nil, ErrHelp
		}
	}

	st := &parseState{}
	err := fs.ParseAll(args, func(flag *pflag.Flag, value string) error {
		return st.handleFlag(flag, value)
	})

	// Special keys win over any error further down the line.
	if st.help {
		p.printUsage(prog)
		p.printHelpBody(fs)
		return nil, nil, ErrHelp
	}
	if st.version {
		fmt.Fprintf(p.Output, "%s version %s\n", prog, p.Version)
		return nil, nil, ErrVersion
	}
	if err != nil {
		var argErr *ArgumentError
		if errors.As(err, &argErr) {
			return nil, nil, argErr
		}
		return nil, nil, &ArgumentError{Reason: err.Error()}
	}

	for _, a := range fs.Args() {
		if err := st.handlePositional(a); err != nil {
			return nil, nil, err
		}
	}

	if st.cfg.mountPoint == "" {
		return nil, nil, &ArgumentError{Reason: "no mount point specified"}
	}

	if st.cfg.filesystemLabel == "" {
		st.cfg.filesystemLabel = prog
		st.residual = append(st.residual, "-o", "fsname="+prog)
	}

	cfg := st.cfg
	cfg.passthroughArgs = append([]string(nil), st.residual...)
	return &cfg, cfg.PassthroughArgs(), nil
}

func (p *Parser) flagSet(prog string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(prog, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false
	fs.SetInterspersed(true)

	fs.BoolP("debug", "d", false, "enable debug output (implies -f)")
	fs.BoolP("foreground", "f", false, "foreground operation")
	fs.BoolP("single", "s", false, "disable multi-threaded operation")
	fs.StringArrayP("options", "o", nil, "mount options, comma separated (fsname=NAME, debug, ...)")
	fs.BoolP("help", "h", false, "print help")
	fs.BoolP("version", "V", false, "print version")
	return fs
}

func (st *parseState) handleFlag(flag *pflag.Flag, value string) error {
	switch flag.Name {
	case "debug":
		st.cfg.debug = true
		st.cfg.foreground = true
		st.residual = append(st.residual, "-d")
	case "foreground":
		st.cfg.foreground = true
	case "single":
		st.cfg.singleThreaded = true
	case "help":
		st.help = true
	case "version":
		st.version = true
	case "options":
		if value == "" {
			return &ArgumentError{Arg: "-o", Reason: "missing option list"}
		}
		for _, opt := range strings.Split(value, ",") {
			st.handleOption(opt)
		}
		st.residual = append(st.residual, "-o", value)
	}
	return nil
}

func (st *parseState) handleOption(opt string) {
	switch {
	case opt == "debug":
		st.cfg.debug = true
		st.cfg.foreground = true
	case strings.HasPrefix(opt, "fsname="):
		st.cfg.filesystemLabel = strings.TrimPrefix(opt, "fsname=")
	}
}

func (st *parseState) handlePositional(arg string) error {
	if strings.HasPrefix(arg, "fsname=") {
		st.handleOption(arg)
		st.residual = append(st.residual, "-o", arg)
		return nil
	}
	if st.cfg.mountPoint != "" {
		return &ArgumentError{Arg: arg, Reason: "mount point already specified"}
	}
	st.cfg.mountPoint = arg
	return nil
}

func (p *Parser) printUsage(prog string) {
	fmt.Fprintf(p.Output, "usage: %s mountpoint [options]\n\n", prog)
}

func (p *Parser) printHelpBody(fs *pflag.FlagSet) {
	fmt.Fprintf(p.Output, "general options:\n%s\n", fs.FlagUsages())
	fmt.Fprint(p.Output, "mount options:\n"+
		"    -o fsname=NAME         set filesystem name\n"+
		"    -o debug               same as -d\n"+
		"    fsname=NAME            same as -o fsname=NAME\n")
}
