package utils

import (
	"errors"
	"flag"
	"io"
	"os"

	"github.com/0xRadioAc7iv/caskdb/core"
	"github.com/0xRadioAc7iv/caskdb/internal/config"
)

// Flags are the command line overrides for the config file. Zero values mean
// the flag was not given.
type Flags struct {
	ConfigPath      string
	Dir             string
	Keydir          string
	DatafileSizeMB  int
	datafileSizeSet bool
}

// HandleCLIInputs parses os.Args, exiting on -h or bad flags like the flag
// package does.
func HandleCLIInputs() *Flags {
	f, err := ParseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	return f
}

// ParseFlags parses args into Flags, writing usage to output on error.
func ParseFlags(args []string, output io.Writer) (*Flags, error) {
	fs := flag.NewFlagSet("caskdb", flag.ContinueOnError)
	fs.SetOutput(output)

	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", "", "Path to a YAML config file")
	fs.StringVar(&f.Dir, "dir", "", "Directory Path to be used for this instance")
	fs.StringVar(&f.Keydir, "keydir", "", "Keydir implementation (map, btree, art, sharded)")
	fs.IntVar(&f.DatafileSizeMB, "dfsize", core.DefaultMaxDatafileSizeMB, "Max Datafile Size (in MB), 0 disables rotation")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "dfsize" {
			f.datafileSizeSet = true
		}
	})
	return f, nil
}

// Load reads the config file named by -config, or the defaults when there is
// none, and applies the other flags on top.
func (f *Flags) Load() (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigPath != "" {
		loaded, err := config.LoadConfig(f.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	f.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply overwrites cfg with every flag that was given.
func (f *Flags) Apply(cfg *config.Config) {
	if f.Dir != "" {
		cfg.Storage.DataDir = f.Dir
	}
	if f.Keydir != "" {
		cfg.Storage.Keydir = f.Keydir
	}
	if f.datafileSizeSet {
		cfg.Storage.MaxDatafileSize = int64(f.DatafileSizeMB) * core.OneMegabyte
	}
}
