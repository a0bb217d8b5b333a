// Package config loads spfs's process configuration: a versioned YAML
// document, optionally overridden by SPFS_-prefixed environment
// variables, following the parsing scheme in the teacher registry's own
// configuration package (github.com/distribution/distribution). A single
// process-wide Configuration is published once at startup via
// MakeCurrent and read thereafter via Current.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Loglevel is the level at which operations are logged: error, warn,
// info, debug, or trace.
type Loglevel string

// UnmarshalYAML lowercases and validates a Loglevel.
func (l *Loglevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	s = strings.ToLower(s)
	switch s {
	case "error", "warn", "info", "debug", "trace":
	default:
		return fmt.Errorf("invalid loglevel %q, must be one of [error, warn, info, debug, trace]", s)
	}
	*l = Loglevel(s)
	return nil
}

// Level converts l into the equivalent logrus.Level, defaulting to Info
// for the zero value.
func (l Loglevel) Level() logrus.Level {
	level, err := logrus.ParseLevel(string(l))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// Log configures the process-wide logger.
type Log struct {
	// Level is the granularity at which spfs operations are logged.
	Level Loglevel `yaml:"level,omitempty"`

	// Formatter selects the logrus formatter: "text" or "json".
	Formatter string `yaml:"formatter,omitempty"`

	// Fields are static key/value pairs attached to every log line.
	Fields map[string]interface{} `yaml:"fields,omitempty"`

	// ReportCaller turns on logrus's caller reporting.
	ReportCaller bool `yaml:"reportcaller,omitempty"`
}

// RemoteConfig names one additional repository this process can resolve
// identifiers against or sync between. Address follows the repository
// address URL grammar: file://path, http(s)://host, http2://host (with
// optional ?lazy=true&when=<duration-ago> triggering the Pinned
// timestamp-windowed wrapper), or tar://path.
type RemoteConfig struct {
	Address string `yaml:"address"`
}

// Storage configures the default (local) repository's object and tag
// store.
type Storage struct {
	// Root is the filesystem path an "fs" repository reads and writes
	// objects, payloads and tags under.
	Root string `yaml:"root"`

	// Remotes names additional repositories, keyed by the name used on
	// the command line and in sync/import operations.
	Remotes map[string]RemoteConfig `yaml:"remotes,omitempty"`
}

// Check configures the integrity checker's default behavior.
type Check struct {
	// Concurrency bounds how many objects are checked in parallel. Zero
	// means use check.DefaultConcurrency.
	Concurrency int `yaml:"concurrency,omitempty"`
}

// Configuration is spfs's versioned process configuration, provided by a
// YAML file and optionally overridden by SPFS_-prefixed environment
// variables. YAML field names never include "_" since that is the
// environment variable separator.
type Configuration struct {
	// Version is the version which defines the format of the rest of
	// the configuration.
	Version Version `yaml:"version"`

	// Log configures the process-wide logger.
	Log Log `yaml:"log"`

	// Storage configures the default repository and its remotes.
	Storage Storage `yaml:"storage"`

	// Check configures the default concurrency for integrity checks.
	Check Check `yaml:"check,omitempty"`
}

// v0_1Configuration is the Version 0.1 Configuration struct, currently
// aliased to Configuration since it is the only version.
type v0_1Configuration Configuration

// CurrentVersion is the most recent Version this process can parse.
var CurrentVersion = MajorMinorVersion(0, 1)

// Parse parses an input configuration YAML document into a Configuration
// and applies ApplyEnv's environment overrides.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	p := NewParser("spfs", []VersionedParseInfo{
		{
			Version: CurrentVersion,
			ParseAs: reflect.TypeOf(v0_1Configuration{}),
			ConversionFunc: func(c interface{}) (interface{}, error) {
				v01, ok := c.(*v0_1Configuration)
				if !ok {
					return nil, fmt.Errorf("expected *v0_1Configuration, got %#v", c)
				}
				if v01.Log.Level == Loglevel("") {
					v01.Log.Level = Loglevel("info")
				}
				if v01.Storage.Root == "" {
					return nil, errors.New("no storage root configured")
				}
				return (*Configuration)(v01), nil
			},
		},
	})

	config := new(Configuration)
	if err := p.Parse(in, config); err != nil {
		return nil, err
	}
	ApplyEnv(config)
	return config, nil
}

// ApplyEnv overrides cfg.Storage.Root from the environment, implementing
// the precedence rule the generic reflective Parser can't express on its
// own: SPFS_STORAGE_ROOT (single underscore) wins when both it and
// SPFS_STORAGE__ROOT (double underscore, the field's "nested" form under
// the PREFIX_Storage_Root convention) are set.
func ApplyEnv(cfg *Configuration) {
	if v, ok := os.LookupEnv("SPFS_STORAGE__ROOT"); ok {
		cfg.Storage.Root = v
	}
	if v, ok := os.LookupEnv("SPFS_STORAGE_ROOT"); ok {
		cfg.Storage.Root = v
	}
}

// ConfigurationPathEnv is checked by Load when no explicit path is given.
const ConfigurationPathEnv = "SPFS_CONFIGURATION_PATH"

// Load opens and parses the configuration file at path, or, if path is
// empty, at the location named by ConfigurationPathEnv.
func Load(path string) (*Configuration, error) {
	if path == "" {
		path = os.Getenv(ConfigurationPathEnv)
	}
	if path == "" {
		return nil, errors.New("configuration path unspecified")
	}

	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	cfg, err := Parse(fp)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	return cfg, nil
}

var current atomic.Pointer[Configuration]

// MakeCurrent publishes cfg as the process-wide current configuration.
// Like rtlog's logger and solve.BuildOptionKeyOrder, this is a
// write-once-at-boot-plus-copy-on-write singleton: callers never mutate
// the returned *Configuration in place, they build a new one and call
// MakeCurrent again.
func MakeCurrent(cfg *Configuration) {
	current.Store(cfg)
}

// ErrNoConfiguration is returned by Current when MakeCurrent has never
// been called.
var ErrNoConfiguration = errors.New("no configuration has been loaded")

// Current returns the process-wide configuration published by the most
// recent MakeCurrent call.
func Current() (*Configuration, error) {
	cfg := current.Load()
	if cfg == nil {
		return nil, ErrNoConfiguration
	}
	return cfg, nil
}
