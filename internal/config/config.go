// Package config loads the kinspect configuration file.
//
// The file is YAML, decoded strictly (unknown keys are errors) on top of
// Default(), then checked against an embedded CUE schema. Command-line
// flags override individual fields after loading.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/kinspect/internal/decoder"
	"github.com/roach88/kinspect/internal/framer"
	"github.com/roach88/kinspect/internal/transport"
)

//go:embed schema.cue
var schemaSource string

// Config is the full configuration. Field names in YAML and in the CUE
// schema are the json tags.
type Config struct {
	Device            DeviceConfig   `yaml:"device" json:"device"`
	Protocol          ProtocolConfig `yaml:"protocol" json:"protocol"`
	Framer            FramerConfig   `yaml:"framer" json:"framer"`
	Store             StoreConfig    `yaml:"store" json:"store"`
	Bridge            BridgeConfig   `yaml:"bridge" json:"bridge"`
	ReconnectInterval time.Duration  `yaml:"reconnect_interval" json:"reconnect_interval"`
	MetricsListen     string         `yaml:"metrics_listen" json:"metrics_listen"`
}

// DeviceConfig describes the SSH connection to the device under test.
type DeviceConfig struct {
	Address    string `yaml:"address" json:"address"`
	User       string `yaml:"user" json:"user"`
	KeyFile    string `yaml:"key_file" json:"key_file"`
	KnownHosts string `yaml:"known_hosts" json:"known_hosts"`
	Command    string `yaml:"command" json:"command"`
}

// ProtocolConfig selects the line layout and time scale.
type ProtocolConfig struct {
	// Prefix lists the bracketed identifier roles in order.
	Prefix []string `yaml:"prefix" json:"prefix"`
	Clock  string   `yaml:"clock" json:"clock"`
	Marker string   `yaml:"marker" json:"marker"`
}

// FramerConfig bounds line length.
type FramerConfig struct {
	MaxLineBytes int `yaml:"max_line_bytes" json:"max_line_bytes"`
}

// StoreConfig locates the database. An empty path keeps it in memory.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// BridgeConfig is the HTTP bridge. An empty listen address disables it.
type BridgeConfig struct {
	Listen string `yaml:"listen" json:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Device: DeviceConfig{
			Address: transport.DefaultAddr,
			User:    transport.DefaultUser,
			Command: transport.DefaultCommand,
		},
		Protocol: ProtocolConfig{
			Prefix: []string{"time", "trial"},
			Clock:  "auto",
			Marker: decoder.DefaultMarker,
		},
		Framer:            FramerConfig{MaxLineBytes: framer.DefaultMaxBytes},
		Store:             StoreConfig{Path: "inspect.sqlite"},
		ReconnectInterval: 2 * time.Second,
	}
}

// Load reads path over Default() and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default() and validates the result. Empty input
// yields the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against the schema and the layout rules.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	v := ctx.Encode(c)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}

	if _, err := c.Layout(); err != nil {
		return &Error{Field: "protocol.prefix", Message: err.Error()}
	}
	return nil
}

// Layout returns the decoder layout described by the protocol section.
func (c Config) Layout() (decoder.Layout, error) {
	layout, err := decoder.ParseLayout(c.Protocol.Prefix)
	if err != nil {
		return decoder.Layout{}, err
	}
	layout.Marker = c.Protocol.Marker
	return layout, nil
}

// ClockMode returns the decoder time scale.
func (c Config) ClockMode() (decoder.ClockMode, error) {
	return decoder.ParseClockMode(c.Protocol.Clock)
}

// Decoder builds the decoder for this configuration.
func (c Config) Decoder() (*decoder.Decoder, error) {
	layout, err := c.Layout()
	if err != nil {
		return nil, err
	}
	clock, err := c.ClockMode()
	if err != nil {
		return nil, err
	}
	return decoder.New(layout, decoder.WithClock(clock))
}

// Error is a configuration validation error.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// formatCUEError reduces a CUE error list to its first error.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	format, args := first.Msg()
	ce := &Error{
		Field:   strings.TrimPrefix(strings.Join(first.Path(), "."), "#Config."),
		Message: fmt.Sprintf(format, args...),
	}
	if ce.Field == "" {
		ce.Field = "config"
	}
	return ce
}
