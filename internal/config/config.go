// Package config holds the boot search settings: naming scheme, bus
// priority, mount parameters and, for the host backend, where each bus
// lives.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/osbuild/fsboot/pkg/datasizes"
	"github.com/osbuild/fsboot/pkg/devname"
	"github.com/osbuild/fsboot/pkg/locator"
)

// EnvKey names the environment variable consulted when no config file is
// given on the command line.
const EnvKey = "FSBOOT_CONFIG"

// DefaultCapacity is the boot image buffer size when none is configured.
const DefaultCapacity = 64 * datasizes.MiB

type Config struct {
	DevicePrefix   string        `json:"device_prefix,omitempty" yaml:"device_prefix,omitempty" toml:"device_prefix,omitempty"`
	MountPoint     string        `json:"mount_point,omitempty" yaml:"mount_point,omitempty" toml:"mount_point,omitempty"`
	FSType         string        `json:"fs_type,omitempty" yaml:"fs_type,omitempty" toml:"fs_type,omitempty"`
	ImagePrefix    string        `json:"image_prefix,omitempty" yaml:"image_prefix,omitempty" toml:"image_prefix,omitempty"`
	ImagePrefixLen int           `json:"image_prefix_len,omitempty" yaml:"image_prefix_len,omitempty" toml:"image_prefix_len,omitempty"`
	Buses          []devname.Bus `json:"buses,omitempty" yaml:"buses,omitempty" toml:"buses,omitempty"`

	Capacity datasizes.Size `json:"capacity,omitempty" yaml:"capacity,omitempty" toml:"capacity,omitempty"`

	// Devices maps bus roots to host device nodes, e.g. "hd2": "/dev/mmcblk1".
	Devices map[string]string `json:"devices,omitempty" yaml:"devices,omitempty" toml:"devices,omitempty"`
	// Fixture points to an in-memory device description to use instead of
	// the host. Relative paths are relative to the config file.
	Fixture string `json:"fixture,omitempty" yaml:"fixture,omitempty" toml:"fixture,omitempty"`
}

// Default returns the stock firmware settings.
func Default() *Config {
	return &Config{
		DevicePrefix:   devname.DefaultPrefix,
		MountPoint:     locator.DefaultMountPoint,
		FSType:         locator.DefaultFSType,
		ImagePrefix:    locator.DefaultImagePrefix,
		ImagePrefixLen: locator.DefaultPrefixLen,
		Buses:          devname.DefaultBuses(),
		Capacity:       DefaultCapacity,
	}
}

// New loads the config file at path on top of the defaults.
func New(path string) (*Config, error) {
	conf := Default()
	// decoders may reuse slice elements, a file's buses must not inherit
	// fields from the default ones
	conf.Buses = nil
	if err := DecodeFile(path, conf); err != nil {
		return nil, err
	}
	if conf.Buses == nil {
		conf.Buses = devname.DefaultBuses()
	}
	if conf.Fixture != "" && !filepath.IsAbs(conf.Fixture) {
		conf.Fixture = filepath.Join(filepath.Dir(path), conf.Fixture)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return conf, nil
}

// Load reads the config from path, from $FSBOOT_CONFIG if path is empty,
// and falls back to the defaults when neither is set.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvKey)
	}
	if path == "" {
		return Default(), nil
	}
	return New(path)
}

func (c *Config) Validate() error {
	if c.DevicePrefix == "" {
		return fmt.Errorf("device_prefix cannot be empty")
	}
	if c.MountPoint == "" || c.MountPoint[0] != '/' {
		return fmt.Errorf("mount_point must be an absolute path, got %q", c.MountPoint)
	}
	if c.FSType == "" {
		return fmt.Errorf("fs_type cannot be empty")
	}
	if c.ImagePrefix == "" {
		return fmt.Errorf("image_prefix cannot be empty")
	}
	if c.ImagePrefixLen <= 0 {
		return fmt.Errorf("image_prefix_len must be positive, got %d", c.ImagePrefixLen)
	}
	if len(c.Buses) == 0 {
		return fmt.Errorf("at least one bus is required")
	}
	seen := map[int]bool{}
	for _, bus := range c.Buses {
		if err := bus.Validate(); err != nil {
			return err
		}
		if seen[bus.ID] {
			return fmt.Errorf("bus %d listed twice", bus.ID)
		}
		seen[bus.ID] = true
	}
	if c.Capacity == 0 {
		return fmt.Errorf("capacity cannot be zero")
	}
	return nil
}

// Scheme returns the candidate naming scheme.
func (c *Config) Scheme() devname.Scheme {
	return devname.NewScheme(c.DevicePrefix)
}

// Resolver returns the host device resolver built from Devices.
func (c *Config) Resolver() devname.Resolver {
	return devname.Resolver{Scheme: c.Scheme(), Devices: c.Devices}
}

// Apply copies the mount and image settings onto l.
func (c *Config) Apply(l *locator.Locator) {
	l.MountPoint = c.MountPoint
	l.FSType = c.FSType
	l.ImagePrefix = c.ImagePrefix
	l.PrefixLen = c.ImagePrefixLen
}
