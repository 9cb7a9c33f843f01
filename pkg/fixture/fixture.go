// Package fixture describes a board's block devices and the filesystems on
// them in a file, and builds the in-memory providers from it. It lets the
// boot search run against a known layout without touching host devices.
package fixture

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/osbuild/fsboot/internal/config"
	"github.com/osbuild/fsboot/pkg/blockio"
	"github.com/osbuild/fsboot/pkg/bootfs"
	"github.com/osbuild/fsboot/pkg/datasizes"
)

// namespace for the partition UUIDs generated when a fixture omits them.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/osbuild/fsboot/fixture"))

type Fixture struct {
	Devices []Device `json:"devices" yaml:"devices" toml:"devices"`
}

type Device struct {
	Name  string         `json:"name" yaml:"name" toml:"name"`
	Label string         `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty"`
	Size  datasizes.Size `json:"size,omitempty" yaml:"size,omitempty" toml:"size,omitempty"`
	UUID  string         `json:"uuid,omitempty" yaml:"uuid,omitempty" toml:"uuid,omitempty"`

	// OpenError makes opening the device fail with this message.
	OpenError string `json:"open_error,omitempty" yaml:"open_error,omitempty" toml:"open_error,omitempty"`

	Filesystem *Filesystem `json:"filesystem,omitempty" yaml:"filesystem,omitempty" toml:"filesystem,omitempty"`
}

type Filesystem struct {
	Type  string `json:"type" yaml:"type" toml:"type"`
	Files []File `json:"files,omitempty" yaml:"files,omitempty" toml:"files,omitempty"`

	MountError string `json:"mount_error,omitempty" yaml:"mount_error,omitempty" toml:"mount_error,omitempty"`
	DirError   string `json:"dir_error,omitempty" yaml:"dir_error,omitempty" toml:"dir_error,omitempty"`
	LoadError  string `json:"load_error,omitempty" yaml:"load_error,omitempty" toml:"load_error,omitempty"`
}

// File is either literal Content or Size zero bytes.
type File struct {
	Path    string         `json:"path" yaml:"path" toml:"path"`
	Content string         `json:"content,omitempty" yaml:"content,omitempty" toml:"content,omitempty"`
	Size    datasizes.Size `json:"size,omitempty" yaml:"size,omitempty" toml:"size,omitempty"`
}

func (f File) data() []byte {
	if f.Content != "" {
		return []byte(f.Content)
	}
	return make([]byte, f.Size)
}

// Load reads the fixture file at path. The format follows the extension.
func Load(path string) (*Fixture, error) {
	var fx Fixture
	if err := config.DecodeFile(path, &fx); err != nil {
		return nil, err
	}
	if err := fx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture %q: %w", path, err)
	}
	return &fx, nil
}

// Parse decodes a fixture from data.
func Parse(data []byte, format config.Format) (*Fixture, error) {
	var fx Fixture
	if err := config.Decode(data, format, &fx); err != nil {
		return nil, err
	}
	if err := fx.Validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

func (fx *Fixture) Validate() error {
	seen := map[string]bool{}
	for _, dev := range fx.Devices {
		if dev.Name == "" {
			return fmt.Errorf("device without a name")
		}
		if seen[dev.Name] {
			return fmt.Errorf("device %q listed twice", dev.Name)
		}
		seen[dev.Name] = true

		if dev.UUID != "" {
			if _, err := uuid.Parse(dev.UUID); err != nil {
				return fmt.Errorf("device %q: invalid uuid %q: %w", dev.Name, dev.UUID, err)
			}
		}
		if dev.Filesystem == nil {
			continue
		}
		if dev.Filesystem.Type == "" {
			return fmt.Errorf("device %q: filesystem without a type", dev.Name)
		}
		for _, f := range dev.Filesystem.Files {
			if f.Path == "" {
				return fmt.Errorf("device %q: file without a path", dev.Name)
			}
			if f.Content != "" && f.Size != 0 {
				return fmt.Errorf("device %q: file %q has both content and size", dev.Name, f.Path)
			}
		}
	}
	return nil
}

// PartUUID returns the device UUID, derived from its name when not set.
func (d Device) PartUUID() string {
	if d.UUID != "" {
		return d.UUID
	}
	return uuid.NewSHA1(namespace, []byte(d.Name)).String()
}

// Build creates the block and filesystem providers for the fixture.
func (fx *Fixture) Build() (*blockio.Memory, *bootfs.Memory, error) {
	blocks := blockio.NewMemory()
	fs := bootfs.NewMemory()

	for _, dev := range fx.Devices {
		err := blocks.Add(blockio.Info{
			Name:  dev.Name,
			Label: dev.Label,
			Size:  dev.Size,
			UUID:  dev.PartUUID(),
		})
		if err != nil {
			return nil, nil, err
		}
		if dev.OpenError != "" {
			blocks.FailOpen(dev.Name, errors.New(dev.OpenError))
		}
		if dev.Filesystem != nil {
			if err := buildFilesystem(fs, dev.Name, dev.Filesystem); err != nil {
				return nil, nil, fmt.Errorf("device %q: %w", dev.Name, err)
			}
		}
	}
	return blocks, fs, nil
}

func buildFilesystem(fs *bootfs.Memory, device string, desc *Filesystem) error {
	if _, err := fs.AddVolume(device, desc.Type); err != nil {
		return err
	}
	for _, f := range desc.Files {
		if err := fs.WriteFile(device, f.Path, f.data()); err != nil {
			return err
		}
	}

	if desc.MountError != "" {
		if err := fs.FailMount(device, errors.New(desc.MountError)); err != nil {
			return err
		}
	}
	if desc.DirError != "" {
		if err := fs.FailOpenDir(device, errors.New(desc.DirError)); err != nil {
			return err
		}
	}
	if desc.LoadError != "" {
		if err := fs.FailLoad(device, errors.New(desc.LoadError)); err != nil {
			return err
		}
	}
	return nil
}
