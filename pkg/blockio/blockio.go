// Package blockio defines the block device provider consumed by the boot
// source walk, together with an in-memory provider and one backed by the
// host's sysfs.
package blockio

import (
	"errors"
	"fmt"

	"github.com/osbuild/fsboot/pkg/datasizes"
)

// ErrNotFound is returned (possibly wrapped) by Provider.Open when the named
// device does not exist. It is the normal way for a probe to end.
var ErrNotFound = errors.New("block device not found")

// ErrBusy is returned when a provider that only supports one open handle is
// asked to open a second one.
var ErrBusy = errors.New("block device handle already open")

// Device is an open, exclusively owned block device handle.
type Device interface {
	Name() string
	Label() string
	// Size in bytes.
	Size() uint64
	Close() error
}

// Provider opens block devices by candidate name.
type Provider interface {
	Open(name string) (Device, error)
}

// Lister is implemented by providers that can enumerate every device they
// know about. It is only used for diagnostics.
type Lister interface {
	Devices() ([]Info, error)
}

// Info is a detached copy of a device's metadata, safe to keep after the
// handle is closed.
type Info struct {
	Name  string         `json:"name" yaml:"name"`
	Label string         `json:"label,omitempty" yaml:"label,omitempty"`
	Size  datasizes.Size `json:"size" yaml:"size"`
	UUID  string         `json:"uuid,omitempty" yaml:"uuid,omitempty"`
}

// Inspect copies the metadata of an open device.
func Inspect(dev Device) Info {
	info := Info{
		Name:  dev.Name(),
		Label: dev.Label(),
		Size:  datasizes.Size(dev.Size()),
	}
	if u, ok := dev.(interface{ UUID() string }); ok {
		info.UUID = u.UUID()
	}
	return info
}

// Probe opens name, copies its metadata and closes it again. The handle never
// escapes. A close failure is returned alongside the metadata.
func Probe(p Provider, name string) (Info, error) {
	dev, err := p.Open(name)
	if err != nil {
		return Info{}, err
	}
	info := Inspect(dev)
	if err := dev.Close(); err != nil {
		return info, fmt.Errorf("cannot close %s: %w", name, err)
	}
	return info, nil
}

// IsNotFound reports whether err means the device does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
