package blockio

import (
	"fmt"
	"sort"

	"golang.org/x/exp/maps"
)

// Memory is a ramdisk style provider: a fixed registry of named devices. It
// enforces the single open handle discipline and keeps call counters so
// callers can check how a walk used it.
type Memory struct {
	devices  map[string]Info
	failures map[string]error

	// name of the device currently open, if any
	open string

	Stats Stats
}

// Stats counts the calls made against a Memory provider.
type Stats struct {
	OpenAttempts int
	Opens        int
	Closes       int
	// Attempted records every name passed to Open, in order.
	Attempted []string
}

var _ Provider = &Memory{}
var _ Lister = &Memory{}

func NewMemory() *Memory {
	return &Memory{
		devices:  make(map[string]Info),
		failures: make(map[string]error),
	}
}

// Add registers a device. Adding the same name twice is an error.
func (m *Memory) Add(info Info) error {
	if info.Name == "" {
		return fmt.Errorf("cannot add a device without a name")
	}
	if _, ok := m.devices[info.Name]; ok {
		return fmt.Errorf("device %q already exists", info.Name)
	}
	m.devices[info.Name] = info
	return nil
}

// FailOpen makes opening name fail with err, even if the device exists.
func (m *Memory) FailOpen(name string, err error) {
	m.failures[name] = err
}

func (m *Memory) Open(name string) (Device, error) {
	m.Stats.OpenAttempts++
	m.Stats.Attempted = append(m.Stats.Attempted, name)

	if m.open != "" {
		return nil, fmt.Errorf("cannot open %s while %s is open: %w", name, m.open, ErrBusy)
	}
	if err, ok := m.failures[name]; ok {
		return nil, err
	}
	info, ok := m.devices[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	m.Stats.Opens++
	m.open = name
	return &memDevice{owner: m, info: info}, nil
}

// Devices returns all registered devices sorted by name.
func (m *Memory) Devices() ([]Info, error) {
	names := maps.Keys(m.devices)
	sort.Strings(names)

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		infos = append(infos, m.devices[name])
	}
	return infos, nil
}

// IsOpen reports whether a handle is currently held.
func (m *Memory) IsOpen() bool {
	return m.open != ""
}

type memDevice struct {
	owner  *Memory
	info   Info
	closed bool
}

func (d *memDevice) Name() string  { return d.info.Name }
func (d *memDevice) Label() string { return d.info.Label }
func (d *memDevice) Size() uint64  { return d.info.Size.Uint64() }
func (d *memDevice) UUID() string  { return d.info.UUID }

func (d *memDevice) Close() error {
	if d.closed {
		return fmt.Errorf("device %s already closed", d.info.Name)
	}
	d.closed = true
	d.owner.open = ""
	d.owner.Stats.Closes++
	return nil
}
