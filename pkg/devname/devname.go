// Package devname generates the candidate names probed while looking for a
// boot source: "hd<N>" for a whole device, "hd<N>p<P>" for a partition and
// "hd<N>p<P>p<S>" for a partition nested inside a partition.
package devname

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/osbuild/fsboot/pkg/pathbuf"
)

const (
	DefaultPrefix = "hd"

	partitionSep = "p"
)

// Bus is a physical storage bus root, e.g. the sdcard slot or the eMMC.
type Bus struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	ID   int    `json:"id" yaml:"id" toml:"id"`

	// StartIndex is the first partition index probed on this bus. Some
	// boards do not expose partition 0 on a bus, so the walk has to start
	// at 1 there.
	StartIndex int `json:"start_index" yaml:"start_index" toml:"start_index"`
}

// Validate rejects negative bus ids and start indices.
func (b Bus) Validate() error {
	if b.ID < 0 {
		return fmt.Errorf("bus %q: negative id %d", b.Name, b.ID)
	}
	if b.StartIndex < 0 {
		return fmt.Errorf("bus %q: negative start index %d", b.Name, b.StartIndex)
	}
	return nil
}

func (b Bus) String() string {
	if b.Name == "" {
		return fmt.Sprintf("bus %d", b.ID)
	}
	return fmt.Sprintf("%s (bus %d)", b.Name, b.ID)
}

// DefaultBuses returns the boot priority order: removable media first, then
// the embedded storage which has no partition 0.
func DefaultBuses() []Bus {
	return []Bus{
		{Name: "sdcard", ID: 2, StartIndex: 0},
		{Name: "emmc", ID: 1, StartIndex: 1},
	}
}

// Scheme formats candidate names with a common device prefix.
type Scheme struct {
	Prefix string
}

func NewScheme(prefix string) Scheme {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Scheme{Prefix: prefix}
}

func (s Scheme) prefix() string {
	if s.Prefix == "" {
		return DefaultPrefix
	}
	return s.Prefix
}

// Root writes the whole-device name of the bus into b, replacing its
// contents.
func (s Scheme) Root(b *pathbuf.Buffer, bus int) error {
	b.Reset()
	if err := b.WriteString(s.prefix()); err != nil {
		return err
	}
	return b.WriteInt(bus)
}

// Partition writes the name of partition p on the bus into b.
func (s Scheme) Partition(b *pathbuf.Buffer, bus, p int) error {
	if err := s.Root(b, bus); err != nil {
		return err
	}
	return s.Child(b, b.Len(), p)
}

// Sub writes the name of sub-partition sub inside partition p into b.
func (s Scheme) Sub(b *pathbuf.Buffer, bus, p, sub int) error {
	if err := s.Partition(b, bus, p); err != nil {
		return err
	}
	return s.Child(b, b.Len(), sub)
}

// Child rewinds b to the parent name in its first stem bytes and appends
// child index i, e.g. from "hd2p3" with stem 3 to "hd2p4".
func (s Scheme) Child(b *pathbuf.Buffer, stem, i int) error {
	b.Truncate(stem)
	return appendIndex(b, i)
}

func appendIndex(b *pathbuf.Buffer, i int) error {
	if err := b.WriteString(partitionSep); err != nil {
		return err
	}
	return b.WriteInt(i)
}

// Name is the parsed form of a candidate name. Part and Sub are -1 when
// absent.
type Name struct {
	Bus  int
	Part int
	Sub  int
}

// Depth returns 0 for a whole device, 1 for a partition and 2 for a nested
// partition.
func (n Name) Depth() int {
	switch {
	case n.Part < 0:
		return 0
	case n.Sub < 0:
		return 1
	default:
		return 2
	}
}

var ErrMalformed = errors.New("malformed device name")

// Parse splits a candidate name produced by this scheme.
func (s Scheme) Parse(name string) (Name, error) {
	rest, ok := strings.CutPrefix(name, s.prefix())
	if !ok {
		return Name{}, fmt.Errorf("%w: %q lacks prefix %q", ErrMalformed, name, s.prefix())
	}
	fields := strings.Split(rest, partitionSep)
	if len(fields) > 3 {
		return Name{}, fmt.Errorf("%w: %q is nested too deep", ErrMalformed, name)
	}

	idx := []int{-1, -1, -1}
	for i, f := range fields {
		// reject signs and empty fields, strconv would accept "+1"
		if f == "" || strings.TrimLeft(f, "0123456789") != "" {
			return Name{}, fmt.Errorf("%w: %q has a bad index %q", ErrMalformed, name, f)
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return Name{}, fmt.Errorf("%w: %q: %v", ErrMalformed, name, err)
		}
		idx[i] = v
	}
	return Name{Bus: idx[0], Part: idx[1], Sub: idx[2]}, nil
}
