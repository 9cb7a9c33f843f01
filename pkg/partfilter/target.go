// Package partfilter selects block devices and partitions with glob terms
// and formats lists of them.
package partfilter

import (
	"github.com/osbuild/fsboot/pkg/blockio"
	"github.com/osbuild/fsboot/pkg/devname"
	"github.com/osbuild/fsboot/pkg/enumerate"
)

// Kind tells whole devices from partitions.
type Kind string

const (
	KindDisk      Kind = "disk"
	KindPartition Kind = "partition"
	KindNested    Kind = "nested"
)

// Target is what a filter looks at.
type Target struct {
	blockio.Info

	// Bus is the bus name, empty if unknown.
	Bus  string
	Kind Kind
}

func FromCandidate(c enumerate.Candidate) Target {
	kind := KindPartition
	if c.Nested() {
		kind = KindNested
	}
	return Target{Info: c.Info, Bus: c.Bus.Name, Kind: kind}
}

// Describe derives the target of a device known only by its info. Names
// outside the scheme are reported as disks on no bus.
func Describe(info blockio.Info, scheme devname.Scheme, buses []devname.Bus) Target {
	t := Target{Info: info, Kind: KindDisk}
	n, err := scheme.Parse(info.Name)
	if err != nil {
		return t
	}
	for _, bus := range buses {
		if bus.ID == n.Bus {
			t.Bus = bus.Name
		}
	}
	switch n.Depth() {
	case 1:
		t.Kind = KindPartition
	case 2:
		t.Kind = KindNested
	}
	return t
}
