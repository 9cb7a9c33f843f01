// Package enumerate walks the partitions of a bus without consulting a
// partition table. Candidate names are generated in a fixed order and the
// first name that cannot be opened ends each level of the walk.
package enumerate

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/fsboot/pkg/blockio"
	"github.com/osbuild/fsboot/pkg/devname"
	"github.com/osbuild/fsboot/pkg/pathbuf"
)

// ErrBusAbsent is returned by Walk when the bus root itself cannot be
// opened. Callers normally move on to the next bus.
var ErrBusAbsent = errors.New("bus not present")

// Verdict tells the walker how to continue after an action ran.
type Verdict int

const (
	// Descend means the candidate was not usable; its nested partitions
	// are walked next.
	Descend Verdict = iota
	// Accept means the candidate was handled; the walk continues with the
	// next partition without descending.
	Accept
	// Stop ends the whole walk.
	Stop
)

func (v Verdict) String() string {
	switch v {
	case Descend:
		return "descend"
	case Accept:
		return "accept"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Candidate is a device that exists, described after its handle has been
// closed again.
type Candidate struct {
	blockio.Info

	Bus  devname.Bus
	Part int
	// Sub is the nested partition index, or -1 for a top level partition.
	Sub int
}

// Nested reports whether c sits inside another partition.
func (c Candidate) Nested() bool {
	return c.Sub >= 0
}

// Action is run for every candidate found.
type Action func(c Candidate) Verdict

// Stats counts the work done by a Walker across all its walks.
type Stats struct {
	Probes     int
	Candidates int
}

// Walker enumerates the candidates of a bus through a block provider.
type Walker struct {
	Blocks blockio.Provider
	Names  devname.Scheme
	Log    logrus.FieldLogger

	// OnRoot, if set, is called once the bus root has been opened and
	// before its partitions are walked.
	OnRoot func(bus devname.Bus, root blockio.Info)

	Stats Stats
}

func (w *Walker) log() logrus.FieldLogger {
	if w.Log == nil {
		return logrus.StandardLogger()
	}
	return w.Log
}

// Walk probes the root of bus, then "<root>p<P>" for P from bus.StartIndex
// until a name fails to open. When act returns Descend for a partition,
// "<root>p<P>p<S>" is walked for S from 0 in the same way. Nesting is one
// level deep only.
//
// The returned bool is true if act stopped the walk.
func (w *Walker) Walk(bus devname.Bus, act Action) (bool, error) {
	if err := bus.Validate(); err != nil {
		return false, err
	}

	var name pathbuf.Buffer
	if err := w.Names.Root(&name, bus.ID); err != nil {
		return false, err
	}
	root, ok := w.probe(name.String())
	if !ok {
		w.log().Infof("fs-boot: Can't open %s", name.String())
		return false, fmt.Errorf("%s: %w", name.String(), ErrBusAbsent)
	}
	if w.OnRoot != nil {
		w.OnRoot(bus, root)
	}

	rootLen := name.Len()
	for p := bus.StartIndex; ; p++ {
		if err := w.Names.Child(&name, rootLen, p); err != nil {
			return false, err
		}
		info, ok := w.probe(name.String())
		if !ok {
			return false, nil
		}

		switch act(w.candidate(info, bus, p, -1)) {
		case Stop:
			return true, nil
		case Accept:
			continue
		}

		stopped, err := w.walkNested(&name, bus, p, act)
		if stopped || err != nil {
			return stopped, err
		}
	}
}

func (w *Walker) walkNested(name *pathbuf.Buffer, bus devname.Bus, p int, act Action) (bool, error) {
	partLen := name.Len()
	for s := 0; ; s++ {
		if err := w.Names.Child(name, partLen, s); err != nil {
			return false, err
		}
		info, ok := w.probe(name.String())
		if !ok {
			return false, nil
		}
		if act(w.candidate(info, bus, p, s)) == Stop {
			return true, nil
		}
	}
}

func (w *Walker) candidate(info blockio.Info, bus devname.Bus, p, s int) Candidate {
	w.Stats.Candidates++
	return Candidate{Info: info, Bus: bus, Part: p, Sub: s}
}

// probe opens and immediately closes name. Any open failure ends the
// current level: a missing device is the expected terminator, anything else
// is logged first.
func (w *Walker) probe(name string) (blockio.Info, bool) {
	w.Stats.Probes++

	info, err := blockio.Probe(w.Blocks, name)
	if info.Name == "" && err == nil {
		info.Name = name
	}
	switch {
	case err == nil:
		return info, true
	case blockio.IsNotFound(err):
		w.log().Debugf("%s: not present", name)
		return blockio.Info{}, false
	case info.Name != "":
		// opened fine, only the close failed
		w.log().Warnf("%v", err)
		return info, true
	default:
		w.log().Warnf("cannot open %s: %v", name, err)
		return blockio.Info{}, false
	}
}
