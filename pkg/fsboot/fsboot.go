// Package fsboot finds and loads a boot image from the first usable
// partition across a priority ordered list of storage buses.
package fsboot

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/fsboot/pkg/blockio"
	"github.com/osbuild/fsboot/pkg/bootfs"
	"github.com/osbuild/fsboot/pkg/devname"
	"github.com/osbuild/fsboot/pkg/enumerate"
	"github.com/osbuild/fsboot/pkg/locator"
	"github.com/osbuild/fsboot/pkg/partfilter"
)

// ErrNoBootImage is returned by BootFirst when every candidate on every bus
// was tried without loading an image.
var ErrNoBootImage = errors.New("no boot image found")

// Booter searches the buses for a boot image.
type Booter struct {
	Blocks  blockio.Provider
	Locator *locator.Locator
	Names   devname.Scheme
	// Buses in boot priority order.
	Buses []devname.Bus

	// Filter, if set, limits the partitions DiscoverAndReport describes.
	// It has no effect on BootFirst.
	Filter *partfilter.Filter

	Log logrus.FieldLogger
}

// New returns a Booter with the default naming scheme, bus order and
// locator settings.
func New(blocks blockio.Provider, fs bootfs.Provider, log logrus.FieldLogger) *Booter {
	return &Booter{
		Blocks:  blocks,
		Locator: locator.New(fs, log),
		Names:   devname.NewScheme(devname.DefaultPrefix),
		Buses:   devname.DefaultBuses(),
		Log:     log,
	}
}

func (b *Booter) log() logrus.FieldLogger {
	if b.Log == nil {
		return logrus.StandardLogger()
	}
	return b.Log
}

func (b *Booter) walker() *enumerate.Walker {
	return &enumerate.Walker{
		Blocks: b.Blocks,
		Names:  b.Names,
		Log:    b.log(),
	}
}

// BootFirst loads the first boot image found into buf and returns its size.
//
// Buses are tried in order. On each bus the first candidate holding a
// matching image ends the bus walk: a positive size is returned right away,
// a failed load is returned as is (the match is final, it is not retried
// elsewhere) and an empty image moves on to the next bus.
func (b *Booter) BootFirst(buf []byte) (int, error) {
	log := b.log()

	for _, bus := range b.Buses {
		var res locator.Result
		w := b.walker()
		stopped, err := w.Walk(bus, func(c enumerate.Candidate) enumerate.Verdict {
			res = b.Locator.Load(c.Name, buf)
			return loadVerdict(res)
		})
		switch {
		case errors.Is(err, enumerate.ErrBusAbsent):
			continue
		case err != nil:
			return 0, fmt.Errorf("cannot walk %s: %w", bus, err)
		case !stopped:
			log.Debugf("fs-boot: no boot image on %s", bus)
			continue
		}

		if res.Kind == locator.Failed {
			return 0, fmt.Errorf("cannot load boot image from %s: %w", bus, res.Err)
		}
		if res.Bytes > 0 {
			return res.Bytes, nil
		}
		log.Warnf("fs-boot: empty boot image on %s, trying next bus", bus)
	}

	return 0, ErrNoBootImage
}

func loadVerdict(res locator.Result) enumerate.Verdict {
	switch {
	case res.Kind == locator.Loaded:
		return enumerate.Stop
	case res.Reason() == locator.Load:
		return enumerate.Stop
	default:
		// not a boot source, or a broken one: look inside
		return enumerate.Descend
	}
}

// DiscoverAndReport walks every bus without loading anything and logs each
// partition found along with the root directory of those that mount.
func (b *Booter) DiscoverAndReport() {
	log := b.log()

	log.Info("====== fs-boot test ======")
	b.reportDevices()

	for _, bus := range b.Buses {
		w := b.walker()
		w.OnRoot = func(bus devname.Bus, root blockio.Info) {
			log.Infof("fs-boot: Looking at %s:", root.Name)
		}
		_, err := w.Walk(bus, func(c enumerate.Candidate) enumerate.Verdict {
			if b.Filter != nil && !b.Filter.Matches(partfilter.FromCandidate(c)) {
				// walk on exactly as if it had been listed
				if b.Locator.Readable(c.Name) {
					return enumerate.Accept
				}
				return enumerate.Descend
			}
			log.Info(describe(c.Info))
			if b.Locator.List(c.Name).Kind == locator.Listed {
				return enumerate.Accept
			}
			return enumerate.Descend
		})
		if err != nil && !errors.Is(err, enumerate.ErrBusAbsent) {
			log.Warnf("fs-boot: cannot walk %s: %v", bus, err)
		}
	}

	log.Info("====== ============ ======")
}

// reportDevices logs every device the block provider knows, if it can list
// them.
func (b *Booter) reportDevices() {
	lister, ok := b.Blocks.(blockio.Lister)
	if !ok {
		return
	}
	infos, err := lister.Devices()
	if err != nil {
		b.log().Warnf("fs-boot: cannot list block devices: %v", err)
		return
	}
	for _, info := range infos {
		b.log().Info(describe(info))
	}
}

func describe(info blockio.Info) string {
	return fmt.Sprintf("%.8s:  %.10s (%6d MiB): ", info.Name, info.Label, info.Size.MiBs())
}
