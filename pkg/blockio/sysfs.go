package blockio

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/osbuild/fsboot/pkg/datasizes"
	"github.com/osbuild/fsboot/pkg/devname"
)

// SysfsRoot is where the kernel publishes block device attributes.
var SysfsRoot = "/sys/class/block"

// the kernel reports sizes in 512 byte sectors regardless of the device's
// logical block size
const sectorSize = 512

// Sysfs opens host block devices. Candidate names are translated to device
// nodes by the Resolver; size and partition label come from sysfs.
type Sysfs struct {
	Resolver devname.Resolver
}

var _ Provider = &Sysfs{}
var _ Lister = &Sysfs{}

func (s *Sysfs) Open(name string) (Device, error) {
	node, ok := s.Resolver.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%s: no host device: %w", name, ErrNotFound)
	}

	f, err := os.Open(node)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s (%s): %w", name, node, ErrNotFound)
		}
		return nil, fmt.Errorf("cannot open %s (%s): %w", name, node, err)
	}

	kname := filepath.Base(node)
	size, err := readSectors(kname)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &hostDevice{
		f:     f,
		name:  name,
		label: readPartName(kname),
		size:  size,
	}, nil
}

// Devices lists every block device the kernel knows about, named by their
// kernel names since most have no candidate name.
func (s *Sysfs) Devices() ([]Info, error) {
	ents, err := os.ReadDir(SysfsRoot)
	if err != nil {
		return nil, fmt.Errorf("cannot list block devices: %w", err)
	}
	var infos []Info
	for _, ent := range ents {
		size, err := readSectors(ent.Name())
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Name:  ent.Name(),
			Label: readPartName(ent.Name()),
			Size:  datasizes.Size(size),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func readSectors(kname string) (uint64, error) {
	p := filepath.Join(SysfsRoot, kname, "size")
	data, err := os.ReadFile(p)
	if err != nil {
		return 0, fmt.Errorf("cannot read size of %s: %w", kname, err)
	}
	sectors, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse size of %s: %w", kname, err)
	}
	return sectors * sectorSize, nil
}

// readPartName returns PARTNAME from the device's uevent file, or the empty
// string for whole disks and unlabeled partitions.
func readPartName(kname string) string {
	f, err := os.Open(filepath.Join(SysfsRoot, kname, "uevent"))
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if v, ok := strings.CutPrefix(scanner.Text(), "PARTNAME="); ok {
			return v
		}
	}
	return ""
}

type hostDevice struct {
	f     *os.File
	name  string
	label string
	size  uint64
}

func (d *hostDevice) Name() string  { return d.name }
func (d *hostDevice) Label() string { return d.label }
func (d *hostDevice) Size() uint64  { return d.size }

func (d *hostDevice) Close() error {
	return d.f.Close()
}
