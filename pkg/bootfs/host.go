package bootfs

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/osbuild/fsboot/pkg/devname"
)

// mountFn and unmountFn are the platform mount primitives, swapped out in
// tests.
var (
	mountFn   = sysMount
	unmountFn = sysUnmount
)

// Host mounts host block devices read-only. Candidate names are translated
// to device nodes with the Resolver.
type Host struct {
	Resolver devname.Resolver
}

var _ Provider = &Host{}

func (h *Host) Mount(mountPoint, fsType, device string) error {
	node, ok := h.Resolver.Resolve(device)
	if !ok {
		return fmt.Errorf("%s: no host device: %w", device, ErrNoFilesystem)
	}
	if err := mountFn(node, mountPoint, fsType); err != nil {
		return fmt.Errorf("cannot mount %s (%s) on %s as %s: %w", device, node, mountPoint, fsType, err)
	}
	return nil
}

func (h *Host) Unmount(mountPoint string) error {
	if err := unmountFn(mountPoint); err != nil {
		return fmt.Errorf("cannot unmount %s: %w", mountPoint, err)
	}
	return nil
}

func (h *Host) OpenDir(path string) (Dir, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open directory %s: %w", path, err)
	}
	return &hostDir{f: f}, nil
}

func (h *Host) LoadFile(path string, buf []byte) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("cannot stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s: not a regular file", path)
	}
	if info.Size() > int64(len(buf)) {
		return 0, tooSmall(path, info.Size(), len(buf))
	}

	n, err := io.ReadFull(f, buf[:info.Size()])
	if err != nil {
		return n, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return n, nil
}

// hostDir reads one entry at a time so large directories are never held in
// memory.
type hostDir struct {
	f *os.File
}

func (d *hostDir) Next() (Entry, error) {
	ents, err := d.f.ReadDir(1)
	if errors.Is(err, io.EOF) || (err == nil && len(ents) == 0) {
		return Entry{}, io.EOF
	}
	if err != nil {
		return Entry{}, err
	}
	return Entry{Name: ents[0].Name(), IsDir: ents[0].IsDir()}, nil
}

func (d *hostDir) Close() error {
	return d.f.Close()
}
