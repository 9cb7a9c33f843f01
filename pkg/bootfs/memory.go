package bootfs

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

// Memory is a Provider whose "devices" are in-memory filesystems. Only one
// mount may be active at a time, mirroring the single mount point the boot
// walk reuses.
type Memory struct {
	volumes map[string]*volume
	active  *mount

	openDirs int

	Stats MemoryStats
}

// MemoryStats counts the calls made against a Memory provider.
type MemoryStats struct {
	MountAttempts int
	Mounts        int
	Unmounts      int
	DirOpens      int
	DirCloses     int
	Loads         int
	// LoadsWithOpenDir counts loads issued while a directory handle was
	// still open.
	LoadsWithOpenDir int
	// Mounted lists the devices successfully mounted, in order.
	Mounted []string
	// Loaded lists the paths passed to LoadFile, in order.
	Loaded []string
}

type volume struct {
	fsType string
	fs     billy.Filesystem

	mountErr error
	dirErr   error
	loadErr  error
}

type mount struct {
	point  string
	device string
	vol    *volume
}

var _ Provider = &Memory{}

func NewMemory() *Memory {
	return &Memory{volumes: make(map[string]*volume)}
}

// AddVolume creates an empty filesystem of the given type on device and
// returns it for population.
func (m *Memory) AddVolume(device, fsType string) (billy.Filesystem, error) {
	if _, ok := m.volumes[device]; ok {
		return nil, fmt.Errorf("device %q already has a filesystem", device)
	}
	vol := &volume{fsType: fsType, fs: memfs.New()}
	// memfs only creates the root once something is written below it
	if err := vol.fs.MkdirAll("/", 0755); err != nil {
		return nil, err
	}
	m.volumes[device] = vol
	return vol.fs, nil
}

// WriteFile stores data at path on the filesystem of device.
func (m *Memory) WriteFile(device, path string, data []byte) error {
	vol, ok := m.volumes[device]
	if !ok {
		return fmt.Errorf("device %q has no filesystem", device)
	}
	return util.WriteFile(vol.fs, path, data, 0644)
}

func (m *Memory) volume(device string) (*volume, error) {
	vol, ok := m.volumes[device]
	if !ok {
		return nil, fmt.Errorf("device %q has no filesystem", device)
	}
	return vol, nil
}

// FailMount makes mounting device fail with err.
func (m *Memory) FailMount(device string, err error) error {
	vol, err2 := m.volume(device)
	if err2 != nil {
		return err2
	}
	vol.mountErr = err
	return nil
}

// FailOpenDir makes opening any directory on device fail with err.
func (m *Memory) FailOpenDir(device string, err error) error {
	vol, err2 := m.volume(device)
	if err2 != nil {
		return err2
	}
	vol.dirErr = err
	return nil
}

// FailLoad makes loading any file from device fail with err.
func (m *Memory) FailLoad(device string, err error) error {
	vol, err2 := m.volume(device)
	if err2 != nil {
		return err2
	}
	vol.loadErr = err
	return nil
}

// Active returns the mount point in use, or the empty string.
func (m *Memory) Active() string {
	if m.active == nil {
		return ""
	}
	return m.active.point
}

func (m *Memory) Mount(mountPoint, fsType, device string) error {
	m.Stats.MountAttempts++

	if m.active != nil {
		return fmt.Errorf("cannot mount %s on %s, %s is mounted on %s: %w", device, mountPoint, m.active.device, m.active.point, ErrBusy)
	}
	vol, ok := m.volumes[device]
	if !ok || vol.fsType != fsType {
		return fmt.Errorf("%s: %s: %w", device, fsType, ErrNoFilesystem)
	}
	if vol.mountErr != nil {
		return vol.mountErr
	}

	m.active = &mount{point: mountPoint, device: device, vol: vol}
	m.Stats.Mounts++
	m.Stats.Mounted = append(m.Stats.Mounted, device)
	return nil
}

func (m *Memory) Unmount(mountPoint string) error {
	if m.active == nil || m.active.point != mountPoint {
		return fmt.Errorf("%s: %w", mountPoint, ErrNotMounted)
	}
	m.active = nil
	m.Stats.Unmounts++
	return nil
}

// resolve maps an absolute path below the active mount point to a path on
// the mounted volume.
func (m *Memory) resolve(p string) (*volume, string, error) {
	if m.active == nil {
		return nil, "", fmt.Errorf("%s: %w", p, ErrNotMounted)
	}
	mp := strings.TrimSuffix(m.active.point, "/")
	switch {
	case p == mp || p == mp+"/":
		return m.active.vol, "/", nil
	case strings.HasPrefix(p, mp+"/"):
		return m.active.vol, p[len(mp):], nil
	default:
		return nil, "", fmt.Errorf("%s is outside %s: %w", p, m.active.point, ErrNotMounted)
	}
}

func (m *Memory) OpenDir(p string) (Dir, error) {
	vol, rel, err := m.resolve(p)
	if err != nil {
		return nil, err
	}
	if vol.dirErr != nil {
		return nil, vol.dirErr
	}

	infos, err := vol.fs.ReadDir(rel)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %s: %w", p, err)
	}
	ents := make([]Entry, 0, len(infos))
	for _, info := range infos {
		ents = append(ents, Entry{Name: info.Name(), IsDir: info.IsDir()})
	}

	m.openDirs++
	m.Stats.DirOpens++
	return &sliceDir{ents: ents, onClose: func() {
		m.openDirs--
		m.Stats.DirCloses++
	}}, nil
}

func (m *Memory) LoadFile(p string, buf []byte) (int, error) {
	m.Stats.Loads++
	m.Stats.Loaded = append(m.Stats.Loaded, p)
	if m.openDirs > 0 {
		m.Stats.LoadsWithOpenDir++
	}

	vol, rel, err := m.resolve(p)
	if err != nil {
		return 0, err
	}
	if vol.loadErr != nil {
		return 0, vol.loadErr
	}

	f, err := vol.fs.Open(rel)
	if err != nil {
		return 0, fmt.Errorf("cannot open %s: %w", p, err)
	}
	defer f.Close()

	info, err := vol.fs.Stat(rel)
	if err != nil {
		return 0, fmt.Errorf("cannot stat %s: %w", p, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s: is a directory", p)
	}
	if info.Size() > int64(len(buf)) {
		return 0, tooSmall(p, info.Size(), len(buf))
	}

	n, err := io.ReadFull(f, buf[:info.Size()])
	if err != nil {
		return n, fmt.Errorf("cannot read %s: %w", p, err)
	}
	return n, nil
}
