package locator

import (
	"github.com/sirupsen/logrus"

	"github.com/osbuild/fsboot/pkg/bootfs"
)

// mounted is a mount that releases itself once. Release it with a defer
// right after a successful mount so every return path unmounts.
type mounted struct {
	fs       bootfs.Provider
	point    string
	released bool
}

func mount(fs bootfs.Provider, point, fsType, device string) (*mounted, error) {
	if err := fs.Mount(point, fsType, device); err != nil {
		return nil, err
	}
	return &mounted{fs: fs, point: point}, nil
}

// release unmounts. Failing to unmount is logged: the walk must go on, and
// the next mount will report the busy mount point if it matters.
func (m *mounted) release(log logrus.FieldLogger) {
	if m.released {
		return
	}
	m.released = true
	if err := m.fs.Unmount(m.point); err != nil {
		log.Warnf("fs-boot: %v", err)
	}
}

// openDir is a directory handle that can be closed early, before the
// deferred release runs.
type openDir struct {
	bootfs.Dir
	closed bool
}

func (d *openDir) release(log logrus.FieldLogger) {
	if d.closed {
		return
	}
	d.closed = true
	if err := d.Dir.Close(); err != nil {
		log.Warnf("fs-boot: cannot close directory: %v", err)
	}
}
