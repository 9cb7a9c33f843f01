// Package locator probes a single candidate device for a boot image: mount
// it, scan the root directory for a name starting with the image prefix and
// load the first match into the caller's buffer.
package locator

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/fsboot/pkg/bootfs"
	"github.com/osbuild/fsboot/pkg/pathbuf"
)

const (
	DefaultMountPoint  = "/mnt"
	DefaultFSType      = "ext2"
	DefaultImagePrefix = "boot.img"
	// DefaultPrefixLen compares "boot.im" only, so "boot.img2" or
	// "boot.imx" match as well.
	DefaultPrefixLen = 7
)

// Locator finds and loads the boot image of a single candidate.
type Locator struct {
	FS          bootfs.Provider
	MountPoint  string
	FSType      string
	ImagePrefix string
	PrefixLen   int

	Log logrus.FieldLogger
}

// New returns a Locator with the default mount point, filesystem type and
// image prefix.
func New(fs bootfs.Provider, log logrus.FieldLogger) *Locator {
	return &Locator{
		FS:          fs,
		MountPoint:  DefaultMountPoint,
		FSType:      DefaultFSType,
		ImagePrefix: DefaultImagePrefix,
		PrefixLen:   DefaultPrefixLen,
		Log:         log,
	}
}

func (l *Locator) log() logrus.FieldLogger {
	if l.Log == nil {
		return logrus.StandardLogger()
	}
	return l.Log
}

// Matches reports whether name is a boot image name. Like strncmp, at most
// PrefixLen bytes are compared and the comparison stops at the end of the
// prefix, so a PrefixLen beyond the prefix asks for an exact match.
func (l *Locator) Matches(name string) bool {
	n := l.PrefixLen
	prefix := l.ImagePrefix
	if n > len(prefix) {
		return name == prefix
	}
	return len(name) >= n && name[:n] == prefix[:n]
}

// Load mounts candidate, finds the boot image in its root directory and
// loads it into buf. The filesystem is unmounted before Load returns.
func (l *Locator) Load(candidate string, buf []byte) Result {
	log := l.log()

	mnt, err := mount(l.FS, l.MountPoint, l.FSType, candidate)
	if err != nil {
		log.Debugf("fs-boot: %s: not mountable as %s: %v", candidate, l.FSType, err)
		return notFound()
	}
	defer mnt.release(log)

	d, err := l.FS.OpenDir(l.MountPoint)
	if err != nil {
		log.Warnf("fs-boot: %s: fs_open_dir failed: %v", candidate, err)
		return failed(DirAccess, candidate, err)
	}
	dir := &openDir{Dir: d}
	defer dir.release(log)

	name, err := l.scan(candidate, dir)
	if err != nil {
		log.Warnf("fs-boot: %s: reading directory failed: %v", candidate, err)
		return failed(DirAccess, candidate, err)
	}
	if name == "" {
		return notFound()
	}

	path, err := pathbuf.New(l.MountPoint)
	if err == nil {
		err = path.WriteString("/")
	}
	if err == nil {
		err = path.WriteString(name)
	}
	if err != nil {
		return failed(Path, candidate, err)
	}
	log.Infof("Found boot image: %s : %s", candidate, path.String())

	// the directory must not be held while loading
	dir.release(log)

	log.Infof("fs_load_file(%s, target=%p, sz=%d)", path.String(), buf, len(buf))
	n, err := l.FS.LoadFile(path.String(), buf)
	if err != nil {
		return failed(Load, candidate, err)
	}
	return loaded(n)
}

// scan returns the first entry name matching the image prefix, or the empty
// string.
func (l *Locator) scan(candidate string, dir bootfs.Dir) (string, error) {
	log := l.log()
	for {
		ent, err := dir.Next()
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		log.Debugf("xx: /%s/%s", candidate, ent.Name)
		if l.Matches(ent.Name) {
			return ent.Name, nil
		}
	}
}

// List mounts candidate and reports every entry of its root directory to
// the log. It is the diagnostic counterpart of Load and loads nothing.
func (l *Locator) List(candidate string) Result {
	log := l.log()

	mnt, err := mount(l.FS, l.MountPoint, l.FSType, candidate)
	if err != nil {
		log.Debugf("fs-boot: %s: not mountable as %s: %v", candidate, l.FSType, err)
		return notFound()
	}
	defer mnt.release(log)

	d, err := l.FS.OpenDir(l.MountPoint)
	if err != nil {
		log.Infof("    fs_open_dir %s: %v", candidate, err)
		return failed(DirAccess, candidate, err)
	}
	dir := &openDir{Dir: d}
	defer dir.release(log)

	for {
		ent, err := dir.Next()
		if errors.Is(err, io.EOF) {
			return listed()
		}
		if err != nil {
			// whatever was listed so far stays listed
			log.Warnf("fs-boot: %s: reading directory failed: %v", candidate, err)
			return listed()
		}
		log.Infof("| /%s/%s", candidate, ent.Name)
	}
}

// Readable reports whether candidate mounts and its root directory opens,
// which is when List succeeds. Unlike List it reports nothing above Debug.
func (l *Locator) Readable(candidate string) bool {
	log := l.log()

	mnt, err := mount(l.FS, l.MountPoint, l.FSType, candidate)
	if err != nil {
		log.Debugf("fs-boot: %s: not mountable as %s: %v", candidate, l.FSType, err)
		return false
	}
	defer mnt.release(log)

	d, err := l.FS.OpenDir(l.MountPoint)
	if err != nil {
		log.Debugf("fs-boot: %s: fs_open_dir failed: %v", candidate, err)
		return false
	}
	dir := &openDir{Dir: d}
	dir.release(log)
	return true
}
