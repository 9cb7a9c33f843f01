// Package bootfs defines the read-only filesystem driver interface used to
// look for boot images, with an in-memory implementation and one that
// mounts host devices.
package bootfs

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrBufferTooSmall is returned by LoadFile when the file does not fit
	// into the target buffer.
	ErrBufferTooSmall = errors.New("target buffer too small")
	// ErrNoFilesystem is returned by Mount when the device does not hold a
	// filesystem of the requested type.
	ErrNoFilesystem = errors.New("no recognizable filesystem")
	ErrNotMounted   = errors.New("not mounted")
	// ErrBusy is returned by Mount while another mount is active.
	ErrBusy = errors.New("mount point busy")
)

// Entry is a single directory entry.
type Entry struct {
	Name  string
	IsDir bool
}

// Dir is an open directory handle. Next returns io.EOF after the last entry.
type Dir interface {
	Next() (Entry, error)
	Close() error
}

// Provider is the filesystem driver. All calls are synchronous.
type Provider interface {
	Mount(mountPoint, fsType, device string) error
	Unmount(mountPoint string) error
	OpenDir(path string) (Dir, error)
	// LoadFile reads the whole file at path into buf and returns the
	// number of bytes read. The capacity is len(buf).
	LoadFile(path string, buf []byte) (int, error)
}

// ReadAll drains a directory handle. It does not close it.
func ReadAll(d Dir) ([]Entry, error) {
	var ents []Entry
	for {
		ent, err := d.Next()
		if errors.Is(err, io.EOF) {
			return ents, nil
		}
		if err != nil {
			return ents, err
		}
		ents = append(ents, ent)
	}
}

func tooSmall(path string, size int64, capacity int) error {
	return fmt.Errorf("%s is %d bytes, buffer holds %d: %w", path, size, capacity, ErrBufferTooSmall)
}

// sliceDir serves a pre-read list of entries.
type sliceDir struct {
	ents    []Entry
	pos     int
	closed  bool
	onClose func()
}

func (d *sliceDir) Next() (Entry, error) {
	if d.closed {
		return Entry{}, fmt.Errorf("read on closed directory")
	}
	if d.pos >= len(d.ents) {
		return Entry{}, io.EOF
	}
	ent := d.ents[d.pos]
	d.pos++
	return ent, nil
}

func (d *sliceDir) Close() error {
	if d.closed {
		return fmt.Errorf("directory already closed")
	}
	d.closed = true
	if d.onClose != nil {
		d.onClose()
	}
	return nil
}
