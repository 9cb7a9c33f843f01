// Package pathbuf provides a fixed capacity string builder for device names
// and image paths.
//
// The buffer never grows. A write that does not fit leaves the buffer
// untouched and returns ErrOverflow, so a caller never ends up with a
// silently truncated name.
package pathbuf

import (
	"errors"
	"fmt"
	"strconv"
)

// Capacity is the number of bytes a Buffer can hold.
const Capacity = 128

var ErrOverflow = errors.New("path buffer overflow")

// Buffer is a string builder of at most Capacity bytes. The zero value is
// an empty buffer ready to use.
type Buffer struct {
	buf [Capacity]byte
	n   int
}

// New returns a buffer holding the given initial contents.
func New(s string) (*Buffer, error) {
	b := &Buffer{}
	if err := b.WriteString(s); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Buffer) Reset() {
	b.n = 0
}

func (b *Buffer) Len() int {
	return b.n
}

func (b *Buffer) Cap() int {
	return Capacity
}

// WriteString appends s. On overflow nothing is written.
func (b *Buffer) WriteString(s string) error {
	if len(s) > Capacity-b.n {
		return fmt.Errorf("%w: cannot append %d bytes to %q (%d/%d used)", ErrOverflow, len(s), b.String(), b.n, Capacity)
	}
	b.n += copy(b.buf[b.n:], s)
	return nil
}

// WriteInt appends the decimal representation of i.
func (b *Buffer) WriteInt(i int) error {
	var scratch [20]byte
	digits := strconv.AppendInt(scratch[:0], int64(i), 10)
	return b.WriteString(string(digits))
}

// Truncate shrinks the buffer to its first n bytes, e.g. from "hd2p3" back
// to "hd2". It panics if n is out of range.
func (b *Buffer) Truncate(n int) {
	if n < 0 || n > b.n {
		panic(fmt.Sprintf("pathbuf: truncation out of range: %d (len %d)", n, b.n))
	}
	b.n = n
}

func (b *Buffer) String() string {
	return string(b.buf[:b.n])
}
