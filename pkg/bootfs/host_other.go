//go:build !linux

package bootfs

import (
	"errors"
)

var errUnsupported = errors.New("mounting is only supported on linux")

func sysMount(source, target, fsType string) error {
	return errUnsupported
}

func sysUnmount(target string) error {
	return errUnsupported
}
