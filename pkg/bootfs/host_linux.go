package bootfs

import (
	"golang.org/x/sys/unix"
)

func sysMount(source, target, fsType string) error {
	return unix.Mount(source, target, fsType, unix.MS_RDONLY|unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, "")
}

func sysUnmount(target string) error {
	return unix.Unmount(target, 0)
}
