package test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// BlockDevice is a block device as the kernel publishes it under
// /sys/class/block.
type BlockDevice struct {
	// Kernel name, e.g. "mmcblk1p1".
	Name string
	// Size in 512 byte sectors.
	Sectors uint64
	// PartName is the partition label, empty for whole disks.
	PartName string
	// Partition marks the device as a partition in its uevent.
	Partition bool
}

func (d BlockDevice) uevent() string {
	lines := []string{"DEVNAME=" + d.Name}
	if d.Partition {
		lines = append(lines, "DEVTYPE=partition")
	} else {
		lines = append(lines, "DEVTYPE=disk")
	}
	if d.PartName != "" {
		lines = append(lines, "PARTNAME="+d.PartName)
	}
	return strings.Join(lines, "\n") + "\n"
}

// MockSysfs publishes devs in a temporary sysfs tree and points *root at it
// until the test ends. It returns a directory holding one regular file per
// device that stands in for its device node.
func MockSysfs(t testing.TB, root *string, devs ...BlockDevice) (devDir string) {
	t.Helper()

	sysfs := t.TempDir()
	devDir = t.TempDir()
	write := func(p, content string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	for _, dev := range devs {
		write(filepath.Join(sysfs, dev.Name, "size"), fmt.Sprintf("%d\n", dev.Sectors))
		write(filepath.Join(sysfs, dev.Name, "uevent"), dev.uevent())
		write(filepath.Join(devDir, dev.Name), "")
	}

	MockGlobal(t, root, sysfs)
	return devDir
}
