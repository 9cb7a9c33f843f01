package devname

import (
	"fmt"
	"strconv"
	"unicode"
)

// Resolver maps candidate names to host device nodes. Roots are looked up in
// Devices, e.g. "hd2" -> "/dev/mmcblk1". Partition P of a root maps to the
// host's partition number P+1, using a "p" separator when the node name ends
// in a digit ("/dev/mmcblk1p1") and none otherwise ("/dev/sda1").
//
// The host kernel does not expose partitions nested inside partitions, so
// those never resolve.
type Resolver struct {
	Scheme  Scheme
	Devices map[string]string
}

// Resolve returns the host node for name and whether it could be mapped.
func (r Resolver) Resolve(name string) (string, bool) {
	n, err := r.Scheme.Parse(name)
	if err != nil {
		return "", false
	}
	if n.Depth() > 1 {
		return "", false
	}

	root, ok := r.Devices[fmt.Sprintf("%s%d", r.Scheme.prefix(), n.Bus)]
	if !ok || root == "" {
		return "", false
	}
	if n.Depth() == 0 {
		return root, true
	}

	sep := ""
	if last := rune(root[len(root)-1]); unicode.IsDigit(last) {
		sep = "p"
	}
	return root + sep + strconv.Itoa(n.Part+1), true
}
