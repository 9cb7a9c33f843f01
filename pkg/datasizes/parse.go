package datasizes

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var sizeRegex = regexp.MustCompile(`^(\d+) *([a-zA-Z]*)$`)

var units = map[string]Size{
	"":    Byte,
	"B":   Byte,
	"kB":  KiloByte,
	"KiB": KibiByte,
	"MB":  MegaByte,
	"MiB": MebiByte,
	"GB":  GigaByte,
	"GiB": GibiByte,
	"TB":  TeraByte,
	"TiB": TebiByte,
}

// Parse converts a size specified as a string in the form "<number><unit>"
// (with an optional space in between) to bytes. Units are case-sensitive.
func Parse(size string) (Size, error) {
	size = strings.TrimSpace(size)
	m := sizeRegex.FindStringSubmatch(size)
	if m == nil {
		return 0, fmt.Errorf("unknown data size units in string: %s", size)
	}
	multiplier, ok := units[m[2]]
	if !ok {
		return 0, fmt.Errorf("unknown data size units in string: %s", size)
	}
	value, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse size value %q: %w", m[1], err)
	}
	if multiplier > 1 && value > ^uint64(0)/uint64(multiplier) {
		return 0, fmt.Errorf("data size overflows: %s", size)
	}
	return Size(value) * multiplier, nil
}
