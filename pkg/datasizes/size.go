package datasizes

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Size is a number of bytes that can be given in configuration either as a
// plain integer or as a string with units, e.g. "64 MiB".
type Size uint64

const (
	Byte = Size(1)

	KiloByte = 1000 * Byte
	KibiByte = 1024 * Byte
	MegaByte = 1000 * KiloByte
	MebiByte = 1024 * KibiByte
	GigaByte = 1000 * MegaByte
	GibiByte = 1024 * MebiByte
	TeraByte = 1000 * GigaByte
	TebiByte = 1024 * GibiByte

	// short aliases
	KB  = KiloByte
	KiB = KibiByte
	MB  = MegaByte
	MiB = MebiByte
	GB  = GigaByte
	GiB = GibiByte
	TB  = TeraByte
	TiB = TebiByte
)

func (s Size) Uint64() uint64 {
	return uint64(s)
}

// String returns the size in the largest binary unit that represents it
// exactly, e.g. "64 MiB" or "1500 B". The result is accepted by Parse.
func (s Size) String() string {
	for _, u := range []struct {
		size Size
		name string
	}{
		{TiB, "TiB"},
		{GiB, "GiB"},
		{MiB, "MiB"},
		{KiB, "KiB"},
	} {
		if s >= u.size && s%u.size == 0 {
			return fmt.Sprintf("%d %s", uint64(s/u.size), u.name)
		}
	}
	return fmt.Sprintf("%d B", uint64(s))
}

// MiBs returns the size in whole mebibytes, rounded down.
func (s Size) MiBs() uint64 {
	return uint64(s / MiB)
}

func decodeSize(data any) (Size, error) {
	switch v := data.(type) {
	case string:
		return Parse(v)
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("cannot be negative")
		}
		return Size(v), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("cannot be negative")
		}
		return Size(v), nil
	case uint64:
		return Size(v), nil
	case float64:
		return 0, fmt.Errorf("cannot be float")
	default:
		return 0, fmt.Errorf("failed to convert value \"%v\" to number", data)
	}
}

func (s *Size) UnmarshalTOML(data any) error {
	sz, err := decodeSize(data)
	if err != nil {
		return fmt.Errorf("error decoding TOML size: %w", err)
	}
	*s = sz
	return nil
}

func (s *Size) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("error decoding size: %w", err)
	}
	// numbers arrive as float64, reparse them to reject fractions
	if _, ok := v.(float64); ok {
		i, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("error decoding size: %w", err)
		}
		v = i
	}
	sz, err := decodeSize(v)
	if err != nil {
		return fmt.Errorf("error decoding size: %w", err)
	}
	*s = sz
	return nil
}

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	var v any
	if err := value.Decode(&v); err != nil {
		return fmt.Errorf("error decoding YAML size: %w", err)
	}
	sz, err := decodeSize(v)
	if err != nil {
		return fmt.Errorf("error decoding YAML size: %w", err)
	}
	*s = sz
	return nil
}
