package config

import (
	"strconv"

	"github.com/cockroachdb/errors"
	units "github.com/docker/go-units"
	humanize "github.com/dustin/go-humanize"
)

// ByteSize is a byte count that decodes from a TOML integer or from a
// string such as "16MiB", "512k" or "8 MB". Units are binary.
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := ParseSize(string(text))
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

// MarshalText implements encoding.TextMarshaler. The output parses back
// to the same value.
func (b ByteSize) MarshalText() ([]byte, error) {
	switch {
	case b > 0 && b%units.GiB == 0:
		return []byte(strconv.FormatInt(int64(b/units.GiB), 10) + "GiB"), nil
	case b > 0 && b%units.MiB == 0:
		return []byte(strconv.FormatInt(int64(b/units.MiB), 10) + "MiB"), nil
	case b > 0 && b%units.KiB == 0:
		return []byte(strconv.FormatInt(int64(b/units.KiB), 10) + "KiB"), nil
	}
	return []byte(strconv.FormatInt(int64(b), 10)), nil
}

// String renders the size with a binary unit, e.g. "16 MiB".
func (b ByteSize) String() string {
	if b < 0 {
		return "disabled"
	}
	return humanize.IBytes(uint64(b))
}

// Int returns the size as an int.
func (b ByteSize) Int() int { return int(b) }

// ParseSize parses a human-readable size. A leading "-" yields a negative
// value, used to disable a feature.
func ParseSize(s string) (int64, error) {
	neg := len(s) > 0 && s[0] == '-'
	if neg {
		s = s[1:]
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "config: bad size %q", s)
	}
	if neg {
		n = -n
	}
	return n, nil
}
