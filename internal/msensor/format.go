package msensor

import "fmt"

// Format is the binary encoding of the values in a mode's raw buffer.
type Format uint8

const (
	FormatS8 Format = iota
	FormatS16
	FormatS32
	FormatFloat
)

func (f Format) String() string {
	switch f {
	case FormatS8:
		return "s8"
	case FormatS16:
		return "s16"
	case FormatS32:
		return "s32"
	case FormatFloat:
		return "float"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// Size returns the number of raw buffer bytes per value, or 0 for unknown
// formats.
func (f Format) Size() int {
	switch f {
	case FormatS8:
		return 1
	case FormatS16:
		return 2
	case FormatS32, FormatFloat:
		return 4
	default:
		return 0
	}
}

// Valid reports whether f is one of the four recognized formats.
func (f Format) Valid() bool {
	return f.Size() != 0
}

// ParseFormat maps the bin_data_format names back to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "s8":
		return FormatS8, nil
	case "s16":
		return FormatS16, nil
	case "s32":
		return FormatS32, nil
	case "float":
		return FormatFloat, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}
