package attr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenMachineSensors/internal/msensor"
)

// Attribute names
const (
	TypeID        = "type_id"
	Mode          = "mode"
	Modes         = "modes"
	SIUnits       = "si_units"
	DP            = "dp"
	NumValues     = "num_values"
	BinDataFormat = "bin_data_format"
	BinData       = "bin_data"

	valuePrefix = "value"
)

// BinDataSize is the size of the binary window, the largest raw buffer of
// any mode.
const BinDataSize = msensor.RawDataSize

var (
	ErrNotFound = errors.New("attribute not found")
	ErrReadOnly = errors.New("attribute is read-only")
)

// Access flags for attributes.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite

	AccessReadOnly  = AccessRead
	AccessReadWrite = AccessRead | AccessWrite
)

func (a Access) CanRead() bool  { return a&AccessRead != 0 }
func (a Access) CanWrite() bool { return a&AccessWrite != 0 }

func (a Access) String() string {
	var s string
	if a.CanRead() {
		s += "R"
	}
	if a.CanWrite() {
		s += "W"
	}
	if s == "" {
		return "-"
	}
	return s
}

// Info describes one attribute of the surface.
type Info struct {
	Name   string `json:"name"`
	Access Access `json:"-"`
	Binary bool   `json:"binary,omitempty"`
}

// Surface maps attribute reads and writes onto a measurement device. Every
// call holds mu, the same lock the sensor's driver takes while it updates raw
// buffers.
type Surface struct {
	dev *msensor.Device
	mu  sync.Locker
}

func New(dev *msensor.Device, mu sync.Locker) *Surface {
	return &Surface{dev: dev, mu: mu}
}

// List returns the fixed attribute set. value0..value7 are always listed;
// reading one beyond num_values fails with ErrNotFound.
func List() []Info {
	infos := []Info{
		{Name: TypeID, Access: AccessReadOnly},
		{Name: Mode, Access: AccessReadWrite},
		{Name: Modes, Access: AccessReadOnly},
	}
	for _, b := range msensor.Bounds() {
		infos = append(infos, Info{Name: b.String(), Access: AccessReadOnly})
	}
	infos = append(infos,
		Info{Name: SIUnits, Access: AccessReadOnly},
		Info{Name: DP, Access: AccessReadOnly},
		Info{Name: NumValues, Access: AccessReadOnly},
		Info{Name: BinDataFormat, Access: AccessReadOnly},
	)
	for i := 0; i < msensor.MaxValues; i++ {
		infos = append(infos, Info{Name: valuePrefix + strconv.Itoa(i), Access: AccessReadOnly})
	}
	return append(infos, Info{Name: BinData, Access: AccessReadWrite, Binary: true})
}

// Lookup returns the description of name.
func Lookup(name string) (Info, error) {
	for _, info := range List() {
		if info.Name == name {
			return info, nil
		}
	}
	return Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Get reads a text attribute.
func (s *Surface) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.get(name)
}

// get reads a text attribute. The caller holds s.mu.
func (s *Surface) get(name string) (string, error) {
	switch name {
	case TypeID:
		return strconv.Itoa(s.dev.TypeID()), nil
	case Mode:
		return s.dev.ModeList()
	case Modes:
		return s.modeNames()
	case SIUnits:
		return s.dev.Units()
	case DP:
		dp, err := s.dev.Decimals()
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(dp), 10), nil
	case NumValues:
		n, err := s.dev.NumValues()
		if err != nil {
			return "", err
		}
		return strconv.Itoa(n), nil
	case BinDataFormat:
		return s.dev.BinDataFormat()
	case BinData:
		return "", fmt.Errorf("%w: %s is binary", ErrNotFound, name)
	}

	for _, b := range msensor.Bounds() {
		if name == b.String() {
			v, err := s.dev.Bound(b)
			if err != nil {
				return "", err
			}
			return strconv.FormatInt(int64(v), 10), nil
		}
	}

	if index, ok := valueIndex(name); ok {
		v, err := s.dev.Value(index)
		if errors.Is(err, msensor.ErrIndexOutOfRange) {
			return "", fmt.Errorf("%w: %s: %w", ErrNotFound, name, err)
		}
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(v), 10), nil
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Set writes a text attribute. Only mode is writable; a single trailing
// newline is ignored.
func (s *Surface) Set(name, value string) error {
	info, err := Lookup(name)
	if err != nil {
		return err
	}
	if !info.Access.CanWrite() || info.Binary {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dev.SetMode(strings.TrimSuffix(value, "\n"))
}

// ReadBinary reads up to count bytes of the bin_data window at offset.
func (s *Surface) ReadBinary(offset int64, count int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dev.ReadRaw(offset, count)
}

// WriteBinary passes data for the bin_data window to the driver.
func (s *Surface) WriteBinary(offset int64, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dev.WriteRaw(offset, data)
}

// Snapshot reads all readable text attributes under one lock, so all
// values belong to the same mode. Attributes that fail, like value indices
// beyond num_values, are left out.
func (s *Surface) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	for _, info := range List() {
		if info.Binary {
			continue
		}
		if v, err := s.get(info.Name); err == nil {
			out[info.Name] = v
		}
	}
	return out
}

func (s *Surface) modeNames() (string, error) {
	if s.dev.NumModes() == 0 {
		return "", msensor.ErrNoModes
	}
	modes := s.dev.Modes()
	names := make([]string, len(modes))
	for i := range modes {
		names[i] = modes[i].Name
	}
	return strings.Join(names, " "), nil
}

// valueIndex parses "valueN" names.
func valueIndex(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, valuePrefix)
	if !ok || digits == "" || strings.Trim(digits, "0123456789") != "" {
		return 0, false
	}
	index, err := strconv.Atoi(digits)
	if err != nil || index >= msensor.MaxValues {
		return 0, false
	}
	return index, true
}
