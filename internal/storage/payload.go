package storage

import (
	"fmt"

	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"github.com/fxamacker/cbor/v2"
)

// Sample payloads use integer keys and deterministic encoding.
var (
	payloadEncMode cbor.EncMode
	payloadDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	payloadEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create payload CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	payloadDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create payload CBOR decoder mode: %v", err))
	}
}

// EncodeReading encodes a reading for the payload column.
func EncodeReading(r devices.Reading) ([]byte, error) {
	return payloadEncMode.Marshal(r)
}

// DecodeReading decodes a payload column.
func DecodeReading(data []byte) (devices.Reading, error) {
	var r devices.Reading
	if err := payloadDecMode.Unmarshal(data, &r); err != nil {
		return devices.Reading{}, fmt.Errorf("failed to decode sample payload: %w", err)
	}
	return r, nil
}
