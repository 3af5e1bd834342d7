package msensor

import "errors"

var (
	ErrInvalidMode       = errors.New("invalid mode")
	ErrIndexOutOfRange   = errors.New("value index out of range")
	ErrUnsupportedFormat = errors.New("unsupported data format")
	ErrNoModes           = errors.New("sensor has no modes")
	ErrDriverRejected    = errors.New("driver rejected request")

	// ErrInvalidTable is returned by NewDevice for mode tables that violate
	// the buffer capacity or naming rules.
	ErrInvalidTable = errors.New("invalid mode table")
)
