package msensor

import "math"

// IEEE 754 single precision layout
const (
	signMask     = 0x80000000
	exponentMask = 0x7F800000
	mantissaMask = 0x007FFFFF
	mantissaBits = 23
	exponentBias = 127

	// exponent at which the 24 bit mantissa is already an integer
	integerExponent = exponentBias + mantissaBits

	// keeps i*10 and the rounding addend inside 64 bits
	mulLimit uint64 = math.MaxUint64 / 20
)

// FloatToFixed converts the IEEE 754 bit pattern f into a fixed-point integer
// with dp decimal places.
//
// Zero and subnormal inputs return 0. Infinity and NaN saturate to
// math.MaxInt32 or math.MinInt32 depending on the sign bit, as do finite
// values that do not fit into an int32.
func FloatToFixed(f uint32, dp uint) int32 {
	negative := f&signMask != 0
	e := int((f & exponentMask) >> mantissaBits)

	switch e {
	case 0:
		return 0
	case 0xFF:
		return saturate(negative)
	}

	i := uint64(f&mantissaMask) | 1<<mantissaBits
	shift := integerExponent - e

	for ; dp > 0; dp-- {
		for i > mulLimit {
			i >>= 1
			shift--
		}
		i *= 10
	}

	switch {
	case shift > 0:
		// round with half of the discarded remainder; shifts of 64 and
		// more leave nothing
		m := i & (1<<uint(shift) - 1)
		i += m >> 1
		i >>= uint(shift)
	case shift < 0:
		if -shift > 31 || i > math.MaxInt32>>uint(-shift) {
			return saturate(negative)
		}
		i <<= uint(-shift)
	}

	if i > math.MaxInt32 {
		return saturate(negative)
	}
	if negative {
		return -int32(i)
	}
	return int32(i)
}

// FixedToFloat converts the fixed-point integer v with dp decimal places into
// an IEEE 754 single precision bit pattern.
//
// The division by 10^dp truncates, so FloatToFixed(FixedToFloat(v, dp), dp)
// may differ from v in the last digit.
func FixedToFloat(v int32, dp uint) uint32 {
	if v == 0 {
		return 0
	}

	var sign uint32
	f := uint64(v)
	if v < 0 {
		sign = signMask
		f = uint64(-int64(v))
	}

	f <<= mantissaBits
	for ; dp > 0 && f > 0; dp-- {
		f /= 10
	}
	if f == 0 {
		return 0
	}

	e := uint32(exponentBias)
	for f >= 1<<(mantissaBits+1) {
		f >>= 1
		e++
	}
	for f < 1<<mantissaBits {
		f <<= 1
		e--
	}
	f -= 1 << mantissaBits

	return sign | e<<mantissaBits | uint32(f)
}

func saturate(negative bool) int32 {
	if negative {
		return math.MinInt32
	}
	return math.MaxInt32
}
