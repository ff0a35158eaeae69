package wire

// Fixed is a signed 24.8 fixed-point number as used by the Wayland wire
// format for surface-local coordinates and output scale factors.
type Fixed int32

// FixedFromFloat64 converts a float64 to the nearest Fixed value.
func FixedFromFloat64(v float64) Fixed {
	return Fixed(v * 256.0)
}

// FixedFromInt converts an int to a Fixed value.
func FixedFromInt(v int) Fixed {
	return Fixed(v << 8)
}

// Float64 returns the floating-point value of f.
func (f Fixed) Float64() float64 {
	return float64(f) / 256.0
}

// Int returns the integer part of f, truncated toward negative infinity.
func (f Fixed) Int() int {
	return int(f >> 8)
}
