// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package wire

import "math"

// Fixed is a 24.8 signed fixed-point number, the Wayland wire
// representation of a "fixed" argument: exchanged as a plain 32-bit word,
// exposed here either as a rational pair or as a float64 convertor.
type Fixed int32

// FixedFromFloat64 converts a float64 to the nearest representable Fixed.
func FixedFromFloat64(f float64) Fixed {
	return Fixed(math.Round(f * 256))
}

// FixedFromInt builds a Fixed with no fractional part.
func FixedFromInt(i int32) Fixed {
	return Fixed(i * 256)
}

// Float64 returns the floating-point value of f.
func (f Fixed) Float64() float64 {
	return float64(f) / 256
}

// Int returns the integral part of f, truncated toward zero.
func (f Fixed) Int() int32 {
	return int32(f) / 256
}

// Rational returns f as a (numerator, denominator=256) pair, avoiding any
// float64 round-trip for callers that want exact arithmetic.
func (f Fixed) Rational() (numerator, denominator int32) {
	return int32(f), 256
}
