// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package wire

import "testing"

func TestFixedFloat64RoundTrip(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 3.5, -3.5, 127.99609375} {
		got := FixedFromFloat64(f).Float64()
		if got != f {
			t.Errorf("FixedFromFloat64(%v).Float64() = %v, want %v", f, got, f)
		}
	}
}

func TestFixedInt(t *testing.T) {
	if got := FixedFromInt(5).Int(); got != 5 {
		t.Errorf("FixedFromInt(5).Int() = %d, want 5", got)
	}
	if got := FixedFromInt(-3).Int(); got != -3 {
		t.Errorf("FixedFromInt(-3).Int() = %d, want -3", got)
	}
}

func TestFixedRational(t *testing.T) {
	num, denom := FixedFromInt(2).Rational()
	if denom != 256 {
		t.Fatalf("denominator = %d, want 256", denom)
	}
	if float64(num)/float64(denom) != 2 {
		t.Errorf("rational %d/%d != 2", num, denom)
	}
}
