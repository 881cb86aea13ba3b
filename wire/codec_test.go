// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		sig  Signature
		args []Value
	}{
		{
			name: "ints and uints",
			sig:  Signature{{Kind: KindInt}, {Kind: KindUint}},
			args: []Value{IntValue(-42), UintValue(42)},
		},
		{
			name: "fixed",
			sig:  Signature{{Kind: KindFixed}},
			args: []Value{FixedValue(FixedFromFloat64(3.5))},
		},
		{
			name: "string",
			sig:  Signature{{Kind: KindString}},
			args: []Value{StringValue("wl_compositor")},
		},
		{
			name: "empty string",
			sig:  Signature{{Kind: KindString}},
			args: []Value{StringValue("")},
		},
		{
			name: "object and new_id",
			sig:  Signature{{Kind: KindObject}, {Kind: KindNewID}},
			args: []Value{ObjectValue(7), NewIDValue(8)},
		},
		{
			name: "array needing padding",
			sig:  Signature{{Kind: KindArray}},
			args: []Value{ArrayValue([]byte{1, 2, 3})},
		},
		{
			name: "array already aligned",
			sig:  Signature{{Kind: KindArray}},
			args: []Value{ArrayValue([]byte{1, 2, 3, 4})},
		},
		{
			name: "generic new_id (wl_registry.bind shape)",
			sig:  Signature{{Kind: KindUint}, {Kind: KindNewID, GenericNewID: true}},
			args: []Value{
				UintValue(1),
				{Kind: KindNewID, NewID: 3, NewIDInterface: "wl_compositor", NewIDVersion: 4},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, fds, err := Encode(1, 5, tt.args, tt.sig)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if len(data)%4 != 0 {
				t.Fatalf("encoded message length %d is not 4-byte aligned", len(data))
			}
			if got := int(order.Uint16(data[4:6])); got != len(data) {
				t.Fatalf("header size field %d does not match actual length %d", got, len(data))
			}
			got, fdIdx, err := Decode(data[HeaderSize:], tt.sig, fds)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if fdIdx != len(fds) {
				t.Fatalf("decode consumed %d fds, encode produced %d", fdIdx, len(fds))
			}
			if diff := cmp.Diff(tt.args, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeDecodeFD(t *testing.T) {
	sig := Signature{{Kind: KindFD}, {Kind: KindUint}}
	args := []Value{FDValue(99), UintValue(42)}

	data, fds, err := Encode(1, 0, args, sig)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(fds) != 1 || fds[0] != 99 {
		t.Fatalf("expected fd list [99], got %v", fds)
	}
	// fd arguments occupy zero bytes in-band (§4.A Framing).
	if len(data) != HeaderSize+4 {
		t.Fatalf("fd argument should not consume in-band bytes, got size %d", len(data))
	}

	got, fdIdx, err := Decode(data[HeaderSize:], sig, fds)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if fdIdx != 1 {
		t.Fatalf("expected 1 fd consumed, got %d", fdIdx)
	}
	if got[0].Fd != 99 {
		t.Errorf("decoded fd = %d, want 99", got[0].Fd)
	}
}

func TestDecodeTruncatedMessage(t *testing.T) {
	sig := Signature{{Kind: KindUint}}
	_, _, err := Decode([]byte{1, 2}, sig, nil)
	if err == nil {
		t.Fatal("expected error decoding truncated payload")
	}
}

func TestDecodeArrayOverrun(t *testing.T) {
	sig := Signature{{Kind: KindArray}}
	payload := make([]byte, 4)
	order.PutUint32(payload, 1000) // claims 1000 bytes, payload has none
	_, _, err := Decode(payload, sig, nil)
	if err == nil {
		t.Fatal("expected error decoding array whose length overruns the message")
	}
}

func TestDecodeTruncatedFDStream(t *testing.T) {
	sig := Signature{{Kind: KindFD}}
	_, _, err := Decode(nil, sig, nil)
	if err == nil {
		t.Fatal("expected error decoding fd argument with no fds available")
	}
}

func TestEncodeArgCountMismatch(t *testing.T) {
	_, _, err := Encode(1, 0, []Value{IntValue(1)}, Signature{{Kind: KindInt}, {Kind: KindUint}})
	if err == nil {
		t.Fatal("expected error when args and signature lengths differ")
	}
}

func TestAlign4(t *testing.T) {
	cases := map[int]int{0: 0, 1: 4, 2: 4, 3: 4, 4: 4, 5: 8}
	for in, want := range cases {
		if got := align4(in); got != want {
			t.Errorf("align4(%d) = %d, want %d", in, got, want)
		}
	}
}
