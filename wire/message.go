// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package wire implements the Wayland wire format: message framing,
// argument encoding/decoding, fixed-point numbers, and the buffered
// Unix-domain socket layer that moves bytes and ancillary file descriptors
// in lock step (§4.A).
package wire

import "fmt"

// ArgKind is the wire-level type tag of a decoded argument Value.
type ArgKind int

const (
	KindInt ArgKind = iota
	KindUint
	KindFixed
	KindString
	KindObject
	KindNewID
	KindArray
	KindFD
)

func (k ArgKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFixed:
		return "fixed"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindNewID:
		return "new_id"
	case KindArray:
		return "array"
	case KindFD:
		return "fd"
	default:
		return fmt.Sprintf("ArgKind(%d)", int(k))
	}
}

// ArgSig is the per-argument part of a message's wire signature: enough to
// decode or encode one argument without knowing anything about the
// interface it belongs to.
type ArgSig struct {
	Kind ArgKind

	// GenericNewID marks the wl_registry.bind-style new_id argument whose
	// interface travels on the wire as (string interface_name, uint
	// version) immediately before the id itself, because it cannot be
	// inferred from a static descriptor (§9).
	GenericNewID bool
}

// Signature is the ordered argument signature of one message.
type Signature []ArgSig

// Value is one decoded (or to-be-encoded) argument. Exactly the field
// matching Kind is meaningful.
type Value struct {
	Kind ArgKind

	Int    int32
	Uint   uint32
	Fixed  Fixed
	Str    string
	Object uint32 // 0 means null
	NewID  uint32
	Array  []byte
	Fd     int

	// Only set when Kind == KindNewID and the signature marked the
	// argument GenericNewID (wl_registry.bind): the interface name and
	// version that arrived on the wire ahead of the id.
	NewIDInterface string
	NewIDVersion   uint32
}

func IntValue(v int32) Value      { return Value{Kind: KindInt, Int: v} }
func UintValue(v uint32) Value    { return Value{Kind: KindUint, Uint: v} }
func FixedValue(v Fixed) Value    { return Value{Kind: KindFixed, Fixed: v} }
func StringValue(v string) Value  { return Value{Kind: KindString, Str: v} }
func ObjectValue(v uint32) Value  { return Value{Kind: KindObject, Object: v} }
func NewIDValue(v uint32) Value   { return Value{Kind: KindNewID, NewID: v} }
func ArrayValue(v []byte) Value   { return Value{Kind: KindArray, Array: v} }
func FDValue(v int) Value         { return Value{Kind: KindFD, Fd: v} }

// Message is one decoded in-flight wire message: a sender object id, an
// opcode, and its decoded arguments (§3 Message).
type Message struct {
	Sender uint32
	Opcode uint16
	Args   []Value
}

// HeaderSize is the fixed size in bytes of a message header: sender id (4),
// size (2), opcode (2).
const HeaderSize = 8

// MaxMessageSize is the largest size a message's 16-bit size field can
// encode.
const MaxMessageSize = 1<<16 - 1
