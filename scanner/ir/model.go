// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ir is the semantic model the scanner parses Wayland protocol XML
// into. It is deliberately free of any target-language concerns: the emitter
// (scanner/gen) is the only package that knows how to turn this into Go
// source.
package ir

// ArgType is the wire-level type of a single message argument.
type ArgType string

const (
	ArgInt    ArgType = "int"
	ArgUint   ArgType = "uint"
	ArgFixed  ArgType = "fixed"
	ArgString ArgType = "string"
	ArgObject ArgType = "object"
	ArgNewID  ArgType = "new_id"
	ArgArray  ArgType = "array"
	ArgFd     ArgType = "fd"
)

// Arg is one argument of a request or event.
type Arg struct {
	Name string
	Type ArgType

	// Interface is the interface this argument's object/new_id refers to.
	// Empty for a new_id argument means the generic wl_registry.bind form:
	// the interface travels on the wire as a separate (string, uint) pair
	// immediately preceding the id itself.
	Interface string

	// AllowNull marks a string/object argument as nullable.
	AllowNull bool

	// Enum, if non-empty, is the name of the enum this int/uint argument's
	// values are drawn from ("interface.enum" or bare "enum").
	Enum string

	Summary string
}

// Message is one request or event.
type Message struct {
	Name string
	// Since is the minimum interface version this message exists at.
	// Defaults to 1 when the XML omits a since attribute.
	Since int
	// Destructor marks a message whose semantics destroy its target object.
	Destructor bool
	Args        []Arg
	Summary     string
	Description string

	// Interface, set by the parser's link pass, is the owning interface's
	// name, and Index is the message's position within its Requests or
	// Events list -- that position is also its wire opcode.
	Interface string
	Index     int
}

// NewIDArg returns the message's new_id argument, if it has one.
func (m Message) NewIDArg() (Arg, bool) {
	for _, a := range m.Args {
		if a.Type == ArgNewID {
			return a, true
		}
	}
	return Arg{}, false
}

// IsAllNull reports whether every object/new_id argument is interface-less,
// which lets the emitter use the optimized "all-null" wire signature suffix.
func (m Message) IsAllNull() bool {
	for _, a := range m.Args {
		if (a.Type == ArgObject || a.Type == ArgNewID) && a.Interface != "" {
			return false
		}
	}
	return true
}

// EnumEntry is one member of an Enum.
type EnumEntry struct {
	Name    string
	Value   uint32
	Since   int
	Summary string
}

// Enum is a named, possibly bitfield, set of integer constants scoped to an
// interface.
type Enum struct {
	Name     string
	Bitfield bool
	Entries  []EnumEntry
	Summary  string

	Interface string
}

// Interface is a versioned contract: an ordered list of requests (sent
// client -> server) and events (sent server -> client), plus any enums it
// declares.
type Interface struct {
	Name    string
	Version int
	Summary string
	Description string

	Requests []Message
	Events   []Message
	Enums    []Enum
}

// FindRequest returns the request with the given name, if any.
func (i Interface) FindRequest(name string) (Message, bool) {
	for _, m := range i.Requests {
		if m.Name == name {
			return m, true
		}
	}
	return Message{}, false
}

// FindEnum returns the enum with the given (possibly bare, unqualified)
// name, if any.
func (i Interface) FindEnum(name string) (Enum, bool) {
	for _, e := range i.Enums {
		if e.Name == name {
			return e, true
		}
	}
	return Enum{}, false
}

// Protocol is the top-level parse result: one <protocol> element and all
// the interfaces it declares.
type Protocol struct {
	Name       string
	Copyright  string
	Interfaces []Interface
}

// FindInterface looks up an interface by name across the whole protocol.
func (p Protocol) FindInterface(name string) (Interface, bool) {
	for _, i := range p.Interfaces {
		if i.Name == name {
			return i, true
		}
	}
	return Interface{}, false
}
