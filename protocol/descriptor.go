// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package protocol holds the static, read-only interface descriptors every
// generated (and hand-written core) binding is built from (§3 Interface
// descriptor), plus the small set of core interfaces (wl_display,
// wl_registry, wl_callback) that the object/message engine gives special
// treatment to (§4.D, §4.E).
package protocol

import (
	"sync"

	"github.com/waylandgo/wlcore/wire"
)

// MessageDesc statically describes one request or event.
type MessageDesc struct {
	Name       string
	Since      uint32
	Destructor bool
	Signature  wire.Signature

	// NewIDInterface is the fixed child interface name for a message
	// whose signature contains a non-generic new_id argument. Empty if
	// the message has no new_id argument, or if its new_id is the
	// wl_registry.bind-style generic form (see wire.ArgSig.GenericNewID).
	NewIDInterface string
}

// NewIDArgIndex returns the index of m's new_id argument, or -1.
func (m MessageDesc) NewIDArgIndex() int {
	for i, a := range m.Signature {
		if a.Kind == wire.KindNewID {
			return i
		}
	}
	return -1
}

// InterfaceDesc statically describes one interface: its name, maximum
// version, and ordered requests/events lists. A message's opcode is its
// index within whichever list it belongs to.
type InterfaceDesc struct {
	Name        string
	MaxVersion  uint32
	Requests    []MessageDesc
	Events      []MessageDesc
}

// RequestByOpcode returns the request descriptor at opcode, if in range.
func (d *InterfaceDesc) RequestByOpcode(opcode uint16) (MessageDesc, bool) {
	if int(opcode) >= len(d.Requests) {
		return MessageDesc{}, false
	}
	return d.Requests[opcode], true
}

// EventByOpcode returns the event descriptor at opcode, if in range.
func (d *InterfaceDesc) EventByOpcode(opcode uint16) (MessageDesc, bool) {
	if int(opcode) >= len(d.Events) {
		return MessageDesc{}, false
	}
	return d.Events[opcode], true
}

// EventByName returns an event descriptor and its opcode by name.
func (d *InterfaceDesc) EventByName(name string) (MessageDesc, uint16, bool) {
	for i, e := range d.Events {
		if e.Name == name {
			return e, uint16(i), true
		}
	}
	return MessageDesc{}, 0, false
}

// RequestByName returns a request descriptor and its opcode by name.
func (d *InterfaceDesc) RequestByName(name string) (MessageDesc, uint16, bool) {
	for i, r := range d.Requests {
		if r.Name == name {
			return r, uint16(i), true
		}
	}
	return MessageDesc{}, 0, false
}

// registryMu and registry back a process-wide table of interface
// descriptors, populated by every generated protocol package's init()
// (scanner/gen's typesTmplSrc calls RegisterGlobal for each interface it
// emits) plus the three core interfaces below. A connection or client
// only needs to call RegisterInterface explicitly for descriptors that
// were never compiled in this way -- e.g. a hand-built InterfaceDesc a
// test constructs on the fly -- because any fixed new_id argument (a
// request or event that constructs a child object of a statically known
// interface) must resolve that child's descriptor before the object
// exists locally to register it on, and most of those children were
// never bound or otherwise seen by the application first.
var (
	registryMu sync.RWMutex
	registry   = map[string]*InterfaceDesc{}
)

// RegisterGlobal makes desc resolvable by name from any connection or
// client that does not already have it in its own per-connection table,
// the way generated bindings register every interface they define as a
// side effect of being imported (§4.H).
func RegisterGlobal(desc *InterfaceDesc) {
	registryMu.Lock()
	registry[desc.Name] = desc
	registryMu.Unlock()
}

// LookupGlobal returns the process-wide descriptor registered for name,
// if any.
func LookupGlobal(name string) (*InterfaceDesc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[name]
	return d, ok
}

func init() {
	RegisterGlobal(Display)
	RegisterGlobal(Registry)
	RegisterGlobal(Callback)
}
