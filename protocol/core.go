// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package protocol

import "github.com/waylandgo/wlcore/wire"

// These are the three interfaces the object/message engine itself knows
// about (§3 Object, §4.D, §4.E): wl_display always exists at client id 1
// (§6 Bootstrap objects), wl_registry carries the global enumeration
// protocol, and wl_callback is the generic one-shot "done" event used by
// both sync and by a global's bind acknowledgement paths in tests.

var Display = &InterfaceDesc{
	Name:       "wl_display",
	MaxVersion: 1,
	Requests: []MessageDesc{
		{Name: "sync", Signature: wire.Signature{{Kind: wire.KindNewID}}, NewIDInterface: "wl_callback"},
		{Name: "get_registry", Signature: wire.Signature{{Kind: wire.KindNewID}}, NewIDInterface: "wl_registry"},
	},
	Events: []MessageDesc{
		{Name: "error", Signature: wire.Signature{{Kind: wire.KindObject}, {Kind: wire.KindUint}, {Kind: wire.KindString}}},
		{Name: "delete_id", Signature: wire.Signature{{Kind: wire.KindUint}}},
	},
}

var Registry = &InterfaceDesc{
	Name:       "wl_registry",
	MaxVersion: 1,
	Requests: []MessageDesc{
		{Name: "bind", Signature: wire.Signature{{Kind: wire.KindUint}, {Kind: wire.KindNewID, GenericNewID: true}}},
	},
	Events: []MessageDesc{
		{Name: "global", Signature: wire.Signature{{Kind: wire.KindUint}, {Kind: wire.KindString}, {Kind: wire.KindUint}}},
		{Name: "global_remove", Signature: wire.Signature{{Kind: wire.KindUint}}},
	},
}

var Callback = &InterfaceDesc{
	Name:       "wl_callback",
	MaxVersion: 1,
	Events: []MessageDesc{
		{Name: "done", Destructor: true, Signature: wire.Signature{{Kind: wire.KindUint}}},
	},
}

// DisplayErrorCode enumerates the wl_display.error event's well-known
// codes (the ones the core itself can raise; generated bindings add their
// own interface-specific codes starting above these).
type DisplayErrorCode uint32

const (
	ErrorInvalidObject  DisplayErrorCode = 0
	ErrorInvalidMethod  DisplayErrorCode = 1
	ErrorNoMemory       DisplayErrorCode = 2
	ErrorImplementation DisplayErrorCode = 3
)
