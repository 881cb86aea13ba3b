// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package protocol

import (
	"fmt"

	"github.com/waylandgo/wlcore/objmap"
	"github.com/waylandgo/wlcore/wire"
)

// ErrInvalidID and ErrWouldBlock are re-exported so callers need not import
// objmap/wire directly to compare connection-level errors (§7).
var (
	ErrInvalidID  = objmap.ErrInvalidID
	ErrWouldBlock = wire.ErrWouldBlock
)

// ProtocolError is the latched error carried by a connection once a
// wl_display.error event is received (client side) or a protocol
// violation is detected (either side) (§7 Protocol, §3 Connection).
type ProtocolError struct {
	Code            uint32
	ObjectID        uint32
	ObjectInterface string
	// Message is only ever populated on the side that observed the
	// violation directly (e.g. the server that posted it, or a client
	// decoding a wl_display.error event that carried a message string).
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("protocol error %d on %s@%d: %s", e.Code, e.ObjectInterface, e.ObjectID, e.Message)
	}
	return fmt.Sprintf("protocol error %d on %s@%d", e.Code, e.ObjectInterface, e.ObjectID)
}

// WireError wraps a malformed-message / unknown-opcode / truncated-stream
// failure from the wire codec (§7 Wire I/O, Parse).
type WireError struct {
	Cause error
}

func (e *WireError) Error() string { return "wire error: " + e.Cause.Error() }
func (e *WireError) Unwrap() error { return e.Cause }
