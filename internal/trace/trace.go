// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package trace implements the WAYLAND_DEBUG=1 protocol tracing described
// in spec.md §6: one line per dispatched message, written to stderr,
// throttled so a high-frequency interface cannot flood the terminal.
package trace

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/waylandgo/wlcore/wire"
)

// Side identifies which half of a connection is tracing.
type Side string

const (
	Client Side = "client"
	Server Side = "server"
)

// Tracer writes one line per traced message to stderr, rate-limited so a
// message storm on a single object cannot
// dominate debug output the way an unthrottled tracer would.
type Tracer struct {
	side    Side
	enabled bool
	limiter *rate.Limiter
}

// FromEnv builds a Tracer honoring WAYLAND_DEBUG, matching the values the
// reference implementation recognizes: "1", "client", or "server".
func FromEnv(side Side) *Tracer {
	v := os.Getenv("WAYLAND_DEBUG")
	enabled := v == "1" || strings.EqualFold(v, string(side))
	return &Tracer{
		side:    side,
		enabled: enabled,
		limiter: rate.NewLimiter(rate.Limit(2000), 200),
	}
}

// Enabled reports whether tracing is active for this side.
func (t *Tracer) Enabled() bool {
	return t != nil && t.enabled
}

// Message logs one dispatched or sent message. direction is "->" for
// outbound (requests on the client, events on the server) and "<-" for
// inbound.
func (t *Tracer) Message(direction string, objID uint32, iface string, msgName string, args []wire.Value) {
	if !t.Enabled() {
		return
	}
	if !t.limiter.Allow() {
		return
	}
	fmt.Fprintf(os.Stderr, "[%s] %s %s@%d.%s(%s)\n",
		time.Now().Format("15:04:05.000"), direction, iface, objID, msgName, formatArgs(args))
}

func formatArgs(args []wire.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		switch a.Kind {
		case wire.KindInt:
			parts[i] = fmt.Sprintf("%d", a.Int)
		case wire.KindUint:
			parts[i] = fmt.Sprintf("%d", a.Uint)
		case wire.KindFixed:
			parts[i] = fmt.Sprintf("%v", a.Fixed.Float64())
		case wire.KindString:
			parts[i] = fmt.Sprintf("%q", a.Str)
		case wire.KindObject:
			parts[i] = fmt.Sprintf("object@%d", a.Object)
		case wire.KindNewID:
			parts[i] = fmt.Sprintf("new_id@%d", a.NewID)
		case wire.KindArray:
			parts[i] = fmt.Sprintf("array[%s]", humanize.Bytes(uint64(len(a.Array))))
		case wire.KindFD:
			parts[i] = fmt.Sprintf("fd %d", a.Fd)
		}
	}
	return strings.Join(parts, ", ")
}
