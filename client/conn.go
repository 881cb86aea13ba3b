// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package client implements the client half of the Wayland object/message
// engine: a Connection owning the socket, object map, and outbound
// buffer, typed Proxy handles, and independent EventQueues with
// prepare/commit-read coordination for safe multi-threaded dispatch
// (§4.C, §4.D, §4.F).
package client

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/waylandgo/wlcore/internal/trace"
	"github.com/waylandgo/wlcore/objmap"
	"github.com/waylandgo/wlcore/protocol"
	"github.com/waylandgo/wlcore/wire"
)

var errAnotherQueuePending = errors.New("client: another queue has buffered events")

// Connection is one client connection to a Wayland compositor: the
// socket, object map, outbound buffer, and set of event queues that share
// it (§3 Connection).
type Connection struct {
	sock   *wire.Socket
	reader *wire.Reader

	mu      sync.Mutex // guards objects, queues, readInFlight, pendingDestructors
	objects *objmap.Map
	queues  []*EventQueue

	writeMu sync.Mutex // independent of mu (§5 Shared resources)
	writer  *wire.Writer

	latchMu sync.Mutex
	latched_ error

	readInFlight bool

	pendingDestructors []func()

	descriptors map[string]*protocol.InterfaceDesc

	display *displayHandle
	tracer  *trace.Tracer
}

// RegisterInterface makes desc available so generated/core requests that
// carry a fixed (non-generic) new_id can resolve their child's
// descriptor, and so wl_registry.bind can validate the interface name
// a caller asks to bind.
func (c *Connection) RegisterInterface(desc *protocol.InterfaceDesc) {
	c.mu.Lock()
	c.descriptors[desc.Name] = desc
	c.mu.Unlock()
}

// descriptorFor resolves name against this connection's own table first,
// then falls back to the process-wide table generated bindings populate
// (protocol.RegisterGlobal), so a fixed new_id child never needs an
// explicit RegisterInterface call as long as its generated package is
// imported (§4.H).
func (c *Connection) descriptorFor(name string) (*protocol.InterfaceDesc, bool) {
	c.mu.Lock()
	d, ok := c.descriptors[name]
	c.mu.Unlock()
	if ok {
		return d, true
	}
	return protocol.LookupGlobal(name)
}

func newConnection(sock *wire.Socket) *Connection {
	c := &Connection{
		sock:        sock,
		reader:      wire.NewReader(sock),
		writer:      wire.NewWriter(sock),
		objects:     objmap.New(),
		descriptors: map[string]*protocol.InterfaceDesc{},
		tracer:      trace.FromEnv(trace.Client),
	}
	c.RegisterInterface(protocol.Display)
	c.RegisterInterface(protocol.Registry)
	c.RegisterInterface(protocol.Callback)

	displayObj := &objmap.Object{Interface: protocol.Display.Name, Version: 1}
	if err := c.objects.InsertAt(1, displayObj); err != nil {
		panic("client: failed to bootstrap wl_display at id 1: " + err.Error())
	}
	displayObj.Data = &proxyState{conn: c, desc: protocol.Display}
	c.display = &displayHandle{Proxy: &Proxy{conn: c, id: 1, generation: 0, state: displayObj.Data.(*proxyState)}}

	defaultQueue := &EventQueue{conn: c}
	c.queues = []*EventQueue{defaultQueue}
	c.display.state.queue = defaultQueue
	return c
}

// socketPath resolves WAYLAND_SOCKET/WAYLAND_DISPLAY/XDG_RUNTIME_DIR per
// §6 External interfaces. It returns ("", fd) when WAYLAND_SOCKET names an
// already-open, pre-connected descriptor; otherwise ("", -1) is never
// returned -- path is always non-empty in that branch.
func socketPath() (path string, presetFD int, err error) {
	if v := os.Getenv("WAYLAND_SOCKET"); v != "" {
		fd, convErr := strconv.Atoi(v)
		if convErr != nil {
			return "", -1, errors.Wrapf(convErr, "client: invalid WAYLAND_SOCKET %q", v)
		}
		os.Unsetenv("WAYLAND_SOCKET")
		return "", fd, nil
	}
	name := os.Getenv("WAYLAND_DISPLAY")
	if name == "" {
		name = "wayland-0"
	}
	if filepath.IsAbs(name) {
		return name, -1, nil
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", -1, errors.New("client: XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, name), -1, nil
}

// Connect opens a connection to the compositor named by the environment
// (§6).
func Connect() (*Connection, error) {
	path, presetFD, err := socketPath()
	if err != nil {
		return nil, err
	}
	var sock *wire.Socket
	if path == "" {
		sock, err = wire.NewSocket(presetFD)
	} else {
		sock, err = wire.Dial(path)
	}
	if err != nil {
		return nil, err
	}
	return newConnection(sock), nil
}

// ConnectTo opens a connection to an explicit Unix-domain socket path,
// bypassing environment resolution. Useful for tests.
func ConnectTo(path string) (*Connection, error) {
	sock, err := wire.Dial(path)
	if err != nil {
		return nil, err
	}
	return newConnection(sock), nil
}

// Display returns the bootstrap wl_display proxy (client id 1, §6).
func (c *Connection) Display() *Proxy { return c.display.Proxy }

// DefaultQueue returns the connection's initial event queue.
func (c *Connection) DefaultQueue() *EventQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queues[0]
}

// latched returns the connection's sticky fatal error, if any (§7).
func (c *Connection) latched() error {
	c.latchMu.Lock()
	defer c.latchMu.Unlock()
	return c.latched_
}

func (c *Connection) latch(err error) error {
	c.latchMu.Lock()
	defer c.latchMu.Unlock()
	if c.latched_ == nil {
		c.latched_ = err
	}
	return c.latched_
}

func (c *Connection) findLocked(id uint32) (*objmap.Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.objects.Find(id)
}

// LookupProxy fetches the live proxy for id, letting a generated event
// listener recover the child Proxy a new_id-typed event argument just
// caused the dispatch core to create (§4.D).
func (c *Connection) LookupProxy(id uint32) (*Proxy, bool) {
	obj, ok := c.findLocked(id)
	if !ok {
		return nil, false
	}
	state, ok := obj.Data.(*proxyState)
	if !ok {
		return nil, false
	}
	return &Proxy{conn: c, id: id, generation: obj.Generation, state: state}, true
}

// Flush drains the outbound buffer without blocking (§4.C Write half).
func (c *Connection) Flush() error {
	if err := c.latched(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writer.Flush()
}

// BlockingFlush drains the outbound buffer, waiting on writability as
// needed (§5 Suspension points).
func (c *Connection) BlockingFlush() error {
	if err := c.latched(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writer.BlockingFlush()
}

// Close tears down the connection's socket.
func (c *Connection) Close() error {
	return c.sock.Close()
}

func (c *Connection) queueDestructor(f func()) {
	c.mu.Lock()
	c.pendingDestructors = append(c.pendingDestructors, f)
	c.mu.Unlock()
}

// drainDestructors runs destructors queued during the just-finished
// dispatch callback, before the queue moves to its next message (§4.F,
// §9 Pending destructor queue).
func (c *Connection) drainDestructors() {
	for {
		c.mu.Lock()
		if len(c.pendingDestructors) == 0 {
			c.mu.Unlock()
			return
		}
		f := c.pendingDestructors[0]
		c.pendingDestructors = c.pendingDestructors[1:]
		c.mu.Unlock()
		f()
	}
}

func (c *Connection) newChild(desc *protocol.InterfaceDesc, version uint32, queue *EventQueue) (*Proxy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj := &objmap.Object{Interface: desc.Name, Version: version}
	id := c.objects.ClientAllocate(obj)
	state := &proxyState{conn: c, desc: desc, queue: queue}
	obj.Data = state
	return &Proxy{conn: c, id: id, generation: obj.Generation, state: state}, nil
}

