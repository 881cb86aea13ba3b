// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package server

import (
	"sync"

	"github.com/waylandgo/wlcore/protocol"
	"github.com/waylandgo/wlcore/wire"
)

// Global is one name the server advertises through every client's
// wl_registry (§4.E wl_registry.global). bind is invoked once a client
// successfully binds it, after the resource object has been inserted
// into that client's map but before any further requests on it are
// dispatched; it is where the owner attaches the resource's dispatcher.
type Global struct {
	name    uint32
	iface   *protocol.InterfaceDesc
	version uint32
	bind    func(c *Client, res *Resource, version uint32) error

	mu        sync.Mutex
	removed   bool
	disabled  bool
	visibleTo func(c *Client) bool // nil means visible to every client
}

// Disable hides g from new registry enumerations and new binds while
// leaving it in the registry's id table, so a bind already racing
// against the disable doesn't dangling-reference a retracted name; it
// only fully disappears once Remove is called (§3 Global, §4.E: "before
// full removal to drain binds").
func (g *Global) Disable() {
	g.mu.Lock()
	g.disabled = true
	g.mu.Unlock()
}

// SetVisibility installs pred as g's per-client visibility predicate
// (§3 Global): advertisements and registry enumerations made after the
// call skip every client for which pred returns false. It does not undo
// the wl_registry.global broadcast Add already sent before returning g,
// nor the names a client's registry was already sent. A nil predicate
// (the default) makes g visible to every client.
func (g *Global) SetVisibility(pred func(c *Client) bool) {
	g.mu.Lock()
	g.visibleTo = pred
	g.mu.Unlock()
}

// visibleFor reports whether g should currently be advertised to c:
// not disabled, and (if a predicate is set) accepted by it.
func (g *Global) visibleFor(c *Client) bool {
	g.mu.Lock()
	disabled, pred := g.disabled, g.visibleTo
	g.mu.Unlock()
	if disabled {
		return false
	}
	if pred == nil {
		return true
	}
	return pred(c)
}

// Registry is the server-wide table of advertised globals (§4.E). Every
// Client's wl_registry resources are views onto the same Registry, each
// tracking which names it has personally been sent -- the per-client
// visibility bookkeeping a bind request is checked against (§9
// supplemented feature, grounded on wayland-backend's server-side
// registry implementation).
type Registry struct {
	server *Server

	mu       sync.Mutex
	globals  map[uint32]*Global
	order    []uint32
	nextName uint32
}

func newRegistry(s *Server) *Registry {
	return &Registry{server: s, globals: map[uint32]*Global{}}
}

// Add advertises a new global of the given interface and version,
// broadcasting a wl_registry.global event to every client that currently
// has a registry resource. bind is called when a client binds this
// global; it should install the new resource's request dispatcher.
func (r *Registry) Add(iface *protocol.InterfaceDesc, version uint32, bind func(c *Client, res *Resource, version uint32) error) *Global {
	r.mu.Lock()
	name := r.nextName
	r.nextName++
	g := &Global{name: name, iface: iface, version: version, bind: bind}
	r.globals[name] = g
	r.order = append(r.order, name)
	r.mu.Unlock()

	r.server.forEachClient(func(c *Client) {
		if !g.visibleFor(c) {
			return
		}
		c.mu.Lock()
		regs := append([]*registryResource(nil), c.registries...)
		c.mu.Unlock()
		for _, reg := range regs {
			reg.advertise(g)
		}
	})
	return g
}

// Remove retracts g, broadcasting wl_registry.global_remove to every
// client registry that had previously seen it.
func (r *Registry) Remove(g *Global) {
	r.mu.Lock()
	g.removed = true
	delete(r.globals, g.name)
	r.mu.Unlock()

	r.server.forEachClient(func(c *Client) {
		c.mu.Lock()
		regs := append([]*registryResource(nil), c.registries...)
		c.mu.Unlock()
		for _, reg := range regs {
			reg.retract(g.name)
		}
	})
}

// visibleSnapshot returns every global currently visible to c -- live,
// not disabled, and accepted by any per-client visibility predicate --
// in advertisement order, for a freshly created wl_registry's initial
// enumeration (§3 Global, §4.E get_registry).
func (r *Registry) visibleSnapshot(c *Client) []*Global {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Global, 0, len(r.order))
	for _, name := range r.order {
		if g, ok := r.globals[name]; ok && g.visibleFor(c) {
			out = append(out, g)
		}
	}
	return out
}

func (r *Registry) find(name uint32) (*Global, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.globals[name]
	if !ok || g.removed {
		return nil, false
	}
	return g, true
}

// registryResource wraps one client's wl_registry resource together with
// the set of global names it has actually been told about, so a bind
// request can be rejected if it names something this particular client
// was never sent a global event for (even if the name is still valid
// server-wide) -- §4.E bind validation, §9 per-client visibility.
type registryResource struct {
	*Resource
	mu      sync.Mutex
	visible map[uint32]bool
}

func (rr *registryResource) advertise(g *Global) {
	rr.mu.Lock()
	if rr.visible == nil {
		rr.visible = map[uint32]bool{}
	}
	rr.visible[g.name] = true
	rr.mu.Unlock()
	_ = rr.SendEvent(0, []wire.Value{wire.UintValue(g.name), wire.StringValue(g.iface.Name), wire.UintValue(g.version)})
}

func (rr *registryResource) retract(name uint32) {
	rr.mu.Lock()
	seen := rr.visible[name]
	delete(rr.visible, name)
	rr.mu.Unlock()
	if seen {
		_ = rr.SendEvent(1, []wire.Value{wire.UintValue(name)})
	}
}

func (rr *registryResource) sawName(name uint32) bool {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.visible[name]
}
