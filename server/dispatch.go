// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package server

import (
	"github.com/pkg/errors"

	"github.com/waylandgo/wlcore/protocol"
	"github.com/waylandgo/wlcore/wire"
)

// run is a client's dispatch loop: block until the socket is readable,
// decode whatever arrived, and handle each request in turn. A server
// connection has no event queues to reassign -- requests are handled
// synchronously, one at a time, in the goroutine Server.Serve spawned for
// this client (§4.E).
func (c *Client) run() {
	for {
		if err := c.latched(); err != nil {
			return
		}
		if err := c.sock.WaitReadable(-1); err != nil {
			return
		}
		_, err := c.reader.ReadMessages(c.lookupSignature, c.handleRequest)
		if err != nil && err != wire.ErrWouldBlock {
			c.latch(err)
			return
		}
	}
}

// lookupSignature doubles as the dispatch core's first line of protocol
// validation: the Reader bails out on the first opcode it can't resolve
// a signature for, so an unknown object or method has to be killed here
// rather than in handleRequest, which never runs for a message whose
// bytes couldn't be decoded in the first place (§4.E, §8 scenario S6).
func (c *Client) lookupSignature(sender uint32, opcode uint16) (wire.Signature, bool) {
	state, iface, ok := c.resourceDesc(sender)
	if !ok {
		c.Kill(uint32(protocol.ErrorInvalidObject), sender, "", "unknown object")
		return nil, false
	}
	desc, ok := state.desc.RequestByOpcode(opcode)
	if !ok {
		c.Kill(uint32(protocol.ErrorInvalidMethod), sender, iface, "invalid method")
		return nil, false
	}
	return desc.Signature, true
}

// handleRequest implements §4.E's server dispatch core: resolve the
// target resource, special-case wl_display and wl_registry's core
// requests, otherwise construct any child resource a fixed new_id
// announces before handing off to the resource's registered dispatcher,
// and destroy the resource afterward if the request itself is a
// destructor.
func (c *Client) handleRequest(msg wire.Message) error {
	state, iface, ok := c.resourceDesc(msg.Sender)
	if !ok {
		c.Kill(uint32(protocol.ErrorInvalidObject), msg.Sender, "", "unknown object")
		return errors.Errorf("server: request for unknown object %d", msg.Sender)
	}

	desc, ok := state.desc.RequestByOpcode(msg.Opcode)
	if !ok {
		c.Kill(uint32(protocol.ErrorInvalidMethod), msg.Sender, iface, "invalid method")
		return errors.Errorf("server: unknown request opcode %d on %s", msg.Opcode, iface)
	}
	version := c.objectVersion(msg.Sender)
	if version > 0 && desc.Since > 0 && version < desc.Since {
		c.Kill(uint32(protocol.ErrorInvalidMethod), msg.Sender, iface, "request not available at bound version")
		return errors.Errorf("server: %s.%s requires version %d, object bound at %d", iface, desc.Name, desc.Since, version)
	}

	switch iface {
	case "wl_display":
		return c.handleDisplayRequest(msg.Opcode, msg.Args)
	case "wl_registry":
		if msg.Opcode == 0 {
			return c.handleBind(msg.Sender, msg.Args)
		}
	}

	if idx := desc.NewIDArgIndex(); idx >= 0 && desc.NewIDInterface != "" {
		childDesc, ok := c.descriptorFor(desc.NewIDInterface)
		if !ok {
			return errors.Errorf("request %s.%s: unknown child interface %q", iface, desc.Name, desc.NewIDInterface)
		}
		if _, err := newResource(c, msg.Args[idx].NewID, childDesc, version); err != nil {
			c.Kill(uint32(protocol.ErrorInvalidObject), msg.Args[idx].NewID, childDesc.Name, "id in use")
			return err
		}
	}

	state.mu.Lock()
	dispatch := state.dispatch
	state.mu.Unlock()
	c.tracer.Message("<-", msg.Sender, iface, desc.Name, msg.Args)

	var dispatchErr error
	if dispatch != nil {
		dispatchErr = dispatch(msg.Opcode, msg.Args)
	}
	if desc.Destructor {
		c.destroyAndNotify(msg.Sender)
	}
	return dispatchErr
}

// LookupResource fetches a resource by id, letting a request handler
// recover the child Resource a fixed new_id argument just caused the
// dispatch core to create (§4.E).
func (c *Client) LookupResource(id uint32) (*Resource, bool) {
	state, _, ok := c.resourceDesc(id)
	if !ok {
		return nil, false
	}
	return &Resource{client: c, id: id, state: state}, true
}

func (c *Client) handleDisplayRequest(opcode uint16, args []wire.Value) error {
	switch opcode {
	case 0: // sync
		id := args[0].NewID
		res, err := newResource(c, id, protocol.Callback, 1)
		if err != nil {
			c.Kill(uint32(protocol.ErrorInvalidObject), id, "wl_callback", "id in use")
			return err
		}
		return res.SendEvent(0, []wire.Value{wire.UintValue(0)})
	case 1: // get_registry
		id := args[0].NewID
		res, err := newResource(c, id, protocol.Registry, 1)
		if err != nil {
			c.Kill(uint32(protocol.ErrorInvalidObject), id, "wl_registry", "id in use")
			return err
		}
		reg := &registryResource{Resource: res}
		c.mu.Lock()
		c.registries = append(c.registries, reg)
		c.mu.Unlock()
		for _, g := range c.server.registry.visibleSnapshot(c) {
			reg.advertise(g)
		}
		return nil
	default:
		c.Kill(uint32(protocol.ErrorInvalidMethod), 1, "wl_display", "invalid method")
		return errors.Errorf("server: invalid wl_display request opcode %d", opcode)
	}
}

// handleBind implements §4.E's wl_registry.bind validation: the name must
// be a currently-live global this client's registry was actually sent
// (§9 per-client visibility), the requested interface must match the
// global's, and the requested version must not exceed either the
// global's advertised version or the interface's maximum (the "bind
// below the since floor" Open Question is resolved permissively: a
// client may bind at a version lower than some of the interface's
// messages' since value, it simply cannot invoke those messages yet).
func (c *Client) handleBind(registrySender uint32, args []wire.Value) error {
	name := args[0].Uint
	childIface := args[1].NewIDInterface
	version := args[1].NewIDVersion
	id := args[1].NewID

	c.mu.Lock()
	var reg *registryResource
	for _, r := range c.registries {
		if r.id == registrySender {
			reg = r
			break
		}
	}
	c.mu.Unlock()
	if reg == nil || !reg.sawName(name) {
		c.Kill(uint32(protocol.ErrorInvalidObject), registrySender, "wl_registry", "bind: unknown name")
		return errors.Errorf("server: bind: client did not see global %d", name)
	}

	g, ok := c.server.registry.find(name)
	if !ok || g.iface.Name != childIface {
		c.Kill(uint32(protocol.ErrorInvalidObject), registrySender, "wl_registry", "bind: interface mismatch")
		return errors.Errorf("server: bind: global %d is not %s", name, childIface)
	}
	if version == 0 || version > g.version || version > g.iface.MaxVersion {
		c.Kill(uint32(protocol.ErrorInvalidObject), registrySender, "wl_registry", "bind: version too high")
		return errors.Errorf("server: bind: version %d exceeds global %d's %d", version, name, g.version)
	}

	res, err := newResource(c, id, g.iface, version)
	if err != nil {
		c.Kill(uint32(protocol.ErrorInvalidObject), id, g.iface.Name, "id in use")
		return err
	}
	if g.bind != nil {
		return g.bind(c, res, version)
	}
	return nil
}
