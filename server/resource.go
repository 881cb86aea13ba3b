// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package server

import (
	"github.com/pkg/errors"

	"github.com/waylandgo/wlcore/objmap"
	"github.com/waylandgo/wlcore/protocol"
	"github.com/waylandgo/wlcore/wire"
)

// Resource is the server-side handle to one live object (the dual of the
// client package's Proxy): a typed wrapper over a (Client, id) pair used
// to send events and register a request dispatcher (§4.E).
type Resource struct {
	client *Client
	id     uint32
	state  *resourceState
}

// Client returns the resource's owning connection.
func (r *Resource) Client() *Client { return r.client }

// ID returns the resource's protocol id.
func (r *Resource) ID() uint32 { return r.id }

// Interface returns the resource's interface name.
func (r *Resource) Interface() string {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.desc.Name
}

// Version returns the version this resource was bound or created at, or 0
// if the resource is no longer in its client's map.
func (r *Resource) Version() uint32 {
	return r.client.objectVersion(r.id)
}

// SetUserData/UserData attach arbitrary per-resource state, the same
// pattern the client package's Proxy uses (§3 user data).
func (r *Resource) SetUserData(v interface{}) {
	r.state.mu.Lock()
	r.state.userData = v
	r.state.mu.Unlock()
}

func (r *Resource) UserData() interface{} {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.userData
}

// SetDispatcher registers the typed callback invoked for every request
// this resource receives.
func (r *Resource) SetDispatcher(f func(opcode uint16, args []wire.Value) error) {
	r.state.mu.Lock()
	r.state.dispatch = f
	r.state.mu.Unlock()
}

// SetDestroyNotify registers a callback invoked exactly once when this
// resource is destroyed, whether by a destructor request/event, by
// wl_display.delete_id bookkeeping, or by the whole client being killed
// (§5 Cancellation, §9 Destructors and reentrancy). Unlike the request
// dispatcher, it fires on every destruction path, not just an explicit
// destructor request.
func (r *Resource) SetDestroyNotify(f func()) {
	r.state.mu.Lock()
	r.state.onDestroy = f
	r.state.mu.Unlock()
}

// SendEvent encodes and sends one event from this resource (§4.E). If the
// event's descriptor is a destructor, the resource is destroyed and a
// wl_display.delete_id is emitted immediately afterward.
func (r *Resource) SendEvent(opcode uint16, args []wire.Value) error {
	return r.client.sendEvent(r.id, opcode, args)
}

// Destroy removes the resource from its client's object map and emits
// wl_display.delete_id without sending any event of its own -- used when
// a request itself is the destructor (e.g. a generated xxx_destroy
// request) rather than an event.
func (r *Resource) Destroy() {
	r.client.destroyAndNotify(r.id)
}

// newResource wraps id/desc/version into a live object in client's map,
// using InsertAt since requests always carry a client-chosen new_id
// (§3 Object map: ids below the server namespace floor are always
// client-allocated, whether for a client's own proxy or a resource the
// server creates in response to a request). A client-sent id at or above
// the server namespace floor is rejected outright (§4.E step 4).
func newResource(c *Client, id uint32, desc *protocol.InterfaceDesc, version uint32) (*Resource, error) {
	if id >= objmap.ServerIDStart {
		return nil, errors.Wrapf(objmap.ErrInvalidID, "client-chosen id %d is in the server namespace", id)
	}
	state := &resourceState{client: c, desc: desc}
	obj := &objmap.Object{Interface: desc.Name, Version: version, Data: state}
	c.mu.Lock()
	err := c.objects.InsertAt(id, obj)
	if err == nil {
		c.creationOrder = append(c.creationOrder, id)
	}
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &Resource{client: c, id: id, state: state}, nil
}

// NewServerResource allocates a fresh object in the server namespace and
// returns its resource handle. This is the creation path for events that
// carry a new_id argument: the server picks the id (always at or above
// the namespace floor, §3 Object map) and announces it to the client by
// sending the event, so the caller sends the event with this resource's
// id in the new_id slot.
func (c *Client) NewServerResource(desc *protocol.InterfaceDesc, version uint32) *Resource {
	state := &resourceState{client: c, desc: desc}
	obj := &objmap.Object{Interface: desc.Name, Version: version, Data: state}
	c.mu.Lock()
	id := c.objects.ServerAllocate(obj)
	c.creationOrder = append(c.creationOrder, id)
	c.mu.Unlock()
	return &Resource{client: c, id: id, state: state}
}
