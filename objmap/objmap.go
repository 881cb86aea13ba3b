// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package objmap implements the per-connection object registry: two dense,
// namespace-split vectors of live objects keyed by 32-bit protocol id
// (§3 Object map, §4.B).
package objmap

import (
	"sort"

	"github.com/pkg/errors"
)

// ServerIDStart is the first id in the server-allocated namespace; ids
// below it belong to the client.
const ServerIDStart uint32 = 0xFF00_0000

// ErrInvalidID is returned for any operation referencing an id the map
// cannot accept or does not hold (§7 InvalidId).
var ErrInvalidID = errors.New("objmap: invalid id")

// Object is one live (or tombstoned-but-not-yet-removed) entry. Fields
// beyond Id/Interface/Version/Destroyed/Generation are deliberately opaque
// to this package: Data carries whatever the client or server side's
// dispatch core needs (owning queue, typed dispatcher, user data).
type Object struct {
	Id         uint32
	Interface  string
	Version    uint32
	Destroyed  bool
	// Generation increments every time this id's slot is reused, so stale
	// handles captured before a delete_id compare unequal to anything
	// that reuses the slot afterward (§9 Object identity vs. handle
	// identity).
	Generation uint32
	Data       interface{}
}

// Map is the per-connection object registry. It holds no lock of its own:
// synchronization is the caller's responsibility, held for the duration of
// a single map operation (§4.B).
type Map struct {
	client     []*Object
	clientFree []uint32 // sorted ascending, lowest-index-first reuse
	clientGen  []uint32 // per-slot generation counter, survives Remove

	server     []*Object
	serverFree []uint32
	serverGen  []uint32
}

// New creates an empty object map.
func New() *Map {
	return &Map{}
}

func isServerID(id uint32) bool { return id >= ServerIDStart }

// Find looks up id, returning (nil, false) if it is absent.
func (m *Map) Find(id uint32) (*Object, bool) {
	if id == 0 {
		return nil, false
	}
	if isServerID(id) {
		idx := int(id - ServerIDStart)
		if idx < 0 || idx >= len(m.server) || m.server[idx] == nil {
			return nil, false
		}
		return m.server[idx], true
	}
	idx := int(id - 1)
	if idx < 0 || idx >= len(m.client) || m.client[idx] == nil {
		return nil, false
	}
	return m.client[idx], true
}

// With looks up id and, if present, invokes f on it, returning
// ErrInvalidID if id is absent.
func (m *Map) With(id uint32, f func(*Object) error) error {
	o, ok := m.Find(id)
	if !ok {
		return ErrInvalidID
	}
	return f(o)
}

// InsertAt inserts obj at exactly id, succeeding only if id equals the
// current length of its namespace (extending it) or refers to an empty
// slot within it (§3 Insert-at discipline, §8 property 3).
func (m *Map) InsertAt(id uint32, obj *Object) error {
	if id == 0 {
		return errors.Wrap(ErrInvalidID, "id 0 is never stored")
	}
	obj.Id = id
	if isServerID(id) {
		idx := int(id - ServerIDStart)
		return insertAt(&m.server, &m.serverFree, &m.serverGen, idx, obj)
	}
	idx := int(id - 1)
	return insertAt(&m.client, &m.clientFree, &m.clientGen, idx, obj)
}

func insertAt(slice *[]*Object, free *[]uint32, gen *[]uint32, idx int, obj *Object) error {
	switch {
	case idx == len(*slice):
		*slice = append(*slice, obj)
		*gen = append(*gen, 0)
	case idx < len(*slice) && (*slice)[idx] == nil:
		(*slice)[idx] = obj
		obj.Generation = (*gen)[idx]
		removeFree(free, uint32(idx))
	default:
		return errors.Wrapf(ErrInvalidID, "insert_at: id occupied or out of range")
	}
	return nil
}

func removeFree(free *[]uint32, idx uint32) {
	i := sort.Search(len(*free), func(i int) bool { return (*free)[i] >= idx })
	if i < len(*free) && (*free)[i] == idx {
		*free = append((*free)[:i], (*free)[i+1:]...)
	}
}

func insertFreeSorted(free *[]uint32, idx uint32) {
	i := sort.Search(len(*free), func(i int) bool { return (*free)[i] >= idx })
	*free = append(*free, 0)
	copy((*free)[i+1:], (*free)[i:])
	(*free)[i] = idx
}

// ClientAllocate assigns obj the lowest free client-allocated id.
func (m *Map) ClientAllocate(obj *Object) uint32 {
	idx := allocate(&m.client, &m.clientFree, &m.clientGen, obj)
	id := uint32(idx) + 1
	obj.Id = id
	return id
}

// ServerAllocate assigns obj the lowest free server-allocated id.
func (m *Map) ServerAllocate(obj *Object) uint32 {
	idx := allocate(&m.server, &m.serverFree, &m.serverGen, obj)
	id := uint32(idx) + ServerIDStart
	obj.Id = id
	return id
}

func allocate(slice *[]*Object, free *[]uint32, gen *[]uint32, obj *Object) int {
	if len(*free) > 0 {
		idx := (*free)[0]
		*free = (*free)[1:]
		(*slice)[idx] = obj
		obj.Generation = (*gen)[idx]
		return int(idx)
	}
	idx := len(*slice)
	*slice = append(*slice, obj)
	*gen = append(*gen, 0)
	return idx
}

// Remove deletes id's entry entirely, freeing its slot for reuse with a
// bumped generation counter. Server-allocated ids are never reused once
// retired (§3 Invariants), so Remove does not add server slots back to
// the free list: it only nils them, permanently retiring the index.
func (m *Map) Remove(id uint32) {
	if id == 0 {
		return
	}
	if isServerID(id) {
		idx := int(id - ServerIDStart)
		if idx >= 0 && idx < len(m.server) {
			m.server[idx] = nil
			m.serverGen[idx]++
		}
		return
	}
	idx := int(id - 1)
	if idx >= 0 && idx < len(m.client) {
		if m.client[idx] != nil {
			m.client[idx] = nil
			m.clientGen[idx]++
			insertFreeSorted(&m.clientFree, uint32(idx))
		}
	}
}

// Iter calls f for every live object in the map, client namespace first.
// f returning false stops iteration early.
func (m *Map) Iter(f func(*Object) bool) {
	for _, o := range m.client {
		if o != nil {
			if !f(o) {
				return
			}
		}
	}
	for _, o := range m.server {
		if o != nil {
			if !f(o) {
				return
			}
		}
	}
}
