// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/waylandgo/wlcore/objmap"
	"github.com/waylandgo/wlcore/protocol"
	"github.com/waylandgo/wlcore/wire"
)

// rawPeer drives a Client's socket directly at the wire level, playing
// the part of a hand-scripted application client for the end-to-end
// scenarios in spec.md §8.
type rawPeer struct {
	t    *testing.T
	sock *wire.Socket
	buf  []byte
}

func newClientPair(t *testing.T) (*Client, *rawPeer) {
	t.Helper()
	s := &Server{clients: map[*Client]struct{}{}}
	s.registry = newRegistry(s)
	return newClientOnServer(t, s)
}

// newClientOnServer accepts a new client connection onto an
// already-constructed Server, letting a test put several clients on the
// same Registry (§4.E's per-client global visibility).
func newClientOnServer(t *testing.T, s *Server) (*Client, *rawPeer) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	serverSock, err := wire.NewSocket(fds[0])
	if err != nil {
		t.Fatalf("wrapping server socket: %v", err)
	}
	peerSock, err := wire.NewSocket(fds[1])
	if err != nil {
		t.Fatalf("wrapping peer socket: %v", err)
	}
	c := newClient(s, serverSock)
	s.addClient(c)
	go c.run()
	t.Cleanup(func() { _ = c.sock.Close() })
	peer := &rawPeer{t: t, sock: peerSock}
	t.Cleanup(func() { peer.sock.Close() })
	return c, peer
}

func (p *rawPeer) send(sender uint32, opcode uint16, sig wire.Signature, args []wire.Value) {
	p.t.Helper()
	data, fds, err := wire.Encode(sender, opcode, args, sig)
	if err != nil {
		p.t.Fatalf("encode: %v", err)
	}
	if _, _, err := p.sock.SendOnce(data, fds); err != nil {
		p.t.Fatalf("send: %v", err)
	}
}

func (p *rawPeer) expectMessage(sig wire.Signature) wire.Message {
	p.t.Helper()
	for len(p.buf) < wire.HeaderSize || len(p.buf) < int(readU16(p.buf[4:])) {
		if err := p.sock.WaitReadable(2 * time.Second); err != nil {
			p.t.Fatalf("waiting for message: %v", err)
		}
		chunk := make([]byte, 4096)
		n, _, eof, err := p.sock.RecvOnce(chunk)
		if err != nil {
			p.t.Fatalf("recv: %v", err)
		}
		if eof {
			p.t.Fatal("recv: connection closed")
		}
		p.buf = append(p.buf, chunk[:n]...)
	}
	size := int(readU16(p.buf[4:]))
	sender := readU32(p.buf)
	opcode := readU16(p.buf[6:])
	args, _, err := wire.Decode(p.buf[wire.HeaderSize:size], sig, nil)
	if err != nil {
		p.t.Fatalf("decode: %v", err)
	}
	p.buf = p.buf[size:]
	return wire.Message{Sender: sender, Opcode: opcode, Args: args}
}

// expectClosed waits briefly for the peer's read side to observe EOF,
// the rawPeer-level signal that the server killed the connection.
func (p *rawPeer) expectClosed() {
	p.t.Helper()
	if err := p.sock.WaitReadable(2 * time.Second); err != nil {
		p.t.Fatalf("waiting for close: %v", err)
	}
	buf := make([]byte, 16)
	n, _, _, err := p.sock.RecvOnce(buf)
	if err != nil {
		return // a read error here also signals the connection is gone
	}
	if n != 0 {
		p.t.Fatalf("expected EOF, got %d bytes", n)
	}
}

func readU32(b []byte) uint32 { return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24 }
func readU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

// barrier sends a wl_display.sync on a fresh id and waits for its done
// event, guaranteeing every request sent before it has already been
// handled by the client's single dispatch goroutine -- the single
// ordered stream makes this a reliable barrier without a fixed sleep.
func (p *rawPeer) barrier(syncID uint32) {
	p.t.Helper()
	p.send(1, 0, protocol.Display.Requests[0].Signature, []wire.Value{wire.NewIDValue(syncID)})
	p.expectMessage(protocol.Callback.Events[0].Signature)
	p.expectMessage(protocol.Display.Events[1].Signature) // delete_id
}

// TestRegistryBroadcastAndVisibility is spec.md §8 scenario S2's
// server-side half: Registry.Add broadcasts to every client with a live
// wl_registry resource, and Remove sends global_remove only to clients
// that were actually shown the name (§9 per-client visibility).
func TestRegistryBroadcastAndVisibility(t *testing.T) {
	c, peer := newClientPair(t)

	peer.send(1, 1, protocol.Display.Requests[1].Signature, []wire.Value{wire.NewIDValue(2)})
	peer.barrier(3)
	testIface := &protocol.InterfaceDesc{Name: "test_singleton", MaxVersion: 1}
	g := c.server.registry.Add(testIface, 1, nil)

	global := peer.expectMessage(protocol.Registry.Events[0].Signature)
	if global.Sender != 2 || global.Opcode != 0 {
		t.Fatalf("got %+v, want a global event on registry id 2", global)
	}
	if global.Args[0].Uint != g.name || global.Args[1].Str != "test_singleton" || global.Args[2].Uint != 1 {
		t.Errorf("global event args = %+v, want name=%d iface=test_singleton version=1", global.Args, g.name)
	}

	c.server.registry.Remove(g)
	removed := peer.expectMessage(protocol.Registry.Events[1].Signature)
	if removed.Opcode != 1 || removed.Args[0].Uint != g.name {
		t.Errorf("global_remove = %+v, want name %d", removed, g.name)
	}
}

// TestGlobalDisableHidesFromNewEnumerationButStillBindable covers §3
// Global's disabled-flag and §4.E's "disabled... before full removal to
// drain binds": a disabled global is no longer enumerated to a freshly
// created wl_registry, but a client that already saw it before it was
// disabled can still bind it.
func TestGlobalDisableHidesFromNewEnumerationButStillBindable(t *testing.T) {
	s := &Server{clients: map[*Client]struct{}{}}
	s.registry = newRegistry(s)
	c1, peer1 := newClientOnServer(t, s)

	peer1.send(1, 1, protocol.Display.Requests[1].Signature, []wire.Value{wire.NewIDValue(2)})
	peer1.barrier(3)

	testIface := &protocol.InterfaceDesc{Name: "test_singleton", MaxVersion: 1}
	g := s.registry.Add(testIface, 1, func(cl *Client, res *Resource, version uint32) error { return nil })
	peer1.expectMessage(protocol.Registry.Events[0].Signature)

	g.Disable()

	c2, peer2 := newClientOnServer(t, s)
	peer2.send(1, 1, protocol.Display.Requests[1].Signature, []wire.Value{wire.NewIDValue(2)})
	peer2.barrier(3)
	if _, ok := c2.LookupResource(2); !ok {
		t.Fatal("second client's wl_registry resource should exist")
	}
	// No global event should have reached the second client's registry
	// for the disabled global; a sync barrier already drained anything
	// that would have been sent ahead of it.

	bindSig := wire.Signature{{Kind: wire.KindUint}, {Kind: wire.KindNewID, GenericNewID: true}}
	peer1.send(2, 0, bindSig, []wire.Value{
		wire.UintValue(g.name),
		{Kind: wire.KindNewID, NewID: 4, NewIDInterface: "test_singleton", NewIDVersion: 1},
	})
	peer1.barrier(5)
	if _, ok := c1.LookupResource(4); !ok {
		t.Error("binding a disabled-but-already-seen global should still succeed")
	}
}

// TestGlobalVisibilityPredicate covers §3 Global's per-client visibility
// predicate: a global restricted to one client is advertised to it but
// never enumerated to a different client's wl_registry.
func TestGlobalVisibilityPredicate(t *testing.T) {
	s := &Server{clients: map[*Client]struct{}{}}
	s.registry = newRegistry(s)
	c1, peer1 := newClientOnServer(t, s)
	c2, peer2 := newClientOnServer(t, s)

	peer1.send(1, 1, protocol.Display.Requests[1].Signature, []wire.Value{wire.NewIDValue(2)})
	peer1.barrier(3)
	peer2.send(1, 1, protocol.Display.Requests[1].Signature, []wire.Value{wire.NewIDValue(2)})
	peer2.barrier(3)

	testIface := &protocol.InterfaceDesc{Name: "test_singleton", MaxVersion: 1}
	g := s.registry.Add(testIface, 1, nil)
	g.SetVisibility(func(cl *Client) bool { return cl == c1 })

	global := peer1.expectMessage(protocol.Registry.Events[0].Signature)
	if global.Args[0].Uint != g.name {
		t.Errorf("c1 should have been advertised the global, got %+v", global)
	}

	if _, ok := c2.LookupResource(2); !ok {
		t.Fatal("c2's wl_registry resource should exist")
	}
	// c2 should never see the global: barrier again and confirm nothing
	// but the barrier's own sync/delete_id pair arrived.
	peer2.barrier(4)
}

// TestBindSuccess is spec.md §8 scenario S2/S3's happy path: binding a
// known, visible global creates a resource and invokes its bind callback.
func TestBindSuccess(t *testing.T) {
	c, peer := newClientPair(t)

	peer.send(1, 1, protocol.Display.Requests[1].Signature, []wire.Value{wire.NewIDValue(2)})
	peer.barrier(3)

	boundVersion := make(chan uint32, 1)
	testIface := &protocol.InterfaceDesc{Name: "test_singleton", MaxVersion: 3}
	g := c.server.registry.Add(testIface, 3, func(cl *Client, res *Resource, version uint32) error {
		boundVersion <- version
		return nil
	})
	peer.expectMessage(protocol.Registry.Events[0].Signature)

	bindSig := wire.Signature{{Kind: wire.KindUint}, {Kind: wire.KindNewID, GenericNewID: true}}
	peer.send(2, 0, bindSig, []wire.Value{
		wire.UintValue(g.name),
		{Kind: wire.KindNewID, NewID: 3, NewIDInterface: "test_singleton", NewIDVersion: 2},
	})

	select {
	case v := <-boundVersion:
		if v != 2 {
			t.Errorf("bind callback saw version %d, want 2", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bind callback never ran")
	}

	res, ok := c.LookupResource(3)
	if !ok || res.Interface() != "test_singleton" {
		t.Errorf("LookupResource(3) = %+v, %v, want a live test_singleton resource", res, ok)
	}
}

// TestBindUnknownNameKillsClient is §8 scenario S3: binding a name the
// client's registry was never shown posts a protocol error and kills
// the connection.
func TestBindUnknownNameKillsClient(t *testing.T) {
	c, peer := newClientPair(t)

	peer.send(1, 1, protocol.Display.Requests[1].Signature, []wire.Value{wire.NewIDValue(2)})
	peer.barrier(3)

	bindSig := wire.Signature{{Kind: wire.KindUint}, {Kind: wire.KindNewID, GenericNewID: true}}
	peer.send(2, 0, bindSig, []wire.Value{
		wire.UintValue(999),
		{Kind: wire.KindNewID, NewID: 3, NewIDInterface: "anything", NewIDVersion: 1},
	})

	errEvent := peer.expectMessage(protocol.Display.Events[0].Signature)
	if errEvent.Sender != 1 || errEvent.Opcode != 0 {
		t.Fatalf("expected wl_display.error, got %+v", errEvent)
	}
	if errEvent.Args[1].Uint != uint32(protocol.ErrorInvalidObject) {
		t.Errorf("error code = %d, want ErrorInvalidObject", errEvent.Args[1].Uint)
	}

	if latched := c.latched(); latched == nil {
		t.Error("client should have latched a protocol error")
	}
}

// TestUnknownOpcodeKillsClient is §8 scenario S6: a request opcode the
// target's descriptor doesn't have causes the dispatch core to post
// ErrorInvalidMethod and kill the connection.
func TestUnknownOpcodeKillsClient(t *testing.T) {
	c, peer := newClientPair(t)

	peer.send(1, 99, wire.Signature{}, nil)

	errEvent := peer.expectMessage(protocol.Display.Events[0].Signature)
	if errEvent.Args[1].Uint != uint32(protocol.ErrorInvalidMethod) {
		t.Errorf("error code = %d, want ErrorInvalidMethod", errEvent.Args[1].Uint)
	}
	if c.latched() == nil {
		t.Error("client should have latched a protocol error after an invalid method")
	}
}

// TestSyncReplyAndDeleteID is §8 scenario S1's server-side half: a
// wl_display.sync request gets a wl_callback.done event followed
// immediately by a delete_id for the same id (§9 destructor ordering).
func TestSyncReplyAndDeleteID(t *testing.T) {
	c, peer := newClientPair(t)

	peer.send(1, 0, protocol.Display.Requests[0].Signature, []wire.Value{wire.NewIDValue(2)})

	done := peer.expectMessage(protocol.Callback.Events[0].Signature)
	if done.Sender != 2 || done.Opcode != 0 {
		t.Fatalf("got %+v, want wl_callback.done on id 2", done)
	}

	deleted := peer.expectMessage(protocol.Display.Events[1].Signature)
	if deleted.Opcode != 1 || deleted.Args[0].Uint != 2 {
		t.Fatalf("got %+v, want delete_id(2)", deleted)
	}

	if _, ok := c.LookupResource(2); ok {
		t.Error("callback resource should have been reclaimed after delete_id")
	}
}

// TestKillDestroysEveryResource covers connection teardown: after Kill,
// every live resource (here wl_display and the wl_registry) is gone from
// the client's object map. The reverse-creation order of that teardown is
// checked by TestKillInvokesDestroyNotifyInReverseOrder.
func TestKillDestroysEveryResource(t *testing.T) {
	c, peer := newClientPair(t)

	peer.send(1, 1, protocol.Display.Requests[1].Signature, []wire.Value{wire.NewIDValue(2)})
	peer.barrier(3)

	if _, ok := c.LookupResource(1); !ok {
		t.Fatal("wl_display should still be live before Kill")
	}
	if _, ok := c.LookupResource(2); !ok {
		t.Fatal("wl_registry resource should be live before Kill")
	}

	c.Kill(uint32(protocol.ErrorImplementation), 1, "wl_display", "shutting down")

	if _, ok := c.LookupResource(1); ok {
		t.Error("wl_display should have been destroyed by Kill")
	}
	if _, ok := c.LookupResource(2); ok {
		t.Error("wl_registry resource should have been destroyed by Kill")
	}
}

// TestFDPassingEndToEnd is spec.md §8 scenario S4: an fd argument sent
// through a bound resource's request arrives as a descriptor referring to
// the same file (compared by fstat, not numeric fd), with its contents
// readable after a seek to the start.
func TestFDPassingEndToEnd(t *testing.T) {
	c, peer := newClientPair(t)

	peer.send(1, 1, protocol.Display.Requests[1].Signature, []wire.Value{wire.NewIDValue(2)})
	peer.barrier(3)

	shmIface := &protocol.InterfaceDesc{
		Name:       "test_shm",
		MaxVersion: 1,
		Requests: []protocol.MessageDesc{
			{Name: "create_pool", Signature: wire.Signature{{Kind: wire.KindFD}, {Kind: wire.KindInt}}},
		},
	}
	got := make(chan int, 1)
	g := c.server.registry.Add(shmIface, 1, func(cl *Client, res *Resource, version uint32) error {
		res.SetDispatcher(func(opcode uint16, args []wire.Value) error {
			got <- args[0].Fd
			return nil
		})
		return nil
	})
	peer.expectMessage(protocol.Registry.Events[0].Signature)

	f, err := os.CreateTemp(t.TempDir(), "pool")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString("I like trains!"); err != nil {
		t.Fatalf("writing tempfile: %v", err)
	}

	bindSig := wire.Signature{{Kind: wire.KindUint}, {Kind: wire.KindNewID, GenericNewID: true}}
	peer.send(2, 0, bindSig, []wire.Value{
		wire.UintValue(g.name),
		{Kind: wire.KindNewID, NewID: 4, NewIDInterface: "test_shm", NewIDVersion: 1},
	})
	peer.send(4, 0, shmIface.Requests[0].Signature,
		[]wire.Value{wire.FDValue(int(f.Fd())), wire.IntValue(42)})

	var fd int
	select {
	case fd = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("create_pool handler never ran")
	}
	defer unix.Close(fd)

	var want, have unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &want); err != nil {
		t.Fatalf("fstat original: %v", err)
	}
	if err := unix.Fstat(fd, &have); err != nil {
		t.Fatalf("fstat received: %v", err)
	}
	if want.Dev != have.Dev || want.Ino != have.Ino {
		t.Errorf("received fd refers to (dev=%d, ino=%d), want (dev=%d, ino=%d)",
			have.Dev, have.Ino, want.Dev, want.Ino)
	}

	if _, err := unix.Seek(fd, 0, 0); err != nil {
		t.Fatalf("seek: %v", err)
	}
	buf := make([]byte, 32)
	n, err := unix.Read(fd, buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "I like trains!" {
		t.Errorf("read %q through the received fd, want %q", buf[:n], "I like trains!")
	}
}

// TestNewServerResourceAllocatesServerNamespace checks the event-created
// object path: server-side allocations land at or above the namespace
// floor and are immediately resolvable (§3 Object map, §4.B).
func TestNewServerResourceAllocatesServerNamespace(t *testing.T) {
	c, _ := newClientPair(t)

	iface := &protocol.InterfaceDesc{Name: "test_offer", MaxVersion: 1}
	res := c.NewServerResource(iface, 1)
	if res.ID() < objmap.ServerIDStart {
		t.Errorf("server-allocated id %d is below the namespace floor %d", res.ID(), objmap.ServerIDStart)
	}
	if res.Version() != 1 {
		t.Errorf("resource version = %d, want 1", res.Version())
	}
	if _, ok := c.LookupResource(res.ID()); !ok {
		t.Error("freshly allocated server resource should be resolvable by id")
	}
}

// TestClientChosenServerNamespaceIDRejected covers §4.E step 4: a request
// new_id at or above the client/server boundary is never inserted.
func TestClientChosenServerNamespaceIDRejected(t *testing.T) {
	c, _ := newClientPair(t)
	if _, err := newResource(c, objmap.ServerIDStart, protocol.Callback, 1); err == nil {
		t.Fatal("newResource should reject a client-chosen id in the server namespace")
	}
}

// TestListenDisplayAutoAssign covers §6's socket naming: with no explicit
// name, the server takes the first free wayland-N under XDG_RUNTIME_DIR.
func TestListenDisplayAutoAssign(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)

	s0, name0, err := ListenDisplay("")
	if err != nil {
		t.Fatalf("first ListenDisplay: %v", err)
	}
	defer s0.Close()
	if name0 != "wayland-0" {
		t.Errorf("first auto-assigned name = %q, want wayland-0", name0)
	}

	s1, name1, err := ListenDisplay("")
	if err != nil {
		t.Fatalf("second ListenDisplay: %v", err)
	}
	defer s1.Close()
	if name1 != "wayland-1" {
		t.Errorf("second auto-assigned name = %q, want wayland-1", name1)
	}

	s2, name2, err := ListenDisplay("wayland-test")
	if err != nil {
		t.Fatalf("named ListenDisplay: %v", err)
	}
	defer s2.Close()
	if name2 != "wayland-test" {
		t.Errorf("explicit name came back as %q", name2)
	}
	if _, err := os.Stat(filepath.Join(dir, "wayland-test")); err != nil {
		t.Errorf("socket file missing: %v", err)
	}
}

// TestKillInvokesDestroyNotifyInReverseOrder checks that Kill fires each
// surviving resource's destroy callback exactly once, in the reverse of
// creation order, before the client record is torn down (§5 Cancellation).
func TestKillInvokesDestroyNotifyInReverseOrder(t *testing.T) {
	c, peer := newClientPair(t)

	peer.send(1, 1, protocol.Display.Requests[1].Signature, []wire.Value{wire.NewIDValue(2)})
	peer.barrier(3)

	registry, ok := c.LookupResource(2)
	if !ok {
		t.Fatal("wl_registry resource should exist")
	}

	var fired []uint32
	registry.SetDestroyNotify(func() { fired = append(fired, 2) })
	c.display.SetDestroyNotify(func() { fired = append(fired, 1) })

	c.Kill(uint32(protocol.ErrorImplementation), 1, "wl_display", "shutting down")

	if len(fired) != 2 || fired[0] != 2 || fired[1] != 1 {
		t.Fatalf("destroy notify order = %v, want [2 1] (reverse creation order)", fired)
	}
}
