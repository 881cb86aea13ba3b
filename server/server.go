// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/waylandgo/wlcore/wire"
)

// Server accepts connections on a Unix-domain listener and runs one
// Client per connection, all sharing a single Registry (§4.E, §6
// External interfaces).
type Server struct {
	listener *wire.Listener
	registry *Registry

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// Listen binds a new Server to the Unix-domain socket at path.
func Listen(path string) (*Server, error) {
	l, err := wire.Listen(path)
	if err != nil {
		return nil, err
	}
	s := &Server{listener: l, clients: map[*Client]struct{}{}}
	s.registry = newRegistry(s)
	return s, nil
}

// ListenDisplay binds a Server under ${XDG_RUNTIME_DIR} using the given
// display name, or -- when name is empty -- the first free "wayland-N"
// for N in 0..32, the compositor-side counterpart of the client's
// WAYLAND_DISPLAY resolution. It returns the chosen name so the caller
// can export it to clients.
func ListenDisplay(name string) (*Server, string, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return nil, "", errors.New("server: XDG_RUNTIME_DIR is not set")
	}
	if name != "" {
		s, err := Listen(filepath.Join(runtimeDir, name))
		return s, name, err
	}
	for n := 0; n < 32; n++ {
		name = fmt.Sprintf("wayland-%d", n)
		s, err := Listen(filepath.Join(runtimeDir, name))
		if err == nil {
			return s, name, nil
		}
		if errors.Cause(err) != unix.EADDRINUSE {
			return nil, "", err
		}
	}
	return nil, "", errors.New("server: no free wayland-N socket name")
}

// Registry returns the server's shared global registry.
func (s *Server) Registry() *Registry { return s.registry }

// Serve accepts connections until the listener is closed, running each
// client's dispatch loop in its own goroutine (§4.E synchronous
// per-connection dispatch: no cross-client locking beyond the registry).
func (s *Server) Serve() error {
	for {
		sock, err := s.listener.Accept()
		if err != nil {
			return errors.Wrap(err, "server: accept")
		}
		c := newClient(s, sock)
		s.addClient(c)
		go func() {
			defer s.removeClient(c)
			c.run()
		}()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) addClient(c *Client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) forEachClient(f func(*Client)) {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		f(c)
	}
}
