// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package wire

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by non-blocking socket operations that could
// not make progress without blocking (§7 WouldBlock).
var ErrWouldBlock = errors.New("wire: would block")

// maxFDsPerSendmsg is the practical SCM_RIGHTS limit on most targets; the
// codec chunks outbound fds to stay under it (§4.A Writing).
const maxFDsPerSendmsg = 28

// Socket is a non-blocking Unix-domain SOCK_STREAM endpoint used directly
// through golang.org/x/sys/unix rather than net.UnixConn: the standard
// library's UnixConn cannot surface SCM_RIGHTS ancillary data without
// reaching into its SyscallConn, and we need raw control over partial
// sendmsg/recvmsg retries to preserve fd send order (§6, §4.A).
type Socket struct {
	fd int
}

// NewSocket wraps an already-connected or -accepted file descriptor,
// arranging for it to be closed on exec and switched to non-blocking mode.
func NewSocket(fd int) (*Socket, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, errors.Wrap(err, "wire: setting O_NONBLOCK")
	}
	unix.CloseOnExec(fd)
	return &Socket{fd: fd}, nil
}

// Dial connects to the Unix-domain socket at path.
func Dial(path string) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errors.Wrap(err, "wire: socket")
	}
	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Connect(fd, addr); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "wire: connect %s", path)
	}
	return NewSocket(fd)
}

// Listener accepts Unix-domain stream connections.
type Listener struct {
	fd int
}

// Listen binds and listens on the Unix-domain socket at path.
func Listen(path string) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errors.Wrap(err, "wire: socket")
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "wire: bind %s", path)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "wire: listen")
	}
	return &Listener{fd: fd}, nil
}

// Accept blocks (via poll) until a client connects, then returns its
// socket with CLOEXEC set per §4.A.
func (l *Listener) Accept() (*Socket, error) {
	for {
		nfd, _, err := unix.Accept4(l.fd, unix.SOCK_CLOEXEC)
		if err == nil {
			return NewSocket(nfd)
		}
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			return nil, errors.Wrap(err, "wire: accept")
		}
		if err := waitReadable(l.fd, -1); err != nil {
			return nil, err
		}
	}
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// Fd returns the underlying file descriptor.
func (s *Socket) Fd() int { return s.fd }

// CloseFD closes a raw file descriptor, used to drain fds carried by a
// message whose target object is already destroyed (§3 Object invariants,
// §9 fd leaks on dropped objects).
func CloseFD(fd int) error {
	return unix.Close(fd)
}

// Close closes the socket.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

// RecvOnce performs a single non-blocking recvmsg, returning as many bytes
// and fds as the kernel hands back without blocking. It returns
// ErrWouldBlock if nothing was available, and reports that the peer has
// closed the connection with eof == true, n == 0 and a nil error.
func (s *Socket) RecvOnce(buf []byte) (n int, fds []int, eof bool, err error) {
	oob := make([]byte, unix.CmsgSpace(maxFDsPerSendmsg*4))
	n, oobn, _, _, err := unix.Recvmsg(s.fd, buf, oob, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil, false, ErrWouldBlock
		}
		return 0, nil, false, errors.Wrap(err, "wire: recvmsg")
	}
	if n == 0 && oobn == 0 {
		return 0, nil, true, nil
	}
	if oobn > 0 {
		cmsgs, perr := unix.ParseSocketControlMessage(oob[:oobn])
		if perr != nil {
			return n, nil, false, errors.Wrap(perr, "wire: parsing SCM_RIGHTS")
		}
		for _, cmsg := range cmsgs {
			rights, rerr := unix.ParseUnixRights(&cmsg)
			if rerr != nil {
				continue
			}
			for _, fd := range rights {
				unix.CloseOnExec(fd)
			}
			fds = append(fds, rights...)
		}
	}
	return n, fds, false, nil
}

// SendOnce writes as much of data as the kernel will accept in one
// non-blocking sendmsg call, along with up to maxFDsPerSendmsg of fds.
// It returns the number of bytes and fds actually sent; callers must
// retain any remainder and retry.
func (s *Socket) SendOnce(data []byte, fds []int) (sent int, fdsSent int, err error) {
	chunk := fds
	if len(chunk) > maxFDsPerSendmsg {
		chunk = chunk[:maxFDsPerSendmsg]
	}
	var oob []byte
	if len(chunk) > 0 {
		oob = unix.UnixRights(chunk...)
	}
	n, err := unix.SendmsgN(s.fd, data, oob, nil, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, 0, ErrWouldBlock
		}
		return 0, 0, errors.Wrap(err, "wire: sendmsg")
	}
	return n, len(chunk), nil
}

// waitReadable blocks (up to timeoutMs, or indefinitely if negative) until
// fd is readable. This is the "poll primitive (epoll/kqueue) for
// multiplexing" §6 calls for; we use poll(2) through golang.org/x/sys/unix
// since a single connection only ever needs to watch one fd at a time.
func waitReadable(fd int, timeoutMs int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "wire: poll")
		}
		if n == 0 {
			return ErrWouldBlock // timed out
		}
		return nil
	}
}

// WaitReadable blocks until the socket is readable or timeout elapses.
// A negative timeout blocks indefinitely.
func (s *Socket) WaitReadable(timeout time.Duration) error {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	return waitReadable(s.fd, ms)
}

// WaitWritable blocks until the socket can accept more data.
func (s *Socket) WaitWritable(timeout time.Duration) error {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLOUT}}
	for {
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "wire: poll")
		}
		if n == 0 {
			return ErrWouldBlock
		}
		return nil
	}
}
