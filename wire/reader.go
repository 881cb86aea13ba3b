// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package wire

import (
	"github.com/pkg/errors"
)

// SignatureLookup resolves the wire signature for a message given its
// sender object id and opcode. A connection's dispatch core supplies this
// by consulting the object map and interface descriptors; the codec itself
// has no notion of interfaces.
type SignatureLookup func(sender uint32, opcode uint16) (Signature, bool)

// Reader accumulates bytes and fds off a Socket and peels off whole
// messages, implementing §4.A's "Socket I/O" read loop.
type Reader struct {
	sock *Socket
	buf  []byte
	fds  []int
}

// NewReader creates a Reader pulling from sock.
func NewReader(sock *Socket) *Reader {
	return &Reader{sock: sock}
}

// ReadMessages pulls as many bytes and fds as the kernel will hand over in
// one non-blocking recv, then decodes and delivers every whole message now
// buffered. It returns the number of messages delivered. A WouldBlock
// result after delivering zero messages means there was nothing to read;
// a WouldBlock after delivering some means the socket drained mid-message,
// which is not an error -- the partial message stays buffered for next
// time.
func (r *Reader) ReadMessages(lookup SignatureLookup, onMessage func(Message) error) (int, error) {
	chunk := make([]byte, 64*1024)
	n, fds, eof, err := r.sock.RecvOnce(chunk)
	if err != nil && err != ErrWouldBlock {
		return 0, err
	}
	recvErr := err
	if eof {
		return 0, errors.New("wire: connection closed by peer")
	}
	if n > 0 {
		r.buf = append(r.buf, chunk[:n]...)
	}
	if len(fds) > 0 {
		r.fds = append(r.fds, fds...)
	}

	dispatched := 0
	for {
		if len(r.buf) < HeaderSize {
			break
		}
		sender := order.Uint32(r.buf[0:4])
		size := int(order.Uint16(r.buf[4:6]))
		opcode := order.Uint16(r.buf[6:8])
		if size < HeaderSize {
			return dispatched, errors.Wrap(ErrParse, "message size smaller than header")
		}
		if len(r.buf) < size {
			break // wait for the rest
		}
		sig, ok := lookup(sender, opcode)
		if !ok {
			return dispatched, errors.Wrapf(ErrParse, "unknown opcode %d for object %d", opcode, sender)
		}
		args, fdCount, err := Decode(r.buf[HeaderSize:size], sig, r.fds)
		if err != nil {
			return dispatched, err
		}
		r.buf = r.buf[size:]
		r.fds = r.fds[fdCount:]

		if err := onMessage(Message{Sender: sender, Opcode: opcode, Args: args}); err != nil {
			return dispatched, err
		}
		dispatched++
	}
	if dispatched == 0 && recvErr == ErrWouldBlock {
		return 0, ErrWouldBlock
	}
	return dispatched, nil
}
