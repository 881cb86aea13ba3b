// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package wire

// Writer buffers encoded outbound messages and drains them to a Socket,
// implementing §4.A's "Writing" section: partial writes retain their
// unwritten tail, and fds are handed to the socket in the same order
// their messages were appended.
type Writer struct {
	sock *Socket
	buf  []byte
	fds  []int
}

// NewWriter creates a Writer draining to sock.
func NewWriter(sock *Socket) *Writer {
	return &Writer{sock: sock}
}

// Append adds one already-encoded message (as produced by Encode) to the
// outbound buffer.
func (w *Writer) Append(data []byte, fds []int) {
	w.buf = append(w.buf, data...)
	w.fds = append(w.fds, fds...)
}

// Pending reports whether there is unflushed outbound data.
func (w *Writer) Pending() bool {
	return len(w.buf) > 0 || len(w.fds) > 0
}

// Flush drains as much of the outbound buffer as the socket will accept
// without blocking. It returns ErrWouldBlock (the buffer is not fully
// flushed, but some or all of it may have gone out) or nil once the
// buffer is fully drained.
func (w *Writer) Flush() error {
	for len(w.buf) > 0 || len(w.fds) > 0 {
		n, fdn, err := w.sock.SendOnce(w.buf, w.fds)
		if err != nil {
			return err
		}
		w.buf = w.buf[n:]
		w.fds = w.fds[fdn:]
		if n == 0 && fdn == 0 {
			// Kernel accepted nothing more this call; avoid busy-looping.
			return ErrWouldBlock
		}
	}
	return nil
}

// BlockingFlush repeatedly flushes, waiting for writability between
// attempts, until the buffer is fully drained. This is the
// blocking_flush variant from §5 Suspension points.
func (w *Writer) BlockingFlush() error {
	for w.Pending() {
		err := w.Flush()
		if err == nil {
			return nil
		}
		if err != ErrWouldBlock {
			return err
		}
		if err := w.sock.WaitWritable(-1); err != nil && err != ErrWouldBlock {
			return err
		}
	}
	return nil
}
