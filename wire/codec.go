// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrParse is the sentinel wrapped by every decode failure: a malformed
// wire message is always fatal to the connection (§7).
var ErrParse = errors.New("wire: parse error")

// order is the byte order used to read and write every multi-byte wire
// field. Wayland only ever runs between a client and server sharing a
// machine, so the wire is host-endian in practice; we fix it to
// LittleEndian, which is the host order on every realistic deployment
// target (x86-64, arm64), rather than detecting native order at runtime.
var order = binary.LittleEndian

func align4(n int) int {
	return (n + 3) &^ 3
}

// EncodedSize returns the number of in-band bytes msg will occupy on the
// wire (header included), and the number of fd-typed arguments it carries.
func EncodedSize(args []Value) (bytes int, fds int) {
	bytes = HeaderSize
	for _, a := range args {
		switch a.Kind {
		case KindInt, KindUint, KindFixed, KindObject, KindNewID:
			bytes += 4
		case KindString:
			bytes += 4 + align4(len(a.Str)+1)
		case KindArray:
			bytes += 4 + align4(len(a.Array))
		case KindFD:
			fds++
		}
		if a.Kind == KindNewID && a.NewIDInterface != "" {
			// generic new_id: (string interface_name, uint version) precede the id.
			bytes += 4 + align4(len(a.NewIDInterface)+1) + 4
		}
	}
	return bytes, fds
}

// Encode serializes one message's header and arguments into a freshly
// allocated byte slice, and returns the fds it carries in send order. sig
// must match args element-for-element.
func Encode(sender uint32, opcode uint16, args []Value, sig Signature) ([]byte, []int, error) {
	if len(args) != len(sig) {
		return nil, nil, errors.Errorf("wire: encode: %d args but signature wants %d", len(args), len(sig))
	}
	size, _ := EncodedSize(args)
	if size > MaxMessageSize {
		return nil, nil, errors.Errorf("wire: encode: message too large (%d bytes)", size)
	}
	buf := make([]byte, size)
	order.PutUint32(buf[0:4], sender)
	order.PutUint16(buf[4:6], uint16(size))
	order.PutUint16(buf[6:8], opcode)

	var fds []int
	off := HeaderSize
	for i, a := range args {
		switch sig[i].Kind {
		case KindInt:
			order.PutUint32(buf[off:], uint32(a.Int))
			off += 4
		case KindUint:
			order.PutUint32(buf[off:], a.Uint)
			off += 4
		case KindFixed:
			order.PutUint32(buf[off:], uint32(a.Fixed))
			off += 4
		case KindObject:
			order.PutUint32(buf[off:], a.Object)
			off += 4
		case KindNewID:
			if sig[i].GenericNewID {
				off = putString(buf, off, a.NewIDInterface)
				order.PutUint32(buf[off:], a.NewIDVersion)
				off += 4
			}
			order.PutUint32(buf[off:], a.NewID)
			off += 4
		case KindString:
			off = putString(buf, off, a.Str)
		case KindArray:
			order.PutUint32(buf[off:], uint32(len(a.Array)))
			off += 4
			copy(buf[off:], a.Array)
			off += align4(len(a.Array))
		case KindFD:
			fds = append(fds, a.Fd)
		}
	}
	return buf, fds, nil
}

func putString(buf []byte, off int, s string) int {
	n := len(s) + 1 // + null terminator
	order.PutUint32(buf[off:], uint32(n))
	off += 4
	copy(buf[off:], s)
	off += len(s)
	buf[off] = 0
	off++
	pad := align4(n) - n
	off += pad
	return off
}

// Decode parses one message's arguments out of payload (the bytes after
// the 8-byte header) according to sig, consuming fds from fds in order.
// It returns ErrParse-wrapped errors on any malformed
// input; callers must treat any error as fatal to the connection (§7).
func Decode(payload []byte, sig Signature, fds []int) ([]Value, int, error) {
	args := make([]Value, len(sig))
	off := 0
	fdIdx := 0
	for i, s := range sig {
		switch s.Kind {
		case KindInt:
			v, err := getUint32(payload, off)
			if err != nil {
				return nil, fdIdx, err
			}
			args[i] = Value{Kind: KindInt, Int: int32(v)}
			off += 4
		case KindUint:
			v, err := getUint32(payload, off)
			if err != nil {
				return nil, fdIdx, err
			}
			args[i] = Value{Kind: KindUint, Uint: v}
			off += 4
		case KindFixed:
			v, err := getUint32(payload, off)
			if err != nil {
				return nil, fdIdx, err
			}
			args[i] = Value{Kind: KindFixed, Fixed: Fixed(v)}
			off += 4
		case KindObject:
			v, err := getUint32(payload, off)
			if err != nil {
				return nil, fdIdx, err
			}
			args[i] = Value{Kind: KindObject, Object: v}
			off += 4
		case KindNewID:
			var ifaceName string
			var version uint32
			if s.GenericNewID {
				str, noff, err := getString(payload, off)
				if err != nil {
					return nil, fdIdx, err
				}
				off = noff
				v, err := getUint32(payload, off)
				if err != nil {
					return nil, fdIdx, err
				}
				version = v
				off += 4
				ifaceName = str
			}
			id, err := getUint32(payload, off)
			if err != nil {
				return nil, fdIdx, err
			}
			off += 4
			args[i] = Value{Kind: KindNewID, NewID: id, NewIDInterface: ifaceName, NewIDVersion: version}
		case KindString:
			str, noff, err := getString(payload, off)
			if err != nil {
				return nil, fdIdx, err
			}
			off = noff
			args[i] = Value{Kind: KindString, Str: str}
		case KindArray:
			n, err := getUint32(payload, off)
			if err != nil {
				return nil, fdIdx, err
			}
			off += 4
			end := off + int(n)
			if end > len(payload) {
				return nil, fdIdx, errors.Wrap(ErrParse, "array argument overruns message")
			}
			b := make([]byte, n)
			copy(b, payload[off:end])
			off += align4(int(n))
			args[i] = Value{Kind: KindArray, Array: b}
		case KindFD:
			if fdIdx >= len(fds) {
				return nil, fdIdx, errors.Wrap(ErrParse, "truncated fd stream")
			}
			args[i] = Value{Kind: KindFD, Fd: fds[fdIdx]}
			fdIdx++
		default:
			return nil, fdIdx, errors.Wrapf(ErrParse, "unknown argument type in signature: %v", s.Kind)
		}
	}
	return args, fdIdx, nil
}

func getUint32(payload []byte, off int) (uint32, error) {
	if off+4 > len(payload) {
		return 0, errors.Wrap(ErrParse, "truncated message: expected 4-byte argument")
	}
	return order.Uint32(payload[off : off+4]), nil
}

func getString(payload []byte, off int) (string, int, error) {
	n, err := getUint32(payload, off)
	if err != nil {
		return "", off, err
	}
	off += 4
	if n == 0 {
		return "", off, nil
	}
	end := off + int(n)
	if end > len(payload) {
		return "", off, errors.Wrap(ErrParse, "string argument overruns message")
	}
	// n includes the trailing null.
	s := string(payload[off : end-1])
	off += align4(int(n))
	return s, off, nil
}
