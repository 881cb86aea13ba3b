// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package common

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/pkg/errors"
)

// gofmtTimeout bounds a single formatting run; generated protocol files
// are small, so hitting it means gofmt is wedged, not busy.
const gofmtTimeout = 2 * time.Minute

// Gofmt pipes generated Go source through gofmt -s and returns the
// canonical bytes, so the emitter's output never depends on the
// templates' own whitespace decisions (§8 property 5, deterministic
// output). On failure -- gofmt missing from PATH, or the generator
// emitted unparseable source -- the unformatted input is returned
// alongside the error so a caller can still write it out for debugging.
func Gofmt(src []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gofmtTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "gofmt", "-s")
	cmd.Stdin = bytes.NewReader(src)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(errOut.Bytes()); len(msg) != 0 {
			return src, errors.Wrapf(err, "gofmt: %s", msg)
		}
		return src, errors.Wrap(err, "gofmt")
	}
	return out.Bytes(), nil
}
