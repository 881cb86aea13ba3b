// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command wlscanner turns Wayland protocol XML files into Go bindings
// (§4.H Code generation).
package main

import (
	"context"
	"flag"
	"os"

	"github.com/golang/glog"
	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&generateCmd{}, "")

	flag.Parse()
	defer glog.Flush()

	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
