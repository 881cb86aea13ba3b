// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gen

import (
	"bytes"
	"text/template"

	"github.com/pkg/errors"

	"github.com/waylandgo/wlcore/scanner/common"
	"github.com/waylandgo/wlcore/scanner/ir"
)

var (
	typesTmpl  = mustParse("types", typesTmplSrc)
	clientTmpl = mustParse("client", clientTmplSrc)
	serverTmpl = mustParse("server", serverTmplSrc)
)

// File is one generated source file: its suggested base name and
// formatted content.
type File struct {
	Name    string
	Content []byte
}

// Generate renders proto into three Go source files -- interface
// descriptors and enums, the client-side proxy wrappers, and the
// server-side resource wrappers -- all in package pkg. Output is
// deterministic: the same protocol and package name always produce
// byte-identical files (§8 property 5).
func Generate(proto ir.Protocol, pkg string) ([]File, error) {
	pv := buildProtocolView(proto, pkg)

	types, err := render(typesTmpl, pv)
	if err != nil {
		return nil, errors.Wrap(err, "gen: rendering types")
	}
	cl, err := render(clientTmpl, pv)
	if err != nil {
		return nil, errors.Wrap(err, "gen: rendering client")
	}
	sv, err := render(serverTmpl, pv)
	if err != nil {
		return nil, errors.Wrap(err, "gen: rendering server")
	}

	return []File{
		{Name: proto.Name + "_types.go", Content: types},
		{Name: proto.Name + "_client.go", Content: cl},
		{Name: proto.Name + "_server.go", Content: sv},
	}, nil
}

func render(t *template.Template, pv protocolView) ([]byte, error) {
	var raw bytes.Buffer
	if err := t.Execute(&raw, pv); err != nil {
		return nil, err
	}
	return common.Gofmt(raw.Bytes())
}
