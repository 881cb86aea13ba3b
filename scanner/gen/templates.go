// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gen

import "text/template"

const typesTmplSrc = `// Code generated by wlscanner from {{.Name}}.xml; DO NOT EDIT.

package {{.Package}}

import (
{{if .HasEnums}}	"fmt"

{{end}}	"github.com/waylandgo/wlcore/protocol"
	"github.com/waylandgo/wlcore/wire"
)

{{range $iface := .Interfaces}}
var {{$iface.GoType}}Desc = &protocol.InterfaceDesc{
	Name:       "{{$iface.WireName}}",
	MaxVersion: {{$iface.MaxVersion}},
	Requests: []protocol.MessageDesc{
{{range $iface.Requests}}		{Name: "{{.WireName}}", Since: {{.Since}}, Destructor: {{.Destructor}}, Signature: {{.SignatureLiteral}}{{.NewIDInterfaceLiteral}}},
{{end}}	},
	Events: []protocol.MessageDesc{
{{range $iface.Events}}		{Name: "{{.WireName}}", Since: {{.Since}}, Destructor: {{.Destructor}}, Signature: {{.SignatureLiteral}}{{.NewIDInterfaceLiteral}}},
{{end}}	},
}

func init() {
	protocol.RegisterGlobal({{$iface.GoType}}Desc)
}
{{if or $iface.Requests $iface.Events}}
// Request and event opcodes for {{$iface.WireName}}, by list position.
const (
{{range $iface.Requests}}	{{$iface.GoType}}Request{{.GoName}}Opcode uint16 = {{.Opcode}}
{{end}}{{range $iface.Events}}	{{$iface.GoType}}Event{{.GoName}}Opcode uint16 = {{.Opcode}}
{{end}})
{{end}}
{{range $enum := $iface.Enums}}
{{if $enum.DocComment}}{{$enum.DocComment}}
{{else}}// {{$enum.GoType}} is generated from the {{if $enum.Bitfield}}bitfield{{else}}enum{{end}} declared on {{$iface.WireName}}.
{{end}}type {{$enum.GoType}} uint32

const (
{{range $enum.Entries}}	{{.GoName}} {{$enum.GoType}} = {{.Value}}
{{end}})

func (v {{$enum.GoType}}) String() string {
	switch v {
{{range $enum.Entries}}	case {{.GoName}}:
		return "{{.GoName}}"
{{end}}	default:
		return fmt.Sprintf("{{$enum.GoType}}(%d)", uint32(v))
	}
}
{{if $enum.Bitfield}}
// Has reports whether every bit set in mask is also set in v.
func (v {{$enum.GoType}}) Has(mask {{$enum.GoType}}) bool { return v&mask == mask }
{{end}}
{{end}}
{{end}}
`

const clientTmplSrc = `// Code generated by wlscanner from {{.Name}}.xml; DO NOT EDIT.

package {{.Package}}

import (
	"github.com/waylandgo/wlcore/client"
{{if .HasGenericNewID}}	"github.com/waylandgo/wlcore/protocol"
{{end}}	"github.com/waylandgo/wlcore/wire"
)

{{range $iface := .Interfaces}}
{{if $iface.DocComment}}{{$iface.DocComment}}
{{else}}// {{$iface.GoType}} is the client-side proxy wrapper for {{$iface.WireName}}.
{{end}}type {{$iface.GoType}} struct {
	*client.Proxy
}
{{range $req := $iface.Requests}}
{{if $req.ChildGoType}}
{{if $req.DocComment}}{{$req.DocComment}}
{{else}}// {{$req.GoName}} sends the {{$req.WireName}} request, creating and returning a new {{$req.ChildGoType}}.
{{end}}func (p *{{$iface.GoType}}) {{$req.GoName}}({{$req.ClientParams}}) (*{{$req.ChildGoType}}, error) {
	child, err := p.SendRequest({{$req.Opcode}}, []wire.Value{ {{$req.ClientArgs}} }, nil, p.Version())
	if err != nil {
		return nil, err
	}
	return &{{$req.ChildGoType}}{Proxy: child}, nil
}
{{else if $req.HasNewID}}
{{if $req.DocComment}}{{$req.DocComment}}
{{else}}// {{$req.GoName}} sends the {{$req.WireName}} request, creating and returning a proxy of the explicitly given interface at the given version.
{{end}}func (p *{{$iface.GoType}}) {{$req.GoName}}({{$req.GenericParams}}) (*client.Proxy, error) {
	return p.SendRequest({{$req.Opcode}}, []wire.Value{ {{$req.ClientArgs}} }, iface, version)
}
{{else}}
{{if $req.DocComment}}{{$req.DocComment}}
{{else}}// {{$req.GoName}} sends the {{$req.WireName}} request.
{{end}}func (p *{{$iface.GoType}}) {{$req.GoName}}({{$req.ClientParams}}) error {
	_, err := p.SendRequest({{$req.Opcode}}, []wire.Value{ {{$req.ClientArgs}} }, nil, 0)
	return err
}
{{end}}
{{end}}
{{if $iface.Events}}
// {{$iface.GoType}}Listener holds the callbacks a SetListener call installs for
// {{$iface.WireName}}'s events. A nil field means that event is ignored.
type {{$iface.GoType}}Listener struct {
{{range $iface.Events}}	{{.GoName}} func({{.EventParams}})
{{end}}}

// SetListener registers l's callbacks as the event dispatcher for p.
func (p *{{$iface.GoType}}) SetListener(l {{$iface.GoType}}Listener) {
	p.Proxy.SetDispatcher(func(opcode uint16, args []wire.Value) error {
		switch opcode {
{{range $iface.Events}}		case {{.Opcode}}:
			if l.{{.GoName}} != nil {
				l.{{.GoName}}({{.ClientDecodeArgs}})
			}
{{end}}		}
		return nil
	})
}
{{end}}
{{end}}
`

const serverTmplSrc = `// Code generated by wlscanner from {{.Name}}.xml; DO NOT EDIT.

package {{.Package}}

import (
	"github.com/waylandgo/wlcore/server"
	"github.com/waylandgo/wlcore/wire"
)

{{range $iface := .Interfaces}}
{{if $iface.DocComment}}{{$iface.DocComment}}
{{else}}// {{$iface.GoType}}Resource is the server-side resource wrapper for {{$iface.WireName}}.
{{end}}type {{$iface.GoType}}Resource struct {
	*server.Resource
}
{{range $ev := $iface.Events}}
{{if $ev.ChildGoType}}
{{if $ev.DocComment}}{{$ev.DocComment}}
{{else}}// {{$ev.GoName}} allocates a new {{$ev.ChildGoType}}Resource in the server namespace and announces it with the {{$ev.WireName}} event.
{{end}}func (r *{{$iface.GoType}}Resource) {{$ev.GoName}}({{$ev.ClientParams}}) (*{{$ev.ChildGoType}}Resource, error) {
	child := r.Client().NewServerResource({{$ev.ChildGoType}}Desc, r.Version())
	if err := r.SendEvent({{$ev.Opcode}}, []wire.Value{ {{$ev.ServerArgs}} }); err != nil {
		return nil, err
	}
	return &{{$ev.ChildGoType}}Resource{Resource: child}, nil
}
{{else}}
{{if $ev.DocComment}}{{$ev.DocComment}}
{{else}}// {{$ev.GoName}} sends the {{$ev.WireName}} event.
{{end}}func (r *{{$iface.GoType}}Resource) {{$ev.GoName}}({{$ev.ClientParams}}) error {
	return r.SendEvent({{$ev.Opcode}}, []wire.Value{ {{$ev.ClientArgs}} })
}
{{end}}
{{end}}
{{if $iface.Requests}}
// {{$iface.GoType}}Handler holds the callbacks a SetHandler call installs for
// {{$iface.WireName}}'s requests. A nil field means that request is a no-op
// beyond whatever destructor/new_id bookkeeping the dispatch core already
// performs for it.
type {{$iface.GoType}}Handler struct {
{{range $iface.Requests}}	{{.GoName}} func(r *{{$iface.GoType}}Resource{{.HandlerParamsPrefixed}})
{{end}}}

// SetHandler registers h's callbacks as the request dispatcher for r.
func (r *{{$iface.GoType}}Resource) SetHandler(h {{$iface.GoType}}Handler) {
	r.Resource.SetDispatcher(func(opcode uint16, args []wire.Value) error {
		switch opcode {
{{range $iface.Requests}}		case {{.Opcode}}:
			if h.{{.GoName}} != nil {
				h.{{.GoName}}(r{{.ServerDecodeArgsPrefixed}})
			}
{{end}}		}
		return nil
	})
}
{{end}}
{{end}}
`

func mustParse(name, src string) *template.Template {
	return template.Must(template.New(name).Parse(src))
}
