// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package gen turns a parsed protocol (scanner/ir) into Go source: a
// protocol.InterfaceDesc table driving the engine's dispatch core, enum
// and bitfield types, and typed client Proxy / server Resource wrappers.
// Like the teacher's golang backend, the heavy lifting -- resolving
// names, argument types, and opcodes -- happens in an intermediate view
// model built in Go; the templates in templates.go only stringify it
// (§4.H Code generation).
package gen

import (
	"fmt"
	"strings"

	"github.com/waylandgo/wlcore/scanner/common"
	"github.com/waylandgo/wlcore/scanner/ir"
)

// goDocComment renders a parsed <description> (its one-line summary
// attribute and/or its free-text body) as a block of "// "-prefixed
// godoc lines beginning with goName, matching Go's "comment starts with
// the declared name" convention. Returns "" when the XML carried
// neither, letting the caller's template fall back to a synthesized
// one-liner instead (§4.H.6, SPEC_FULL "Supplemented features").
func goDocComment(goName, summary, description string) string {
	summary = strings.TrimSpace(summary)
	description = strings.TrimSpace(description)
	if summary == "" && description == "" {
		return ""
	}
	var lines []string
	if summary != "" {
		lines = append(lines, goName+" "+summary)
	} else {
		lines = append(lines, goName+":")
	}
	if description != "" && description != summary {
		lines = append(lines, "")
		for _, l := range strings.Split(description, "\n") {
			lines = append(lines, strings.TrimSpace(l))
		}
	}
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if l == "" {
			b.WriteString("//")
		} else {
			b.WriteString("// " + l)
		}
	}
	return b.String()
}

// argView is one argument, resolved to the Go types and wire
// expressions the templates need.
type argView struct {
	WireName string
	GoName   string
	GoType   string
	IsNewID  bool
	WireKind   string // wire.KindXxx identifier for the Signature literal
	ValueExpr  string // builds a wire.Value from the Go-typed parameter (requests)
	DecodeExpr string // extracts the Go-typed value from a decoded wire.Value (events/handlers)
}

// messageView is one request or event, resolved for code generation.
type messageView struct {
	WireName   string
	GoName     string
	Opcode     int
	Since      int
	Destructor bool
	Args       []argView

	HasNewID    bool
	NewIDArg    argView
	ChildIface  string // empty for the generic (bind-style) new_id
	ChildGoType string

	Summary     string
	Description string
}

// DocComment renders m's parsed <description>, if any, as godoc lines
// ready to splice directly above the generated method (§4.H.6).
func (m messageView) DocComment() string {
	return goDocComment(m.GoName, m.Summary, m.Description)
}

// SignatureLiteral renders m's wire.Signature as a Go composite literal.
func (m messageView) SignatureLiteral() string {
	s := "wire.Signature{"
	for _, a := range m.Args {
		s += "{Kind: " + a.WireKind
		if a.IsNewID && m.ChildIface == "" {
			s += ", GenericNewID: true"
		}
		s += "}, "
	}
	return s + "}"
}

// NewIDInterfaceLiteral renders the trailing `, NewIDInterface: "..."`
// struct field text for m, or "" if m has no fixed-interface new_id.
func (m messageView) NewIDInterfaceLiteral() string {
	if m.ChildIface == "" {
		return ""
	}
	return fmt.Sprintf(", NewIDInterface: %q", m.ChildIface)
}

// ClientParams renders m's non-new_id arguments as a Go parameter list
// ("a int32, b string"), suitable for both a client request method and a
// server event-sending method -- both send the same direction of data.
func (m messageView) ClientParams() string {
	s := ""
	for _, a := range m.Args {
		if a.IsNewID {
			continue
		}
		if s != "" {
			s += ", "
		}
		s += a.GoName + " " + a.GoType
	}
	return s
}

// EventParams renders m's full argument list -- new_id included, typed
// as the raw uint32 id -- for a listener callback signature. The decoded
// id of a new_id-created child is resolvable through
// Connection.LookupProxy.
func (m messageView) EventParams() string {
	s := ""
	for _, a := range m.Args {
		if s != "" {
			s += ", "
		}
		s += a.GoName + " " + a.GoType
	}
	return s
}

// HandlerParamsPrefixed is EventParams with a leading ", " for splicing
// after a request handler's resource parameter; requests deliver their
// new_id too, since the dispatch core has already constructed the child
// resource at that id by the time the handler runs.
func (m messageView) HandlerParamsPrefixed() string {
	p := m.EventParams()
	if p == "" {
		return ""
	}
	return ", " + p
}

// GenericParams is ClientParams extended with the explicit child
// interface and version a generic (wl_registry.bind-style) new_id
// request must be told, since the XML gives it no fixed interface to
// infer them from (§9 generic new-id).
func (m messageView) GenericParams() string {
	p := m.ClientParams()
	if p != "" {
		p += ", "
	}
	return p + "iface *protocol.InterfaceDesc, version uint32"
}

// ServerArgs is ClientArgs for the event-sending direction: the new_id
// slot carries the freshly server-allocated child's id rather than a
// zero placeholder the dispatch core fills in.
func (m messageView) ServerArgs() string {
	s := ""
	for _, a := range m.Args {
		if s != "" {
			s += ", "
		}
		if a.IsNewID {
			s += "wire.NewIDValue(child.ID())"
		} else {
			s += a.ValueExpr
		}
	}
	return s
}

// ClientArgs renders m's arguments as a wire.Value composite literal body
// ("wire.IntValue(a), wire.StringValue(b)"), in wire order including the
// new_id placeholder.
func (m messageView) ClientArgs() string {
	s := ""
	for _, a := range m.Args {
		if s != "" {
			s += ", "
		}
		s += a.ValueExpr
	}
	return s
}

// ClientDecodeArgs renders the argument list an event listener callback
// is invoked with, decoding each wire.Value (skipping no args, since
// events carry no parameters to omit).
func (m messageView) ClientDecodeArgs() string {
	s := ""
	for _, a := range m.Args {
		if s != "" {
			s += ", "
		}
		s += a.DecodeExpr
	}
	return s
}

// ServerDecodeArgsPrefixed renders the argument list a request handler
// callback is invoked with (after the leading resource parameter),
// decoding each wire.Value.
func (m messageView) ServerDecodeArgsPrefixed() string {
	s := ""
	for _, a := range m.Args {
		s += ", " + a.DecodeExpr
	}
	return s
}

// enumEntryView is one named value of an enum.
type enumEntryView struct {
	GoName string
	Value  uint32
}

// enumView is one enum or bitfield, resolved for code generation.
type enumView struct {
	GoType   string
	Bitfield bool
	Entries  []enumEntryView

	Summary string
}

// DocComment renders e's parsed <description> summary, if any, as a
// godoc line for the generated enum type (§4.H.6).
func (e enumView) DocComment() string {
	return goDocComment(e.GoType, e.Summary, "")
}

// interfaceView is one interface, resolved for code generation.
type interfaceView struct {
	WireName   string
	GoType     string
	MaxVersion int
	Requests   []messageView
	Events     []messageView
	Enums      []enumView

	Summary     string
	Description string
}

// DocComment renders iface's parsed <description>, if any, as godoc
// lines for the generated proxy/resource wrapper type (§4.H.6).
func (iv interfaceView) DocComment() string {
	return goDocComment(iv.GoType, iv.Summary, iv.Description)
}

// protocolView is the top-level input to the templates.
type protocolView struct {
	Package    string
	Name       string
	Interfaces []interfaceView

	// HasEnums and HasGenericNewID gate imports in the templates: a
	// protocol with no enums must not import fmt in its types file, and
	// one with no bind-style request must not import protocol in its
	// client file.
	HasEnums        bool
	HasGenericNewID bool
}

func goIfaceType(name string) string {
	return common.ToUpperCamelCase(name)
}

func goMessageName(name string) string {
	return common.ToUpperCamelCase(name)
}

func goEnumType(ifaceName, enumName string) string {
	return common.ToUpperCamelCase(ifaceName + "_" + enumName)
}

func goEnumEntryName(ifaceName, enumName, entryName string) string {
	return common.ToUpperCamelCase(ifaceName + "_" + enumName + "_" + entryName)
}

// enumGoTypeFor resolves an arg's Enum reference ("enum" or
// "interface.enum", per wayland.dtd) against the owning protocol,
// returning the concrete Go type name for that enum's underlying type.
func enumGoTypeFor(proto ir.Protocol, owningIface, ref string) (string, bool) {
	ifaceName, enumName := owningIface, ref
	for i := 0; i < len(ref); i++ {
		if ref[i] == '.' {
			ifaceName, enumName = ref[:i], ref[i+1:]
			break
		}
	}
	iface, ok := proto.FindInterface(ifaceName)
	if !ok {
		return "", false
	}
	if _, ok := iface.FindEnum(enumName); !ok {
		return "", false
	}
	return goEnumType(ifaceName, enumName), true
}

func goArgName(wireName string) string {
	return common.EscapeReserved(common.ToLowerCamelCase(wireName))
}

func buildArgView(proto ir.Protocol, owningIface string, a ir.Arg, index int, isEvent bool) argView {
	name := goArgName(a.Name)
	ref := fmt.Sprintf("args[%d]", index)
	v := argView{WireName: a.Name, GoName: name}

	switch a.Type {
	case ir.ArgInt:
		v.GoType = "int32"
		v.WireKind = "wire.KindInt"
		v.ValueExpr = fmt.Sprintf("wire.IntValue(%s)", name)
		v.DecodeExpr = ref + ".Int"
	case ir.ArgUint:
		v.WireKind = "wire.KindUint"
		if a.Enum != "" {
			if t, ok := enumGoTypeFor(proto, owningIface, a.Enum); ok {
				v.GoType = t
				v.ValueExpr = fmt.Sprintf("wire.UintValue(uint32(%s))", name)
				v.DecodeExpr = t + "(" + ref + ".Uint)"
				break
			}
		}
		v.GoType = "uint32"
		v.ValueExpr = fmt.Sprintf("wire.UintValue(%s)", name)
		v.DecodeExpr = ref + ".Uint"
	case ir.ArgFixed:
		v.GoType = "wire.Fixed"
		v.WireKind = "wire.KindFixed"
		v.ValueExpr = fmt.Sprintf("wire.FixedValue(%s)", name)
		v.DecodeExpr = ref + ".Fixed"
	case ir.ArgString:
		v.GoType = "string"
		v.WireKind = "wire.KindString"
		v.ValueExpr = fmt.Sprintf("wire.StringValue(%s)", name)
		v.DecodeExpr = ref + ".Str"
	case ir.ArgObject:
		v.GoType = "uint32"
		v.WireKind = "wire.KindObject"
		v.ValueExpr = fmt.Sprintf("wire.ObjectValue(%s)", name)
		v.DecodeExpr = ref + ".Object"
	case ir.ArgArray:
		v.GoType = "[]byte"
		v.WireKind = "wire.KindArray"
		v.ValueExpr = fmt.Sprintf("wire.ArrayValue(%s)", name)
		v.DecodeExpr = ref + ".Array"
	case ir.ArgFd:
		v.GoType = "int"
		v.WireKind = "wire.KindFD"
		v.ValueExpr = fmt.Sprintf("wire.FDValue(%s)", name)
		v.DecodeExpr = ref + ".Fd"
	case ir.ArgNewID:
		v.IsNewID = true
		v.GoType = "uint32"
		v.WireKind = "wire.KindNewID"
		v.ValueExpr = "wire.NewIDValue(0)"
		v.DecodeExpr = ref + ".NewID"
	}
	return v
}

func buildMessageView(proto ir.Protocol, owningIface string, m ir.Message, isEvent bool) messageView {
	mv := messageView{
		WireName:    m.Name,
		GoName:      goMessageName(m.Name),
		Opcode:      m.Index,
		Since:       m.Since,
		Destructor:  m.Destructor,
		Summary:     m.Summary,
		Description: m.Description,
	}
	for i, a := range m.Args {
		av := buildArgView(proto, owningIface, a, i, isEvent)
		mv.Args = append(mv.Args, av)
		if av.IsNewID {
			mv.HasNewID = true
			mv.NewIDArg = av
			mv.ChildIface = a.Interface
			if a.Interface != "" {
				mv.ChildGoType = goIfaceType(a.Interface)
			}
		}
	}
	return mv
}

func buildEnumView(ifaceName string, e ir.Enum) enumView {
	ev := enumView{GoType: goEnumType(ifaceName, e.Name), Bitfield: e.Bitfield, Summary: e.Summary}
	for _, entry := range e.Entries {
		ev.Entries = append(ev.Entries, enumEntryView{
			GoName: goEnumEntryName(ifaceName, e.Name, entry.Name),
			Value:  entry.Value,
		})
	}
	return ev
}

func buildInterfaceView(proto ir.Protocol, iface ir.Interface) interfaceView {
	iv := interfaceView{
		WireName:    iface.Name,
		GoType:      goIfaceType(iface.Name),
		MaxVersion:  iface.Version,
		Summary:     iface.Summary,
		Description: iface.Description,
	}
	for _, r := range iface.Requests {
		iv.Requests = append(iv.Requests, buildMessageView(proto, iface.Name, r, false))
	}
	for _, e := range iface.Events {
		iv.Events = append(iv.Events, buildMessageView(proto, iface.Name, e, true))
	}
	for _, en := range iface.Enums {
		iv.Enums = append(iv.Enums, buildEnumView(iface.Name, en))
	}
	return iv
}

func buildProtocolView(proto ir.Protocol, packageName string) protocolView {
	pv := protocolView{Package: packageName, Name: proto.Name}
	for _, iface := range proto.Interfaces {
		iv := buildInterfaceView(proto, iface)
		if len(iv.Enums) > 0 {
			pv.HasEnums = true
		}
		for _, r := range iv.Requests {
			if r.HasNewID && r.ChildIface == "" {
				pv.HasGenericNewID = true
			}
		}
		pv.Interfaces = append(pv.Interfaces, iv)
	}
	return pv
}
