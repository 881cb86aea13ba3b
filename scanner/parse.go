// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package scanner

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/waylandgo/wlcore/scanner/ir"
)

// XMLError is a typed scanner failure carrying the line/column the XML
// decoder was positioned at when the problem was found.
type XMLError struct {
	Line, Column int
	Msg          string
}

func (e *XMLError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}

func xmlErrorAt(d *xml.Decoder, format string, args ...interface{}) error {
	line, col := d.InputPos()
	return &XMLError{Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

// ParseFile reads and parses a Wayland protocol XML file at path.
func ParseFile(path string) (ir.Protocol, error) {
	f, err := os.Open(path)
	if err != nil {
		return ir.Protocol{}, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return Parse(f)
}

// wire-level XML schema, mirroring wayland.dtd closely enough to decode it
// with encoding/xml; semantic validation happens in the link pass below.

type xmlArg struct {
	Name      string `xml:"name,attr"`
	Type      string `xml:"type,attr"`
	Interface string `xml:"interface,attr"`
	AllowNull string `xml:"allow-null,attr"`
	Enum      string `xml:"enum,attr"`
	Summary   string `xml:"summary,attr"`
}

type xmlDescription struct {
	Summary string `xml:"summary,attr"`
	Text    string `xml:",chardata"`
}

type xmlMessage struct {
	Name        string           `xml:"name,attr"`
	Since       string           `xml:"since,attr"`
	Type        string           `xml:"type,attr"`
	Description *xmlDescription  `xml:"description"`
	Args        []xmlArg         `xml:"arg"`
}

type xmlEntry struct {
	Name    string `xml:"name,attr"`
	Value   string `xml:"value,attr"`
	Since   string `xml:"since,attr"`
	Summary string `xml:"summary,attr"`
}

type xmlEnum struct {
	Name        string          `xml:"name,attr"`
	Bitfield    string          `xml:"bitfield,attr"`
	Description *xmlDescription `xml:"description"`
	Entries     []xmlEntry      `xml:"entry"`
}

type xmlInterface struct {
	Name        string          `xml:"name,attr"`
	Version     string          `xml:"version,attr"`
	Description *xmlDescription `xml:"description"`
	Requests    []xmlMessage    `xml:"request"`
	Events      []xmlMessage    `xml:"event"`
	Enums       []xmlEnum       `xml:"enum"`
}

type xmlProtocol struct {
	Name       string         `xml:"name,attr"`
	Copyright  string         `xml:"copyright"`
	Interfaces []xmlInterface `xml:"interface"`
}

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Parse parses Wayland protocol XML from r into the semantic model,
// validating it along the way. Parse failures carry line/column info from
// the XML decoder; the emitter itself never fails (§4.H Failure semantics).
func Parse(r io.Reader) (ir.Protocol, error) {
	dec := xml.NewDecoder(r)

	var raw xmlProtocol
	if err := dec.Decode(&raw); err != nil {
		if se, ok := err.(*xml.SyntaxError); ok {
			return ir.Protocol{}, &XMLError{Line: se.Line, Msg: se.Msg}
		}
		return ir.Protocol{}, xmlErrorAt(dec, "malformed protocol XML: %v", err)
	}
	if raw.Name == "" {
		return ir.Protocol{}, xmlErrorAt(dec, "<protocol> is missing a name attribute")
	}

	proto := ir.Protocol{Name: raw.Name, Copyright: strings.TrimSpace(raw.Copyright)}
	seenInterfaces := map[string]bool{}

	for _, xi := range raw.Interfaces {
		iface, err := convertInterface(dec, xi)
		if err != nil {
			return ir.Protocol{}, err
		}
		if seenInterfaces[iface.Name] {
			return ir.Protocol{}, xmlErrorAt(dec, "duplicate interface name %q", iface.Name)
		}
		seenInterfaces[iface.Name] = true
		proto.Interfaces = append(proto.Interfaces, iface)
	}
	return proto, nil
}

func convertInterface(dec *xml.Decoder, xi xmlInterface) (ir.Interface, error) {
	if !identRe.MatchString(xi.Name) {
		return ir.Interface{}, xmlErrorAt(dec, "invalid interface name %q: must be ASCII snake_case starting with a letter", xi.Name)
	}
	version := 1
	if xi.Version != "" {
		v, err := strconv.Atoi(xi.Version)
		if err != nil {
			return ir.Interface{}, xmlErrorAt(dec, "interface %q: invalid version %q", xi.Name, xi.Version)
		}
		version = v
	}

	iface := ir.Interface{
		Name:    xi.Name,
		Version: version,
		Summary: describeSummary(xi.Description),
		Description: describeText(xi.Description),
	}

	seenNames := map[string]bool{}
	for idx, xr := range xi.Requests {
		m, err := convertMessage(dec, xi.Name, xr, idx, false)
		if err != nil {
			return ir.Interface{}, err
		}
		if seenNames[m.Name] {
			return ir.Interface{}, xmlErrorAt(dec, "interface %q: duplicate message name %q", xi.Name, m.Name)
		}
		seenNames[m.Name] = true
		iface.Requests = append(iface.Requests, m)
	}
	seenEventNames := map[string]bool{}
	for idx, xe := range xi.Events {
		m, err := convertMessage(dec, xi.Name, xe, idx, true)
		if err != nil {
			return ir.Interface{}, err
		}
		if seenEventNames[m.Name] {
			return ir.Interface{}, xmlErrorAt(dec, "interface %q: duplicate message name %q", xi.Name, m.Name)
		}
		seenEventNames[m.Name] = true
		iface.Events = append(iface.Events, m)
	}

	for _, xe := range xi.Enums {
		e, err := convertEnum(dec, xi.Name, xe)
		if err != nil {
			return ir.Interface{}, err
		}
		iface.Enums = append(iface.Enums, e)
	}

	return iface, nil
}

func convertMessage(dec *xml.Decoder, ifaceName string, xm xmlMessage, index int, isEvent bool) (ir.Message, error) {
	if !identRe.MatchString(xm.Name) {
		return ir.Message{}, xmlErrorAt(dec, "interface %q: invalid message name %q", ifaceName, xm.Name)
	}
	since := 1
	if xm.Since != "" {
		v, err := strconv.Atoi(xm.Since)
		if err != nil {
			return ir.Message{}, xmlErrorAt(dec, "%s.%s: invalid since %q", ifaceName, xm.Name, xm.Since)
		}
		since = v
	}

	m := ir.Message{
		Name:        xm.Name,
		Since:       since,
		Destructor:  xm.Type == "destructor",
		Summary:     describeSummary(xm.Description),
		Description: describeText(xm.Description),
		Interface:   ifaceName,
		Index:       index,
	}

	for _, xa := range xm.Args {
		a, err := convertArg(dec, ifaceName, xm.Name, xa, isEvent)
		if err != nil {
			return ir.Message{}, err
		}
		m.Args = append(m.Args, a)
	}
	return m, nil
}

func convertArg(dec *xml.Decoder, ifaceName, msgName string, xa xmlArg, isEvent bool) (ir.Arg, error) {
	t := ir.ArgType(xa.Type)
	switch t {
	case ir.ArgInt, ir.ArgUint, ir.ArgFixed, ir.ArgString, ir.ArgObject, ir.ArgNewID, ir.ArgArray, ir.ArgFd:
	default:
		return ir.Arg{}, xmlErrorAt(dec, "%s.%s: unknown argument type %q for arg %q", ifaceName, msgName, xa.Type, xa.Name)
	}
	if t == ir.ArgNewID && xa.Interface == "" {
		if !(ifaceName == "wl_registry" && msgName == "bind") {
			return ir.Arg{}, xmlErrorAt(dec, "%s.%s: new_id argument %q has no interface and is not wl_registry.bind", ifaceName, msgName, xa.Name)
		}
	}
	return ir.Arg{
		Name:      xa.Name,
		Type:      t,
		Interface: xa.Interface,
		AllowNull: xa.AllowNull == "true",
		Enum:      xa.Enum,
		Summary:   xa.Summary,
	}, nil
}

func convertEnum(dec *xml.Decoder, ifaceName string, xe xmlEnum) (ir.Enum, error) {
	if !identRe.MatchString(xe.Name) {
		return ir.Enum{}, xmlErrorAt(dec, "interface %q: invalid enum name %q", ifaceName, xe.Name)
	}
	e := ir.Enum{
		Name:      xe.Name,
		Bitfield:  xe.Bitfield == "true",
		Summary:   describeSummary(xe.Description),
		Interface: ifaceName,
	}
	for _, xn := range xe.Entries {
		v, err := parseEnumValue(xn.Value)
		if err != nil {
			return ir.Enum{}, xmlErrorAt(dec, "enum %s.%s: entry %q: %v", ifaceName, xe.Name, xn.Name, err)
		}
		since := 1
		if xn.Since != "" {
			s, serr := strconv.Atoi(xn.Since)
			if serr != nil {
				return ir.Enum{}, xmlErrorAt(dec, "enum %s.%s: entry %q: invalid since %q", ifaceName, xe.Name, xn.Name, xn.Since)
			}
			since = s
		}
		e.Entries = append(e.Entries, ir.EnumEntry{
			Name:    xn.Name,
			Value:   v,
			Since:   since,
			Summary: xn.Summary,
		})
	}
	return e, nil
}

func parseEnumValue(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("missing value attribute")
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value: %w", err)
	}
	return uint32(v), nil
}

func describeSummary(d *xmlDescription) string {
	if d == nil {
		return ""
	}
	return strings.TrimSpace(d.Summary)
}

func describeText(d *xmlDescription) string {
	if d == nil {
		return ""
	}
	return strings.TrimSpace(d.Text)
}
