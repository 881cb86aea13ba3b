// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gen

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/waylandgo/wlcore/scanner"
)

func mustParseTestProtocol(t *testing.T) []File {
	t.Helper()
	proto, err := scanner.ParseFile("../../testdata/test-protocol.xml")
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	files, err := Generate(proto, "testproto")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return files
}

// TestGenerateDeterministic covers §8 property 5: running the emitter
// twice on identical input must produce byte-identical output.
func TestGenerateDeterministic(t *testing.T) {
	first := mustParseTestProtocol(t)
	second := mustParseTestProtocol(t)

	if len(first) != len(second) {
		t.Fatalf("generated %d files first run, %d second run", len(first), len(second))
	}
	for i := range first {
		if first[i].Name != second[i].Name {
			t.Errorf("file %d name differs: %q vs %q", i, first[i].Name, second[i].Name)
		}
		if !bytes.Equal(first[i].Content, second[i].Content) {
			t.Errorf("file %q is not byte-identical across runs", first[i].Name)
		}
	}
}

func contentOf(t *testing.T, files []File, suffix string) string {
	t.Helper()
	for _, f := range files {
		if strings.HasSuffix(f.Name, suffix) {
			return string(f.Content)
		}
	}
	t.Fatalf("no generated file with suffix %q", suffix)
	return ""
}

func TestGenerateTypesFile(t *testing.T) {
	src := contentOf(t, mustParseTestProtocol(t), "_types.go")

	for _, want := range []string{
		"var TestWidgetDesc = &protocol.InterfaceDesc{",
		`Name: "destroy", Since: 1, Destructor: true`,
		"type TestWidgetKind uint32",
		"type TestWidgetFlags uint32",
		"func (v TestWidgetFlags) Has(mask TestWidgetFlags) bool",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("types file missing expected snippet %q", want)
		}
	}
	// Enum constants are emitted in a single const block, which gofmt
	// column-aligns; assert on the identifiers and values without
	// depending on exact inter-token spacing.
	for _, name := range []string{"TestWidgetKindCircle", "TestWidgetKindSquare", "TestWidgetKind1star"} {
		if !regexp.MustCompile(name + `\s+TestWidgetKind`).MatchString(src) {
			t.Errorf("types file missing enum constant %q", name)
		}
	}
	if !strings.Contains(src, "= 2") {
		t.Error("types file missing the 1star entry's value")
	}
}

func TestGenerateClientFile(t *testing.T) {
	src := contentOf(t, mustParseTestProtocol(t), "_client.go")

	for _, want := range []string{
		"type TestWidget struct {",
		"func (p *TestManager) CreateWidget(label string) (*TestWidget, error) {",
		"type TestWidgetListener struct {",
		"func (p *TestWidget) SetListener(l TestWidgetListener) {",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("client file missing expected snippet %q", want)
		}
	}
}

// TestGenerateCarriesParsedDescriptions covers §4.H.6: a <description>
// parsed off the XML must survive into the generated doc comment instead
// of being silently discarded in favor of a synthesized boilerplate line.
func TestGenerateCarriesParsedDescriptions(t *testing.T) {
	files := mustParseTestProtocol(t)

	client := contentOf(t, files, "_client.go")
	if !strings.Contains(client, "// CreateWidget creates a widget") {
		t.Errorf("create_widget's parsed <description summary=\"creates a widget\"> was dropped from the generated client doc comment:\n%s", client)
	}
	if !strings.Contains(client, "// TestWidget a stateful object with a destructor") {
		t.Errorf("test_widget's parsed <description summary=\"...\"> was dropped from the generated client proxy type doc comment:\n%s", client)
	}

	types := contentOf(t, files, "_types.go")
	if !strings.Contains(types, "// TestWidgetKind the shape a widget is rendered as") {
		t.Errorf("kind enum's parsed <description summary=\"...\"> was dropped from the generated enum doc comment:\n%s", types)
	}
}

func TestGenerateServerFile(t *testing.T) {
	src := contentOf(t, mustParseTestProtocol(t), "_server.go")

	for _, want := range []string{
		"type TestWidgetResource struct {",
		"func (r *TestWidgetResource) State(flags TestWidgetFlags) error {",
		"type TestWidgetHandler struct {",
		"func (r *TestWidgetResource) SetHandler(h TestWidgetHandler) {",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("server file missing expected snippet %q", want)
		}
	}
}

// TestGenerateOpcodeConstants covers §4.H.4: one u16 constant per request
// and per event, equal to the message's position in its list.
func TestGenerateOpcodeConstants(t *testing.T) {
	src := contentOf(t, mustParseTestProtocol(t), "_types.go")

	for _, want := range []string{
		"TestManagerRequestCreateWidgetOpcode",
		"TestManagerEventWidgetCountOpcode",
		"TestWidgetRequestDestroyOpcode",
		"TestWidgetEventStateOpcode",
		"WlRegistryRequestBindOpcode",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("types file missing opcode constant %q", want)
		}
	}
	// destroy is test_widget's sixth declared request; gofmt may
	// column-align the const block, so match with flexible spacing.
	if !regexp.MustCompile(`TestWidgetRequestDestroyOpcode\s+uint16 = 5`).MatchString(src) {
		t.Error("TestWidgetRequestDestroyOpcode should equal its list position 5")
	}
}

// TestGenerateKeywordEscape covers §4.H's reserved-word rule: an argument
// named after a Go keyword (wl_registry.global's "interface") gets a
// trailing underscore appended, consistently.
func TestGenerateKeywordEscape(t *testing.T) {
	src := contentOf(t, mustParseTestProtocol(t), "_client.go")
	if !strings.Contains(src, "Global func(name uint32, interface_ string, version uint32)") {
		t.Errorf("wl_registry.global's \"interface\" argument should be escaped to interface_:\n%s", src)
	}
}

// TestGenerateGenericBindMethod covers §4.H.2's generic new-id mapping:
// a bind-style request takes the child's interface descriptor and
// version explicitly, since the XML cannot supply them (§9).
func TestGenerateGenericBindMethod(t *testing.T) {
	src := contentOf(t, mustParseTestProtocol(t), "_client.go")
	if !strings.Contains(src, "func (p *WlRegistry) Bind(name uint32, iface *protocol.InterfaceDesc, version uint32) (*client.Proxy, error) {") {
		t.Errorf("generic new_id request should take an explicit interface and version:\n%s", src)
	}
}

func TestGenerateGenericNewID(t *testing.T) {
	src := contentOf(t, mustParseTestProtocol(t), "_types.go")
	if !strings.Contains(src, `Name: "bind"`) {
		t.Fatal("expected a bind message descriptor")
	}
	if !strings.Contains(src, "GenericNewID: true") {
		t.Error("wl_registry.bind's new_id should be encoded with GenericNewID: true")
	}
	if strings.Contains(src, `NewIDInterface: "wl_registry"`) {
		t.Error("bind's generic new_id must not carry a fixed NewIDInterface literal")
	}
}
