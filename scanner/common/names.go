// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package common holds the identifier helpers the scanner's Go emitter
// shares: snake_case-to-CamelCase conversion for protocol names and the
// reserved-word escape rule for generated parameters (§4.H identifier
// conventions).
package common

import "strings"

// Wayland protocol identifiers are ASCII snake_case (the parser rejects
// anything else), so splitting on underscores is the whole tokenization
// story; there is no mixed-case input to untangle.
func nameParts(name string) []string {
	return strings.Split(name, "_")
}

func upperFirst(s string) string {
	if s == "" {
		return "_"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ToUpperCamelCase converts a snake_case protocol identifier to the Go
// type-name convention: wl_foo_bar becomes WlFooBar.
func ToUpperCamelCase(name string) string {
	parts := nameParts(name)
	for i := range parts {
		parts[i] = upperFirst(parts[i])
	}
	return strings.Join(parts, "")
}

// ToLowerCamelCase converts a snake_case protocol identifier to the Go
// parameter/local convention: interface_name becomes interfaceName.
func ToLowerCamelCase(name string) string {
	parts := nameParts(name)
	for i := range parts {
		if i == 0 {
			if parts[i] == "" {
				parts[i] = "_"
			}
			continue
		}
		parts[i] = upperFirst(parts[i])
	}
	return strings.Join(parts, "")
}

// goKeywords is the set of identifiers a generated parameter name must
// be escaped away from.
var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true,
	"continue": true, "default": true, "defer": true, "else": true,
	"fallthrough": true, "for": true, "func": true, "go": true,
	"goto": true, "if": true, "import": true, "interface": true,
	"map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true,
	"var": true,
}

// EscapeReserved applies the emitter's one escape rule, consistently: a
// name colliding with a Go keyword gets a trailing underscore appended
// (wl_registry.global's "interface" argument becomes "interface_").
func EscapeReserved(name string) string {
	if goKeywords[name] {
		return name + "_"
	}
	return name
}
