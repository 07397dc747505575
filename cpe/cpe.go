// Copyright (C) 2025 l3montree GmbH
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package cpe parses CPE 2.3 formatted strings as they appear in NVD match
// criteria, e.g. "cpe:2.3:a:haxx:curl:7.64.0:*:*:*:*:*:*:*".
package cpe

import (
	"fmt"
	"strings"
)

const prefix = "cpe:2.3:"

// a formatted string carries exactly 11 attributes after the prefix
const attributeCount = 11

// Attributes holds the parsed attributes of a formatted string. Only part,
// vendor, product, version and target software participate in matching, the
// rest is carried for completeness.
type Attributes struct {
	Part      Component
	Vendor    Component
	Product   Component
	Version   Component
	Update    Component
	Edition   Component
	Language  Component
	SwEdition Component
	TargetSw  Component
	TargetHw  Component
	Other     Component
}

// Parse decodes a CPE 2.3 formatted string. It fails on a missing prefix or a
// wrong attribute count; it does not validate attribute grammar beyond that,
// the NVD feeds contain values the official grammar would reject.
func Parse(criteria string) (Attributes, error) {
	if !strings.HasPrefix(criteria, prefix) {
		return Attributes{}, fmt.Errorf("not a cpe 2.3 formatted string: %q", criteria)
	}

	fields := splitAttributes(criteria[len(prefix):])
	if len(fields) != attributeCount {
		return Attributes{}, fmt.Errorf("expected %d attributes, got %d: %q", attributeCount, len(fields), criteria)
	}

	return Attributes{
		Part:      NewComponent(fields[0]),
		Vendor:    NewComponent(fields[1]),
		Product:   NewComponent(fields[2]),
		Version:   NewComponent(fields[3]),
		Update:    NewComponent(fields[4]),
		Edition:   NewComponent(fields[5]),
		Language:  NewComponent(fields[6]),
		SwEdition: NewComponent(fields[7]),
		TargetSw:  NewComponent(fields[8]),
		TargetHw:  NewComponent(fields[9]),
		Other:     NewComponent(fields[10]),
	}, nil
}

// splitAttributes splits on colons, honoring backslash escapes. A value like
// "1\:2" stays a single attribute.
func splitAttributes(s string) []string {
	var fields []string
	var current strings.Builder
	escaped := false

	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			current.WriteRune(r)
			escaped = true
		case r == ':':
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	fields = append(fields, current.String())

	return fields
}
