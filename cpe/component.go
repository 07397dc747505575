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

package cpe

import (
	"encoding/json"
	"strings"
)

type componentKind int

const (
	componentAny componentKind = iota
	componentNA
	componentValue
)

// Component is a single attribute of a CPE 2.3 formatted string. It is either
// the wildcard "*", the not-applicable marker "-", or a concrete value.
type Component struct {
	kind  componentKind
	value string
}

var (
	Any           = Component{kind: componentAny}
	NotApplicable = Component{kind: componentNA}
)

// NewComponent interprets a raw attribute value from a formatted string.
// Values are lowercased, CPE matching is case-insensitive.
func NewComponent(raw string) Component {
	switch raw {
	case "*":
		return Any
	case "-":
		return NotApplicable
	}
	return Component{kind: componentValue, value: strings.ToLower(unescape(raw))}
}

func (c Component) IsAny() bool {
	return c.kind == componentAny
}

func (c Component) IsNA() bool {
	return c.kind == componentNA
}

// Value returns the concrete value, or "" for the wildcard and the
// not-applicable marker.
func (c Component) Value() string {
	return c.value
}

// Matches reports whether the component accepts the given concrete value.
// The wildcard accepts everything, the not-applicable marker accepts only the
// absence of a value.
func (c Component) Matches(value string) bool {
	switch c.kind {
	case componentAny:
		return true
	case componentNA:
		return value == ""
	default:
		return c.value == strings.ToLower(value)
	}
}

func (c Component) String() string {
	switch c.kind {
	case componentAny:
		return "*"
	case componentNA:
		return "-"
	default:
		return c.value
	}
}

// Components serialize to their formatted string form, so "*" and "-" keep
// their meaning when a match tree is stored as JSON.
func (c Component) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Component) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = NewComponent(raw)
	return nil
}

// unescape strips the backslash escapes a formatted string puts in front of
// punctuation characters.
func unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if !escaped && r == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}
