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

package normalize

import "strings"

// CompareVersions imposes a total order on arbitrary version strings as they
// appear in vulnerability feeds. Semver libraries reject a large share of the
// version strings the NVD carries ("1.0.1 rc0", "v200r010c00spc300", ...),
// and the comparator must never fail: feed data is not always well-formed.
//
// Both strings are segmented into alternating runs of digits and non-digits.
// Numeric segments compare by integer value (leading zeros ignored),
// non-numeric segments compare lexicographically after lowercasing. A numeric
// segment sorts before a non-numeric one at the same position. When one
// string runs out of segments, the shorter one is the earlier version, so
// "1.2" < "1.2.1".
//
// Returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == b {
		return 0
	}
	// the empty string is earlier than anything else
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}

	segmentsA := segmentVersion(a)
	segmentsB := segmentVersion(b)

	for i := 0; i < len(segmentsA) && i < len(segmentsB); i++ {
		if c := compareSegments(segmentsA[i], segmentsB[i]); c != 0 {
			return c
		}
	}

	switch {
	case len(segmentsA) < len(segmentsB):
		return -1
	case len(segmentsA) > len(segmentsB):
		return 1
	}
	return 0
}

// VersionInRange reports whether version satisfies all of the provided bounds.
// Empty bounds impose no constraint on their side.
func VersionInRange(version, startIncluding, startExcluding, endIncluding, endExcluding string) bool {
	if startIncluding != "" && CompareVersions(version, startIncluding) < 0 {
		return false
	}
	if startExcluding != "" && CompareVersions(version, startExcluding) <= 0 {
		return false
	}
	if endIncluding != "" && CompareVersions(version, endIncluding) > 0 {
		return false
	}
	if endExcluding != "" && CompareVersions(version, endExcluding) >= 0 {
		return false
	}
	return true
}

type versionSegment struct {
	numeric bool
	value   string
}

// segmentVersion splits a version string into digit and non-digit runs.
// Separator characters only delimit segments and carry no ordering weight.
func segmentVersion(v string) []versionSegment {
	var segments []versionSegment
	var current strings.Builder
	currentNumeric := false

	flush := func() {
		if current.Len() == 0 {
			return
		}
		segments = append(segments, versionSegment{numeric: currentNumeric, value: current.String()})
		current.Reset()
	}

	for _, r := range v {
		switch {
		case r == '.' || r == '-' || r == '_' || r == '+' || r == ':' || r == ' ':
			flush()
		case r >= '0' && r <= '9':
			if current.Len() > 0 && !currentNumeric {
				flush()
			}
			currentNumeric = true
			current.WriteRune(r)
		default:
			if current.Len() > 0 && currentNumeric {
				flush()
			}
			currentNumeric = false
			current.WriteRune(r)
		}
	}
	flush()

	return segments
}

func compareSegments(a, b versionSegment) int {
	if a.numeric && b.numeric {
		return compareNumeric(a.value, b.value)
	}
	// numeric sorts before alphabetic at the same position
	if a.numeric != b.numeric {
		if a.numeric {
			return -1
		}
		return 1
	}
	return strings.Compare(a.value, b.value)
}

// compareNumeric compares two digit runs by integer value without parsing
// them into machine integers, so arbitrarily long runs cannot overflow.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")

	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
