package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareVersions(t *testing.T) {
	t.Run("dotted numeric versions", func(t *testing.T) {
		assert.Equal(t, -1, CompareVersions("1.2", "1.2.1"))
		assert.Equal(t, -1, CompareVersions("2.9.10", "2.9.11"))
		assert.Equal(t, 0, CompareVersions("1.0", "1.0"))
		assert.Equal(t, 1, CompareVersions("10.0", "9.9"))
	})

	t.Run("leading zeros are ignored", func(t *testing.T) {
		assert.Equal(t, 0, CompareVersions("1.02", "1.2"))
		assert.Equal(t, -1, CompareVersions("1.02", "1.10"))
	})

	t.Run("empty string is earlier than anything", func(t *testing.T) {
		assert.Equal(t, -1, CompareVersions("", "0"))
		assert.Equal(t, 1, CompareVersions("0.0.1", ""))
		assert.Equal(t, 0, CompareVersions("", ""))
	})

	t.Run("numeric sorts before alphabetic at the same position", func(t *testing.T) {
		assert.Equal(t, -1, CompareVersions("1.0.1", "1.0.rc0"))
		assert.Equal(t, 1, CompareVersions("1.alpha", "1.0"))
	})

	t.Run("shorter version is earlier", func(t *testing.T) {
		assert.Equal(t, -1, CompareVersions("1.0.1", "1.0.1.rc0"))
		assert.Equal(t, -1, CompareVersions("1.0", "1.0.0"))
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, 0, CompareVersions("1.0.1 RC0", "1.0.1.rc0"))
	})

	t.Run("malformed input still orders deterministically", func(t *testing.T) {
		// the comparator must never fail, whatever the feeds contain
		assert.Equal(t, -CompareVersions("troll", "1.0"), CompareVersions("1.0", "troll"))
		assert.Equal(t, 0, CompareVersions("...", "..."))
		assert.Equal(t, 0, CompareVersions("v200r010c00spc300", "v200r010c00spc300"))
	})

	t.Run("huge numeric runs do not overflow", func(t *testing.T) {
		assert.Equal(t, -1, CompareVersions("20210101123456789", "20210101123456790"))
	})
}

// exactly one of <, =, > must hold for every pair, and the relation must be
// transitive
func TestCompareVersionsIsTotalOrder(t *testing.T) {
	versions := []string{
		"", "0", "0.9", "1.0", "1.0.0", "1.0.1", "1.0.1.rc0", "1.2", "1.2.1",
		"2.0", "2.9.10", "2.9.11", "10.0", "1.alpha", "1.beta", "troll",
	}

	for _, a := range versions {
		for _, b := range versions {
			ab := CompareVersions(a, b)
			ba := CompareVersions(b, a)
			assert.Equal(t, -ba, ab, "antisymmetry violated for %q vs %q", a, b)

			for _, c := range versions {
				bc := CompareVersions(b, c)
				ac := CompareVersions(a, c)
				if ab < 0 && bc < 0 {
					assert.Equal(t, -1, ac, "transitivity violated for %q < %q < %q", a, b, c)
				}
				if ab == 0 && bc == 0 {
					assert.Equal(t, 0, ac, "equality not transitive for %q = %q = %q", a, b, c)
				}
			}
		}
	}
}

func TestVersionInRange(t *testing.T) {
	t.Run("inclusive start, exclusive end", func(t *testing.T) {
		assert.True(t, VersionInRange("1.5", "1.0", "", "", "2.0"))
		assert.True(t, VersionInRange("1.0", "1.0", "", "", "2.0"))
		assert.False(t, VersionInRange("2.0", "1.0", "", "", "2.0"))
		assert.False(t, VersionInRange("0.9", "1.0", "", "", "2.0"))
	})

	t.Run("absent bounds impose no constraint", func(t *testing.T) {
		assert.True(t, VersionInRange("0.0.1", "", "", "", ""))
		assert.True(t, VersionInRange("2.9.10", "", "", "", "2.9.11"))
		assert.False(t, VersionInRange("2.9.11", "", "", "", "2.9.11"))
	})

	t.Run("exclusive start", func(t *testing.T) {
		assert.False(t, VersionInRange("1.0.0", "", "1.0.0", "", ""))
		assert.True(t, VersionInRange("1.0.1", "", "1.0.0", "", ""))
	})

	t.Run("inclusive end", func(t *testing.T) {
		assert.True(t, VersionInRange("2.0.0", "", "1.0.0", "2.0.0", ""))
		assert.False(t, VersionInRange("2.0.1", "", "1.0.0", "2.0.0", ""))
	})
}
