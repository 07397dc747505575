package vulndb

import (
	"encoding/json"
	"testing"

	"github.com/l3montree-dev/kepler/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNPMProductName(t *testing.T) {
	assert.Equal(t, "node-tar", npmProductName("tar"))
	assert.Equal(t, "node-tar", npmProductName("Tar"))
	// already prefixed modules keep their name
	assert.Equal(t, "node-sass", npmProductName("node-sass"))
}

func TestParseVulnerableVersions(t *testing.T) {
	matches := func(expression, version string) bool {
		tree := parseVulnerableVersions(42, "node-tar", expression)
		return tree.Matches("node-tar", version)
	}

	t.Run("wildcard matches any version", func(t *testing.T) {
		assert.True(t, matches("*", "1.0.0"))
		assert.True(t, matches("*", "totally unrealistic but should match nevertheless"))
	})

	t.Run("or expressions", func(t *testing.T) {
		assert.True(t, matches("1.0.0 || 2.0.0", "1.0.0"))
		assert.True(t, matches("1.0.0 || 2.0.0", "2.0.0"))
		assert.False(t, matches("1.0.0 || 2.0.0", "3.0.0"))
	})

	t.Run("and expressions", func(t *testing.T) {
		assert.False(t, matches(">1.0.0 <=2.0.0", "1.0.0"))
		assert.True(t, matches(">1.0.0 <=2.0.0", "1.0.1"))
		assert.True(t, matches(">1.0.0 <=2.0.0", "2.0.0"))
		assert.False(t, matches(">1.0.0 <=2.0.0", "2.0.1"))
	})

	t.Run("complex expressions", func(t *testing.T) {
		expression := "1.0.0 || 2.0.0 || >1.0.0 <=2.0.0 || 666"

		assert.True(t, matches(expression, "1.0.0"))
		assert.True(t, matches(expression, "2.0.0"))
		assert.True(t, matches(expression, "1.0.1"))
		assert.True(t, matches(expression, "666"))
		assert.False(t, matches(expression, "2.0.1"))
	})

	t.Run("negated comparison", func(t *testing.T) {
		assert.False(t, matches("!=1.0.0", "1.0.0"))
		assert.True(t, matches("!=1.0.0", "1.0.1"))
	})

	t.Run("trees stay within the budgets", func(t *testing.T) {
		tree := parseVulnerableVersions(42, "node-tar", ">=4.0.0 <4.4.16 || >=5.0.0 <5.0.8 || >=6.0.0 <6.1.7")
		assert.NoError(t, tree.Validate())
		assert.Len(t, tree.Children, 3)
	})

	t.Run("other products never match", func(t *testing.T) {
		tree := parseVulnerableVersions(42, "node-tar", "*")
		assert.False(t, tree.Matches("tar", "1.0.0"))
	})
}

func TestFromNPMAdvisory(t *testing.T) {
	advisory := npmAdvisory{
		ID:                 118,
		Created:            "2016-06-16T19:41:46.000Z",
		Updated:            "2018-03-01T21:58:01.286Z",
		Title:              "Symlink Arbitrary File Overwrite",
		ModuleName:         "tar",
		VulnerableVersions: "<= 2.0.0",
		Overview:           "The tar module can extract symlinks outside of the target path.",
		Severity:           "moderate",
		References:         "- [Advisory](https://example.com/advisory)",
		Metadata:           npmMetadata{Exploitability: 4},
	}

	cve, object, err := fromNPMAdvisory(advisory)
	require.NoError(t, err)

	assert.Equal(t, "Symlink Arbitrary File Overwrite (<= 2.0.0)", object.CVE)
	assert.Equal(t, models.SourceNPM, object.Source)

	assert.Equal(t, "Symlink Arbitrary File Overwrite (<= 2.0.0)", cve.CVE)
	assert.Equal(t, "@npm", cve.Vendor)
	assert.Equal(t, "node-tar", cve.Product)
	assert.Equal(t, models.SeverityMedium, cve.Severity)
	assert.InDelta(t, 4.0, cve.Score, 0.001)

	t.Run("stored tree matches vulnerable versions", func(t *testing.T) {
		var tree MatchNode
		require.NoError(t, json.Unmarshal(cve.Configurations, &tree))

		assert.True(t, tree.Matches("node-tar", "2.0.0"))
		assert.True(t, tree.Matches("node-tar", "1.9"))
		assert.False(t, tree.Matches("node-tar", "2.0.1"))
	})

	t.Run("references are extracted from markdown", func(t *testing.T) {
		refs, err := cve.GetReferences()
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, "https://example.com/advisory", refs[0].URL)
		assert.Equal(t, []string{"Advisory"}, refs[0].Tags)
	})
}

func TestParseNPMReferences(t *testing.T) {
	t.Run("url fallback", func(t *testing.T) {
		refsJSON := parseNPMReferences("- https://example.com/a\n- https://example.com/b")

		var refs []struct {
			URL  string   `json:"url"`
			Tags []string `json:"tags"`
		}
		require.NoError(t, json.Unmarshal(refsJSON, &refs))
		require.Len(t, refs, 2)
		assert.Equal(t, "https://example.com/a", refs[0].URL)
		assert.Equal(t, []string{"url"}, refs[0].Tags)
	})

	t.Run("empty references", func(t *testing.T) {
		var refs []any
		require.NoError(t, json.Unmarshal(parseNPMReferences(""), &refs))
		assert.Empty(t, refs)
	})
}
