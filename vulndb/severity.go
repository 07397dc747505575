package vulndb

import (
	"strings"

	"github.com/l3montree-dev/kepler/database/models"
	gocvss20 "github.com/pandatix/go-cvss/20"
	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"
	gocvss40 "github.com/pandatix/go-cvss/40"
)

func severityFromScore(score float32) models.Severity {
	switch {
	case score >= 9.0:
		return models.SeverityCritical
	case score >= 7.0:
		return models.SeverityHigh
	case score >= 4.0:
		return models.SeverityMedium
	case score > 0:
		return models.SeverityLow
	default:
		return models.SeverityNone
	}
}

func parseSeverity(s string) models.Severity {
	switch strings.ToLower(s) {
	case "critical":
		return models.SeverityCritical
	case "high":
		return models.SeverityHigh
	case "medium", "moderate":
		return models.SeverityMedium
	case "low":
		return models.SeverityLow
	default:
		return models.SeverityNone
	}
}

// scoreFromVector recalculates the base score from a CVSS vector. Used as a
// fallback for feed entries that carry a vector but no baseScore.
func scoreFromVector(vector string) (float32, bool) {
	switch {
	case strings.HasPrefix(vector, "CVSS:4.0"):
		cvss, err := gocvss40.ParseVector(vector)
		if err != nil {
			return 0, false
		}
		return float32(cvss.Score()), true
	case strings.HasPrefix(vector, "CVSS:3.1"):
		cvss, err := gocvss31.ParseVector(vector)
		if err != nil {
			return 0, false
		}
		return float32(cvss.BaseScore()), true
	case strings.HasPrefix(vector, "CVSS:3.0"):
		cvss, err := gocvss30.ParseVector(vector)
		if err != nil {
			return 0, false
		}
		return float32(cvss.BaseScore()), true
	default:
		cvss, err := gocvss20.ParseVector(vector)
		if err != nil {
			return 0, false
		}
		return float32(cvss.BaseScore()), true
	}
}
