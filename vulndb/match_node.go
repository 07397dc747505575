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

package vulndb

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/l3montree-dev/kepler/cpe"
	"github.com/l3montree-dev/kepler/normalize"
)

type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// budgets for stored match trees. Trees exceeding them are data errors and
// get rejected at import time.
const (
	MaxTreeDepth = 8
	MaxTreeNodes = 4096
)

var (
	errConflictingVersionModes = fmt.Errorf("criterion carries both an exact version and range bounds")
	errTooDeep                 = fmt.Errorf("match tree exceeds maximum depth of %d", MaxTreeDepth)
	errTooManyNodes            = fmt.Errorf("match tree exceeds maximum of %d nodes", MaxTreeNodes)
)

// Criterion is a single vulnerable-configuration condition. It constrains the
// version either to one exact value or to a range, never both.
type Criterion struct {
	Vendor  cpe.Component `json:"vendor"`
	Product cpe.Component `json:"product"`
	// exact version. Unused when any range bound is set.
	Version cpe.Component `json:"version"`

	VersionStartIncluding string `json:"versionStartIncluding,omitempty"`
	VersionStartExcluding string `json:"versionStartExcluding,omitempty"`
	VersionEndIncluding   string `json:"versionEndIncluding,omitempty"`
	VersionEndExcluding   string `json:"versionEndExcluding,omitempty"`

	Vulnerable bool `json:"vulnerable"`
	Negate     bool `json:"negate,omitempty"`
}

// NewCriterionFromCPE builds a criterion from a CPE 2.3 criteria string and
// the range bounds of an NVD cpeMatch entry.
func NewCriterionFromCPE(criteria string, startIncluding, startExcluding, endIncluding, endExcluding string, vulnerable bool) (Criterion, error) {
	attrs, err := cpe.Parse(criteria)
	if err != nil {
		return Criterion{}, err
	}

	hasRange := startIncluding != "" || startExcluding != "" || endIncluding != "" || endExcluding != ""
	if hasRange && attrs.Version.Value() != "" {
		// a concrete version plus bounds is ambiguous, there is no way to
		// tell which one the feed meant
		return Criterion{}, errConflictingVersionModes
	}

	return Criterion{
		Vendor:                attrs.Vendor,
		Product:               namespaceProduct(attrs),
		Version:               exactVersion(attrs),
		VersionStartIncluding: startIncluding,
		VersionStartExcluding: startExcluding,
		VersionEndIncluding:   endIncluding,
		VersionEndExcluding:   endExcluding,
		Vulnerable:            vulnerable,
	}, nil
}

// namespaceProduct prefixes the product with the target software, so that
// target_sw=node.js and product=tar becomes node-tar. The plain product name
// alone would false positive on gnu tar.
func namespaceProduct(attrs cpe.Attributes) cpe.Component {
	if attrs.Product.IsAny() || attrs.Product.IsNA() {
		return attrs.Product
	}
	if attrs.TargetSw.Value() == "" {
		return attrs.Product
	}
	prefix := normalizeTargetSoftware(attrs.TargetSw.Value())
	if prefix == "" {
		return attrs.Product
	}
	return cpe.NewComponent(prefix + "-" + attrs.Product.Value())
}

// normalizeTargetSoftware reduces a target software value to its leading
// alphanumeric run: "node.js" becomes "node".
func normalizeTargetSoftware(targetSw string) string {
	for i, r := range targetSw {
		isAlphanumeric := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlphanumeric {
			return targetSw[:i]
		}
	}
	return targetSw
}

// exactVersion folds a concrete update attribute into the version, the NVD
// encodes "8.0.6001 beta" as version=8.0.6001, update=beta.
func exactVersion(attrs cpe.Attributes) cpe.Component {
	if attrs.Version.Value() != "" && attrs.Update.Value() != "" {
		return cpe.NewComponent(attrs.Version.Value() + " " + attrs.Update.Value())
	}
	return attrs.Version
}

func (criterion Criterion) hasVersionRange() bool {
	return criterion.VersionStartIncluding != "" ||
		criterion.VersionStartExcluding != "" ||
		criterion.VersionEndIncluding != "" ||
		criterion.VersionEndExcluding != ""
}

// Matches reports whether the criterion applies to the given product at the
// given version. The product must already be in its namespaced form.
func (criterion Criterion) Matches(product, version string) bool {
	result := criterion.matchesWithoutNegate(product, version)
	if criterion.Negate {
		return !result
	}
	return result
}

func (criterion Criterion) matchesWithoutNegate(product, version string) bool {
	if criterion.Product.IsNA() {
		return false
	}
	if !criterion.Product.Matches(product) {
		return false
	}

	version = strings.ToLower(strings.TrimSpace(version))

	if criterion.hasVersionRange() {
		return normalize.VersionInRange(version,
			criterion.VersionStartIncluding,
			criterion.VersionStartExcluding,
			criterion.VersionEndIncluding,
			criterion.VersionEndExcluding,
		)
	}

	if criterion.Version.IsAny() {
		return true
	}
	// not applicable means versionless, only a versionless query matches
	if criterion.Version.IsNA() {
		return version == "" || version == "*"
	}
	return criterion.Version.Value() == version
}

// MatchNode is one node of a stored match tree. A node carries an operator
// and either child nodes, leaf criteria, or both.
type MatchNode struct {
	Operator Operator    `json:"operator,omitempty"`
	Negate   bool        `json:"negate,omitempty"`
	Children []MatchNode `json:"children,omitempty"`
	Criteria []Criterion `json:"criteria,omitempty"`
}

// Validate enforces the tree budgets. Importers call this before a tree is
// stored; anything that fails here never reaches the query path.
func (node MatchNode) Validate() error {
	if depth(node) > MaxTreeDepth {
		return errTooDeep
	}
	if countNodes(node) > MaxTreeNodes {
		return errTooManyNodes
	}
	return nil
}

func depth(node MatchNode) int {
	maxChild := 0
	for _, child := range node.Children {
		if d := depth(child); d > maxChild {
			maxChild = d
		}
	}
	return 1 + maxChild
}

func countNodes(node MatchNode) int {
	n := 1
	for _, child := range node.Children {
		n += countNodes(child)
	}
	return n
}

// Matches evaluates the tree against a namespaced product and a version.
// Evaluation short-circuits and never errors; a tree that exceeds the depth
// budget at this point evaluates to non-match.
func (node MatchNode) Matches(product, version string) bool {
	return node.matches(product, version, 0)
}

func (node MatchNode) matches(product, version string, currentDepth int) bool {
	if currentDepth >= MaxTreeDepth {
		slog.Warn("match tree exceeds depth budget during evaluation, treating as non-match", "depth", currentDepth)
		return false
	}

	operator := node.Operator
	if operator != OperatorAnd {
		operator = OperatorOr
	}

	var result bool
	if operator == OperatorAnd {
		result = len(node.Criteria) > 0 || len(node.Children) > 0
		for _, criterion := range node.Criteria {
			if !criterion.Matches(product, version) {
				result = false
				break
			}
		}
		if result {
			for _, child := range node.Children {
				if !child.matches(product, version, currentDepth+1) {
					result = false
					break
				}
			}
		}
	} else {
		for _, criterion := range node.Criteria {
			if criterion.Matches(product, version) {
				result = true
				break
			}
		}
		if !result {
			for _, child := range node.Children {
				if child.matches(product, version, currentDepth+1) {
					result = true
					break
				}
			}
		}
	}

	if node.Negate {
		return !result
	}
	return result
}

// Product identifies one (vendor, product) pair referenced by a tree.
type Product struct {
	Vendor  string
	Product string
}

// Products collects the distinct (vendor, product) pairs of all criteria with
// a concrete product. The importers create one database row per pair.
func (node MatchNode) Products() []Product {
	seen := map[Product]struct{}{}
	var products []Product

	var walk func(MatchNode)
	walk = func(n MatchNode) {
		for _, criterion := range n.Criteria {
			if criterion.Product.IsAny() || criterion.Product.IsNA() {
				continue
			}
			p := Product{Vendor: criterion.Vendor.String(), Product: criterion.Product.Value()}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			products = append(products, p)
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(node)

	return products
}
