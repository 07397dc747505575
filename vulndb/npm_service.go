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
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package vulndb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/l3montree-dev/kepler/cpe"
	"github.com/l3montree-dev/kepler/database/models"
	"github.com/l3montree-dev/kepler/shared"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
)

const npmAdvisoriesURL = "https://registry.npmjs.org/-/npm/v1/security/advisories"

// advisories have no vendor, all rows share this marker
const npmVendor = "@npm"

var (
	// one comparison inside a vulnerable_versions expression, e.g. ">=1.2.0"
	npmExprParser = regexp.MustCompile(`([<>=!]*)\s*([\d\.\-a-z]+)`)
	// references come as markdown links, "[advisory](https://...)"
	npmTaggedRefsParser = regexp.MustCompile(`\[([^\]]+)\]\(([^\)]+)\)`)
	npmURLRefsParser    = regexp.MustCompile(`-\s+(\S+)`)
)

type NPMService struct {
	httpClient       *http.Client
	cveRepository    shared.CveRepository
	objectRepository shared.ObjectRepository
}

func NewNPMService(cveRepository shared.CveRepository, objectRepository shared.ObjectRepository) NPMService {
	return NPMService{
		cveRepository:    cveRepository,
		objectRepository: objectRepository,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// npmProductName prepends 'node-' to the module name in order to avoid
// collisions with NVD products (for instance, the tar nodejs library is
// called just "tar", which collides with the tar unix package).
func npmProductName(moduleName string) string {
	name := strings.ToLower(strings.TrimSpace(moduleName))
	if strings.HasPrefix(name, "node-") {
		return name
	}
	return "node-" + name
}

// npmPseudoCVE builds the identifier for advisories the NVD has not assigned
// a CVE id to yet.
func npmPseudoCVE(advisory npmAdvisory) string {
	return fmt.Sprintf("%s (%s)", advisory.Title, advisory.VulnerableVersions)
}

// parseVulnerableVersions turns an expression like
// ">=4.0.0 <4.4.16 || 1.2.3" into a match tree: OR over the alternatives,
// AND over the comparisons inside one alternative. An alternative with an
// operator we cannot interpret is dropped with a warning and never matches.
func parseVulnerableVersions(advisoryID int, product, expression string) MatchNode {
	root := MatchNode{Operator: OperatorOr}
	productComponent := cpe.NewComponent(product)
	vendorComponent := cpe.NewComponent(npmVendor)

	for _, alternative := range strings.Split(expression, "||") {
		alternative = strings.TrimSpace(alternative)
		if alternative == "" {
			continue
		}

		branch := MatchNode{Operator: OperatorAnd}
		valid := true

		comparisons := npmExprParser.FindAllStringSubmatch(alternative, -1)
		for _, comparison := range comparisons {
			operator, version := comparison[1], comparison[2]

			criterion := Criterion{
				Vendor:     vendorComponent,
				Product:    productComponent,
				Version:    cpe.Any,
				Vulnerable: true,
			}
			switch operator {
			case "", "=", "==":
				criterion.Version = cpe.NewComponent(version)
			case ">":
				criterion.VersionStartExcluding = version
			case ">=":
				criterion.VersionStartIncluding = version
			case "<":
				criterion.VersionEndExcluding = version
			case "<=":
				criterion.VersionEndIncluding = version
			case "!=":
				criterion.Version = cpe.NewComponent(version)
				criterion.Negate = true
			default:
				slog.Warn("can't parse npm version operator", "operator", operator, "advisory", advisoryID, "expression", expression)
				valid = false
			}
			if !valid {
				break
			}
			branch.Criteria = append(branch.Criteria, criterion)
		}
		if !valid {
			continue
		}

		if len(branch.Criteria) == 0 {
			// no comparisons, e.g. "*": the alternative matches any version
			branch.Criteria = append(branch.Criteria, Criterion{
				Vendor:     vendorComponent,
				Product:    productComponent,
				Version:    cpe.Any,
				Vulnerable: true,
			})
		}
		root.Children = append(root.Children, branch)
	}

	return root
}

// parseNPMReferences extracts urls from the markdown formatted references
// blob of an advisory.
func parseNPMReferences(references string) []byte {
	type reference struct {
		URL  string   `json:"url"`
		Tags []string `json:"tags"`
	}
	var refs []reference

	for _, match := range npmTaggedRefsParser.FindAllStringSubmatch(references, -1) {
		refs = append(refs, reference{URL: match[2], Tags: []string{match[1]}})
	}
	// fallback on just URLs
	if len(refs) == 0 {
		for _, match := range npmURLRefsParser.FindAllStringSubmatch(references, -1) {
			refs = append(refs, reference{URL: match[1], Tags: []string{"url"}})
		}
	}

	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return []byte("[]")
	}
	return refsJSON
}

func fromNPMAdvisory(advisory npmAdvisory) (*models.CVE, models.Object, error) {
	pseudoCVE := npmPseudoCVE(advisory)
	product := npmProductName(advisory.ModuleName)

	tree := parseVulnerableVersions(advisory.ID, product, advisory.VulnerableVersions)
	if err := tree.Validate(); err != nil {
		return nil, models.Object{}, err
	}
	treeJSON, err := json.Marshal(tree)
	if err != nil {
		return nil, models.Object{}, errors.Wrap(err, "could not marshal match tree")
	}

	raw, err := json.Marshal(advisory)
	if err != nil {
		return nil, models.Object{}, errors.Wrap(err, "could not marshal raw advisory")
	}

	created, err := time.Parse(time.RFC3339, advisory.Created)
	if err != nil {
		created = time.Now()
	}
	updated, err := time.Parse(time.RFC3339, advisory.Updated)
	if err != nil {
		updated = created
	}

	object := models.Object{
		CVE:    pseudoCVE,
		Source: models.SourceNPM,
		Data:   datatypes.JSON(raw),
	}

	cve := &models.CVE{
		CVE:              pseudoCVE,
		Vendor:           npmVendor,
		Product:          product,
		DatePublished:    created,
		DateLastModified: updated,
		Source:           models.SourceNPM,
		Summary:          advisory.Overview,
		Score:            float32(advisory.Metadata.Exploitability),
		Severity:         parseSeverity(advisory.Severity),
		References:       datatypes.JSON(parseNPMReferences(advisory.References)),
		Configurations:   datatypes.JSON(treeJSON),
	}

	return cve, object, nil
}

func (npmService NPMService) saveAdvisory(advisory npmAdvisory) error {
	if len(advisory.CVEs) > 0 {
		// the advisory got a real CVE assigned, the NVD import covers it now.
		// drop the pseudo record in case we imported it earlier.
		return npmService.deleteAdvisory(advisory)
	}

	cve, object, err := fromNPMAdvisory(advisory)
	if err != nil {
		return err
	}

	return npmService.cveRepository.Transaction(func(tx shared.DB) error {
		if err := npmService.objectRepository.UpsertReturningID(tx, &object); err != nil {
			return err
		}
		cve.ObjectID = object.ID
		return npmService.cveRepository.UpsertBatch(tx, []*models.CVE{cve})
	})
}

func (npmService NPMService) deleteAdvisory(advisory npmAdvisory) error {
	pseudoCVE := npmPseudoCVE(advisory)
	return npmService.cveRepository.Transaction(func(tx shared.DB) error {
		// rows in cves cascade with the object
		if err := npmService.objectRepository.DeleteByCVE(tx, pseudoCVE); err != nil {
			return err
		}
		slog.Info("removed npm advisory due to assigned CVE", "product", npmProductName(advisory.ModuleName), "cves", advisory.CVEs)
		return nil
	})
}

func (npmService NPMService) fetchPage(ctx context.Context, page int) (npmAdvisoriesResponse, error) {
	url := fmt.Sprintf("%s?perPage=100&page=%d", npmAdvisoriesURL, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return npmAdvisoriesResponse{}, errors.Wrap(err, "could not create request before fetching npm advisories")
	}

	res, err := npmService.httpClient.Do(req)
	if err != nil {
		return npmAdvisoriesResponse{}, errors.Wrap(err, "could not fetch npm advisories")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return npmAdvisoriesResponse{}, fmt.Errorf("could not fetch npm advisories. Status code: %d", res.StatusCode)
	}

	var resp npmAdvisoriesResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return npmAdvisoriesResponse{}, errors.Wrap(err, "could not decode npm advisories response")
	}
	return resp, nil
}

// Sync imports npm security advisories. With recentOnly only the first page
// is fetched, which is enough for the periodic background refresh.
func (npmService NPMService) Sync(ctx context.Context, recentOnly bool) error {
	numImported := 0

	for page := 1; ; page++ {
		resp, err := npmService.fetchPage(ctx, page)
		if err != nil {
			return err
		}

		for _, advisory := range resp.Objects {
			if err := npmService.saveAdvisory(advisory); err != nil {
				slog.Warn("could not save npm advisory", "advisory", advisory.ID, "err", err)
				continue
			}
			numImported++
			if numImported%100 == 0 {
				slog.Info("imported npm advisories", "count", numImported)
			}
		}

		if recentOnly || resp.URLs.Next == nil {
			break
		}
	}

	slog.Info("npm advisories import finished", "count", numImported)
	return nil
}
