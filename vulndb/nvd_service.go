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
	"net/url"
	"time"

	"github.com/l3montree-dev/kepler/database/models"
	"github.com/l3montree-dev/kepler/shared"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"
)

var nvdBaseURL = url.URL{
	Scheme: "https",
	Host:   "services.nvd.nist.gov",
	Path:   "/rest/json/cves/2.0",
}

const iso8601Format = "2006-01-02T15:04:05.000"

type NVDService struct {
	httpClient       *http.Client
	cveRepository    shared.CveRepository
	objectRepository shared.ObjectRepository
	// the NVD asks for at most one request every 6 seconds without an api key
	limiter *rate.Limiter
}

func NewNVDService(cveRepository shared.CveRepository, objectRepository shared.ObjectRepository) NVDService {
	return NVDService{
		cveRepository:    cveRepository,
		objectRepository: objectRepository,
		limiter:          rate.NewLimiter(rate.Every(6*time.Second), 1),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 3, // only allow 3 concurrent connections to the same host
			},
		},
	}
}

// this method will retry up to 10 times before returning an error
func (nvdService NVDService) fetchJSONFromNVD(ctx context.Context, url url.URL, currentTry int) (nistResponse, error) {
	if err := nvdService.limiter.Wait(ctx); err != nil {
		return nistResponse{}, errors.Wrap(err, "rate limiter interrupted while fetching from NVD")
	}

	reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url.String(), nil)
	if err != nil {
		return nistResponse{}, errors.Wrap(err, "could not create request before fetching from NVD")
	}

	res, err := nvdService.httpClient.Do(req)
	if err != nil {
		if currentTry < 10 {
			slog.Error("could not fetch from NVD", "try", currentTry, "err", err)
			return nvdService.fetchJSONFromNVD(ctx, url, currentTry+1)
		}
		return nistResponse{}, errors.Wrap(err, "could not fetch from NVD")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if currentTry < 10 {
			slog.Error("could not fetch from NVD", "try", currentTry, "statusCode", res.StatusCode)
			return nvdService.fetchJSONFromNVD(ctx, url, currentTry+1)
		}
		return nistResponse{}, fmt.Errorf("could not fetch from NVD. Status code: %d", res.StatusCode)
	}

	var resp nistResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		if currentTry < 10 {
			slog.Error("could not decode response from NVD. Retrying", "try", currentTry, "err", err)
			return nvdService.fetchJSONFromNVD(ctx, url, currentTry+1)
		}
		return nistResponse{}, errors.Wrap(err, "could not decode response from NVD")
	}

	return resp, nil
}

func (nvdService NVDService) saveResponseInDB(resp nistResponse) error {
	for _, v := range resp.Vulnerabilities {
		if err := nvdService.saveAdvisory(v.Cve); err != nil {
			slog.Warn("could not save advisory", "cve", v.Cve.ID, "err", err)
		}
	}
	return nil
}

// saveAdvisory stores the raw payload and one row per (vendor, product) the
// match tree references. Advisories with invalid configurations are skipped,
// a single bad record must not abort a sync.
func (nvdService NVDService) saveAdvisory(advisory nvdCVE) error {
	tree, err := buildMatchTree(advisory.Configurations)
	if err != nil {
		return errors.Wrapf(err, "invalid configurations for %s", advisory.ID)
	}

	products := tree.Products()
	if len(products) == 0 {
		// nothing to index, e.g. a rejected advisory without configurations
		return nil
	}

	cves, object, err := fromNVDCVE(advisory, tree, products)
	if err != nil {
		return err
	}

	return nvdService.cveRepository.Transaction(func(tx shared.DB) error {
		if err := nvdService.objectRepository.UpsertReturningID(tx, &object); err != nil {
			return err
		}
		for i := range cves {
			cves[i].ObjectID = object.ID
		}
		return nvdService.cveRepository.UpsertBatch(tx, cves)
	})
}

// buildMatchTree converts NVD 2.0 configurations into a stored match tree.
// The configurations of an advisory are alternatives, so the root is an OR.
func buildMatchTree(configurations []nvdConfiguration) (MatchNode, error) {
	root := MatchNode{Operator: OperatorOr}

	for _, cfg := range configurations {
		cfgNode := MatchNode{Operator: Operator(cfg.Operator), Negate: cfg.Negate}
		if cfgNode.Operator != OperatorAnd {
			cfgNode.Operator = OperatorOr
		}

		for _, node := range cfg.Nodes {
			child := MatchNode{Operator: Operator(node.Operator), Negate: node.Negate}
			if child.Operator != OperatorAnd {
				child.Operator = OperatorOr
			}
			for _, match := range node.CpeMatch {
				criterion, err := NewCriterionFromCPE(match.Criteria,
					match.VersionStartIncluding,
					match.VersionStartExcluding,
					match.VersionEndIncluding,
					match.VersionEndExcluding,
					match.Vulnerable,
				)
				if err != nil {
					return MatchNode{}, err
				}
				child.Criteria = append(child.Criteria, criterion)
			}
			cfgNode.Children = append(cfgNode.Children, child)
		}
		root.Children = append(root.Children, cfgNode)
	}

	if err := root.Validate(); err != nil {
		return MatchNode{}, err
	}
	return root, nil
}

func getCVSSMetric(advisory nvdCVE) (float32, models.Severity, string) {
	if len(advisory.Metrics.CvssMetricV40) > 0 {
		data := advisory.Metrics.CvssMetricV40[0].CvssData
		return float32(data.BaseScore), parseSeverity(data.BaseSeverity), data.VectorString
	}
	if len(advisory.Metrics.CvssMetricV31) > 0 {
		data := advisory.Metrics.CvssMetricV31[0].CvssData
		return float32(data.BaseScore), parseSeverity(data.BaseSeverity), data.VectorString
	}
	if len(advisory.Metrics.CvssMetricV30) > 0 {
		data := advisory.Metrics.CvssMetricV30[0].CvssData
		return float32(data.BaseScore), parseSeverity(data.BaseSeverity), data.VectorString
	}
	if len(advisory.Metrics.CvssMetricV2) > 0 {
		metric := advisory.Metrics.CvssMetricV2[0]
		score := float32(metric.CvssData.BaseScore)
		severity := parseSeverity(metric.BaseSeverity)
		if severity == models.SeverityNone {
			severity = severityFromScore(score)
		}
		return score, severity, metric.CvssData.VectorString
	}
	return 0, models.SeverityNone, ""
}

func fromNVDCVE(advisory nvdCVE, tree MatchNode, products []Product) ([]*models.CVE, models.Object, error) {
	published, err := time.Parse(iso8601Format, advisory.Published)
	if err != nil {
		published = time.Now()
	}
	lastModified, err := time.Parse(iso8601Format, advisory.LastModified)
	if err != nil {
		slog.Error("error while parsing last modified date", "err", err)
		lastModified = time.Now()
	}

	summary := ""
	for _, d := range advisory.Descriptions {
		if d.Lang == "en" {
			summary = d.Value
			break
		}
	}

	score, severity, vector := getCVSSMetric(advisory)
	if score == 0 && vector != "" {
		// some entries carry only the vector
		if recalculated, ok := scoreFromVector(vector); ok {
			score = recalculated
			severity = severityFromScore(score)
		}
	}

	type reference struct {
		URL  string   `json:"url"`
		Tags []string `json:"tags"`
	}
	refs := make([]reference, 0, len(advisory.References))
	for _, r := range advisory.References {
		refs = append(refs, reference{URL: r.URL, Tags: r.Tags})
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return nil, models.Object{}, errors.Wrap(err, "could not marshal references")
	}

	treeJSON, err := json.Marshal(tree)
	if err != nil {
		return nil, models.Object{}, errors.Wrap(err, "could not marshal match tree")
	}

	raw, err := json.Marshal(advisory)
	if err != nil {
		return nil, models.Object{}, errors.Wrap(err, "could not marshal raw advisory")
	}

	object := models.Object{
		CVE:    advisory.ID,
		Source: models.SourceNVD,
		Data:   datatypes.JSON(raw),
	}

	var vectorPtr *string
	if vector != "" {
		vectorPtr = &vector
	}

	cves := make([]*models.CVE, 0, len(products))
	for _, product := range products {
		cves = append(cves, &models.CVE{
			CVE:              advisory.ID,
			Vendor:           product.Vendor,
			Product:          product.Product,
			DatePublished:    published,
			DateLastModified: lastModified,
			Source:           models.SourceNVD,
			Summary:          summary,
			Score:            score,
			Severity:         severity,
			Vector:           vectorPtr,
			References:       datatypes.JSON(refsJSON),
			Configurations:   datatypes.JSON(treeJSON),
		})
	}

	return cves, object, nil
}

func (nvdService NVDService) fetchAndSaveAllPages(ctx context.Context, url url.URL, startIndex int) error {
	u := url

	totalResults := -1

	for totalResults == -1 || startIndex < totalResults {
		start := time.Now()

		q := u.Query()
		q.Set("startIndex", fmt.Sprint(startIndex))
		u.RawQuery = q.Encode()

		slog.Info("fetching all pages from nvd", "url", u.String())
		resp, err := nvdService.fetchJSONFromNVD(ctx, u, 1)

		apiRequestFinished := time.Now()
		if err != nil {
			return err
		}
		startIndex += resp.ResultsPerPage
		totalResults = resp.TotalResults

		slog.Info("fetched NVD data", "totalResults", resp.TotalResults, "currentIndex", startIndex)

		if err := nvdService.saveResponseInDB(resp); err != nil {
			slog.Warn("could not save response in DB", "err", err)
		}

		slog.Info("done iteration", "apiRequestTime", apiRequestFinished.Sub(start).String(), "databaseTime", time.Since(apiRequestFinished).String())
	}
	return nil
}

func (nvdService NVDService) InitialPopulation(ctx context.Context) error {
	slog.Info("starting initial NVD population. This is a one time process and takes a while - we have to respect the NVD API rate limits.")
	return nvdService.fetchAndSaveAllPages(ctx, nvdBaseURL, 0)
}

// ImportYear fetches all advisories published in a single year.
func (nvdService NVDService) ImportYear(ctx context.Context, year int) error {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)

	// the NVD accepts at most 120 days per request window
	for start.Before(end) {
		windowEnd := minTime(end, start.Add(119*24*time.Hour))

		u := nvdBaseURL
		q := u.Query()
		q.Add("pubStartDate", start.Format(iso8601Format))
		q.Add("pubEndDate", windowEnd.Format(iso8601Format))
		u.RawQuery = q.Encode()

		if err := nvdService.fetchAndSaveAllPages(ctx, u, 0); err != nil {
			return err
		}
		start = windowEnd
	}
	return nil
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func (nvdService NVDService) FetchAfter(ctx context.Context, lastModDate time.Time) error {
	slog.Info("starting to maintain NVD data", "lastModDate", lastModDate.String())
	now := time.Now()
	// we can only fetch 120 days at a time
	// we use 119 days, to make sure, that nvd is happy with the date range
	endDate := minTime(now, lastModDate.Add(119*24*time.Hour))
	for lastModDate.Before(now) {
		u := nvdBaseURL
		q := u.Query()
		q.Add("lastModStartDate", lastModDate.Format(iso8601Format))
		q.Add("lastModEndDate", endDate.Format(iso8601Format))
		u.RawQuery = q.Encode()

		if err := nvdService.fetchAndSaveAllPages(ctx, u, 0); err != nil {
			return err
		}

		// update the range
		lastModDate = endDate
		endDate = minTime(now, endDate.Add(119*24*time.Hour))
	}
	return nil
}

func (nvdService NVDService) Sync(ctx context.Context) error {
	lastModDate, err := nvdService.cveRepository.GetLastModDate()
	if err != nil || lastModDate.IsZero() {
		// we are doing the initial population
		return nvdService.InitialPopulation(ctx)
	}

	return nvdService.FetchAfter(ctx, lastModDate)
}
