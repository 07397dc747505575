package vulndb

type npmPerson struct {
	Link  string `json:"link"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type npmMetadata struct {
	ModuleType         string  `json:"module_type"`
	Exploitability     float64 `json:"exploitability"`
	AffectedComponents string  `json:"affected_components"`
}

type npmAdvisory struct {
	ID                 int         `json:"id"`
	Created            string      `json:"created"`
	Updated            string      `json:"updated"`
	Deleted            *string     `json:"deleted"`
	Title              string      `json:"title"`
	FoundBy            npmPerson   `json:"found_by"`
	ReportedBy         npmPerson   `json:"reported_by"`
	ModuleName         string      `json:"module_name"`
	CVEs               []string    `json:"cves"`
	VulnerableVersions string      `json:"vulnerable_versions"`
	PatchedVersions    string      `json:"patched_versions"`
	Overview           string      `json:"overview"`
	Recommendation     string      `json:"recommendation"`
	References         string      `json:"references"`
	Access             string      `json:"access"`
	Severity           string      `json:"severity"`
	CWE                string      `json:"cwe"`
	Metadata           npmMetadata `json:"metadata"`
}

type npmPaging struct {
	Next *string `json:"next"`
	Prev *string `json:"prev"`
}

// this is the response from the npm registry security advisories endpoint
// https://registry.npmjs.org/-/npm/v1/security/advisories
type npmAdvisoriesResponse struct {
	Total   int           `json:"total"`
	URLs    npmPaging     `json:"urls"`
	Objects []npmAdvisory `json:"objects"`
}
