package scanning

import "context"

// ScanRequest identifies the project a scan runs over.
type ScanRequest struct {
	ProjectName string
	ProjectPath string
}

// ScanSummary is the remote service's account of a finished scan.
type ScanSummary struct {
	ScannedFiles int `json:"scanned_files"`
	TotalIssues  int `json:"total_issues"`
}

// Scanner performs a code-security scan against the remote service. It must
// return promptly once ctx is done.
type Scanner interface {
	Scan(ctx context.Context, req ScanRequest) (ScanSummary, error)
}
