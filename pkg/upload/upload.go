// Package upload ships assembled run reports off the box: bulk JSON
// documents to S3-compatible storage and per-run documents to CouchDB.
package upload

import (
	"context"

	"github.com/okulev/facs/pkg/result"
)

// Uploader uploads the reports of one sweep to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and
	// writable. Writes a small test object to fail fast on
	// misconfiguration.
	Preflight(ctx context.Context) error

	// UploadReports uploads every report as a JSON document under the
	// configured prefix, grouped by sweep identifier.
	UploadReports(ctx context.Context, sweepID string, reports []*result.RunReport) error
}
