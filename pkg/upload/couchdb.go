package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/okulev/facs/pkg/config"
	"github.com/okulev/facs/pkg/result"
)

// couchRequestTimeout bounds one document PUT. Delivery is best-effort
// and must never stall a sweep.
const couchRequestTimeout = 30 * time.Second

// CouchDB delivers run reports as documents to a CouchDB database,
// keeping the legacy dashboard fed.
type CouchDB struct {
	log    logrus.FieldLogger
	cfg    *config.CouchDBConfig
	client *http.Client
}

// NewCouchDB creates a CouchDB deliverer.
func NewCouchDB(log logrus.FieldLogger, cfg *config.CouchDBConfig) *CouchDB {
	return &CouchDB{
		log:    log.WithField("component", "couchdb"),
		cfg:    cfg,
		client: &http.Client{Timeout: couchRequestTimeout},
	}
}

// Deliver PUTs the report as a document whose ID is the report key, so
// re-delivering an already stored run conflicts instead of duplicating.
func (c *CouchDB) Deliver(ctx context.Context, report *result.RunReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report document: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s",
		strings.TrimRight(c.cfg.URL, "/"),
		url.PathEscape(c.cfg.Database),
		url.PathEscape(report.Key()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building document request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("couchdb rejected document: %s: %s",
			resp.Status, strings.TrimSpace(string(msg)))
	}

	c.log.WithFields(logrus.Fields{
		"doc_id":   report.Key(),
		"database": c.cfg.Database,
	}).Debug("Delivered report document")

	return nil
}
