package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/okulev/facs/pkg/config"
	"github.com/okulev/facs/pkg/result"
	"github.com/okulev/facs/pkg/store"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func testServer(t *testing.T, cfg *config.APIConfig) (*httptest.Server, store.Store) {
	t.Helper()

	st, err := store.New(testLogger(), &store.Config{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)

	t.Cleanup(func() { _ = st.Close() })

	s := &server{
		log:   testLogger(),
		cfg:   cfg,
		store: st,
	}

	srv := httptest.NewServer(s.buildRouter())
	t.Cleanup(srv.Close)

	return srv, st
}

func seedReport(t *testing.T, st store.Store, sample, index string) {
	t.Helper()

	begin := time.Date(2014, 2, 3, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.Save(context.Background(), &result.RunReport{
		Sample:            sample,
		IndexName:         index,
		BeginTimestamp:    begin,
		EndTimestamp:      begin.Add(time.Minute),
		ContaminationRate: 0.65,
	}))
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, &config.APIConfig{})

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListReports(t *testing.T) {
	srv, st := testServer(t, &config.APIConfig{})

	seedReport(t, st, "a.fastq", "phiX")
	seedReport(t, st, "b.fq", "ecoli")

	resp, err := http.Get(srv.URL + "/api/v1/reports/?sample=a.fastq")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Reports []store.Record `json:"reports"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	require.Len(t, body.Reports, 1)
	assert.Equal(t, "a.fastq", body.Reports[0].Sample)
	assert.Equal(t, "phiX", body.Reports[0].IndexName)
}

func TestGetReport(t *testing.T) {
	srv, st := testServer(t, &config.APIConfig{})

	seedReport(t, st, "a.fastq", "phiX")

	records, err := st.List(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	resp, err := http.Get(srv.URL + "/api/v1/reports/1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec store.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.InDelta(t, 0.65, rec.ContaminationRate, 1e-9)
}

func TestGetReport_NotFound(t *testing.T) {
	srv, _ := testServer(t, &config.APIConfig{})

	resp, err := http.Get(srv.URL + "/api/v1/reports/999")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
	require.NoError(t, err)

	srv, st := testServer(t, &config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:   true,
			TokenHash: string(hash),
		},
	})

	seedReport(t, st, "a.fastq", "phiX")

	t.Run("missing token", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/reports/")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong token", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/reports/", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer nope")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/reports/", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer sekrit")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("health stays public", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRateLimit(t *testing.T) {
	srv, _ := testServer(t, &config.APIConfig{
		RateLimit: config.RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 2,
		},
	})

	var statuses []int

	for range 4 {
		resp, err := http.Get(srv.URL + "/api/v1/reports/")
		require.NoError(t, err)
		resp.Body.Close()

		statuses = append(statuses, resp.StatusCode)
	}

	assert.Contains(t, statuses, http.StatusTooManyRequests)
}
