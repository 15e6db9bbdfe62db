package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossdoc-check-mcp-server/internal/domain"
	"github.com/crossdoc-check-mcp-server/internal/repository"
	"github.com/crossdoc-check-mcp-server/internal/service"
)

type stubConfigManager struct {
	cfg *domain.Config
}

func (s *stubConfigManager) GetConfig() *domain.Config                   { return s.cfg }
func (s *stubConfigManager) GetServerConfig() *domain.ServerConfig       { return &s.cfg.Server }
func (s *stubConfigManager) GetDatabaseConfig() *domain.DatabaseConfig   { return &s.cfg.Database }
func (s *stubConfigManager) GetLoggingConfig() *domain.LoggingConfig     { return &s.cfg.Logging }
func (s *stubConfigManager) GetMCPConfig() *domain.MCPConfig             { return &s.cfg.MCP }
func (s *stubConfigManager) GetRateLimitConfig() *domain.RateLimitConfig { return &s.cfg.RateLimit }

type memoryRunStore struct {
	runs map[string]*domain.ValidationRunRecord
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{runs: make(map[string]*domain.ValidationRunRecord)}
}

func (m *memoryRunStore) Create(_ context.Context, run *domain.ValidationRunRecord) error {
	m.runs[run.ID] = run
	return nil
}

func (m *memoryRunStore) GetByID(_ context.Context, id string) (*domain.ValidationRunRecord, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, repository.ErrRunNotFound
	}
	return run, nil
}

func (m *memoryRunStore) List(_ context.Context, limit, offset int) ([]*domain.ValidationRunRecord, error) {
	var out []*domain.ValidationRunRecord
	for _, run := range m.runs {
		out = append(out, run)
	}
	return out, nil
}

func newTestServer(t *testing.T, runs RunStore) *Server {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &domain.Config{
		Server: domain.ServerConfig{
			Host:         "127.0.0.1",
			Port:         0,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Logging: domain.LoggingConfig{Level: "info"},
	}

	svc := service.NewConsistencyService(logger, nil)
	return NewServer(&stubConfigManager{cfg: cfg}, svc, runs, logger)
}

func driftBundleJSON() string {
	return `{
		"protocol": {
			"document_id": "prot-1",
			"endpoints": [
				{"id": "prot-ep-1", "name": "Change in HbA1c at Week 24", "description": "Absolute change from baseline in HbA1c at Week 24", "type": "primary", "data_type": "continuous"}
			]
		},
		"sap": {
			"document_id": "sap-1",
			"primary_endpoints": [
				{"id": "sap-ep-1", "name": "Overall survival at 12 months", "description": "Absolute change from baseline in HbA1c at Week 24", "type": "primary", "data_type": "continuous"}
			]
		}
	}`
}

func TestServer_Health(t *testing.T) {
	server := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestServer_ValidatePersistsRun(t *testing.T) {
	store := newMemoryRunStore()
	server := newTestServer(t, store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", bytes.NewBufferString(driftBundleJSON()))
	req.Header.Set("Content-Type", "application/json")
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result service.ValidateBundleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []string{"PROTOCOL", "SAP"}, result.DocumentTypes)
	assert.Greater(t, result.Result.Summary.Total, 0)

	stored, err := store.GetByID(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.Result.Summary.Total, stored.Summary.Total)
}

func TestServer_ValidateRejectsMalformedPayload(t *testing.T) {
	server := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", bytes.NewBufferString("{not json"))
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_AutoFix(t *testing.T) {
	server := newTestServer(t, nil)

	body := fmt.Sprintf(`{"bundle": %s, "issue_codes": ["PRIMARY_ENDPOINT_DRIFT"]}`, driftBundleJSON())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/autofix", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result service.AutoFixBundleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.Fix.AppliedPatches)
	assert.NotEmpty(t, result.Fix.Changelog)
}

func TestServer_Diff(t *testing.T) {
	server := newTestServer(t, nil)

	body := `{"old": "dose: 10 mg\nroute: oral", "new": "dose: 20 mg\nroute: oral", "algorithm": "set"}`

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/diff", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dose: 20 mg")
}

func TestServer_GetRunNotFound(t *testing.T) {
	server := newTestServer(t, newMemoryRunStore())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/does-not-exist", nil)
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RunsUnavailableWithoutStore(t *testing.T) {
	server := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
