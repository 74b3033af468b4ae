// Package integration provides a reusable test harness for end-to-end
// testing of the Custos API server. It starts a full HTTP server with
// in-memory stores, the real middleware chain, and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/meridianops/custos/internal/audit"
	"github.com/meridianops/custos/internal/config"
	"github.com/meridianops/custos/internal/definition"
	"github.com/meridianops/custos/internal/export"
	"github.com/meridianops/custos/internal/ledger"
	"github.com/meridianops/custos/internal/mission"
	"github.com/meridianops/custos/internal/probe"
	"github.com/meridianops/custos/internal/transport"
	"github.com/meridianops/custos/internal/workflow"
	"github.com/meridianops/custos/model"
)

const testOrgID = "org-1"

// TestHarness encapsulates a fully wired Custos instance backed by memory
// stores for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Registry   *definition.Registry
	Machine    *workflow.Machine
	Missions   *mission.Service
	Ledger     *ledger.Ledger
	Runner     *probe.Runner
	Probes     *probe.MemoryStore
	Telemetry  *probe.MemorySink
	AuditStore *audit.MemoryStore

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	handlerTimeout time.Duration
	probes         []model.ProbeDefinition
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithProbe seeds a probe definition into the probe store before the server
// starts.
func WithProbe(def model.ProbeDefinition) HarnessOption {
	return func(c *harnessConfig) {
		c.probes = append(c.probes, def)
	}
}

// NewTestHarness creates and starts a full Custos test instance. The server
// is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}

	log := zap.NewNop()
	h := &TestHarness{
		t:      t,
		issuer: newTokenIssuer(t),
	}

	h.cfg = config.Defaults()
	h.cfg.Org.ID = testOrgID
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	h.cfg.Identity.Issuer = h.issuer.Issuer()
	h.cfg.Identity.Audience = h.issuer.Audience()
	h.cfg.Identity.JWKSURL = h.issuer.JWKSURL()

	h.AuditStore = audit.NewMemoryStore()
	trail := audit.NewTrail(h.AuditStore)

	defStore := definition.NewMemoryStore()
	registry, err := definition.NewRegistry(context.Background(), defStore, trail, testOrgID)
	if err != nil {
		t.Fatalf("build definition registry: %v", err)
	}
	h.Registry = registry

	missionStore := mission.NewMemoryStore()
	wfStore := workflow.NewMemoryStore(h.AuditStore)
	h.Machine = workflow.NewMachine(registry, wfStore, missionStore, log)
	h.Missions = mission.NewService(missionStore, trail, h.Machine, log)

	evidenceStore := ledger.NewMemoryStore(h.AuditStore)
	h.Ledger = ledger.NewLedger(evidenceStore, missionStore, log)
	exporter := export.NewExporter(h.Missions, h.Ledger, h.Machine, trail, log)

	h.Probes = probe.NewMemoryStore()
	for _, def := range hc.probes {
		if err := h.Probes.CreateProbe(context.Background(), def); err != nil {
			t.Fatalf("seed probe %s: %v", def.ID, err)
		}
	}
	probeReg := probe.NewRegistry()
	probe.RegisterBuiltins(probeReg, missionStore, evidenceStore)
	h.Telemetry = probe.NewMemorySink()
	h.Runner = probe.NewRunner(h.Probes, probeReg, h.Ledger, h.Telemetry, trail, nil, log)

	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), 1*time.Hour)

	router := transport.NewRouter(transport.Dependencies{
		Config:       h.cfg,
		Registry:     registry,
		Machine:      h.Machine,
		Missions:     h.Missions,
		Ledger:       h.Ledger,
		Exporter:     exporter,
		Runner:       h.Runner,
		Probes:       h.Probes,
		Trail:        trail,
		Authenticate: transport.JWTAuthenticator(h.cfg.Identity, jwks),
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// GETWithHeaders performs an authenticated GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, headers)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the
// body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Shared fixtures ---

// AnalystClaims returns TestClaims for an analyst user.
func AnalystClaims() TestClaims {
	return TestClaims{
		ActorID: "user-alice",
		OrgID:   testOrgID,
		Email:   "alice@meridian.example.com",
		Roles:   []string{"analyst"},
	}
}

// LeadClaims returns TestClaims for a mission lead user.
func LeadClaims() TestClaims {
	return TestClaims{
		ActorID: "user-lena",
		OrgID:   testOrgID,
		Email:   "lena@meridian.example.com",
		Roles:   []string{"lead"},
	}
}

// ViewerClaims returns TestClaims for a read-only user with no workflow roles.
func ViewerClaims() TestClaims {
	return TestClaims{
		ActorID: "user-vik",
		OrgID:   testOrgID,
		Email:   "vik@meridian.example.com",
		Roles:   []string{"viewer"},
	}
}

// AdminClaims returns TestClaims for a privileged admin user.
func AdminClaims() TestClaims {
	return TestClaims{
		ActorID: "user-ada",
		OrgID:   testOrgID,
		Email:   "ada@meridian.example.com",
		Roles:   []string{model.RoleAdmin},
	}
}

// PublishReviewDefinition publishes a three-state review workflow over HTTP
// and returns its ID. The open to review edge is guarded by the analyst
// role, the review to closed edge by the lead role.
func (h *TestHarness) PublishReviewDefinition(t *testing.T, token string) string {
	t.Helper()

	resp := h.POST("/api/workflow-definitions", map[string]any{
		"name":        "Mission Review",
		"description": "Standard review flow for field missions",
		"states": []map[string]any{
			{"name": "open", "initial": true},
			{"name": "review"},
			{"name": "closed", "final": true},
		},
		"transitions": []map[string]any{
			{"from": "open", "to": "review", "roles": []string{"analyst"}},
			{"from": "review", "to": "open", "roles": []string{"lead"}},
			{"from": "review", "to": "closed", "roles": []string{"lead"}},
		},
	}, token)

	var def model.WorkflowDefinition
	h.AssertJSON(t, resp, http.StatusCreated, &def)
	if def.ID == "" {
		t.Fatal("published definition has no ID")
	}
	return def.ID
}

// CreateMission creates a mission bound to the given definition over HTTP
// and returns its ID.
func (h *TestHarness) CreateMission(t *testing.T, token, definitionID, name string) string {
	t.Helper()

	resp := h.POST("/api/missions", map[string]any{
		"name":         name,
		"description":  "created by integration harness",
		"definitionId": definitionID,
	}, token)

	var created struct {
		Mission  model.Mission          `json:"mission"`
		Instance model.WorkflowInstance `json:"instance"`
	}
	h.AssertJSON(t, resp, http.StatusCreated, &created)
	if created.Mission.ID == "" {
		t.Fatal("created mission has no ID")
	}
	return created.Mission.ID
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
