package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"net/http"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestSecurity_NoAuthHeader_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	endpoints := []string{
		"/api/workflow-definitions",
		"/api/missions",
		"/api/audit?actor_id=user-alice",
		"/api/probes",
		"/api/telemetry/recent",
	}

	for _, ep := range endpoints {
		t.Run(ep, func(t *testing.T) {
			resp := h.GET(ep, "")
			h.AssertStatus(t, resp, http.StatusUnauthorized)
		})
	}
}

func TestSecurity_ExpiredJWT_Returns401(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateExpiredToken(AnalystClaims())

	resp := h.GET("/api/missions", token)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_WrongAudience_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	claims := AnalystClaims()
	claims.Extra = map[string]any{"aud": "some-other-api"}
	token := h.GenerateToken(claims)

	resp := h.GET("/api/missions", token)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_WrongIssuer_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	claims := AnalystClaims()
	claims.Extra = map[string]any{"iss": "https://rogue-idp.example.com"}
	token := h.GenerateToken(claims)

	resp := h.GET("/api/missions", token)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_InvalidSignature_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	// Sign with a different RSA key under the same kid, so the signature
	// check itself is what fails.
	differentKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	claims := jwt.MapClaims{
		"iss":    "https://auth.test.custos.dev",
		"aud":    "custos-api-test",
		"sub":    "user-mallory",
		"org_id": testOrgID,
		"roles":  []any{"admin"},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(differentKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	resp := h.GET("/api/missions", signed)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_NoneAlgorithm_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	// Craft an unsigned "none" algorithm token manually.
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"user-mallory","org_id":"org-1","iss":"https://auth.test.custos.dev","aud":"custos-api-test","roles":["admin"]}`))
	noneToken := header + "." + payload + "."

	resp := h.GET("/api/missions", noneToken)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_MalformedToken_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/api/missions", "not.a.valid.jwt.token")
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_ValidJWT_Returns200(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	resp := h.GET("/api/missions", token)
	h.AssertStatus(t, resp, http.StatusOK)
}

func TestSecurity_HealthIsPublic(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/healthz", "")
	h.AssertStatus(t, resp, http.StatusOK)
}

func TestSecurity_HeadersOnResponses(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	required := []string{
		"X-Content-Type-Options",
		"X-Frame-Options",
		"Cache-Control",
	}

	// Authenticated, unauthenticated, and public responses all carry the
	// security headers.
	for name, resp := range map[string]*http.Response{
		"authenticated": h.GET("/api/missions", token),
		"rejected":      h.GET("/api/missions", ""),
		"public":        h.GET("/healthz", ""),
	} {
		for _, header := range required {
			if resp.Header.Get(header) == "" {
				t.Errorf("%s response missing %s", name, header)
			}
		}
		resp.Body.Close()
	}
}

func TestSecurity_CorrelationIDReturned(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	resp := h.GET("/api/missions", token)
	if resp.Header.Get("X-Correlation-Id") == "" {
		t.Error("X-Correlation-Id not set in response")
	}
	resp.Body.Close()

	resp = h.GETWithHeaders("/api/missions", token, map[string]string{
		"X-Correlation-Id": "custom-trace-123",
	})
	if got := resp.Header.Get("X-Correlation-Id"); got != "custom-trace-123" {
		t.Errorf("X-Correlation-Id = %q, want custom-trace-123", got)
	}
	resp.Body.Close()
}

func TestSecurity_CORSAllowedOrigin(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GETWithHeaders("/healthz", "", map[string]string{
		"Origin": "http://localhost:3000",
	})
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("CORS not set for allowed origin")
	}
	resp.Body.Close()

	resp = h.GETWithHeaders("/healthz", "", map[string]string{
		"Origin": "https://evil.example.com",
	})
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Error("CORS headers set for disallowed origin")
	}
	resp.Body.Close()
}

func TestSecurity_ErrorResponseNoStackTrace(t *testing.T) {
	h := NewTestHarness(t)
	viewer := h.GenerateToken(ViewerClaims())
	analyst := h.GenerateToken(AnalystClaims())

	defID := h.PublishReviewDefinition(t, analyst)
	missionID := h.CreateMission(t, analyst, defID, "Leak check")

	resp := h.POST("/api/missions/"+missionID+"/transition", map[string]any{
		"toState": "review",
	}, viewer)
	body := string(h.ReadBody(resp))

	for _, pattern := range []string{"goroutine", ".go:", "panic", "runtime.", "/internal/"} {
		if strings.Contains(body, pattern) {
			t.Errorf("error response contains sensitive pattern %q: %s", pattern, body)
		}
	}
}
