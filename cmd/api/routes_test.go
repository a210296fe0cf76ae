package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"triage-platform/internal/auth"
	"triage-platform/internal/config"
	"triage-platform/internal/dispatch"
	"triage-platform/internal/httpapi"
	"triage-platform/internal/presence"
	"triage-platform/internal/queue"
	"triage-platform/internal/reports"

	"github.com/gin-gonic/gin"
)

func TestRoutes_EnforceRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if err := httpapi.RegisterValidators(); err != nil {
		t.Fatalf("validators: %v", err)
	}

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	revoked := auth.NewMemoryRevocationList()
	reportSvc := reports.NewService(reports.NewMemoryRepo())
	d := dispatch.New(queue.NewStore(), presence.NewTracker(0), reportSvc, dispatch.Options{})
	r := newRouter(httpapi.Handlers{Dispatcher: d, Reports: reportSvc, Revocations: revoked}, auth.RequireAccessToken(m, revoked))

	token := func(id, role string) string {
		p, err := m.IssuePair(time.Now(), id, role)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		return p.AccessToken
	}
	do := func(method, path, tok, body string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	counselor := token("c1", "counselor")
	supervisor := token("s1", "supervisor")
	intake := token("intake-svc", "intake")
	call := `{"phone":"0312345678","risk_level":"high"}`

	tests := []struct {
		name   string
		method string
		path   string
		tok    string
		body   string
		want   int
	}{
		{"health is public", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"metrics is public", http.MethodGet, "/metrics", "", "", http.StatusOK},
		{"queue needs a token", http.MethodGet, "/v1/queue", "", "", http.StatusUnauthorized},
		{"counselor cannot enqueue", http.MethodPost, "/v1/intake/calls", counselor, call, http.StatusForbidden},
		{"intake enqueues", http.MethodPost, "/v1/intake/calls", intake, call, http.StatusCreated},
		{"supervisor enqueues", http.MethodPost, "/v1/intake/calls", supervisor, call, http.StatusCreated},
		{"intake cannot read the queue", http.MethodGet, "/v1/queue", intake, "", http.StatusForbidden},
		{"counselor sets status", http.MethodPut, "/v1/counselors/me/status", counselor, `{"available":true}`, http.StatusOK},
		{"counselor reads the queue", http.MethodGet, "/v1/queue", counselor, "", http.StatusOK},
		{"counselor cannot reach admin", http.MethodGet, "/v1/admin/queue/stats", counselor, "", http.StatusForbidden},
		{"supervisor reaches admin", http.MethodGet, "/v1/admin/counselors", supervisor, "", http.StatusOK},
		{"supervisor resets queue", http.MethodDelete, "/v1/admin/queue", supervisor, "", http.StatusOK},
	}
	for _, tt := range tests {
		if got := do(tt.method, tt.path, tt.tok, tt.body); got != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.name, tt.want, got)
		}
	}
}
