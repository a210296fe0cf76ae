package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"triage-platform/internal/config"

	"github.com/gin-gonic/gin"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newManager(t)

	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "counselor-1", "counselor")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.CounselorID != "counselor-1" || claims.Role != "counselor" || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, err := m.IssuePair(time.Now(), "c", "counselor")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, time.Now()); err == nil {
		t.Fatalf("expected token_type mismatch")
	}
}

func TestMemoryRevocationList_ExpiresEntries(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := NewMemoryRevocationList()
	l.clock = func() time.Time { return now }
	ctx := context.Background()

	if err := l.Revoke(ctx, "jti-1", now.Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := l.IsRevoked(ctx, "jti-1"); !ok {
		t.Fatalf("expected revoked")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := l.IsRevoked(ctx, "jti-1"); ok {
		t.Fatalf("expected revocation to lapse with the token")
	}
	if err := l.Revoke(ctx, "", now); err == nil {
		t.Fatalf("expected error for empty jti")
	}
}

func TestRequireAccessToken_RejectsRevokedToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)
	revoked := NewMemoryRevocationList()

	pair, err := m.IssuePair(time.Now(), "counselor-1", "counselor")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	r.GET("/x", RequireAccessToken(m, revoked), func(c *gin.Context) {
		id, _ := CounselorID(c.Request.Context())
		jti, exp, err := TokenID(c.Request.Context())
		if err != nil || jti == "" || exp.IsZero() {
			c.Status(http.StatusInternalServerError)
			return
		}
		if err := revoked.Revoke(c.Request.Context(), jti, exp); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id)
	})

	do := func(header string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		return w
	}

	if w := do(""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := do("Bearer " + pair.AccessToken); w.Code != http.StatusOK || w.Body.String() != "counselor-1" {
		t.Fatalf("expected 200 with identity, got %d %q", w.Code, w.Body.String())
	}
	if w := do("Bearer " + pair.AccessToken); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revocation, got %d", w.Code)
	}
}
