package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SubjectFromContext(r.Context()) == "" {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_RoleMatrix(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy([]string{"/healthz"}, nil))
	handler := mw.Wrap(okHandler())

	cases := []struct {
		name   string
		role   string
		method string
		path   string
		want   int
	}{
		{"viewer lists devices", "viewer", http.MethodGet, "/api/v1/devices", http.StatusOK},
		{"viewer cannot register device", "viewer", http.MethodPost, "/api/v1/devices", http.StatusForbidden},
		{"operator cannot register device", "operator", http.MethodPost, "/api/v1/devices", http.StatusForbidden},
		{"admin registers device", "admin", http.MethodPost, "/api/v1/devices", http.StatusOK},
		{"viewer cannot request", "viewer", http.MethodPost, "/api/v1/requests", http.StatusForbidden},
		{"operator requests", "operator", http.MethodPost, "/api/v1/requests", http.StatusOK},
		{"viewer cannot complete", "viewer", http.MethodPost, "/api/v1/reservations/r1/complete", http.StatusForbidden},
		{"operator cancels", "operator", http.MethodPost, "/api/v1/reservations/r1/cancel", http.StatusOK},
		{"operator cannot read audit", "operator", http.MethodGet, "/api/v1/audit", http.StatusForbidden},
		{"admin retries persistence", "admin", http.MethodPost, "/api/v1/admin/persistence/retry", http.StatusOK},
		{"viewer exports", "viewer", http.MethodGet, "/api/v1/exports/reservations.pdf", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, tc.role))
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.Code)
			}
		})
	}
}

func TestAuthMiddleware_ExemptAndStreamQueryToken(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy([]string{"/healthz"}, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected exempt path to pass, got %d", resp.Code)
	}

	token := mustToken(t, secret, "viewer")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/stream?access_token="+token, nil))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected stream query token to pass, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/devices?access_token="+token, nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected query token to be ignored outside streams, got %d", resp.Code)
	}
}

func TestParseJWT_Rejects(t *testing.T) {
	secret := []byte("test-secret")
	if _, err := ParseJWT("", secret); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := ParseJWT(mustToken(t, []byte("other"), "admin"), secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
	if _, err := ParseJWT(mustToken(t, secret, "root"), secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown role, got %v", err)
	}
}

func TestIssueJWT_RoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueJWT(secret, "desk-1", RoleOperator, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseJWT(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "desk-1" || claims.Role != "operator" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := IssueJWT(secret, "desk-1", Role("root"), time.Minute); err == nil {
		t.Fatalf("expected error for invalid role")
	}
}

func mustToken(t *testing.T, secret []byte, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestNormalizeRole(t *testing.T) {
	if role, ok := NormalizeRole(" Admin "); !ok || role != RoleAdmin {
		t.Fatalf("expected admin, got %q ok=%v", role, ok)
	}
	if _, ok := NormalizeRole("root"); ok {
		t.Fatalf("expected root to be rejected")
	}
	roles := Roles()
	for i := 1; i < len(roles); i++ {
		if !RoleAtLeast(roles[i], roles[i-1]) || RoleAtLeast(roles[i-1], roles[i]) {
			t.Fatalf("role order broken between %s and %s", roles[i-1], roles[i])
		}
	}
	if RoleAtLeast(Role(""), RoleViewer) {
		t.Fatalf("empty role must not satisfy viewer")
	}
}

func TestPolicy_RequiredRole(t *testing.T) {
	policy := NewDefaultPolicy(nil, nil)
	cases := []struct {
		method string
		path   string
		want   Role
		ok     bool
	}{
		{http.MethodGet, "/api/v1/devices/d1/label.png", RoleViewer, true},
		{http.MethodDelete, "/api/v1/devices/d1", RoleAdmin, true},
		{http.MethodGet, "/api/v1/requesters/s1", RoleViewer, true},
		{http.MethodDelete, "/api/v1/requests/s1", RoleOperator, true},
		{http.MethodGet, "/api/v1/reservations", RoleViewer, true},
		{http.MethodGet, "/api/v1/admin/dead-letters", RoleAdmin, true},
		{http.MethodGet, "/api/v1/queues/HIGH", RoleViewer, true},
		{http.MethodGet, "/healthz", "", false},
	}
	for _, tc := range cases {
		got, ok := policy.RequiredRole(httptest.NewRequest(tc.method, tc.path, nil))
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%s %s: expected %q/%v, got %q/%v", tc.method, tc.path, tc.want, tc.ok, got, ok)
		}
	}
}

func TestIdentityFromContext(t *testing.T) {
	ctx := WithIdentity(httptest.NewRequest(http.MethodGet, "/", nil).Context(), RoleOperator, "desk-2")
	id, ok := IdentityFromContext(ctx)
	if !ok || id.Subject != "desk-2" || id.Role != RoleOperator {
		t.Fatalf("unexpected identity %+v ok=%v", id, ok)
	}
	if RoleFromContext(nil) != "" || SubjectFromContext(nil) != "" {
		t.Fatalf("expected empty identity for nil context")
	}
}
