package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// DefaultQueryTokenPaths accept ?access_token= because browser EventSource and
// WebSocket clients cannot set an Authorization header.
var DefaultQueryTokenPaths = []string{"/api/v1/stream", "/api/v1/ws"}

// Middleware authenticates bearer JWTs and enforces the policy's roles.
type Middleware struct {
	Secret          []byte
	Policy          Policy
	QueryTokenPaths map[string]struct{}
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	paths := make(map[string]struct{}, len(DefaultQueryTokenPaths))
	for _, path := range DefaultQueryTokenPaths {
		paths[path] = struct{}{}
	}
	return &Middleware{Secret: secret, Policy: policy, QueryTokenPaths: paths}
}

// Wrap applies authentication and role checks to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required, guarded := m.Policy.RequiredRole(r)
		if !guarded || m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		id, err := m.authenticate(r)
		if err != nil {
			deny(w, http.StatusUnauthorized, ErrUnauthorized)
			return
		}
		if !RoleAtLeast(id.Role, required) {
			deny(w, http.StatusForbidden, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id.Role, id.Subject)))
	})
}

func (m *Middleware) authenticate(r *http.Request) (Identity, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		if _, ok := m.QueryTokenPaths[r.URL.Path]; ok {
			token = r.URL.Query().Get("access_token")
		}
	}
	claims, err := ParseJWT(token, m.Secret)
	if err != nil {
		return Identity{}, err
	}
	role, _ := NormalizeRole(claims.Role)
	return Identity{Subject: claims.Subject, Role: role}, nil
}

func bearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func deny(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
