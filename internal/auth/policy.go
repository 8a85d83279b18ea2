package auth

import (
	"net/http"
	"strings"
)

// rule maps a path (exact, or a prefix when it ends in "/") to the role that
// reads it and the role that writes it.
type rule struct {
	path  string
	read  Role
	write Role
}

func (r rule) matches(path string) bool {
	if strings.HasSuffix(r.path, "/") {
		return strings.HasPrefix(path, r.path) || path == strings.TrimSuffix(r.path, "/")
	}
	return path == r.path
}

// Checked in order; the first match wins.
var lendingRules = []rule{
	{path: "/api/v1/devices/", read: RoleViewer, write: RoleAdmin},
	{path: "/api/v1/requesters", read: RoleViewer, write: RoleOperator},
	{path: "/api/v1/requests/", read: RoleOperator, write: RoleOperator},
	{path: "/api/v1/reservations/", read: RoleViewer, write: RoleOperator},
	{path: "/api/v1/exports/", read: RoleViewer, write: RoleViewer},
	{path: "/api/v1/audit", read: RoleAdmin, write: RoleAdmin},
	{path: "/api/v1/admin/", read: RoleAdmin, write: RoleAdmin},
}

// Policy maps requests to the role they need.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds the lending policy with the given unauthenticated paths.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt reports whether r skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role r needs. Paths outside /api/ need none.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil || !strings.HasPrefix(r.URL.Path, "/api/") {
		return "", false
	}
	read := isReadMethod(r.Method)
	for _, rl := range lendingRules {
		if !rl.matches(r.URL.Path) {
			continue
		}
		if read {
			return rl.read, true
		}
		return rl.write, true
	}
	if read {
		return RoleViewer, true
	}
	return RoleOperator, true
}

func isReadMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
