package auth

import "strings"

// Role is a staff permission level. Higher roles include the lower ones.
type Role string

const (
	// RoleViewer reads inventory, queues, reservations and exports.
	RoleViewer Role = "viewer"
	// RoleOperator runs the lending desk: registers requesters, requests and returns devices.
	RoleOperator Role = "operator"
	// RoleAdmin manages inventory, reads the audit log and triggers persistence retries.
	RoleAdmin Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// Roles lists roles from least to most privileged.
func Roles() []Role {
	return []Role{RoleViewer, RoleOperator, RoleAdmin}
}

// NormalizeRole trims and lower-cases value and reports whether it names a role.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role satisfies required. Unknown roles satisfy nothing.
func RoleAtLeast(role Role, required Role) bool {
	rank, ok := roleRanks[role]
	if !ok {
		return false
	}
	return rank >= roleRanks[required]
}
