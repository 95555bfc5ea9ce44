package domain

import "strings"

// Role is the closed set of actor roles. Role checks go through the
// capability methods below rather than string comparison in handlers.
type Role string

const (
	RoleMember     Role = "member"
	RoleAccountant Role = "accountant"
	RoleMerchant   Role = "merchant"
	RoleAdmin      Role = "admin"
)

// ParseRole validates a role value from a token or the database.
func ParseRole(v string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(v))) {
	case RoleMember:
		return RoleMember, true
	case RoleAccountant:
		return RoleAccountant, true
	case RoleMerchant:
		return RoleMerchant, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// CanResolve reports whether the role may resolve requests of the
// given category: accounting resolves withdrawals, merchants resolve
// top-ups, admin resolves both.
func (r Role) CanResolve(c RequestCategory) bool {
	if r == RoleAdmin {
		return true
	}
	switch c {
	case CategoryWithdrawal:
		return r == RoleAccountant
	case CategoryTopUp:
		return r == RoleMerchant
	}
	return false
}

// CanSubmit reports whether the role may create requests.
func (r Role) CanSubmit() bool {
	return r == RoleMember
}

// ParseDecision maps a client-supplied status value onto a terminal
// state. Only APPROVED/REJECTED (any case) are accepted.
func ParseDecision(v string) (RequestStatus, bool) {
	switch RequestStatus(strings.ToLower(strings.TrimSpace(v))) {
	case StatusApproved:
		return StatusApproved, true
	case StatusRejected:
		return StatusRejected, true
	}
	return "", false
}
