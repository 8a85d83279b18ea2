package auth

import "errors"

var (
	// ErrUnauthorized is returned when a request carries no usable token.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden is returned when the caller's role is below the route's requirement.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrInvalidToken wraps every token validation failure.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrEmptySecret is returned when no signing secret is configured.
	ErrEmptySecret = errors.New("auth: empty secret")
	// ErrInvalidRole is returned when issuing a token for an unknown role.
	ErrInvalidRole = errors.New("auth: invalid role")
)
