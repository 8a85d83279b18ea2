package audit

import (
	"net"
	"net/http"
	"strings"
)

// Request describes an audited API call.
type Request struct {
	Actor        string
	Role         string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     any
}

// EntryFromRequest builds an entry carrying the caller address and user agent of r.
func EntryFromRequest(r *http.Request, req Request) Entry {
	entry := Entry{
		Actor:        req.Actor,
		Role:         req.Role,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Metadata:     Metadata(req.Metadata),
	}
	if r != nil {
		entry.IP = ClientIP(r)
		entry.UserAgent = r.UserAgent()
	}
	return entry
}

// ClientIP returns the first parseable address from X-Forwarded-For, then X-Real-IP,
// then the connection peer.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	for _, candidate := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := net.ParseIP(strings.TrimSpace(candidate)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
