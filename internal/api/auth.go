package api

import (
	"net/http"
	"strings"

	"wavepick/internal/auth"
)

type Principal struct {
	Tenant  string
	Role    string // admin, planner, viewer
	Subject string
}

// getPrincipal extracts tenant and role from a bearer token when one
// verifies, else from the X-Tenant-Id and X-Role headers.
func (s *Server) getPrincipal(r *http.Request) Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return Principal{Tenant: pr.Tenant, Role: pr.Role, Subject: pr.Subject}
		}
	}
	tenant := r.Header.Get("X-Tenant-Id")
	role := strings.ToLower(r.Header.Get("X-Role"))
	if tenant == "" {
		tenant = "t_demo"
	}
	if role == "" {
		role = auth.RoleAdmin
	}
	return Principal{Tenant: tenant, Role: role}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == auth.RoleAdmin }

// CanPlan reports whether the principal may upload instances and start runs.
func (p Principal) CanPlan() bool { return p.IsAdmin() || p.Role == auth.RolePlanner }
