package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Platform roles. Patients only ever see their own data; clinical staff
// see the patients under their care; admins see everything.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleNurse   = "nurse"
	RoleAdmin   = "admin"
)

// RequireRole checks that the user holds at least one of the given roles.
// Admin always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == RoleAdmin {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasRole reports whether the context user holds the given role. Admin does
// not implicitly pass here; callers that want the admin override use IsStaff.
func HasRole(ctx context.Context, role string) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}

// IsStaff reports whether the context user is clinical staff or an admin,
// i.e. may see data for patients other than themselves.
func IsStaff(ctx context.Context) bool {
	for _, r := range RolesFromContext(ctx) {
		switch r {
		case RoleDoctor, RoleNurse, RoleAdmin:
			return true
		}
	}
	return false
}
