package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func roleContext(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	req = req.WithContext(ctx)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name     string
		userRoles []string
		required []string
		allowed  bool
	}{
		{"exact match", []string{RoleDoctor}, []string{RoleDoctor}, true},
		{"admin override", []string{RoleAdmin}, []string{RoleDoctor}, true},
		{"one of several", []string{RoleNurse}, []string{RoleDoctor, RoleNurse}, true},
		{"no match", []string{RolePatient}, []string{RoleDoctor}, false},
		{"no roles", nil, []string{RoleDoctor}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := roleContext(tc.userRoles...)
			h := RequireRole(tc.required...)(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})
			err := h(c)
			if tc.allowed && err != nil {
				t.Errorf("expected access, got %v", err)
			}
			if !tc.allowed {
				assertHTTPError(t, err, http.StatusForbidden)
			}
		})
	}
}

func TestIsStaff(t *testing.T) {
	cases := []struct {
		roles []string
		want  bool
	}{
		{[]string{RoleDoctor}, true},
		{[]string{RoleNurse}, true},
		{[]string{RoleAdmin}, true},
		{[]string{RolePatient}, false},
		{nil, false},
	}
	for _, tc := range cases {
		ctx := context.WithValue(context.Background(), UserRolesKey, tc.roles)
		if got := IsStaff(ctx); got != tc.want {
			t.Errorf("IsStaff(%v) = %v, want %v", tc.roles, got, tc.want)
		}
	}
}

func TestHasRole(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserRolesKey, []string{RolePatient})
	if !HasRole(ctx, RolePatient) {
		t.Error("expected patient role")
	}
	if HasRole(ctx, RoleDoctor) {
		t.Error("did not expect doctor role")
	}
}
