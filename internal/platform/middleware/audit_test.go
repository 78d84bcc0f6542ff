package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/eclinic/eclinic/internal/platform/auth"
)

func auditContext(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "user-1")
	ctx = context.WithValue(ctx, auth.UserRolesKey, []string{auth.RoleDoctor})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

func TestAudit_RecordsEntry(t *testing.T) {
	var got AuditEntry
	recorder := AuditRecorderFunc(func(e AuditEntry) error {
		got = e
		return nil
	})

	c, _ := auditContext(http.MethodGet, "/api/v1/medical-records/abc")
	h := Audit(zerolog.Nop(), recorder)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if got.UserID != "user-1" {
		t.Errorf("expected user-1, got %q", got.UserID)
	}
	if got.Resource != "medical-records" {
		t.Errorf("expected resource medical-records, got %q", got.Resource)
	}
	if got.Action != "read" {
		t.Errorf("expected action read, got %q", got.Action)
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	called := false
	recorder := AuditRecorderFunc(func(e AuditEntry) error {
		called = true
		return nil
	})

	c, _ := auditContext(http.MethodGet, "/healthz")
	h := Audit(zerolog.Nop(), recorder)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if called {
		t.Error("expected non-API path to skip audit")
	}
}

func TestAudit_ActionFromMethod(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/v1/patient-documents", "search"},
		{http.MethodGet, "/api/v1/patient-documents/d1", "read"},
		{http.MethodPost, "/api/v1/patient-notes", "create"},
		{http.MethodPut, "/api/v1/patient-profiles/p1", "update"},
		{http.MethodDelete, "/api/v1/patient-notes/n1", "delete"},
	}

	for _, tc := range cases {
		var got AuditEntry
		recorder := AuditRecorderFunc(func(e AuditEntry) error {
			got = e
			return nil
		})
		c, _ := auditContext(tc.method, tc.path)
		h := Audit(zerolog.Nop(), recorder)(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		if err := h(c); err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		if got.Action != tc.want {
			t.Errorf("%s %s: expected action %q, got %q", tc.method, tc.path, tc.want, got.Action)
		}
	}
}
