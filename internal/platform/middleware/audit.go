package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/eclinic/eclinic/internal/platform/auth"
)

// AuditEntry captures one access to patient data: who, what, when, from
// where, and the outcome.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string
	PatientID  string
	Action     string // read, search, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries. Tests and alternative sinks provide
// their own implementation; when none is given the middleware falls back to
// structured logging.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit returns middleware that records every request under /api/v1/ as a
// patient-data access event. The resource name is the first path segment
// after the API prefix; the patient ID comes from the patient_id route
// parameter when routed.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			userID := auth.UserIDFromContext(req.Context())
			roles := auth.RolesFromContext(req.Context())
			rid, _ := c.Get("request_id").(string)

			entry := AuditEntry{
				UserID:     userID,
				UserRoles:  roles,
				Resource:   resourceFromPath(path),
				PatientID:  c.Param("patient_id"),
				Action:     actionFromMethod(req.Method, path),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				RequestID:  rid,
				StatusCode: c.Response().Status,
			}

			recorded := false
			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", rid).Msg("audit recorder failed")
				} else {
					recorded = true
				}
			}

			if !recorded {
				logger.Info().
					Str("request_id", entry.RequestID).
					Str("user_id", entry.UserID).
					Strs("user_roles", entry.UserRoles).
					Str("resource", entry.Resource).
					Str("patient_id", entry.PatientID).
					Str("action", entry.Action).
					Str("ip", entry.IPAddress).
					Int("status", entry.StatusCode).
					Msg("data access")
			}

			return err
		}
	}
}

func resourceFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

func actionFromMethod(method, path string) string {
	switch method {
	case "GET":
		if strings.Contains(path, "/search") || !hasIDSegment(path) {
			return "search"
		}
		return "read"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// hasIDSegment reports whether the path addresses a single entity, i.e. has
// a segment after the resource name.
func hasIDSegment(path string) bool {
	rest := strings.TrimPrefix(path, "/api/v1/")
	return strings.Count(rest, "/") >= 1 && !strings.HasSuffix(rest, "/")
}
