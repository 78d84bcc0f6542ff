package patients

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/eclinic/eclinic/internal/platform/auth"
	"github.com/eclinic/eclinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.ListProfiles)
	api.POST("/patients", h.CreateProfile)
	api.GET("/patients/search", h.SearchProfiles, auth.RequireRole(auth.RoleDoctor))
	api.GET("/patients/stats", h.Stats, auth.RequireRole(auth.RoleAdmin))
	api.GET("/patients/:patient_id", h.GetProfile)
	api.PUT("/patients/:patient_id", h.UpdateProfile)

	records := api.Group("/patients/:patient_id/medical-records")
	records.GET("", h.ListRecords)
	records.GET("/:id", h.GetRecord)
	staffRecords := records.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))
	staffRecords.POST("", h.CreateRecord)
	staffRecords.PUT("/:id", h.UpdateRecord)
	staffRecords.DELETE("/:id", h.DeleteRecord)

	docs := api.Group("/patients/:patient_id/documents")
	docs.GET("", h.ListDocuments)
	docs.GET("/:id", h.GetDocument)
	docs.POST("", h.CreateDocument)
	docs.PUT("/:id", h.UpdateDocument)
	docs.DELETE("/:id", h.DeleteDocument)
	docs.POST("/:id/verify", h.VerifyDocument, auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))

	notes := api.Group("/patients/:patient_id/notes", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RolePatient))
	notes.GET("", h.ListNotes)
	notes.GET("/:id", h.GetNote)
	staffNotes := notes.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))
	staffNotes.POST("", h.CreateNote)
	staffNotes.PUT("/:id", h.UpdateNote)
	staffNotes.DELETE("/:id", h.DeleteNote)
}

// httpError maps service errors onto HTTP status codes. Validation
// failures fall through to 400.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	case errors.Is(err, ErrProfileExists):
		return echo.NewHTTPError(http.StatusConflict, "profile already exists")
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func parseParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// -- Profiles --

func (h *Handler) CreateProfile(c echo.Context) error {
	var p PatientProfile
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateProfile(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetProfile(c echo.Context) error {
	patientID, err := parseParam(c, "patient_id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetProfile(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	patientID, err := parseParam(c, "patient_id")
	if err != nil {
		return err
	}
	var p PatientProfile
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.UserID = patientID
	if err := h.svc.UpdateProfile(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListProfiles(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListProfiles(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) SearchProfiles(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchProfiles(c.Request().Context(),
		c.QueryParam("q"), c.QueryParam("blood_group"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

// -- Medical records --

func (h *Handler) CreateRecord(c echo.Context) error {
	patientID, err := parseParam(c, "patient_id")
	if err != nil {
		return err
	}
	var r MedicalRecord
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.PatientID = patientID
	if err := h.svc.CreateRecord(c.Request().Context(), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	r, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	var r MedicalRecord
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.ID = id
	if err := h.svc.UpdateRecord(c.Request().Context(), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteRecord(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListRecords(c echo.Context) error {
	patientID, err := parseParam(c, "patient_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRecords(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Patient documents --

func (h *Handler) CreateDocument(c echo.Context) error {
	patientID, err := parseParam(c, "patient_id")
	if err != nil {
		return err
	}
	var d PatientDocument
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.PatientID = patientID
	if err := h.svc.CreateDocument(c.Request().Context(), &d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDocument(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDocument(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDocument(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	var d PatientDocument
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = id
	if err := h.svc.UpdateDocument(c.Request().Context(), &d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDocument(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDocument(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDocuments(c echo.Context) error {
	patientID, err := parseParam(c, "patient_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDocuments(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) VerifyDocument(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.VerifyDocument(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// -- Patient notes --

func (h *Handler) CreateNote(c echo.Context) error {
	patientID, err := parseParam(c, "patient_id")
	if err != nil {
		return err
	}
	var n PatientNote
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n.PatientID = patientID
	if err := h.svc.CreateNote(c.Request().Context(), &n); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) GetNote(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	n, err := h.svc.GetNote(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) UpdateNote(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	var n PatientNote
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n.ID = id
	if err := h.svc.UpdateNote(c.Request().Context(), &n); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) DeleteNote(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteNote(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListNotes(c echo.Context) error {
	patientID, err := parseParam(c, "patient_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListNotes(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
