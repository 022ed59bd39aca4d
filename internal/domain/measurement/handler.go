package measurement

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bptrack/bptrack/internal/platform/auth"
	"github.com/bptrack/bptrack/internal/platform/fhir"
	"github.com/bptrack/bptrack/internal/platform/middleware"
)

// DetailNotFound is returned for missing and foreign measurements alike.
const DetailNotFound = "MEASUREMENT_NOT_FOUND"

// fhirDiagnostics are the OperationOutcome texts for translator errors.
var fhirDiagnostics = map[error]string{
	ErrMalformedPayload:  "Payload must be a FHIR Observation or Bundle",
	ErrNoBloodPressure:   "No valid BP Observation (LOINC 85354-9) found",
	ErrMissingComponent:  "Missing systolic or diastolic component",
	ErrInvalidEffective:  "Invalid effectiveDateTime",
	ErrHeartRateRequired: "Heart rate (LOINC 8867-4) is required",
}

// Handler provides measurement HTTP handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new measurement handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the native and FHIR measurement routes. Both
// groups must already require a verified caller.
func (h *Handler) RegisterRoutes(api, fhirGroup *echo.Group) {
	bp := api.Group("/measurements/bp")
	bp.POST("", h.Create)
	bp.GET("", h.List)
	bp.DELETE("/:id", h.Delete)

	fhirGroup.GET("/Observation", h.SearchObservationsFHIR)
	fhirGroup.POST("/Observation", h.CreateObservationFHIR)
}

func callerID(c echo.Context) (uuid.UUID, string, error) {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return uuid.Nil, "", echo.NewHTTPError(http.StatusUnauthorized, auth.DetailUnauthorized)
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return uuid.Nil, "", echo.NewHTTPError(http.StatusUnauthorized, auth.DetailUnauthorized)
	}
	return id, p.ID, nil
}

// -- Native Handlers --

func (h *Handler) Create(c echo.Context) error {
	userID, _, err := callerID(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := middleware.BindJSON(c, &req); err != nil {
		return err
	}
	fields, err := req.toFields()
	if err != nil {
		return err
	}

	m, err := h.svc.Create(c.Request().Context(), userID, fields)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return middleware.FieldError(ve.Field, ve.Msg)
		}
		return err
	}
	return c.JSON(http.StatusOK, MutationResponse{OK: true, ID: m.ID.String()})
}

func (r CreateRequest) toFields() (Fields, error) {
	var issues []middleware.FieldIssue
	required := func(name string, v *int) int {
		if v == nil {
			issues = append(issues, middleware.FieldIssue{Loc: []string{"body", name}, Msg: "Field required", Type: "missing"})
			return 0
		}
		if *v <= 0 {
			issues = append(issues, middleware.FieldIssue{Loc: []string{"body", name}, Msg: "Input should be greater than 0", Type: "greater_than"})
		}
		return *v
	}
	f := Fields{
		Systolic:  required("systolic", r.Systolic),
		Diastolic: required("diastolic", r.Diastolic),
		Pulse:     required("pulse", r.Pulse),
		Tags:      r.Tags,
		Notes:     r.Notes,
	}
	if r.Timestamp != nil {
		ts, err := fhir.ParseDateTime(*r.Timestamp)
		if err != nil {
			issues = append(issues, middleware.FieldIssue{Loc: []string{"body", "timestamp"}, Msg: "Input should be a valid datetime", Type: "datetime_from_date_parsing"})
		}
		f.Timestamp = ts
	}
	if len(issues) > 0 {
		return Fields{}, middleware.ValidationFailed(issues...)
	}
	return f, nil
}

func (h *Handler) List(c echo.Context) error {
	userID, _, err := callerID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Measurement{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Delete(c echo.Context) error {
	userID, _, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, DetailNotFound)
	}
	if err := h.svc.DeleteForUser(c.Request().Context(), id, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, DetailNotFound)
		}
		return err
	}
	return c.JSON(http.StatusOK, MutationResponse{OK: true, ID: id.String()})
}

// -- FHIR Endpoints --

func (h *Handler) SearchObservationsFHIR(c echo.Context) error {
	userID, subject, err := callerID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	bundle, err := NewObservationBundle(items, subject)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) CreateObservationFHIR(c echo.Context) error {
	userID, subject, err := callerID(c)
	if err != nil {
		return err
	}
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, fhirDiagnostics[ErrMalformedPayload])
	}

	m, err := h.svc.CreateFromFHIR(c.Request().Context(), userID, payload)
	if err != nil {
		return fhirError(err)
	}
	bundle, err := NewCreatedBundle(m, subject)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bundle)
}

func fhirError(err error) error {
	for sentinel, diagnostics := range fhirDiagnostics {
		if errors.Is(err, sentinel) {
			return echo.NewHTTPError(http.StatusBadRequest, diagnostics)
		}
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	}
	return err
}
