package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bptrack/bptrack/internal/platform/fhir"
)

// Generic error details. Domain handlers supply their own codes.
const (
	DetailInternal      = "INTERNAL_SERVER_ERROR"
	DetailBodyTooLarge  = "REQUEST_BODY_TOO_LARGE"
	DetailRateLimited   = "TOO_MANY_REQUESTS"
	DetailValidation    = "VALIDATION_ERROR"
	DetailNotFound      = "NOT_FOUND"
	DetailMethodBlocked = "METHOD_NOT_ALLOWED"
)

// FieldIssue describes one invalid request field. Loc is the path to the
// field, for example ["body", "systolic"].
type FieldIssue struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type,omitempty"`
}

// ValidationFailed builds the 422 error for a malformed request.
func ValidationFailed(issues ...FieldIssue) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusUnprocessableEntity, issues)
}

// FieldError is shorthand for a single body field issue.
func FieldError(field, msg string) *echo.HTTPError {
	return ValidationFailed(FieldIssue{Loc: []string{"body", field}, Msg: msg, Type: "value_error"})
}

type exposedDetail string

// ServerError builds a 5xx error whose detail code is shown to the client.
// The cause is logged but never rendered.
func ServerError(code int, detail string, cause error) *echo.HTTPError {
	return echo.NewHTTPError(code, exposedDetail(detail)).SetInternal(cause)
}

// ErrorHandler renders every error that reaches echo. Native routes answer
// {"detail": ...}; routes under /fhir answer an OperationOutcome. Errors that
// are not *echo.HTTPError are logged and hidden behind a generic 500.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		he := toHTTPError(err)
		if he.Code >= 500 {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var writeErr error
		switch {
		case c.Request().Method == http.MethodHead:
			writeErr = c.NoContent(he.Code)
		case isFHIRPath(c.Request().URL.Path):
			writeErr = c.JSON(he.Code, outcomeFor(he))
		default:
			writeErr = c.JSON(he.Code, map[string]interface{}{"detail": he.Message})
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

func toHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		out := &echo.HTTPError{Code: he.Code, Message: he.Message}
		switch {
		case he.Code == http.StatusNotFound && he.Message == http.StatusText(http.StatusNotFound):
			out.Message = DetailNotFound
		case he.Code == http.StatusMethodNotAllowed:
			out.Message = DetailMethodBlocked
		case he.Code >= 500:
			if d, ok := he.Message.(exposedDetail); ok {
				out.Message = string(d)
			} else {
				out.Message = DetailInternal
			}
		}
		return out
	}
	return &echo.HTTPError{Code: http.StatusInternalServerError, Message: DetailInternal}
}

// statusFromError mirrors the status ErrorHandler will send for err.
func statusFromError(err error) int {
	return toHTTPError(err).Code
}

func isFHIRPath(path string) bool {
	return path == "/fhir" || strings.HasPrefix(path, "/fhir/")
}

func outcomeFor(he *echo.HTTPError) *fhir.OperationOutcome {
	diagnostics := messageText(he.Message)
	switch he.Code {
	case http.StatusUnauthorized:
		return fhir.LoginOutcome(diagnostics)
	case http.StatusForbidden:
		return fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeSecurity, diagnostics)
	case http.StatusNotFound:
		return fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeNotFound, diagnostics)
	case http.StatusMethodNotAllowed:
		return fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeNotSupported, diagnostics)
	case http.StatusTooManyRequests:
		return fhir.ThrottleOutcome()
	case http.StatusRequestEntityTooLarge:
		return fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeTooCostly, diagnostics)
	}
	if he.Code >= 500 {
		return fhir.InternalErrorOutcome(diagnostics)
	}
	return fhir.InvalidOutcome(diagnostics)
}

func messageText(msg interface{}) string {
	switch m := msg.(type) {
	case string:
		return m
	case []FieldIssue:
		parts := make([]string, 0, len(m))
		for _, issue := range m {
			parts = append(parts, fmt.Sprintf("%s: %s", strings.Join(issue.Loc, "."), issue.Msg))
		}
		return strings.Join(parts, "; ")
	case error:
		return m.Error()
	default:
		return fmt.Sprintf("%v", m)
	}
}
