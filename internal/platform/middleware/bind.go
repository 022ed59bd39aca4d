package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// BindJSON decodes the request body into v. Malformed JSON and type
// mismatches become 422 field issues; an oversized body keeps its 413.
func BindJSON(c echo.Context, v interface{}) error {
	body := c.Request().Body
	if body == nil || body == http.NoBody {
		return ValidationFailed(FieldIssue{Loc: []string{"body"}, Msg: "Field required", Type: "missing"})
	}

	err := json.NewDecoder(body).Decode(v)
	if err == nil {
		return nil
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return ValidationFailed(FieldIssue{
			Loc:  []string{"body", field},
			Msg:  fmt.Sprintf("Input should be a valid %s", typeErr.Type.String()),
			Type: "type_error",
		})
	}

	if errors.Is(err, io.EOF) {
		return ValidationFailed(FieldIssue{Loc: []string{"body"}, Msg: "Field required", Type: "missing"})
	}

	return ValidationFailed(FieldIssue{Loc: []string{"body"}, Msg: "JSON decode error", Type: "json_invalid"})
}
