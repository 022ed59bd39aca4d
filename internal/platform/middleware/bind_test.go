package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type bindTarget struct {
	Systolic int    `json:"systolic"`
	Notes    string `json:"notes"`
}

func bindBody(t *testing.T, body string) (bindTarget, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c := e.NewContext(req, httptest.NewRecorder())
	var v bindTarget
	return v, BindJSON(c, &v)
}

func TestBindJSON_OK(t *testing.T) {
	v, err := bindBody(t, `{"systolic":120,"notes":"ok"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Systolic != 120 || v.Notes != "ok" {
		t.Errorf("unexpected result %+v", v)
	}
}

func TestBindJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		loc  string
	}{
		{"empty", ``, "body"},
		{"syntax", `{"systolic":`, "body"},
		{"wrong type", `{"systolic":"high"}`, "systolic"},
		{"fraction", `{"systolic":12.5}`, "systolic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bindBody(t, tt.body)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo.HTTPError, got %T", err)
			}
			if httpErr.Code != http.StatusUnprocessableEntity {
				t.Errorf("expected 422, got %d", httpErr.Code)
			}
			issues := httpErr.Message.([]FieldIssue)
			if got := issues[0].Loc[len(issues[0].Loc)-1]; got != tt.loc {
				t.Errorf("expected loc %s, got %s", tt.loc, got)
			}
		})
	}
}
