package measurement

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bptrack/bptrack/internal/platform/auth"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func asUser(req *http.Request, userID uuid.UUID) *http.Request {
	p := &auth.Principal{ID: userID.String(), Email: "user@example.com", IsActive: true, IsVerified: true}
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

func jsonRequest(method, target, body string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return asUser(req, userID)
}

func requireHTTPError(t *testing.T, err error, code int) *echo.HTTPError {
	t.Helper()
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he), "expected *echo.HTTPError, got %v", err)
	assert.Equal(t, code, he.Code)
	return he
}

func TestHandler_Create(t *testing.T) {
	h, svc, e := newTestHandler()
	userID := uuid.New()
	body := `{"systolic":123,"diastolic":77,"pulse":65,"timestamp":"2024-01-01T12:00:00+00:00","tags":["home"],"notes":"ok"}`
	rec := httptest.NewRecorder()

	require.NoError(t, h.Create(e.NewContext(jsonRequest(http.MethodPost, "/measurements/bp", body, userID), rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp MutationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)

	items, err := svc.ListForUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, resp.ID, items[0].ID.String())
	assert.Equal(t, []string{"home"}, items[0].Tags)
	require.NotNil(t, items[0].Notes)
	assert.Equal(t, "ok", *items[0].Notes)
}

func TestHandler_Create_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing pulse", `{"systolic":120,"diastolic":80}`},
		{"zero systolic", `{"systolic":0,"diastolic":80,"pulse":60}`},
		{"negative diastolic", `{"systolic":120,"diastolic":-5,"pulse":60}`},
		{"string value", `{"systolic":"high","diastolic":80,"pulse":60}`},
		{"fractional value", `{"systolic":120.5,"diastolic":80,"pulse":60}`},
		{"bad timestamp", `{"systolic":120,"diastolic":80,"pulse":60,"timestamp":"soon"}`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, e := newTestHandler()
			c := e.NewContext(jsonRequest(http.MethodPost, "/measurements/bp", tt.body, uuid.New()), httptest.NewRecorder())
			requireHTTPError(t, h.Create(c), http.StatusUnprocessableEntity)
		})
	}
}

func TestHandler_Create_Unauthenticated(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/measurements/bp", strings.NewReader(`{}`))
	requireHTTPError(t, h.Create(e.NewContext(req, httptest.NewRecorder())), http.StatusUnauthorized)
}

func TestHandler_List(t *testing.T) {
	h, svc, e := newTestHandler()
	alice, bob := uuid.New(), uuid.New()
	_, err := svc.Create(context.Background(), alice, validFields())
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), bob, validFields())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := asUser(httptest.NewRequest(http.MethodGet, "/measurements/bp", nil), alice)
	require.NoError(t, h.List(e.NewContext(req, rec)))

	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, alice.String(), items[0]["userId"])
	for _, key := range []string{"id", "systolic", "diastolic", "pulse", "timestamp", "tags", "notes"} {
		assert.Contains(t, items[0], key)
	}
	assert.Equal(t, []interface{}{}, items[0]["tags"])
	assert.Nil(t, items[0]["notes"])
}

func TestHandler_List_Empty(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	req := asUser(httptest.NewRequest(http.MethodGet, "/measurements/bp", nil), uuid.New())
	require.NoError(t, h.List(e.NewContext(req, rec)))
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestHandler_Delete(t *testing.T) {
	h, svc, e := newTestHandler()
	alice, bob := uuid.New(), uuid.New()
	m, err := svc.Create(context.Background(), alice, validFields())
	require.NoError(t, err)

	deleteAs := func(userID uuid.UUID, id string) (*httptest.ResponseRecorder, error) {
		rec := httptest.NewRecorder()
		c := e.NewContext(asUser(httptest.NewRequest(http.MethodDelete, "/", nil), userID), rec)
		c.SetParamNames("id")
		c.SetParamValues(id)
		return rec, h.Delete(c)
	}

	_, err = deleteAs(bob, m.ID.String())
	he := requireHTTPError(t, err, http.StatusNotFound)
	assert.Equal(t, DetailNotFound, he.Message)

	_, err = deleteAs(alice, "not-a-uuid")
	requireHTTPError(t, err, http.StatusNotFound)

	rec, err := deleteAs(alice, m.ID.String())
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"id":"`+m.ID.String()+`"}`, rec.Body.String())

	_, err = deleteAs(alice, m.ID.String())
	requireHTTPError(t, err, http.StatusNotFound)
}

func TestHandler_SearchObservationsFHIR(t *testing.T) {
	h, svc, e := newTestHandler()
	userID := uuid.New()
	m, err := svc.Create(context.Background(), userID, validFields())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := asUser(httptest.NewRequest(http.MethodGet, "/fhir/Observation", nil), userID)
	require.NoError(t, h.SearchObservationsFHIR(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	var bundle struct {
		ResourceType string `json:"resourceType"`
		Type         string `json:"type"`
		Total        int    `json:"total"`
		Entry        []struct {
			FullURL  string                 `json:"fullUrl"`
			Resource map[string]interface{} `json:"resource"`
		} `json:"entry"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	assert.Equal(t, "Bundle", bundle.ResourceType)
	assert.Equal(t, "searchset", bundle.Type)
	assert.Equal(t, 2, bundle.Total)
	require.Len(t, bundle.Entry, 2)
	assert.Equal(t, "urn:uuid:"+m.ID.String(), bundle.Entry[0].FullURL)
	assert.Equal(t, "Patient/"+userID.String(), bundle.Entry[1].Resource["subject"].(map[string]interface{})["reference"])

	hr := bundle.Entry[1].Resource["valueQuantity"].(map[string]interface{})
	assert.Equal(t, float64(m.Pulse), hr["value"])
}

func TestHandler_CreateObservationFHIR(t *testing.T) {
	h, svc, e := newTestHandler()
	userID := uuid.New()

	rec := httptest.NewRecorder()
	req := jsonRequest(http.MethodPost, "/fhir/Observation", bpBundle, userID)
	require.NoError(t, h.CreateObservationFHIR(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	var bundle map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	assert.Equal(t, "collection", bundle["type"])
	assert.NotContains(t, bundle, "total")
	entries := bundle["entry"].([]interface{})
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0].(map[string]interface{}), "fullUrl")

	items, err := svc.ListForUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 120, items[0].Systolic)
	assert.Equal(t, 80, items[0].Diastolic)
	assert.Equal(t, 62, items[0].Pulse)
}

func TestHandler_CreateObservationFHIR_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		diagnostics string
	}{
		{"no panel", `{"resourceType": "Bundle", "entry": []}`, "No valid BP Observation (LOINC 85354-9) found"},
		{"malformed", `not json`, "Payload must be a FHIR Observation or Bundle"},
		{"no heart rate", `{"resourceType": "Observation", "code": {"coding": [{"system": "http://loinc.org", "code": "85354-9"}]},
		  "component": [
		    {"code": {"coding": [{"system": "http://loinc.org", "code": "8480-6"}]}, "valueQuantity": {"value": 120}},
		    {"code": {"coding": [{"system": "http://loinc.org", "code": "8462-4"}]}, "valueQuantity": {"value": 80}}]}`,
			"Heart rate (LOINC 8867-4) is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc, e := newTestHandler()
			userID := uuid.New()
			c := e.NewContext(jsonRequest(http.MethodPost, "/fhir/Observation", tt.body, userID), httptest.NewRecorder())

			he := requireHTTPError(t, h.CreateObservationFHIR(c), http.StatusBadRequest)
			assert.Equal(t, tt.diagnostics, he.Message)

			items, err := svc.ListForUser(context.Background(), userID)
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}
