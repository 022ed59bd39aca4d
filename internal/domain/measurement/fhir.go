package measurement

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/bptrack/bptrack/internal/platform/fhir"
	"github.com/bptrack/bptrack/pkg/fhirmodels"
)

const (
	textBloodPressure = "Blood pressure"
	heartRateIDSuffix = "-hr"
)

// Errors returned by ParseFHIRPayload.
var (
	ErrMalformedPayload  = errors.New("payload is not a FHIR resource")
	ErrNoBloodPressure   = errors.New("no blood pressure panel observation found")
	ErrMissingComponent  = errors.New("blood pressure panel lacks systolic or diastolic component")
	ErrInvalidEffective  = errors.New("invalid effectiveDateTime")
	ErrHeartRateRequired = errors.New("heart rate observation required")
)

// -- Outbound --

func vitalSignsCategory() []fhir.CodeableConcept {
	return []fhir.CodeableConcept{{
		Coding: []fhir.Coding{{
			System:  fhirmodels.SystemObservationCategory,
			Code:    fhirmodels.ObsCategoryVitalSigns,
			Display: fhirmodels.ObsCategoryVitalSignsDisplay,
		}},
	}}
}

func loinc(code, display string) fhir.CodeableConcept {
	return fhir.CodeableConcept{
		Coding: []fhir.Coding{{System: fhirmodels.SystemLOINC, Code: code, Display: display}},
	}
}

func quantity(value int, unit, code string) fhir.Quantity {
	v := float64(value)
	return fhir.Quantity{Value: &v, Unit: unit, System: fhirmodels.SystemUCUM, Code: code}
}

// ToFHIR renders the measurement as a blood pressure panel Observation and
// a heart rate Observation whose id carries the "-hr" suffix.
func (m *Measurement) ToFHIR(userID string) []map[string]interface{} {
	subject := fhir.Reference{Reference: fhir.FormatReference("Patient", userID)}
	effective := fhir.FormatDateTime(m.Timestamp)

	bpCode := loinc(fhirmodels.LOINCBloodPressurePanel, fhirmodels.DisplayBloodPressurePanel)
	bpCode.Text = textBloodPressure
	bp := map[string]interface{}{
		"resourceType":      "Observation",
		"id":                m.ID.String(),
		"status":            fhirmodels.ObsStatusFinal,
		"category":          vitalSignsCategory(),
		"code":              bpCode,
		"subject":           subject,
		"effectiveDateTime": effective,
		"component": []map[string]interface{}{
			{
				"code":          loinc(fhirmodels.LOINCSystolic, fhirmodels.DisplaySystolic),
				"valueQuantity": quantity(m.Systolic, fhirmodels.UnitMmHg, fhirmodels.CodeMmHg),
			},
			{
				"code":          loinc(fhirmodels.LOINCDiastolic, fhirmodels.DisplayDiastolic),
				"valueQuantity": quantity(m.Diastolic, fhirmodels.UnitMmHg, fhirmodels.CodeMmHg),
			},
		},
	}

	hrCode := loinc(fhirmodels.LOINCHeartRate, fhirmodels.DisplayHeartRate)
	hrCode.Text = fhirmodels.DisplayHeartRate
	hr := map[string]interface{}{
		"resourceType":      "Observation",
		"id":                m.ID.String() + heartRateIDSuffix,
		"status":            fhirmodels.ObsStatusFinal,
		"category":          vitalSignsCategory(),
		"code":              hrCode,
		"subject":           subject,
		"effectiveDateTime": effective,
		"valueQuantity":     quantity(m.Pulse, fhirmodels.UnitPerMin, fhirmodels.CodePerMin),
	}

	return []map[string]interface{}{bp, hr}
}

func observations(ms []*Measurement, userID string) []interface{} {
	resources := make([]interface{}, 0, 2*len(ms))
	for _, m := range ms {
		for _, obs := range m.ToFHIR(userID) {
			resources = append(resources, obs)
		}
	}
	return resources
}

// NewObservationBundle wraps the Observations of ms, in order, in a searchset
// Bundle.
func NewObservationBundle(ms []*Measurement, userID string) (*fhir.Bundle, error) {
	return fhir.NewSearchBundle(observations(ms, userID))
}

// NewCreatedBundle wraps the Observations of a freshly stored measurement in
// a collection Bundle.
func NewCreatedBundle(m *Measurement, userID string) (*fhir.Bundle, error) {
	return fhir.NewCollectionBundle(observations([]*Measurement{m}, userID))
}

// -- Inbound --

type quantityIn struct {
	Value json.RawMessage `json:"value"`
}

type componentIn struct {
	Code          fhir.CodeableConcept `json:"code"`
	ValueQuantity *quantityIn          `json:"valueQuantity"`
}

type observationIn struct {
	ResourceType      string               `json:"resourceType"`
	Code              fhir.CodeableConcept `json:"code"`
	Component         []componentIn        `json:"component"`
	ValueQuantity     *quantityIn          `json:"valueQuantity"`
	EffectiveDateTime json.RawMessage      `json:"effectiveDateTime"`
	Note              json.RawMessage      `json:"note"`
}

func (o *observationIn) isLOINC(code string) bool {
	return o.ResourceType == "Observation" && o.Code.HasCoding(fhirmodels.SystemLOINC, code)
}

// componentValue returns the value of the first component coded with the
// given LOINC code.
func (o *observationIn) componentValue(code string) (int, bool) {
	for _, c := range o.Component {
		if c.Code.HasCoding(fhirmodels.SystemLOINC, code) {
			return c.ValueQuantity.intValue()
		}
	}
	return 0, false
}

// intValue truncates a numeric value toward zero. Absent, non-numeric and
// out of range values report false.
func (q *quantityIn) intValue() (int, bool) {
	if q == nil || len(q.Value) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(q.Value, &f); err != nil {
		return 0, false
	}
	f = math.Trunc(f)
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// candidateResources flattens a Bundle into its entry resources, or returns
// the payload itself when it is a single resource. Entries that are not
// objects are skipped.
func candidateResources(payload []byte) ([]json.RawMessage, error) {
	if !isJSONObject(payload) {
		return nil, ErrMalformedPayload
	}
	rt, err := fhir.PeekResourceType(payload)
	if err != nil {
		return nil, ErrMalformedPayload
	}
	if rt != "Bundle" {
		return []json.RawMessage{payload}, nil
	}

	var bundle struct {
		Entry []json.RawMessage `json:"entry"`
	}
	if err := json.Unmarshal(payload, &bundle); err != nil {
		return nil, ErrMalformedPayload
	}
	out := make([]json.RawMessage, 0, len(bundle.Entry))
	for _, raw := range bundle.Entry {
		if !isJSONObject(raw) {
			continue
		}
		var entry struct {
			Resource json.RawMessage `json:"resource"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil || !isJSONObject(entry.Resource) {
			continue
		}
		out = append(out, entry.Resource)
	}
	return out, nil
}

type bloodPressure struct {
	systolic  int
	diastolic int
	effective time.Time
	notes     *string
}

func parseBloodPressure(o *observationIn, now time.Time) (*bloodPressure, error) {
	systolic, okSys := o.componentValue(fhirmodels.LOINCSystolic)
	diastolic, okDia := o.componentValue(fhirmodels.LOINCDiastolic)
	if !okSys || !okDia {
		return nil, ErrMissingComponent
	}

	effective, err := parseEffective(o.EffectiveDateTime, now)
	if err != nil {
		return nil, err
	}

	return &bloodPressure{
		systolic:  systolic,
		diastolic: diastolic,
		effective: effective,
		notes:     joinNotes(o.Note),
	}, nil
}

func parseEffective(raw json.RawMessage, now time.Time) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return now, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, ErrInvalidEffective
	}
	if s == "" {
		return now, nil
	}
	t, err := fhir.ParseDateTime(s)
	if err != nil {
		return time.Time{}, ErrInvalidEffective
	}
	return t, nil
}

// joinNotes concatenates note[].text with spaces. A note list that cannot be
// read, or that joins to blank text, yields nil.
func joinNotes(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var notes []fhir.Annotation
	if err := json.Unmarshal(raw, &notes); err != nil {
		return nil
	}
	texts := make([]string, 0, len(notes))
	for _, n := range notes {
		texts = append(texts, n.Text)
	}
	joined := strings.TrimSpace(strings.Join(texts, " "))
	if joined == "" {
		return nil
	}
	return &joined
}

// heartRate reads a heart rate either from a standalone 8867-4 Observation
// or from an 8867-4 component of any Observation.
func heartRate(o *observationIn) (int, bool) {
	if o.ResourceType != "Observation" {
		return 0, false
	}
	if o.isLOINC(fhirmodels.LOINCHeartRate) {
		if v, ok := o.ValueQuantity.intValue(); ok {
			return v, true
		}
	}
	return o.componentValue(fhirmodels.LOINCHeartRate)
}

// ParseFHIRPayload extracts measurement fields from a FHIR Observation or a
// Bundle of resources. The first blood pressure panel supplies systolic,
// diastolic, timestamp and notes; the first heart rate found in any resource
// supplies the pulse. A missing effectiveDateTime defaults to now.
func ParseFHIRPayload(payload []byte, now time.Time) (Fields, error) {
	resources, err := candidateResources(payload)
	if err != nil {
		return Fields{}, err
	}

	var bp *bloodPressure
	pulse, havePulse := 0, false
	for _, raw := range resources {
		var obs observationIn
		if err := json.Unmarshal(raw, &obs); err != nil {
			continue
		}
		if bp == nil && obs.isLOINC(fhirmodels.LOINCBloodPressurePanel) {
			if bp, err = parseBloodPressure(&obs, now); err != nil {
				return Fields{}, err
			}
		}
		if !havePulse {
			pulse, havePulse = heartRate(&obs)
		}
	}

	if bp == nil {
		return Fields{}, ErrNoBloodPressure
	}
	if !havePulse {
		return Fields{}, ErrHeartRateRequired
	}

	return Fields{
		Systolic:  bp.systolic,
		Diastolic: bp.diastolic,
		Pulse:     pulse,
		Timestamp: bp.effective,
		Tags:      []string{},
		Notes:     bp.notes,
	}, nil
}
