package fhir

import (
	"encoding/json"
	"fmt"
)

// Resource is the envelope shared by every FHIR resource. Only the fields
// needed to route a payload are decoded here.
type Resource struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// HasCoding reports whether any coding matches both system and code.
func (cc CodeableConcept) HasCoding(system, code string) bool {
	for _, c := range cc.Coding {
		if c.System == system && c.Code == code {
			return true
		}
	}
	return false
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Identifier struct {
	Use    string `json:"use,omitempty"`
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Quantity is a measured amount. Value is a pointer so that an absent value
// can be told apart from zero.
type Quantity struct {
	Value  *float64 `json:"value,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	System string   `json:"system,omitempty"`
	Code   string   `json:"code,omitempty"`
}

type Annotation struct {
	Text string `json:"text"`
}

// FormatReference builds a relative literal reference such as "Patient/123".
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}

// PeekResourceType decodes only the resourceType of a raw resource.
func PeekResourceType(raw json.RawMessage) (string, error) {
	var r Resource
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", err
	}
	return r.ResourceType, nil
}
