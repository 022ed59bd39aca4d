package fhir

import (
	"encoding/json"
	"fmt"
)

const (
	BundleTypeSearchset  = "searchset"
	BundleTypeCollection = "collection"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// NewSearchBundle creates a searchset Bundle from a list of resources.
// Every entry gets a urn:uuid fullUrl derived from the resource id and total
// is the number of entries in the bundle.
func NewSearchBundle(resources []interface{}) (*Bundle, error) {
	entries, err := buildEntries(resources, true)
	if err != nil {
		return nil, err
	}
	total := len(entries)
	return &Bundle{
		ResourceType: "Bundle",
		Type:         BundleTypeSearchset,
		Total:        &total,
		Entry:        entries,
	}, nil
}

// NewCollectionBundle wraps resources in a collection Bundle without fullUrls.
func NewCollectionBundle(resources []interface{}) (*Bundle, error) {
	entries, err := buildEntries(resources, false)
	if err != nil {
		return nil, err
	}
	return &Bundle{
		ResourceType: "Bundle",
		Type:         BundleTypeCollection,
		Entry:        entries,
	}, nil
}

func buildEntries(resources []interface{}, withFullURL bool) ([]BundleEntry, error) {
	entries := make([]BundleEntry, 0, len(resources))
	for _, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal bundle entry: %w", err)
		}
		entry := BundleEntry{Resource: raw}
		if withFullURL {
			entry.FullURL = urnFullURL(r)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func urnFullURL(r interface{}) string {
	var id string
	switch v := r.(type) {
	case map[string]interface{}:
		id, _ = v["id"].(string)
	case interface{ ResourceID() string }:
		id = v.ResourceID()
	}
	if id == "" {
		return ""
	}
	return "urn:uuid:" + id
}
