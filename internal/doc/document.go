package doc

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Document is a single keyed record inside a collection.
type Document struct {
	ID         string
	Properties map[string]string
}

// New returns a Document keyed by id with a copy of props.
func New(id string, props map[string]string) Document {
	return Document{ID: id, Properties: maps.Clone(props)}
}

// Body returns the canonical JSON body for the document.
func (d Document) Body() (string, error) {
	data, err := MarshalCanonical(d.Properties)
	if err != nil {
		return "", fmt.Errorf("document %q body: %w", d.ID, err)
	}
	return string(data), nil
}

// Revision returns the content revision for a live document.
func (d Document) Revision() (string, error) {
	return Revision(d.ID, d.Properties, false)
}

// Unmarshal parses a stored body back into properties.
// An empty body yields an empty, non-nil map.
func Unmarshal(body string) (map[string]string, error) {
	props := map[string]string{}
	if body == "" || body == "{}" {
		return props, nil
	}
	if err := json.Unmarshal([]byte(body), &props); err != nil {
		return nil, fmt.Errorf("unmarshal body: %w", err)
	}
	return props, nil
}
