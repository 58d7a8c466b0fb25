// internal/model/document.go
package model

import "fmt"

// Document is the host platform's view of a business record, delivered with
// the event that fired. Field values are whatever the event payload carried.
type Document struct {
	Doctype string         `json:"doctype"`
	Name    string         `json:"name"`
	Fields  map[string]any `json:"fields"`
}

// Get returns a field value. The document name and doctype are addressable
// like ordinary fields.
func (d *Document) Get(field string) (any, bool) {
	switch field {
	case "name":
		return d.Name, true
	case "doctype":
		return d.Doctype, true
	}
	v, ok := d.Fields[field]
	return v, ok
}

// GetString renders a field as text, empty when unset.
func (d *Document) GetString(field string) string {
	v, ok := d.Get(field)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
