// Package profile defines the record exchanged between the profile
// collection manager and its callers.
//
// This package has no internal imports; every other package may import it.
package profile

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Validation errors returned by Profile.Validate.
var (
	ErrEmptyID     = errors.New("profile id is empty")
	ErrInvalidUTF8 = errors.New("invalid UTF-8")
)

// Property names stored on a profile document, in projection order.
const (
	FieldName  = "name"
	FieldTitle = "title"
	FieldEmail = "email"
)

// FieldNames lists the stored properties in the order GetAll projects them.
var FieldNames = []string{FieldName, FieldTitle, FieldEmail}

// Profile is a single employee record. ID is the document key and never
// changes once the document exists; the remaining fields are free text.
type Profile struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Title string `json:"title" yaml:"title"`
	Email string `json:"email" yaml:"email"`
}

// Validate reports whether p can be persisted: the id must be set and every
// field must be valid UTF-8. Email format is left to the presentation layer.
func (p Profile) Validate() error {
	if p.ID == "" {
		return ErrEmptyID
	}
	for _, f := range []struct{ name, val string }{
		{"id", p.ID}, {FieldName, p.Name}, {FieldTitle, p.Title}, {FieldEmail, p.Email},
	} {
		if !utf8.ValidString(f.val) {
			return fmt.Errorf("%s: %w", f.name, ErrInvalidUTF8)
		}
	}
	return nil
}

// Properties returns the document body for p. The id is the document key
// and is not repeated in the body.
func (p Profile) Properties() map[string]string {
	return map[string]string{
		FieldName:  p.Name,
		FieldTitle: p.Title,
		FieldEmail: p.Email,
	}
}

// FromProperties builds a Profile from a document key and body.
// Missing properties become empty strings.
func FromProperties(id string, props map[string]string) Profile {
	return Profile{
		ID:    id,
		Name:  props[FieldName],
		Title: props[FieldTitle],
		Email: props[FieldEmail],
	}
}
