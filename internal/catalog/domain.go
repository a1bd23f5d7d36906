// Package catalog describes the record-backed entities of the dashboard.
package catalog

import (
	"strconv"
	"strings"
)

// Kind is the input/storage kind of a field.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindLongText
	KindNumber
	KindInteger
	KindDate
	KindBool
	KindEmail
	KindSelect
	KindReference
)

// Option is a selectable value of a select or reference field.
type Option struct {
	Value string
	Label string
}

// Field describes one column of an entity.
type Field struct {
	Name       string
	Label      string
	Kind       Kind
	Required   bool
	Searchable bool
	Listed     bool
	Options    []Option
	// Ref is the slug of the referenced entity for KindReference fields.
	Ref string
	// Rule overrides the validation rule derived from Kind.
	Rule string
	Max  int
}

// Entity describes a table and the pages generated for it.
type Entity struct {
	Slug        string
	Table       string
	Title       string
	Singular    string
	Display     string
	DefaultSort string
	Printable   bool
	Fields      []Field
}

// Path returns the URL prefix of the entity pages.
func (e Entity) Path() string {
	return "/" + e.Slug
}

// Field returns the field named name.
func (e Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ListFields returns the fields shown as list columns.
func (e Entity) ListFields() []Field {
	var out []Field
	for _, f := range e.Fields {
		if f.Listed {
			out = append(out, f)
		}
	}
	return out
}

// SearchColumns returns the columns matched by the search box.
func (e Entity) SearchColumns() []string {
	var out []string
	for _, f := range e.Fields {
		if f.Searchable {
			out = append(out, f.Name)
		}
	}
	return out
}

// ReferenceFields returns the fields pointing to other entities.
func (e Entity) ReferenceFields() []Field {
	var out []Field
	for _, f := range e.Fields {
		if f.Kind == KindReference {
			out = append(out, f)
		}
	}
	return out
}

// IsSortable reports whether column may be used in ORDER BY.
func (e Entity) IsSortable(column string) bool {
	switch column {
	case "id", "creado_en", "actualizado_en":
		return true
	}
	_, ok := e.Field(column)
	return ok
}

// ValidationRule returns the validator tag applied to submitted values.
func (f Field) ValidationRule() string {
	rule := f.Rule
	if rule == "" {
		switch f.Kind {
		case KindText:
			rule = "max=" + strconv.Itoa(f.maxLen(200))
		case KindLongText:
			rule = "max=" + strconv.Itoa(f.maxLen(5000))
		case KindNumber:
			rule = "numeric"
		case KindInteger, KindReference:
			rule = "number"
		case KindDate:
			rule = "datetime=2006-01-02"
		case KindEmail:
			rule = "email"
		case KindSelect:
			values := make([]string, 0, len(f.Options))
			for _, o := range f.Options {
				values = append(values, o.Value)
			}
			rule = "oneof=" + strings.Join(values, " ")
		case KindBool:
			return ""
		}
	}
	if f.Required {
		return "required," + rule
	}
	return "omitempty," + rule
}

// OptionLabel returns the label of a select value, or the value itself.
func (f Field) OptionLabel(value string) string {
	for _, o := range f.Options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

func (f Field) maxLen(def int) int {
	if f.Max > 0 {
		return f.Max
	}
	return def
}
