// Package records stores and validates the catalog-described entities.
package records

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/residuos-hospitalarios/residuos/internal/catalog"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
)

// ErrInvalidReference is returned when a reference field points to a missing row.
var ErrInvalidReference = errors.New("records: referenced row does not exist")

// Record is a single row of an entity table.
type Record struct {
	ID        int64
	Values    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Value returns the stored value of a column, nil when absent.
func (r Record) Value(column string) any {
	if r.Values == nil {
		return nil
	}
	return r.Values[column]
}

// ListQuery narrows a listing. Equals keys must be field names of the entity.
type ListQuery struct {
	Search  string
	Equals  map[string]any
	Sort    string
	Desc    bool
	Page    int
	PerPage int
}

// ListResult is one page of records.
type ListResult struct {
	Records    []Record
	Pagination shared.Pagination
}

// Total is an aggregated value grouped by a column.
type Total struct {
	Key   string
	Value float64
}

// ParseListQuery reads search, sort, page and equality filters from the
// query string. Filters use the "f_<field>" parameter name and are kept raw
// until the service converts them.
func ParseListQuery(e catalog.Entity, q url.Values) (ListQuery, map[string]string) {
	query := ListQuery{
		Search:  strings.TrimSpace(q.Get("q")),
		Sort:    q.Get("orden"),
		Desc:    q.Get("dir") == "desc",
		Page:    shared.PageFromQuery(q),
		PerPage: shared.DefaultPerPage,
	}
	if pp, err := strconv.Atoi(q.Get("por_pagina")); err == nil && pp > 0 && pp <= 100 {
		query.PerPage = pp
	}
	raw := make(map[string]string)
	for _, f := range e.Fields {
		switch f.Kind {
		case catalog.KindSelect, catalog.KindReference, catalog.KindBool:
		default:
			continue
		}
		if v := strings.TrimSpace(q.Get("f_" + f.Name)); v != "" {
			raw[f.Name] = v
		}
	}
	return query, raw
}
