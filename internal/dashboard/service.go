// Package dashboard serves the landing page, compliance overview and the
// administrator pages that summarise the other modules.
package dashboard

import (
	"context"
	"log/slog"
	"sort"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/catalog"
	"github.com/residuos-hospitalarios/residuos/internal/records"
	"github.com/residuos-hospitalarios/residuos/internal/users"
)

// RecordCounter aggregates catalog entities.
type RecordCounter interface {
	Count(ctx context.Context, e catalog.Entity, equals map[string]any) (int, error)
	SumBy(ctx context.Context, e catalog.Entity, value, group string) ([]records.Total, error)
}

// RoleCounter reports how many active accounts hold each role.
type RoleCounter interface {
	CountByRole(ctx context.Context) ([]users.RoleCount, error)
}

// Pinger checks an external dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EntityCount is one tile of the landing page.
type EntityCount struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// WeightByType is the weighed mass of one waste type.
type WeightByType struct {
	Type  string  `json:"type"`
	Label string  `json:"label"`
	Kg    float64 `json:"kg"`
}

// Compliance summarises regulations, incidents and weighings.
type Compliance struct {
	Regulations   int            `json:"regulations"`
	OpenIncidents int            `json:"open_incidents"`
	Weights       []WeightByType `json:"weights"`
	TotalKg       float64        `json:"total_kg"`
}

// Overview backs the administration page.
type Overview struct {
	Roles      []RoleRow
	PDFHealthy bool
	PDFEnabled bool
}

// RoleRow is the number of accounts holding a role.
type RoleRow struct {
	Role  access.Role
	Count int
}

// PermissionRow is one line of the permission matrix.
type PermissionRow struct {
	Label       string
	Path        string
	Requirement string
	Allowed     []bool
}

// Service computes dashboard summaries.
type Service struct {
	catalog *catalog.Catalog
	records RecordCounter
	users   RoleCounter
	pdf     Pinger
	cache   *Cache
	logger  *slog.Logger
}

// NewService constructs a Service. users, pdf and cache may be nil.
func NewService(cat *catalog.Catalog, counter RecordCounter, roleCounter RoleCounter, pdf Pinger, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{catalog: cat, records: counter, users: roleCounter, pdf: pdf, cache: cache, logger: logger}
}

// EntityCounts returns the number of records of every entity.
func (s *Service) EntityCounts(ctx context.Context) ([]EntityCount, error) {
	var out []EntityCount
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		counts := make([]EntityCount, 0, len(s.catalog.All()))
		for _, e := range s.catalog.All() {
			n, err := s.records.Count(ctx, e, nil)
			if err != nil {
				return nil, err
			}
			counts = append(counts, EntityCount{Slug: e.Slug, Title: e.Title, Path: e.Path(), Count: n})
		}
		return counts, nil
	}, "counts")
	return out, err
}

// Compliance returns the compliance overview.
func (s *Service) Compliance(ctx context.Context) (Compliance, error) {
	var out Compliance
	err := s.cached(ctx, &out, s.loadCompliance, "compliance")
	return out, err
}

func (s *Service) loadCompliance(ctx context.Context) (any, error) {
	var c Compliance
	normativas, err := s.catalog.Lookup("normativas")
	if err != nil {
		return nil, err
	}
	if c.Regulations, err = s.records.Count(ctx, normativas, map[string]any{"vigente": true}); err != nil {
		return nil, err
	}
	incidentes, err := s.catalog.Lookup("incidentes")
	if err != nil {
		return nil, err
	}
	for _, estado := range []string{"abierto", "en_investigacion"} {
		n, err := s.records.Count(ctx, incidentes, map[string]any{"estado": estado})
		if err != nil {
			return nil, err
		}
		c.OpenIncidents += n
	}
	pesajes, err := s.catalog.Lookup("pesajes")
	if err != nil {
		return nil, err
	}
	totals, err := s.records.SumBy(ctx, pesajes, "peso_kg", "tipo_residuo")
	if err != nil {
		return nil, err
	}
	labels := map[string]string{}
	if f, ok := pesajes.Field("tipo_residuo"); ok {
		for _, o := range f.Options {
			labels[o.Value] = o.Label
		}
	}
	for _, t := range totals {
		label := labels[t.Key]
		if label == "" {
			label = t.Key
		}
		c.Weights = append(c.Weights, WeightByType{Type: t.Key, Label: label, Kg: t.Value})
		c.TotalKg += t.Value
	}
	sort.Slice(c.Weights, func(i, j int) bool { return c.Weights[i].Kg > c.Weights[j].Kg })
	return c, nil
}

// Overview returns accounts per role and the PDF service status.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	ov := Overview{PDFEnabled: s.pdf != nil}
	counts := map[access.Role]int{}
	if s.users != nil {
		rows, err := s.users.CountByRole(ctx)
		if err != nil {
			return Overview{}, err
		}
		for _, row := range rows {
			counts[row.Role] += row.Count
		}
	}
	for _, role := range access.AllRoles() {
		ov.Roles = append(ov.Roles, RoleRow{Role: role, Count: counts[role]})
	}
	if s.pdf != nil {
		if err := s.pdf.Ping(ctx); err != nil {
			s.logger.Warn("pdf service unavailable", slog.Any("error", err))
		} else {
			ov.PDFHealthy = true
		}
	}
	return ov, nil
}

// Permissions renders rules as a path × role matrix over the given sections.
func Permissions(rules access.Rules, sections []PermissionRow) []PermissionRow {
	roles := access.AllRoles()
	out := make([]PermissionRow, 0, len(sections))
	for _, row := range sections {
		row.Requirement = rules.Requirement(row.Path).String()
		row.Allowed = make([]bool, len(roles))
		for i, role := range roles {
			row.Allowed[i] = rules.Permits(role, row.Path)
		}
		out = append(out, row)
	}
	return out
}

// Invalidate drops cached summaries after a record changes.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) cached(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("dashboard cache unavailable", slog.Any("error", err))
		return NewCache(nil, 0).FetchJSON(ctx, "", dest, loader)
	}
	if err := s.cache.FetchJSON(ctx, key, dest, loader); err != nil {
		return err
	}
	return nil
}
