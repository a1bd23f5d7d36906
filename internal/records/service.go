package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/residuos-hospitalarios/residuos/internal/catalog"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
)

const dateLayout = "2006-01-02"

// AuditRecorder persists audit entries for mutations.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ChangeNotifier is told after every successful mutation, typically to drop
// cached summaries.
type ChangeNotifier interface {
	Invalidate(ctx context.Context) error
}

// Service validates input and coordinates the store.
type Service struct {
	store    Store
	audit    AuditRecorder
	notifier ChangeNotifier
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs a Service. audit may be nil.
func NewService(store Store, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, audit: audit, validate: validator.New(), logger: logger}
}

// NotifyChanges registers n to be told about mutations.
func (s *Service) NotifyChanges(n ChangeNotifier) {
	s.notifier = n
}

// List returns a page of records. Raw filters that do not convert are ignored.
func (s *Service) List(ctx context.Context, e catalog.Entity, q ListQuery, filters map[string]string) (ListResult, error) {
	if len(filters) > 0 {
		q.Equals = make(map[string]any, len(filters))
		for name, raw := range filters {
			f, ok := e.Field(name)
			if !ok {
				continue
			}
			v, err := convert(f, raw)
			if err != nil || v == nil {
				continue
			}
			q.Equals[name] = v
		}
	}
	recs, total, err := s.store.List(ctx, e, q)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Records: recs, Pagination: shared.NewPagination(q.Page, q.PerPage, total)}, nil
}

// Get loads one record.
func (s *Service) Get(ctx context.Context, e catalog.Entity, id int64) (Record, error) {
	return s.store.Get(ctx, e, id)
}

// Create validates form and inserts a record.
func (s *Service) Create(ctx context.Context, e catalog.Entity, form url.Values, actorID string) (int64, error) {
	values, err := s.Decode(e, form)
	if err != nil {
		return 0, err
	}
	id, err := s.store.Create(ctx, e, values)
	if err != nil {
		return 0, err
	}
	s.record(ctx, actorID, shared.AuditCreate, e, id, values)
	return id, nil
}

// Update validates form and overwrites the record.
func (s *Service) Update(ctx context.Context, e catalog.Entity, id int64, form url.Values, actorID string) error {
	values, err := s.Decode(e, form)
	if err != nil {
		return err
	}
	if err := s.store.Update(ctx, e, id, values); err != nil {
		return err
	}
	s.record(ctx, actorID, shared.AuditUpdate, e, id, values)
	return nil
}

// Delete removes the record.
func (s *Service) Delete(ctx context.Context, e catalog.Entity, id int64, actorID string) error {
	if err := s.store.Delete(ctx, e, id); err != nil {
		return err
	}
	s.record(ctx, actorID, shared.AuditDelete, e, id, nil)
	return nil
}

// ReferenceOptions loads the choices of every reference field of e, keyed by
// field name.
func (s *Service) ReferenceOptions(ctx context.Context, cat *catalog.Catalog, e catalog.Entity) (map[string][]catalog.Option, error) {
	out := make(map[string][]catalog.Option)
	for _, f := range e.ReferenceFields() {
		target, err := cat.Lookup(f.Ref)
		if err != nil {
			return nil, err
		}
		opts, err := s.store.Options(ctx, target)
		if err != nil {
			return nil, err
		}
		out[f.Name] = opts
	}
	return out, nil
}

// Count returns the number of records of e matching equals.
func (s *Service) Count(ctx context.Context, e catalog.Entity, equals map[string]any) (int, error) {
	return s.store.Count(ctx, e, equals)
}

// SumBy sums a numeric column grouped by another column.
func (s *Service) SumBy(ctx context.Context, e catalog.Entity, value, group string) ([]Total, error) {
	return s.store.SumBy(ctx, e, value, group)
}

// Decode validates the submitted form against the entity fields and returns
// typed values ready for storage. Empty optional fields become NULL.
func (s *Service) Decode(e catalog.Entity, form url.Values) (map[string]any, error) {
	values := make(map[string]any, len(e.Fields))
	problems := make(map[string]string)
	for _, f := range e.Fields {
		raw := strings.TrimSpace(form.Get(f.Name))
		if f.Kind == catalog.KindBool {
			values[f.Name] = isChecked(raw)
			continue
		}
		if rule := f.ValidationRule(); rule != "" {
			if err := s.validate.Var(raw, rule); err != nil {
				problems[f.Name] = messageFor(err)
				continue
			}
		}
		v, err := convert(f, raw)
		if err != nil {
			problems[f.Name] = "Valor no válido."
			continue
		}
		values[f.Name] = v
	}
	if len(problems) > 0 {
		return nil, &shared.ValidationError{Fields: problems}
	}
	return values, nil
}

func (s *Service) record(ctx context.Context, actorID, action string, e catalog.Entity, id int64, values map[string]any) {
	if s.notifier != nil {
		if err := s.notifier.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate summaries", slog.Any("error", err))
		}
	}
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   e.Slug,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     auditMeta(values),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("entity", e.Slug), slog.Int64("id", id), slog.Any("error", err))
	}
}

func auditMeta(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	meta := make(map[string]any, len(values))
	for k, v := range values {
		if t, ok := v.(time.Time); ok {
			meta[k] = t.Format(dateLayout)
			continue
		}
		meta[k] = v
	}
	return meta
}

// convert turns a validated raw string into the Go value stored for f.
func convert(f catalog.Field, raw string) (any, error) {
	if f.Kind == catalog.KindBool {
		return isChecked(raw), nil
	}
	if raw == "" {
		return nil, nil
	}
	switch f.Kind {
	case catalog.KindNumber:
		return strconv.ParseFloat(raw, 64)
	case catalog.KindInteger, catalog.KindReference:
		return strconv.ParseInt(raw, 10, 64)
	case catalog.KindDate:
		return time.Parse(dateLayout, raw)
	case catalog.KindSelect:
		for _, o := range f.Options {
			if o.Value == raw {
				return raw, nil
			}
		}
		return nil, fmt.Errorf("records: %q is not an option of %s", raw, f.Name)
	}
	return raw, nil
}

func isChecked(raw string) bool {
	switch strings.ToLower(raw) {
	case "on", "true", "1", "si", "sí":
		return true
	}
	return false
}

func messageFor(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Valor no válido."
	}
	return shared.ValidationMessage(verrs[0].Tag())
}
