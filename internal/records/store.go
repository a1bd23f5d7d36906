package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/residuos-hospitalarios/residuos/internal/catalog"
	"github.com/residuos-hospitalarios/residuos/internal/platform/db"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
)

const optionsLimit = 500

// Store persists records of any catalog entity.
type Store interface {
	List(ctx context.Context, e catalog.Entity, q ListQuery) ([]Record, int, error)
	Get(ctx context.Context, e catalog.Entity, id int64) (Record, error)
	Create(ctx context.Context, e catalog.Entity, values map[string]any) (int64, error)
	Update(ctx context.Context, e catalog.Entity, id int64, values map[string]any) error
	Delete(ctx context.Context, e catalog.Entity, id int64) error
	Options(ctx context.Context, e catalog.Entity) ([]catalog.Option, error)
	Count(ctx context.Context, e catalog.Entity, equals map[string]any) (int, error)
	SumBy(ctx context.Context, e catalog.Entity, value, group string) ([]Total, error)
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStore is the PostgreSQL Store.
type PGStore struct {
	db Querier
}

// NewPGStore constructs a PGStore.
func NewPGStore(db Querier) *PGStore {
	return &PGStore{db: db}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// List returns one page of records and the total number of matches.
func (s *PGStore) List(ctx context.Context, e catalog.Entity, q ListQuery) ([]Record, int, error) {
	sel, count := buildList(e, q)

	countSQL, countArgs, err := count.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("records: build count: %w", err)
	}
	var total int
	if err := s.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("records: count %s: %w", e.Table, err)
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("records: build list: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("records: list %s: %w", e.Table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, 0, fmt.Errorf("records: scan %s: %w", e.Table, err)
	}
	out := make([]Record, 0, len(maps))
	for _, m := range maps {
		out = append(out, recordFromMap(m))
	}
	return out, total, nil
}

// Get loads a single record.
func (s *PGStore) Get(ctx context.Context, e catalog.Entity, id int64) (Record, error) {
	query, args, err := psql.Select(selectColumns(e)...).From(e.Table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return Record{}, err
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return Record{}, fmt.Errorf("records: get %s: %w", e.Table, err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, shared.ErrNotFound
		}
		return Record{}, fmt.Errorf("records: get %s: %w", e.Table, err)
	}
	return recordFromMap(m), nil
}

// Create inserts a record and returns its id.
func (s *PGStore) Create(ctx context.Context, e catalog.Entity, values map[string]any) (int64, error) {
	query, args, err := buildInsert(e, values).ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, mapWriteError(e, err)
	}
	return id, nil
}

// Update overwrites the values of a record.
func (s *PGStore) Update(ctx context.Context, e catalog.Entity, id int64, values map[string]any) error {
	query, args, err := buildUpdate(e, id, values).ToSql()
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError(e, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a record. Rows still referenced elsewhere are kept.
func (s *PGStore) Delete(ctx context.Context, e catalog.Entity, id int64) error {
	query, args, err := psql.Delete(e.Table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.ErrInUse
		}
		return fmt.Errorf("records: delete %s: %w", e.Table, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Options lists id/display pairs for reference selects.
func (s *PGStore) Options(ctx context.Context, e catalog.Entity) ([]catalog.Option, error) {
	query, args, err := buildOptions(e).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("records: options %s: %w", e.Table, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Option, error) {
		var (
			id    int64
			label *string
		)
		if err := row.Scan(&id, &label); err != nil {
			return catalog.Option{}, err
		}
		opt := catalog.Option{Value: fmt.Sprint(id)}
		if label != nil {
			opt.Label = *label
		}
		return opt, nil
	})
}

// Count returns the number of rows matching equals.
func (s *PGStore) Count(ctx context.Context, e catalog.Entity, equals map[string]any) (int, error) {
	b := psql.Select("COUNT(*)").From(e.Table)
	if where := knownColumns(e, equals); len(where) > 0 {
		b = b.Where(where)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("records: count %s: %w", e.Table, err)
	}
	return n, nil
}

// SumBy sums the numeric column value grouped by group.
func (s *PGStore) SumBy(ctx context.Context, e catalog.Entity, value, group string) ([]Total, error) {
	b, err := buildSumBy(e, value, group)
	if err != nil {
		return nil, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("records: sum %s.%s: %w", e.Table, value, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Total])
}

// likeEscaper quotes LIKE wildcards using the default backslash escape.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func buildList(e catalog.Entity, q ListQuery) (sq.SelectBuilder, sq.SelectBuilder) {
	sel := psql.Select(selectColumns(e)...).From(e.Table)
	count := psql.Select("COUNT(*)").From(e.Table)

	if where := knownColumns(e, q.Equals); len(where) > 0 {
		sel = sel.Where(where)
		count = count.Where(where)
	}
	if q.Search != "" {
		if cols := e.SearchColumns(); len(cols) > 0 {
			pattern := "%" + likeEscaper.Replace(q.Search) + "%"
			or := make(sq.Or, 0, len(cols))
			for _, col := range cols {
				or = append(or, sq.ILike{col + "::text": pattern})
			}
			sel = sel.Where(or)
			count = count.Where(or)
		}
	}

	sortCol := q.Sort
	if !e.IsSortable(sortCol) {
		sortCol = e.DefaultSort
		if sortCol == "" {
			sortCol = "id"
		}
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	sel = sel.OrderBy(sortCol+" "+dir, "id "+dir)

	page := shared.NewPagination(q.Page, q.PerPage, 0)
	sel = sel.Limit(uint64(page.PerPage)).Offset(uint64(page.Offset()))
	return sel, count
}

func buildInsert(e catalog.Entity, values map[string]any) sq.InsertBuilder {
	set := map[string]any(knownColumns(e, values))
	set["creado_en"] = sq.Expr("NOW()")
	set["actualizado_en"] = sq.Expr("NOW()")
	return psql.Insert(e.Table).SetMap(set).Suffix("RETURNING id")
}

func buildUpdate(e catalog.Entity, id int64, values map[string]any) sq.UpdateBuilder {
	set := map[string]any(knownColumns(e, values))
	set["actualizado_en"] = sq.Expr("NOW()")
	return psql.Update(e.Table).SetMap(set).Where(sq.Eq{"id": id})
}

func buildOptions(e catalog.Entity) sq.SelectBuilder {
	return psql.Select("id", e.Display+"::text").
		From(e.Table).
		OrderBy(e.Display, "id").
		Limit(optionsLimit)
}

func buildSumBy(e catalog.Entity, value, group string) (sq.SelectBuilder, error) {
	vf, ok := e.Field(value)
	if !ok || (vf.Kind != catalog.KindNumber && vf.Kind != catalog.KindInteger) {
		return sq.SelectBuilder{}, fmt.Errorf("records: %s.%s is not numeric", e.Slug, value)
	}
	if _, ok := e.Field(group); !ok {
		return sq.SelectBuilder{}, fmt.Errorf("records: %s has no column %s", e.Slug, group)
	}
	return psql.Select(
		"COALESCE("+group+"::text, '')",
		"COALESCE(SUM("+value+"), 0)::float8",
	).From(e.Table).GroupBy(group).OrderBy(group), nil
}

// selectColumns lists the columns read for an entity. Numeric columns are
// cast so they scan into float64.
func selectColumns(e catalog.Entity) []string {
	cols := make([]string, 0, len(e.Fields)+3)
	cols = append(cols, "id")
	for _, f := range e.Fields {
		if f.Kind == catalog.KindNumber {
			cols = append(cols, f.Name+"::float8 AS "+f.Name)
			continue
		}
		cols = append(cols, f.Name)
	}
	return append(cols, "creado_en", "actualizado_en")
}

// knownColumns drops keys that are not fields of e. Column names in SQL only
// ever come from the catalog.
func knownColumns(e catalog.Entity, values map[string]any) sq.Eq {
	out := make(sq.Eq, len(values))
	for k, v := range values {
		if _, ok := e.Field(k); ok {
			out[k] = v
		}
	}
	return out
}

func recordFromMap(m map[string]any) Record {
	rec := Record{Values: make(map[string]any, len(m))}
	for k, v := range m {
		switch k {
		case "id":
			rec.ID = toInt64(v)
		case "creado_en":
			rec.CreatedAt, _ = v.(time.Time)
		case "actualizado_en":
			rec.UpdatedAt, _ = v.(time.Time)
		default:
			rec.Values[k] = v
		}
	}
	return rec
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int:
		return int64(n)
	}
	return 0
}

func mapWriteError(e catalog.Entity, err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return shared.ErrDuplicate
	case db.IsForeignKeyViolation(err):
		return ErrInvalidReference
	case errors.Is(err, pgx.ErrNoRows):
		return shared.ErrNotFound
	}
	return fmt.Errorf("records: write %s: %w", e.Table, err)
}
