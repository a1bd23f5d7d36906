package recordshttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/catalog"
	"github.com/residuos-hospitalarios/residuos/internal/records"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
	"github.com/residuos-hospitalarios/residuos/internal/view"
)

type recordService interface {
	List(ctx context.Context, e catalog.Entity, q records.ListQuery, filters map[string]string) (records.ListResult, error)
	Get(ctx context.Context, e catalog.Entity, id int64) (records.Record, error)
	Create(ctx context.Context, e catalog.Entity, form url.Values, actorID string) (int64, error)
	Update(ctx context.Context, e catalog.Entity, id int64, form url.Values, actorID string) error
	Delete(ctx context.Context, e catalog.Entity, id int64, actorID string) error
	ReferenceOptions(ctx context.Context, cat *catalog.Catalog, e catalog.Entity) (map[string][]catalog.Option, error)
}

// DocumentRenderer converts HTML into PDF.
type DocumentRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Handler serves the list, detail and form pages of every catalog entity.
type Handler struct {
	logger    *slog.Logger
	catalog   *catalog.Catalog
	service   recordService
	templates *view.Engine
	csrf      *shared.CSRFManager
	pdf       DocumentRenderer
}

// NewHandler constructs the records handler. pdf may be nil, in which case
// printable entities answer their PDF route with 503.
func NewHandler(logger *slog.Logger, cat *catalog.Catalog, service recordService, templates *view.Engine, csrf *shared.CSRFManager, pdf DocumentRenderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		catalog:   cat,
		service:   service,
		templates: templates,
		csrf:      csrf,
		pdf:       pdf,
	}
}

// MountRoutes registers one route group per entity.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, e := range h.catalog.All() {
		r.Route(e.Path(), func(r chi.Router) {
			r.Get("/", h.list(e))
			r.Post("/", h.create(e))
			r.Get("/nuevo", h.newForm(e))
			r.Get("/{id}", h.show(e))
			r.Post("/{id}", h.update(e))
			r.Get("/{id}/editar", h.editForm(e))
			r.Get("/{id}/eliminar", h.confirmDelete(e))
			r.Post("/{id}/eliminar", h.remove(e))
			if e.Printable {
				r.Get("/{id}/pdf", h.exportPDF(e))
			}
		})
	}
}

type columnView struct {
	Field   catalog.Field
	SortURL string
	Sorted  bool
	Desc    bool
}

type rowView struct {
	ID    int64
	URL   string
	Cells []string
}

type filterView struct {
	Field    catalog.Field
	Param    string
	Selected string
	Options  []catalog.Option
}

type listPageData struct {
	Entity     catalog.Entity
	Columns    []columnView
	Rows       []rowView
	Filters    []filterView
	Search     string
	Pagination shared.Pagination
	PrevURL    string
	NextURL    string
}

type formFieldView struct {
	Field   catalog.Field
	Value   string
	Checked bool
	Options []catalog.Option
	Error   string
}

type formPageData struct {
	Entity catalog.Entity
	Action string
	IsEdit bool
	ID     int64
	Fields []formFieldView
	Error  string
}

type detailItem struct {
	Label string
	Value string
	Long  bool
}

type detailPageData struct {
	Entity    catalog.Entity
	Record    records.Record
	Items     []detailItem
	URL       string
	Printable bool
}

func (h *Handler) list(e catalog.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		q, filters := records.ParseListQuery(e, query)
		res, err := h.service.List(r.Context(), e, q, filters)
		if err != nil {
			h.logger.Error("list records", slog.String("entity", e.Slug), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		options, err := h.service.ReferenceOptions(r.Context(), h.catalog, e)
		if err != nil {
			h.logger.Error("reference options", slog.String("entity", e.Slug), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		labels := optionLabels(options)

		data := listPageData{
			Entity:     e,
			Search:     q.Search,
			Pagination: res.Pagination,
		}
		for _, f := range e.ListFields() {
			col := columnView{Field: f, Sorted: q.Sort == f.Name, Desc: q.Sort == f.Name && q.Desc}
			col.SortURL = withParams(e.Path(), query, map[string]string{
				"orden": f.Name,
				"dir":   nextDir(col),
				"page":  "",
			})
			data.Columns = append(data.Columns, col)
		}
		for _, rec := range res.Records {
			row := rowView{ID: rec.ID, URL: recordURL(e, rec.ID)}
			for _, f := range e.ListFields() {
				row.Cells = append(row.Cells, view.FieldValue(f, rec.Value(f.Name), labels[f.Name]))
			}
			data.Rows = append(data.Rows, row)
		}
		for _, f := range e.Fields {
			fv := filterView{Field: f, Param: "f_" + f.Name, Selected: filters[f.Name]}
			switch f.Kind {
			case catalog.KindSelect:
				fv.Options = f.Options
			case catalog.KindReference:
				fv.Options = options[f.Name]
			case catalog.KindBool:
				fv.Options = []catalog.Option{{Value: "true", Label: "Sí"}, {Value: "false", Label: "No"}}
			default:
				continue
			}
			data.Filters = append(data.Filters, fv)
		}
		if res.Pagination.HasPrev() {
			data.PrevURL = withParams(e.Path(), query, map[string]string{"page": strconv.Itoa(res.Pagination.Page - 1)})
		}
		if res.Pagination.HasNext() {
			data.NextURL = withParams(e.Path(), query, map[string]string{"page": strconv.Itoa(res.Pagination.Page + 1)})
		}
		h.render(w, r, "pages/records/list.html", e.Title, data, http.StatusOK)
	}
}

func (h *Handler) show(e catalog.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := h.load(w, r, e)
		if !ok {
			return
		}
		options, err := h.service.ReferenceOptions(r.Context(), h.catalog, e)
		if err != nil {
			h.logger.Error("reference options", slog.String("entity", e.Slug), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		h.render(w, r, "pages/records/show.html", e.Singular, detailData(e, rec, optionLabels(options)), http.StatusOK)
	}
}

func (h *Handler) newForm(e catalog.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.renderForm(w, r, e, 0, url.Values{}, nil, "", http.StatusOK)
	}
}

func (h *Handler) editForm(e catalog.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := h.load(w, r, e)
		if !ok {
			return
		}
		h.renderForm(w, r, e, rec.ID, recordForm(e, rec), nil, "", http.StatusOK)
	}
}

func (h *Handler) create(e catalog.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		id, err := h.service.Create(r.Context(), e, r.PostForm, actorID(r))
		if err != nil {
			h.writeFailed(w, r, e, 0, err)
			return
		}
		h.redirectWithFlash(w, r, recordURL(e, id), "success", e.Singular+" creado correctamente.")
	}
}

func (h *Handler) update(e catalog.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		if err := h.service.Update(r.Context(), e, id, r.PostForm, actorID(r)); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			h.writeFailed(w, r, e, id, err)
			return
		}
		h.redirectWithFlash(w, r, recordURL(e, id), "success", "Cambios guardados.")
	}
}

func (h *Handler) confirmDelete(e catalog.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := h.load(w, r, e)
		if !ok {
			return
		}
		h.render(w, r, "pages/records/delete.html", "Eliminar "+e.Singular, detailData(e, rec, nil), http.StatusOK)
	}
}

func (h *Handler) remove(e catalog.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		err := h.service.Delete(r.Context(), e, id, actorID(r))
		switch {
		case err == nil:
			h.redirectWithFlash(w, r, e.Path(), "success", e.Singular+" eliminado.")
		case errors.Is(err, shared.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, shared.ErrInUse):
			h.redirectWithFlash(w, r, recordURL(e, id), "danger", shared.UserSafeMessage(err))
		default:
			h.logger.Error("delete record", slog.String("entity", e.Slug), slog.Int64("id", id), slog.Any("error", err))
			h.redirectWithFlash(w, r, recordURL(e, id), "danger", shared.UserSafeMessage(err))
		}
	}
}

func (h *Handler) exportPDF(e catalog.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := h.load(w, r, e)
		if !ok {
			return
		}
		if h.pdf == nil {
			http.Error(w, "Exportación a PDF no disponible", http.StatusServiceUnavailable)
			return
		}
		var buf bytes.Buffer
		if err := h.templates.Execute(&buf, "pages/records/print.html", detailData(e, rec, nil)); err != nil {
			h.logger.Error("render printable", slog.String("entity", e.Slug), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		pdf, err := h.pdf.RenderHTML(r.Context(), buf.String())
		if err != nil {
			h.logger.Error("render pdf", slog.String("entity", e.Slug), slog.Int64("id", rec.ID), slog.Any("error", err))
			http.Error(w, "No se pudo generar el PDF", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%d.pdf"`, e.Slug, rec.ID))
		_, _ = w.Write(pdf)
	}
}

func (h *Handler) writeFailed(w http.ResponseWriter, r *http.Request, e catalog.Entity, id int64, err error) {
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		h.renderForm(w, r, e, id, r.PostForm, verr.Fields, "Revisa los campos marcados.", http.StatusUnprocessableEntity)
	case errors.Is(err, shared.ErrDuplicate):
		h.renderForm(w, r, e, id, r.PostForm, nil, shared.UserSafeMessage(err), http.StatusConflict)
	case errors.Is(err, records.ErrInvalidReference):
		h.renderForm(w, r, e, id, r.PostForm, nil, "Uno de los registros relacionados no existe.", http.StatusUnprocessableEntity)
	default:
		h.logger.Error("save record", slog.String("entity", e.Slug), slog.Any("error", err))
		h.renderForm(w, r, e, id, r.PostForm, nil, shared.UserSafeMessage(err), http.StatusInternalServerError)
	}
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, e catalog.Entity, id int64, values url.Values, problems map[string]string, message string, status int) {
	options, err := h.service.ReferenceOptions(r.Context(), h.catalog, e)
	if err != nil {
		h.logger.Error("reference options", slog.String("entity", e.Slug), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data := formPageData{Entity: e, Action: e.Path(), IsEdit: id > 0, ID: id, Error: message}
	title := "Nuevo: " + e.Singular
	if id > 0 {
		data.Action = recordURL(e, id)
		title = "Editar: " + e.Singular
	}
	for _, f := range e.Fields {
		fv := formFieldView{Field: f, Value: values.Get(f.Name), Error: problems[f.Name]}
		switch f.Kind {
		case catalog.KindBool:
			fv.Checked = values.Get(f.Name) != ""
		case catalog.KindSelect:
			fv.Options = f.Options
		case catalog.KindReference:
			fv.Options = options[f.Name]
		}
		data.Fields = append(data.Fields, fv)
	}
	h.render(w, r, "pages/records/form.html", title, data, status)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request, e catalog.Entity) (records.Record, bool) {
	id, ok := parseID(w, r)
	if !ok {
		return records.Record{}, false
	}
	rec, err := h.service.Get(r.Context(), e, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return records.Record{}, false
		}
		h.logger.Error("get record", slog.String("entity", e.Slug), slog.Int64("id", id), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return records.Record{}, false
	}
	return rec, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	principal, _ := access.PrincipalFromContext(r.Context())
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Principal:   principal,
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func detailData(e catalog.Entity, rec records.Record, labels map[string]map[string]string) detailPageData {
	data := detailPageData{Entity: e, Record: rec, URL: recordURL(e, rec.ID), Printable: e.Printable}
	for _, f := range e.Fields {
		data.Items = append(data.Items, detailItem{
			Label: f.Label,
			Value: view.FieldValue(f, rec.Value(f.Name), labels[f.Name]),
			Long:  f.Kind == catalog.KindLongText,
		})
	}
	return data
}

func recordForm(e catalog.Entity, rec records.Record) url.Values {
	values := url.Values{}
	for _, f := range e.Fields {
		if v := view.InputValue(rec.Value(f.Name)); v != "" {
			values.Set(f.Name, v)
		}
	}
	return values
}

func optionLabels(options map[string][]catalog.Option) map[string]map[string]string {
	out := make(map[string]map[string]string, len(options))
	for field, opts := range options {
		m := make(map[string]string, len(opts))
		for _, o := range opts {
			m[o.Value] = o.Label
		}
		out[field] = m
	}
	return out
}

func withParams(path string, base url.Values, set map[string]string) string {
	q := url.Values{}
	for k, v := range base {
		q[k] = append([]string(nil), v...)
	}
	for k, v := range set {
		if v == "" {
			q.Del(k)
			continue
		}
		q.Set(k, v)
	}
	if encoded := q.Encode(); encoded != "" {
		return path + "?" + encoded
	}
	return path
}

func nextDir(col columnView) string {
	if col.Sorted && !col.Desc {
		return "desc"
	}
	return "asc"
}

func recordURL(e catalog.Entity, id int64) string {
	return e.Path() + "/" + strconv.FormatInt(id, 10)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) string {
	if p, ok := access.PrincipalFromContext(r.Context()); ok {
		return p.UserID
	}
	return shared.CurrentUserID(r.Context())
}
