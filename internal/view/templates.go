package view

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/catalog"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
	"github.com/residuos-hospitalarios/residuos/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
	nav       Navigator
}

// Navigator builds the sidebar for the signed-in principal.
type Navigator interface {
	Items(p access.Principal, currentPath string) []NavItem
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Principal   access.Principal
	Nav         []NavItem
	Data        any
}

// SignedIn reports whether the page is rendered for an authenticated user.
func (d TemplateData) SignedIn() bool {
	return d.Principal.UserID != ""
}

var printer = message.NewPrinter(language.Spanish)

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006 15:04")
		},
		"formatNumber": formatNumber,
		"fieldValue":   FieldValue,
		"inputValue":   InputValue,
		"roleLabel": func(r access.Role) string {
			return r.Label()
		},
		"isKind": func(f catalog.Field, kind string) bool {
			return kindNames[f.Kind] == kind
		},
		"add": func(a, b int) int { return a + b },
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates,
		"templates/layouts/*.html",
		"templates/partials/*.html",
		"templates/pages/*.html",
		"templates/pages/*/*.html",
	)
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// WithNavigator sets the sidebar builder and returns the engine.
func (e *Engine) WithNavigator(n Navigator) *Engine {
	e.nav = n
	return e
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	if data.Nav == nil && e.nav != nil && data.SignedIn() {
		data.Nav = e.nav.Items(data.Principal, data.CurrentPath)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// Execute renders a template into an arbitrary writer, used for documents
// that are converted to PDF.
func (e *Engine) Execute(w io.Writer, name string, data any) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}

var kindNames = map[catalog.Kind]string{
	catalog.KindText:      "text",
	catalog.KindLongText:  "longtext",
	catalog.KindNumber:    "number",
	catalog.KindInteger:   "integer",
	catalog.KindDate:      "date",
	catalog.KindBool:      "bool",
	catalog.KindEmail:     "email",
	catalog.KindSelect:    "select",
	catalog.KindReference: "reference",
}

func formatNumber(v any) string {
	return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// FieldValue formats a stored value for display. Reference values are shown
// through labels when provided.
func FieldValue(f catalog.Field, v any, labels map[string]string) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case bool:
		if val {
			return "Sí"
		}
		return "No"
	case time.Time:
		return val.Format("02/01/2006")
	case float64:
		return formatNumber(val)
	case float32:
		return formatNumber(float64(val))
	}
	raw := fmt.Sprint(v)
	switch f.Kind {
	case catalog.KindSelect:
		return f.OptionLabel(raw)
	case catalog.KindReference:
		if label, ok := labels[raw]; ok && label != "" {
			return label
		}
	}
	return raw
}

// InputValue formats a stored value for an input element.
func InputValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.Format("2006-01-02")
	case bool:
		if val {
			return "on"
		}
		return ""
	}
	return fmt.Sprint(v)
}
