package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/platform/httpx"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
	"github.com/residuos-hospitalarios/residuos/internal/view"
)

type summaryService interface {
	EntityCounts(ctx context.Context) ([]EntityCount, error)
	Compliance(ctx context.Context) (Compliance, error)
	Overview(ctx context.Context) (Overview, error)
}

// Handler serves the dashboard pages.
type Handler struct {
	logger    *slog.Logger
	service   summaryService
	rules     access.Rules
	roles     access.RoleLookup
	sections  []view.NavItem
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds a Handler. roles resolves the role on public routes where
// the gate did not attach a principal.
func NewHandler(logger *slog.Logger, service summaryService, rules access.Rules, roles access.RoleLookup, sections []view.NavItem, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		rules:     rules.Clone(),
		roles:     roles,
		sections:  sections,
		templates: templates,
		csrf:      csrf,
	}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.home)
	r.Get("/dashboard", h.dashboard)
	r.Get("/cumplimiento", h.compliance)
	r.Get("/admin", h.admin)
	r.Get("/permisos", h.permissions)
	r.Get("/no-autorizado", h.denied)
	r.Get("/api/sesion", h.whoami)
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(r); ok {
		http.Redirect(w, r, h.rules.DashboardPath, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.rules.LoginPath, http.StatusSeeOther)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.EntityCounts(r.Context())
	if err != nil {
		h.logger.Error("dashboard counts", slog.Any("error", err))
		h.render(w, r, "pages/dashboard/home.html", "Inicio", map[string]any{"Error": shared.UserSafeMessage(err)}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/dashboard/home.html", "Inicio", map[string]any{"Counts": counts}, http.StatusOK)
}

func (h *Handler) compliance(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Compliance(r.Context())
	if err != nil {
		h.logger.Error("compliance summary", slog.Any("error", err))
		h.render(w, r, "pages/dashboard/compliance.html", "Cumplimiento", map[string]any{"Error": shared.UserSafeMessage(err)}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/dashboard/compliance.html", "Cumplimiento", map[string]any{"Summary": summary}, http.StatusOK)
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.logger.Error("admin overview", slog.Any("error", err))
		h.render(w, r, "pages/dashboard/admin.html", "Administración", map[string]any{"Error": shared.UserSafeMessage(err)}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/dashboard/admin.html", "Administración", map[string]any{"Overview": overview, "Variant": string(h.rules.Variant), "DeniedPath": h.rules.DeniedPath}, http.StatusOK)
}

func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	sections := make([]PermissionRow, 0, len(h.sections))
	for _, item := range h.sections {
		sections = append(sections, PermissionRow{Label: item.Label, Path: item.Path})
	}
	data := map[string]any{
		"Roles":   access.AllRoles(),
		"Rows":    Permissions(h.rules, sections),
		"Public":  h.rules.PublicPaths,
		"Variant": string(h.rules.Variant),
	}
	h.render(w, r, "pages/dashboard/permissions.html", "Permisos", data, http.StatusOK)
}

func (h *Handler) denied(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/no_autorizado.html", "Acceso restringido", nil, http.StatusForbidden)
}

type sessionInfo struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	RoleLabel string `json:"role_label"`
}

func (h *Handler) whoami(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "No autenticado", "Inicia sesión para continuar.")
		return
	}
	info := sessionInfo{UserID: p.UserID}
	if p.Role.Valid() {
		info.Role = p.Role.String()
		info.RoleLabel = p.Role.Label()
	}
	httpx.JSON(w, http.StatusOK, info)
}

// principal returns the gate's principal, falling back to the loaded session
// on public routes.
func (h *Handler) principal(r *http.Request) (access.Principal, bool) {
	if p, ok := access.PrincipalFromContext(r.Context()); ok {
		return p, true
	}
	userID := shared.CurrentUserID(r.Context())
	if userID == "" {
		return access.Principal{}, false
	}
	p := access.Principal{UserID: userID}
	if h.roles != nil {
		role, err := h.roles.RoleForUser(r.Context(), userID)
		if err != nil {
			h.logger.Warn("resolve role", slog.String("user_id", userID), slog.Any("error", err))
		} else {
			p.Role = role
		}
	}
	return p, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	principal, _ := access.PrincipalFromContext(r.Context())
	viewData := view.TemplateData{Title: title, CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Principal: principal, Data: data}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}
