package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
	"github.com/residuos-hospitalarios/residuos/internal/view"
)

type userService interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, in CreateInput, actorID string) (int64, error)
	UpdateUser(ctx context.Context, id int64, in UpdateInput, actorID string) error
	DeleteUser(ctx context.Context, id int64, actorID string) error
}

// Handler manages user administration endpoints. Access to the routes is
// enforced by the access gate, which restricts the prefix to administrators.
type Handler struct {
	logger    *slog.Logger
	service   userService
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service userService, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Get("/nuevo", h.showCreateUserForm)
	r.Post("/", h.createUser)
	r.Get("/{id}", h.showUser)
	r.Get("/{id}/editar", h.showEditUserForm)
	r.Post("/{id}", h.updateUser)
	r.Post("/{id}/eliminar", h.deleteUser)
}

type formErrors map[string]string

type userForm struct {
	Email    string
	Name     string
	Role     string
	IsActive bool
}

type formPageData struct {
	ID     int64
	Form   userForm
	Roles  []access.Role
	Errors formErrors
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "pages/users/list.html", "Usuarios", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users/list.html", "Usuarios", map[string]any{"Users": users}, http.StatusOK)
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}
	h.render(w, r, "pages/users/show.html", user.Name, map[string]any{"User": user}, http.StatusOK)
}

func (h *Handler) showCreateUserForm(w http.ResponseWriter, r *http.Request) {
	data := formPageData{Form: userForm{Role: access.RoleGenerador.String(), IsActive: true}, Roles: access.AllRoles(), Errors: formErrors{}}
	h.render(w, r, "pages/users/form.html", "Nuevo usuario", data, http.StatusOK)
}

func (h *Handler) showEditUserForm(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}
	data := formPageData{
		ID:     user.ID,
		Form:   userForm{Email: user.Email, Name: user.Name, Role: user.Role.String(), IsActive: user.IsActive},
		Roles:  access.AllRoles(),
		Errors: formErrors{},
	}
	h.render(w, r, "pages/users/form.html", "Editar usuario", data, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := CreateInput{
		Email:    r.PostFormValue("email"),
		Name:     r.PostFormValue("name"),
		Password: r.PostFormValue("password"),
		Role:     r.PostFormValue("role"),
		IsActive: r.PostFormValue("active") != "",
	}
	id, err := h.service.CreateUser(r.Context(), in, actorID(r))
	if err != nil {
		form := userForm{Email: in.Email, Name: in.Name, Role: in.Role, IsActive: in.IsActive}
		h.renderFormError(w, r, 0, form, err)
		return
	}
	h.redirectWithFlash(w, r, "/usuarios/"+strconv.FormatInt(id, 10), "success", "Usuario creado.")
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := UpdateInput{
		Name:     r.PostFormValue("name"),
		Password: r.PostFormValue("password"),
		Role:     r.PostFormValue("role"),
		IsActive: r.PostFormValue("active") != "",
	}
	if err := h.service.UpdateUser(r.Context(), id, in, actorID(r)); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		form := userForm{Email: r.PostFormValue("email"), Name: in.Name, Role: in.Role, IsActive: in.IsActive}
		h.renderFormError(w, r, id, form, err)
		return
	}
	h.redirectWithFlash(w, r, "/usuarios/"+strconv.FormatInt(id, 10), "success", "Usuario actualizado.")
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	err := h.service.DeleteUser(r.Context(), id, actorID(r))
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/usuarios", "success", "Usuario eliminado.")
	case errors.Is(err, ErrSelfDelete):
		h.redirectWithFlash(w, r, "/usuarios/"+strconv.FormatInt(id, 10), "danger", "No puedes eliminar tu propia cuenta.")
	case errors.Is(err, shared.ErrNotFound):
		http.NotFound(w, r)
	default:
		h.logger.Error("delete user", slog.Int64("id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/usuarios/"+strconv.FormatInt(id, 10), "danger", shared.UserSafeMessage(err))
	}
}

func (h *Handler) renderFormError(w http.ResponseWriter, r *http.Request, id int64, form userForm, err error) {
	data := formPageData{ID: id, Form: form, Roles: access.AllRoles(), Errors: formErrors{}}
	title := "Nuevo usuario"
	if id > 0 {
		title = "Editar usuario"
	}
	var verr *shared.ValidationError
	status := http.StatusUnprocessableEntity
	switch {
	case errors.As(err, &verr):
		for k, v := range verr.Fields {
			data.Errors[k] = v
		}
	case errors.Is(err, shared.ErrDuplicate):
		data.Errors["email"] = "Ya existe un usuario con ese correo."
		status = http.StatusConflict
	default:
		h.logger.Error("save user", slog.Any("error", err))
		data.Errors["general"] = shared.UserSafeMessage(err)
		status = http.StatusInternalServerError
	}
	h.render(w, r, "pages/users/form.html", title, data, status)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (User, bool) {
	id, ok := parseID(w, r)
	if !ok {
		return User{}, false
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return User{}, false
		}
		h.logger.Error("get user", slog.Int64("id", id), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return User{}, false
	}
	return user, true
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
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
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
