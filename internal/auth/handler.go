package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/residuos-hospitalarios/residuos/internal/shared"
	"github.com/residuos-hospitalarios/residuos/internal/view"
)

// DefaultLanding is where a successful login goes without a redirect target.
const DefaultLanding = "/dashboard"

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
	r.Get("/reset-password", h.showResetRequest)
	r.Post("/reset-password", h.handleResetRequest)
	r.Get("/reset-password/{token}", h.showReset)
	r.Post("/reset-password/{token}", h.handleReset)
}

type loginPageData struct {
	Email    string
	Redirect string
	Errors   map[string]string
}

type registerPageData struct {
	Email  string
	Name   string
	Errors map[string]string
}

type resetPageData struct {
	Token   string
	Invalid bool
	Errors  map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	data := loginPageData{Redirect: SafeRedirect(r.URL.Query().Get("redirect")), Errors: map[string]string{}}
	h.render(w, r, "pages/auth/login.html", "Iniciar sesión", data, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := LoginInput{Email: strings.TrimSpace(r.PostFormValue("email")), Password: r.PostFormValue("password")}
	data := loginPageData{Email: in.Email, Redirect: SafeRedirect(r.PostFormValue("redirect")), Errors: map[string]string{}}

	user, err := h.service.Authenticate(r.Context(), in)
	if err != nil {
		var verr *shared.ValidationError
		switch {
		case errors.As(err, &verr):
			data.Errors = verr.Fields
		case errors.Is(err, shared.ErrInvalidCredentials):
			data.Errors["general"] = shared.UserSafeMessage(err)
		default:
			h.logger.Error("authenticate", slog.Any("error", err))
			data.Errors["general"] = shared.UserSafeMessage(err)
			h.render(w, r, "pages/auth/login.html", "Iniciar sesión", data, http.StatusInternalServerError)
			return
		}
		h.render(w, r, "pages/auth/login.html", "Iniciar sesión", data, http.StatusBadRequest)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.sessionManager.Rotate(sess)
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Bienvenido de nuevo, " + user.Name + "."})
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	target := data.Redirect
	if target == "" {
		target = DefaultLanding
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/auth/register.html", "Crear cuenta", registerPageData{Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := RegisterInput{
		Email:           r.PostFormValue("email"),
		Name:            r.PostFormValue("name"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
	}
	_, err := h.service.Register(r.Context(), in)
	if err == nil {
		h.redirectWithFlash(w, r, "/auth/login", "success", "Cuenta creada. Ya puedes iniciar sesión.")
		return
	}
	data := registerPageData{Email: in.Email, Name: in.Name, Errors: map[string]string{}}
	status := http.StatusUnprocessableEntity
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		data.Errors = verr.Fields
	case errors.Is(err, shared.ErrDuplicate):
		data.Errors["email"] = "Ya existe una cuenta con ese correo."
		status = http.StatusConflict
	default:
		h.logger.Error("register", slog.Any("error", err))
		data.Errors["general"] = shared.UserSafeMessage(err)
		status = http.StatusInternalServerError
	}
	h.render(w, r, "pages/auth/register.html", "Crear cuenta", data, status)
}

func (h *Handler) showResetRequest(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/auth/forgot.html", "Restablecer contraseña", nil, http.StatusOK)
}

func (h *Handler) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), r.PostFormValue("email")); err != nil {
		h.logger.Error("request password reset", slog.Any("error", err))
	}
	h.redirectWithFlash(w, r, "/auth/login", "info", "Si el correo está registrado recibirás un enlace para restablecer la contraseña.")
}

func (h *Handler) showReset(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	ok, err := h.service.ResetTokenValid(r.Context(), token)
	if err != nil {
		h.logger.Error("check reset token", slog.Any("error", err))
	}
	data := resetPageData{Token: token, Invalid: !ok, Errors: map[string]string{}}
	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
	}
	h.render(w, r, "pages/auth/reset.html", "Nueva contraseña", data, status)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	token := chi.URLParam(r, "token")
	in := ResetInput{Password: r.PostFormValue("password"), PasswordConfirm: r.PostFormValue("password_confirm")}
	err := h.service.ResetPassword(r.Context(), token, in)
	if err == nil {
		h.redirectWithFlash(w, r, "/auth/login", "success", "Contraseña actualizada. Inicia sesión con la nueva contraseña.")
		return
	}
	data := resetPageData{Token: token, Errors: map[string]string{}}
	status := http.StatusUnprocessableEntity
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		data.Errors = verr.Fields
	case errors.Is(err, ErrResetTokenInvalid):
		data.Invalid = true
		status = http.StatusNotFound
	default:
		h.logger.Error("reset password", slog.Any("error", err))
		data.Errors["general"] = shared.UserSafeMessage(err)
		status = http.StatusInternalServerError
	}
	h.render(w, r, "pages/auth/reset.html", "Nueva contraseña", data, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: title, CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// SafeRedirect returns target when it is a local absolute path, otherwise "".
func SafeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return ""
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	if strings.HasPrefix(u.Path, "/auth/") {
		return ""
	}
	return target
}
