// AngelaMos | 2026
// handler.go

package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/principal"
)

// SessionRevoker ends every refresh session of a user.
type SessionRevoker interface {
	LogoutAll(ctx context.Context, userID string) (int64, error)
}

type Handler struct {
	service   *Service
	sessions  SessionRevoker
	validator *validator.Validate
}

func NewHandler(service *Service, sessions SessionRevoker) *Handler {
	return &Handler{
		service:   service,
		sessions:  sessions,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/users", func(r chi.Router) {
		r.Use(authenticator)
		r.Get("/me", h.GetMe)
	})
}

// RegisterAdminRoutes registers admin-only user management endpoints.
func (h *Handler) RegisterAdminRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin/users", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Post("/", h.CreateUser)
		r.Put("/{userID}/roles", h.UpdateRoles)
		r.Delete("/{userID}", h.DeleteUser)
		r.Post("/{userID}/revoke", h.RevokeSessions)
	})
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		core.Unauthorized(w, "")
		return
	}

	user, err := h.service.Get(r.Context(), p.Subject)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToUserResponse(user))
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	core.Created(w, ToUserResponse(user))
}

func (h *Handler) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	var req UpdateRolesRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.service.UpdateRoles(r.Context(), chi.URLParam(r, "userID"), req.Roles)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToUserResponse(user))
}

// DeleteUser soft deletes the account and ends its sessions. An admin
// cannot delete themselves.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "userID")

	if p, ok := principal.FromContext(r.Context()); ok && p.Subject == targetID {
		core.Forbidden(w, "cannot delete your own account")
		return
	}

	if err := h.service.Delete(r.Context(), targetID); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.sessions.LogoutAll(r.Context(), targetID); err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
}

// RevokeSessions ends every session of the user without touching the
// account. Access tokens already issued stay valid until they expire.
func (h *Handler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	n, err := h.sessions.LogoutAll(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, RevokedResponse{Revoked: n})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}

	return true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "user")
	case errors.Is(err, core.ErrDuplicateKey):
		core.JSONError(w, core.ConflictError("user"))
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, err.Error())
	case errors.Is(err, core.ErrStoreUnavailable):
		core.JSONError(w, core.StoreUnavailableError(err))
	default:
		core.InternalServerError(w, err)
	}
}
