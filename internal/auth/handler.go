// AngelaMos | 2026
// handler.go

package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/clock"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/middleware"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/principal"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
	clock     clock.Clock
}

func NewHandler(service *Service, clk clock.Clock) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		clock:     clk,
	}
}

// RegisterRoutes mounts /auth. throttle guards the endpoints that accept
// credentials.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
	throttle func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(throttle)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)
		})
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Post("/logout-all", h.LogoutAll)
			r.Get("/sessions", h.GetSessions)
			r.Delete("/sessions/{sessionID}", h.RevokeSession)
		})
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.service.Login(r.Context(), Credentials{
		Username: req.Username,
		Password: req.Password,
	}, clientMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, toTokenResponse(pair, h.clock.Now()))
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken, clientMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, toTokenResponse(pair, h.clock.Now()))
}

// Logout takes the refresh token itself as proof; no access token is
// required so an expired client can still end its session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		core.Unauthorized(w, "")
		return
	}

	n, err := h.service.LogoutAll(r.Context(), p.Subject)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, RevokedResponse{Revoked: n})
}

func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		core.Unauthorized(w, "")
		return
	}

	sessions, err := h.service.ActiveSessions(r.Context(), p.Subject)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionResponse(s))
	}

	core.OK(w, SessionsResponse{Sessions: out})
}

func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		core.Unauthorized(w, "")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		core.BadRequest(w, "session ID required")
		return
	}

	if err := h.service.RevokeSession(r.Context(), p.Subject, sessionID); err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
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

// writeError collapses every credential rejection into one response.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case core.IsCredentialError(err):
		core.JSONError(w, core.CredentialsError(err))
	case errors.Is(err, core.ErrStoreUnavailable):
		core.JSONError(w, core.StoreUnavailableError(err))
	case errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "cannot revoke another user's session")
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "session")
	default:
		core.InternalServerError(w, err)
	}
}

func clientMeta(r *http.Request) ClientMeta {
	return ClientMeta{
		UserAgent: r.UserAgent(),
		IPAddress: middleware.ClientIP(r),
	}
}
