package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/parishdesk/parishdesk/internal/platform/httpx"
	"github.com/parishdesk/parishdesk/internal/rbac"
	"github.com/parishdesk/parishdesk/internal/shared"
)

// CapabilityResolver resolves the capability map of a user.
type CapabilityResolver interface {
	Capabilities(ctx context.Context, userID int64) (rbac.Capabilities, error)
}

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	caps      CapabilityResolver
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, caps CapabilityResolver, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, caps: caps, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(rbac.CapViewUsers))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(rbac.CapAssignRoles))
		r.Post("/{userID}/roles", h.assignRole)
		r.Delete("/{userID}/roles/{role}", h.revokeRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(rbac.CapEditUser))
		r.Post("/{userID}/deactivate", h.deactivate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(rbac.CapDeleteUser))
		r.Delete("/{userID}", h.deleteUser)
	})
}

// MountMeRoutes registers the routes describing the signed-in user.
func (h *Handler) MountMeRoutes(r chi.Router) {
	r.Use(h.rbac.RequireUser)
	r.Get("/capabilities", h.myCapabilities)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.CurrentUserID(r.Context())
	users, err := h.service.ListUsers(r.Context(), actorID)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		rbac.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	actorID, targetID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}
	var req RoleChange
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.AssignRole(r.Context(), actorID, targetID, req.Role); err != nil {
		h.logMutation(r.Context(), "assign role", actorID, targetID, err)
		rbac.RespondRoleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	actorID, targetID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}
	if err := h.service.RevokeRole(r.Context(), actorID, targetID, chi.URLParam(r, "role")); err != nil {
		h.logMutation(r.Context(), "revoke role", actorID, targetID, err)
		rbac.RespondRoleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	actorID, targetID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), actorID, targetID); err != nil {
		h.logMutation(r.Context(), "deactivate user", actorID, targetID, err)
		rbac.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	actorID, targetID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}
	outcome, err := h.service.Delete(r.Context(), actorID, targetID)
	if err != nil {
		h.logMutation(r.Context(), "delete user", actorID, targetID, err)
		rbac.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

func (h *Handler) myCapabilities(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.CurrentUserID(r.Context())
	caps, err := h.caps.Capabilities(r.Context(), userID)
	if err != nil {
		h.logger.Error("resolve capabilities", slog.Int64("user_id", userID), slog.Any("error", err))
		rbac.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, caps)
}

func (h *Handler) actorAndTarget(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	actorID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Sign in to continue")
		return 0, 0, false
	}
	targetID, err := httpx.IDParam(r, "userID")
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "User not found")
		return 0, 0, false
	}
	return actorID, targetID, true
}

// logMutation logs failures worth an operator's attention. Authorization
// denials are expected traffic and stay at debug.
func (h *Handler) logMutation(ctx context.Context, op string, actorID, targetID int64, err error) {
	level := slog.LevelDebug
	if errors.Is(err, rbac.ErrStorage) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "user mutation failed",
		slog.String("op", op),
		slog.Int64("actor_id", actorID),
		slog.Int64("target_id", targetID),
		slog.Any("error", err),
	)
}
