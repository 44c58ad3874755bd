package roles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/parishdesk/parishdesk/internal/platform/httpx"
	"github.com/parishdesk/parishdesk/internal/rbac"
	"github.com/parishdesk/parishdesk/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(rbac.CapAssignRoles, rbac.CapManageRoles))
		r.Get("/", h.listRoles)
		r.Get("/assignable", h.listAssignable)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(rbac.CapManageRoles))
		r.Post("/", h.createRole)
		r.Put("/{name}/permissions", h.setPermissions)
		r.Delete("/{name}", h.deleteRole)
	})
}

// MountPermissionRoutes registers the permission catalog routes.
func (h *Handler) MountPermissionRoutes(r chi.Router) {
	r.Use(h.rbac.RequireCapability(rbac.CapManageRoles))
	r.Get("/", h.listPermissions)
	r.Delete("/{name}", h.removePermission)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.ListRoles())
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.ListPermissions())
}

func (h *Handler) listAssignable(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.CurrentUserID(r.Context())
	roles, err := h.service.ListAssignable(r.Context(), actorID)
	if err != nil {
		h.logger.Error("list assignable roles", slog.Int64("actor_id", actorID), slog.Any("error", err))
		rbac.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.CurrentUserID(r.Context())
	var in rbac.RoleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.CreateRole(r.Context(), actorID, in)
	if err != nil {
		h.logFailure(r, "create role", actorID, err)
		rbac.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.CurrentUserID(r.Context())
	var in PermissionSet
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SetPermissions(r.Context(), actorID, chi.URLParam(r, "name"), in.Permissions); err != nil {
		h.logFailure(r, "set role permissions", actorID, err)
		rbac.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.CurrentUserID(r.Context())
	if err := h.service.DeleteRole(r.Context(), actorID, chi.URLParam(r, "name")); err != nil {
		h.logFailure(r, "delete role", actorID, err)
		rbac.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removePermission(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.CurrentUserID(r.Context())
	if err := h.service.RemovePermission(r.Context(), actorID, chi.URLParam(r, "name")); err != nil {
		h.logFailure(r, "remove permission", actorID, err)
		rbac.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logFailure(r *http.Request, op string, actorID int64, err error) {
	level := slog.LevelDebug
	if errors.Is(err, rbac.ErrStorage) {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "role mutation failed",
		slog.String("op", op),
		slog.Int64("actor_id", actorID),
		slog.Any("error", err),
	)
}
