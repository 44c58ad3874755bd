package rbac

import (
	"errors"
	"net/http"

	"github.com/parishdesk/parishdesk/internal/platform/httpx"
)

// RespondError writes the problem response for an error returned by this
// package. Messages never reveal catalog or clearance details.
func RespondError(w http.ResponseWriter, err error) {
	respond(w, err, "You do not have permission to perform this action")
}

// RespondRoleError is RespondError for role assignment and revocation.
func RespondRoleError(w http.ResponseWriter, err error) {
	respond(w, err, "You do not have permission to assign this role")
}

func respond(w http.ResponseWriter, err error, denied string) {
	switch {
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrRoleNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Role", "The requested role does not exist")
	case errors.Is(err, ErrInvalidPermission):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Permission", "The requested permission does not exist")
	case errors.Is(err, ErrPermissionDenied):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", denied)
	case errors.Is(err, ErrSelfTargetProhibited):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "This action cannot be performed on your own account")
	case errors.Is(err, ErrLastAdminProtection):
		httpx.Problem(w, http.StatusConflict, "Conflict", "At least one super administrator must remain")
	case errors.Is(err, ErrRoleInUse):
		httpx.Problem(w, http.StatusConflict, "Conflict", "The role is still assigned to users")
	case errors.Is(err, ErrDuplicateRole):
		httpx.Problem(w, http.StatusConflict, "Conflict", "A role with this name already exists")
	case errors.Is(err, ErrUserNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "User not found")
	case errors.Is(err, ErrStorage):
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "Please retry shortly")
	default:
		httpx.RespondError(w, err)
	}
}
