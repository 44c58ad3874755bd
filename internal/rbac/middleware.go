package rbac

import (
	"log/slog"
	"net/http"

	"github.com/parishdesk/parishdesk/internal/platform/httpx"
	"github.com/parishdesk/parishdesk/internal/shared"
)

// Middleware gates HTTP handlers on the capabilities of the session user.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// RequireCapability lets the request through when the session user holds at
// least one of caps.
func (m Middleware) RequireCapability(caps ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(caps) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := shared.CurrentUserID(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Sign in to continue")
				return
			}
			granted, err := m.Resolver.ResolveCapabilities(r.Context(), userID)
			if err != nil {
				m.logger().Error("rbac require capability", slog.Int64("user_id", userID), slog.Any("error", err))
				RespondError(w, err)
				return
			}
			if !granted.AllowsAny(caps...) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "You do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects requests without an authenticated session.
func (m Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.CurrentUserID(r.Context()); !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Sign in to continue")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
