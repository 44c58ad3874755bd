package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/parishdesk/parishdesk/internal/shared"
)

// AuditBootstrap marks the promotion of the bootstrap account.
const AuditBootstrap = "rbac.bootstrap"

// BootstrapAccount is the configured first administrator.
type BootstrapAccount struct {
	Email    string
	Name     string
	Password string
}

// BootstrapOutcome reports what Bootstrap did.
type BootstrapOutcome string

const (
	// BootstrapNoop means an active bypass holder already existed.
	BootstrapNoop BootstrapOutcome = "noop"
	// BootstrapPromoted means an existing account received the bypass role.
	BootstrapPromoted BootstrapOutcome = "promoted"
	// BootstrapCreated means the account was created with the bypass role.
	BootstrapCreated BootstrapOutcome = "created"
)

// BootstrapResult is the outcome of Bootstrap.
type BootstrapResult struct {
	Outcome BootstrapOutcome
	UserID  int64
}

// Bootstrap guarantees an active bypass holder. When none exists, the
// configured account is created or reactivated and granted the bypass role.
// Calling it repeatedly is a no-op once a holder exists.
func (s *Service) Bootstrap(ctx context.Context, account BootstrapAccount) (res BootstrapResult, err error) {
	defer func() { s.metrics.mutation("bootstrap", err) }()
	email := strings.ToLower(strings.TrimSpace(account.Email))
	if email == "" {
		return BootstrapResult{}, ErrBootstrapAccount
	}

	err = s.withTx(ctx, func(ctx context.Context, tx TxStore) error {
		bypass, ok, err := tx.LockBypassRole(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: bypass role not seeded", ErrInvalidRole)
		}
		holders, err := tx.CountActiveBypassHolders(ctx)
		if err != nil {
			return err
		}
		if holders > 0 {
			res = BootstrapResult{Outcome: BootstrapNoop}
			return nil
		}

		user, err := tx.FindUserByEmail(ctx, email)
		switch {
		case errors.Is(err, ErrUserNotFound):
			if account.Password == "" {
				return ErrBootstrapAccount
			}
			hash, herr := bcrypt.GenerateFromPassword([]byte(account.Password), bcrypt.DefaultCost)
			if herr != nil {
				return fmt.Errorf("rbac: hash bootstrap password: %w", herr)
			}
			name := strings.TrimSpace(account.Name)
			if name == "" {
				name = DisplayName(bypass.Name)
			}
			user, err = tx.CreateUser(ctx, NewUser{Email: email, Name: name, PasswordHash: string(hash)})
			if err != nil {
				return err
			}
			res.Outcome = BootstrapCreated
		case err != nil:
			return err
		default:
			res.Outcome = BootstrapPromoted
			if !user.IsActive {
				if err := tx.SetUserActive(ctx, user.ID, true); err != nil {
					return err
				}
			}
		}
		res.UserID = user.ID
		if !user.HasRole(bypass.Name) {
			if err := tx.AddUserRole(ctx, user.ID, bypass.ID); err != nil {
				return err
			}
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Action:   AuditBootstrap,
			Entity:   "user",
			EntityID: strconv.FormatInt(user.ID, 10),
			Meta:     map[string]any{"outcome": string(res.Outcome), "email": email},
		})
	})
	if err != nil {
		return BootstrapResult{}, err
	}
	if res.Outcome == BootstrapNoop {
		s.logger.Debug("rbac bootstrap skipped, bypass holder present")
		return res, nil
	}
	s.logger.Warn("rbac bootstrap granted bypass role",
		slog.String("outcome", string(res.Outcome)), slog.Int64("user_id", res.UserID), slog.String("email", email))
	return res, s.resolver.Invalidate(ctx, res.UserID)
}
