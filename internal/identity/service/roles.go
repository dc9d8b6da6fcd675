package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
	"github.com/quorumsec/gatehouse/internal/identity/store"
	"github.com/quorumsec/gatehouse/pkg/cryptox"
	"github.com/quorumsec/gatehouse/pkg/idx"
	"github.com/quorumsec/gatehouse/pkg/slogx"
)

var ErrRoleNotFound = errors.New("role_not_found")

// RoleService manages the role catalogue and user memberships. Changing a
// user's roles rotates their security stamp and evicts their session in the
// same transaction, so stale authority cannot outlive the change.
type RoleService struct {
	Store store.Store
}

// EnsureDefaultRoles creates the built-in roles if they are missing. Called
// once at startup; safe to repeat.
func (s *RoleService) EnsureDefaultRoles(ctx context.Context) error {
	for _, name := range []string{domain.RoleAdmin, domain.RoleUser} {
		_, err := s.Store.Roles().GetRoleByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		role := domain.Role{ID: idx.New().String(), Name: name}
		if err := s.Store.Roles().CreateRole(ctx, role); err != nil &&
			!errors.Is(err, store.ErrAlreadyExists) {
			return fmt.Errorf("create role %q: %w", name, err)
		}
	}
	return nil
}

// ListRoles returns the full role catalogue.
func (s *RoleService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.Store.Roles().ListAll(ctx)
}

// ListUserRoles returns the roles held by a user.
func (s *RoleService) ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	return s.Store.Roles().ListUserRoles(ctx, userID)
}

// Assign grants a role to a user. Granting an already-held role is a no-op
// that still rotates the stamp, which is harmless.
func (s *RoleService) Assign(ctx context.Context, actorID, userID, roleName string) error {
	return s.changeMembership(ctx, actorID, userID, roleName, "assign")
}

// Remove revokes a role from a user.
func (s *RoleService) Remove(ctx context.Context, actorID, userID, roleName string) error {
	return s.changeMembership(ctx, actorID, userID, roleName, "remove")
}

func (s *RoleService) changeMembership(ctx context.Context, actorID, userID, roleName, op string) error {
	role, err := s.Store.Roles().GetRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRoleNotFound
		}
		return err
	}

	stamp, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return fmt.Errorf("generate security stamp: %w", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		switch op {
		case "assign":
			if err := tx.Roles().AssignRole(ctx, userID, role.ID); err != nil {
				return err
			}
		case "remove":
			if err := tx.Roles().RemoveRole(ctx, userID, role.ID); err != nil {
				return err
			}
		}

		// Authority changed: rotate the stamp and drop the live session so a
		// ticket minted under the old role set cannot keep its claims.
		if err := tx.Users().UpdateSecurityStamp(ctx, userID, stamp); err != nil {
			return err
		}
		_, err := tx.Tickets().DeleteTicketsForUser(ctx, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s role: %w", op, err)
	}

	slogx.FromContext(ctx).Info("role membership changed",
		"actor_id", actorID, "user_id", userID, "role", roleName, "op", op)
	return nil
}
