package social

import (
	"context"
	"errors"
	"log/slog"

	"staffhub/internal/models"
	"staffhub/internal/storage"
)

// ListUsers returns the account directory. Admins and the training
// department only.
func (s *Service) ListUsers(ctx context.Context, actor *models.User) ([]*models.User, error) {
	if !actor.CanManageUsers() {
		return nil, NewForbiddenError("only admins and the training department can list users")
	}
	users, err := s.store.ListUsers(ctx, userListLimit)
	if err != nil {
		return nil, NewInternalError("failed to list users", err)
	}
	return users, nil
}

// ListProfiles returns the public profile of every employee.
func (s *Service) ListProfiles(ctx context.Context) ([]*models.ProfileResponse, error) {
	users, err := s.store.ListUsers(ctx, userListLimit)
	if err != nil {
		return nil, NewInternalError("failed to list profiles", err)
	}
	profiles := make([]*models.ProfileResponse, len(users))
	for i, u := range users {
		profiles[i] = models.ProfileFromUser(u)
	}
	return profiles, nil
}

// UpdateMe changes the caller's names, position or password.
func (s *Service) UpdateMe(ctx context.Context, user *models.User, req *models.UpdateMeRequest) (*models.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid account update", err)
	}
	if req.Empty() {
		return nil, NewValidationError("no valid updates provided", nil)
	}

	var patch models.UserPatch
	if req.FirstName != nil {
		firstName, err := s.cleanRequired("first_name", *req.FirstName, s.limits.TitleMaxBytes)
		if err != nil {
			return nil, err
		}
		patch.FirstName = &firstName
	}
	if req.LastName != nil {
		lastName, err := s.cleanRequired("last_name", *req.LastName, s.limits.TitleMaxBytes)
		if err != nil {
			return nil, err
		}
		patch.LastName = &lastName
	}
	patch.Position = req.Position
	if req.Password != nil {
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return nil, NewInternalError("failed to update account", err)
		}
		patch.PasswordHash = &hash
	}

	updated, err := s.updateUser(ctx, user.ID, &patch)
	if err != nil {
		return nil, err
	}
	slog.Info("Account updated", "user_id", user.ID, "password_changed", req.Password != nil)
	return updated, nil
}

// SetAdminStatus grants or revokes admin rights on another account.
func (s *Service) SetAdminStatus(ctx context.Context, actor *models.User, userID string, req *models.AdminStatusRequest) (*models.AdminStatusResponse, error) {
	if !actor.IsAdmin {
		return nil, NewForbiddenError("only admins can grant or revoke admin rights")
	}
	if userID == actor.ID {
		return nil, NewBadRequestError("cannot modify your own admin status")
	}
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid admin status", err)
	}

	var reason string
	if req.Reason != nil {
		cleaned, err := s.clean("reason", *req.Reason, s.limits.TitleMaxBytes)
		if err != nil {
			return nil, err
		}
		reason = cleaned
	}

	updated, err := s.updateUser(ctx, userID, &models.UserPatch{IsAdmin: req.IsAdmin})
	if err != nil {
		return nil, err
	}

	action := "revoked"
	if *req.IsAdmin {
		action = "granted"
	}
	slog.Warn("Admin rights changed",
		"action", action,
		"user_id", userID,
		"actor_id", actor.ID,
		"reason", reason,
	)
	resp := &models.AdminStatusResponse{
		Message:  "Admin rights " + action,
		User:     updated,
		ActionBy: actor.Email,
	}
	if reason != "" {
		resp.Reason = &reason
	}
	return resp, nil
}

// AssignSpecialRole sets or clears another account's special role.
func (s *Service) AssignSpecialRole(ctx context.Context, actor *models.User, userID string, req *models.SpecialRoleRequest) (*models.User, error) {
	if !actor.IsAdmin {
		return nil, NewForbiddenError("only admins can assign special roles")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid special role", err)
	}

	role := req.Role()
	updated, err := s.updateUser(ctx, userID, &models.UserPatch{SpecialRole: &role})
	if err != nil {
		return nil, err
	}
	slog.Warn("Special role assigned", "user_id", userID, "actor_id", actor.ID, "special_role", role)
	return updated, nil
}

// DeleteUser removes another account. Content the user wrote and
// notifications addressed to them stay.
func (s *Service) DeleteUser(ctx context.Context, actor *models.User, userID string) error {
	if !actor.IsAdmin {
		return NewForbiddenError("only admins can delete users")
	}
	if userID == actor.ID {
		return NewBadRequestError("cannot delete your own account")
	}

	if err := s.store.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("user not found")
		}
		return NewInternalError("failed to delete user", err)
	}
	slog.Warn("User deleted", "user_id", userID, "actor_id", actor.ID)
	return nil
}

func (s *Service) updateUser(ctx context.Context, userID string, patch *models.UserPatch) (*models.User, error) {
	updated, err := s.store.UpdateUser(ctx, userID, patch)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewNotFoundError("user not found")
		}
		return nil, NewInternalError("failed to update user", err)
	}
	return updated, nil
}
