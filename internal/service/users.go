package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/compliance_api/internal/events"
	"github.com/Skotchmaster/compliance_api/internal/models"
	"github.com/Skotchmaster/compliance_api/internal/repo"
	"github.com/Skotchmaster/compliance_api/pkg/hash"
	"github.com/Skotchmaster/compliance_api/pkg/logging"
)

type UpdateProfileInput struct {
	FullName *string `json:"full_name" validate:"omitempty,max=255"`
	Email    *string `json:"email"     validate:"omitempty,email,max=254"`
	Plan     *string `json:"plan"      validate:"omitempty,oneof=basic professional"`
}

type changePasswordInput struct {
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.Repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserGone
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields. Changing the email drops the
// verified flag.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, in UpdateProfileInput, meta ClientMeta) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "users.update", "user_id", userID)

	if in.Email != nil {
		e := repo.NormalizeEmail(*in.Email)
		in.Email = &e
	}
	if err := checkStruct(in); err != nil {
		return nil, err
	}

	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if in.FullName != nil {
		fields["full_name"] = strings.TrimSpace(*in.FullName)
	}
	if in.Plan != nil && *in.Plan != "" {
		fields["plan"] = *in.Plan
	}
	if in.Email != nil && *in.Email != "" && *in.Email != user.Email {
		taken, err := s.Repo.EmailTaken(ctx, *in.Email)
		if err != nil {
			return nil, err
		}
		if taken {
			l.Warn("profile_update_failed", "status", 409, "reason", "email already registered")
			return nil, ErrEmailTaken
		}
		fields["email"] = *in.Email
		fields["is_verified"] = false
	}
	if len(fields) == 0 {
		return user, nil
	}

	updated, err := s.Repo.UpdateUser(ctx, userID, fields)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		l.Error("profile_update_failed", "status", 500, "error", err)
		return nil, err
	}

	l.Info("profile_updated")
	s.publish(ctx, events.ProfileUpdated, updated, meta)
	return updated, nil
}

// ChangePassword replaces the password and signs the user out everywhere.
// Accounts created through Google may set a first password without
// presenting a current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string, meta ClientMeta) error {
	l := logging.FromContext(ctx).With("svc", "users.password", "user_id", userID)

	if err := checkStruct(changePasswordInput{NewPassword: next}); err != nil {
		return err
	}
	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if user.HasPassword() && !s.Hasher.CheckPassword(*user.PasswordHash, current) {
		l.Warn("password_change_failed", "status", 400, "reason", "wrong current password")
		return invalid("current_password", "is incorrect")
	}

	pwHash, err := s.Hasher.HashPassword(next)
	if err != nil {
		if errors.Is(err, hash.ErrPasswordTooLong) {
			return invalid("new_password", "must be at most 72 bytes")
		}
		return err
	}
	n, err := s.Repo.SetPasswordAndRevokeSessions(ctx, userID, pwHash, s.now())
	if err != nil {
		l.Error("password_change_failed", "status", 500, "error", err)
		return err
	}

	l.Info("password_changed", "revoked", n)
	s.publish(ctx, events.PasswordChanged, user, meta)
	return nil
}
