package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/compliance_api/internal/models"
)

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = NormalizeEmail(u.Email)
	return translate(r.DB.WithContext(ctx).Create(u).Error)
}

func (r *GormRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", NormalizeEmail(email)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *GormRepo) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *GormRepo) UserByGoogleSub(ctx context.Context, sub string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("google_sub = ?", sub).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// UpdateUser writes the given columns and returns the fresh row.
func (r *GormRepo) UpdateUser(ctx context.Context, id uuid.UUID, fields map[string]any) (*models.User, error) {
	if email, ok := fields["email"].(string); ok {
		fields["email"] = NormalizeEmail(email)
	}
	fields["updated_at"] = time.Now().UTC()

	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.UserByID(ctx, id)
}

// SetPasswordAndRevokeSessions stores a new password hash and revokes every
// active refresh token of the user in one transaction.
func (r *GormRepo) SetPasswordAndRevokeSessions(ctx context.Context, id uuid.UUID, pwHash string, now time.Time) (int64, error) {
	var revoked int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &GormRepo{DB: tx}
		if _, err := txRepo.UpdateUser(ctx, id, map[string]any{"password_hash": pwHash}); err != nil {
			return err
		}
		n, err := txRepo.RevokeAllForUser(ctx, id, now)
		if err != nil {
			return err
		}
		revoked = n
		return nil
	})
	if err != nil {
		return 0, translate(err)
	}
	return revoked, nil
}

type GoogleProfile struct {
	Subject  string
	Email    string
	FullName string
}

// LinkOrCreateGoogleUser resolves a Google identity to a local user: first by
// subject, then by email (linking the subject and marking the account
// verified), else by creating an OAuth-only account.
func (r *GormRepo) LinkOrCreateGoogleUser(ctx context.Context, p GoogleProfile) (user *models.User, created bool, err error) {
	email := NormalizeEmail(p.Email)
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		err := tx.Where("google_sub = ?", p.Subject).First(&u).Error
		if err == nil {
			user = &u
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		err = tx.Where("email = ?", email).First(&u).Error
		switch {
		case err == nil:
			updates := map[string]any{
				"google_sub":  p.Subject,
				"is_verified": true,
				"updated_at":  time.Now().UTC(),
			}
			if u.FullName == "" && p.FullName != "" {
				updates["full_name"] = p.FullName
			}
			if err := tx.Model(&models.User{}).Where("id = ?", u.ID).Updates(updates).Error; err != nil {
				return err
			}
			if err := tx.Where("id = ?", u.ID).First(&u).Error; err != nil {
				return err
			}
			user = &u
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		sub := p.Subject
		u = models.User{
			Email:      email,
			GoogleSub:  &sub,
			FullName:   p.FullName,
			Plan:       models.PlanBasic,
			IsActive:   true,
			IsVerified: true,
		}
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		user, created = &u, true
		return nil
	})
	if err != nil {
		return nil, false, translate(err)
	}
	return user, created, nil
}
