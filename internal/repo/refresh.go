package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/compliance_api/internal/models"
)

func (r *GormRepo) CreateRefresh(ctx context.Context, t *models.RefreshToken) error {
	return translate(r.DB.WithContext(ctx).Create(t).Error)
}

func (r *GormRepo) FindRefreshByJTI(ctx context.Context, jti string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("jti = ?", jti).First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// RotateRefresh revokes the row identified by oldJTI/oldHash and inserts next
// in the same transaction. The revoke is a compare-and-set on revoked_at, so
// of two concurrent rotations of one token exactly one succeeds.
//
// A row that was already rotated yields ErrRefreshReused together with the
// row, so the caller can revoke the owner's remaining sessions.
func (r *GormRepo) RotateRefresh(ctx context.Context, oldJTI, oldHash string, now time.Time, next *models.RefreshToken) (*models.RefreshToken, error) {
	var old models.RefreshToken
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("jti = ? AND token_hash = ?", oldJTI, oldHash).First(&old).Error; err != nil {
			return err
		}
		if old.RevokedAt != nil {
			if old.ReplacedBy != nil {
				return ErrRefreshReused
			}
			return ErrRefreshRevoked
		}
		if !now.Before(old.ExpiresAt) {
			return ErrRefreshExpired
		}

		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", old.ID).
			Updates(map[string]any{"revoked_at": now, "replaced_by": next.JTI})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// lost a concurrent rotation of the same token
			return ErrRefreshRevoked
		}

		return tx.Create(next).Error
	})
	if err != nil {
		if old.ID == 0 {
			return nil, translate(err)
		}
		return &old, translate(err)
	}
	return &old, nil
}

// RevokeRefresh revokes one active row. It reports whether a row changed;
// unknown or already revoked tokens are not an error.
func (r *GormRepo) RevokeRefresh(ctx context.Context, jti, hash string, now time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("jti = ? AND token_hash = ? AND revoked_at IS NULL", jti, hash).
		Update("revoked_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now)
	return res.RowsAffected, res.Error
}

func (r *GormRepo) ListActiveSessions(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
	var rows []models.RefreshToken
	if err := r.DB.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteExpiredRefresh removes rows whose expiry is older than before.
func (r *GormRepo) DeleteExpiredRefresh(ctx context.Context, before time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Where("expires_at < ?", before).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}
