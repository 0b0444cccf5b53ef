package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PlanBasic        = "basic"
	PlanProfessional = "professional"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"         json:"id"`
	Email        string    `gorm:"uniqueIndex;not null"         json:"email"`
	PasswordHash *string   `gorm:"column:password_hash"         json:"-"`
	GoogleSub    *string   `gorm:"uniqueIndex"                  json:"-"`
	FullName     string    `gorm:"not null;default:''"          json:"full_name"`
	Plan         string    `gorm:"not null;default:'basic'"     json:"plan"`
	IsActive     bool      `gorm:"not null"                     json:"is_active"`
	IsVerified   bool      `gorm:"not null"                     json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// HasPassword is false for accounts created through Google sign-in.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

type RefreshToken struct {
	ID         uint       `gorm:"primaryKey"                  json:"-"`
	JTI        string     `gorm:"uniqueIndex;not null"        json:"id"`
	TokenHash  string     `gorm:"uniqueIndex;not null"        json:"-"`
	UserID     uuid.UUID  `gorm:"type:uuid;index;not null"    json:"user_id"`
	ExpiresAt  time.Time  `gorm:"index;not null"              json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy *string    `json:"-"`
	UserAgent  string     `gorm:"not null;default:''"         json:"user_agent"`
	IP         string     `gorm:"not null;default:''"         json:"ip"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (r *RefreshToken) Active(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}
