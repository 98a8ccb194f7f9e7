package models

import (
	"time"
)

type User struct {
	ID                 string    `gorm:"primaryKey;size:36"        json:"id"`
	Email              string    `gorm:"uniqueIndex;not null"      json:"email"`
	PasswordHash       string    `gorm:"not null;default:''"       json:"-"`
	LegacyPasswordHash string    `gorm:"not null;default:''"       json:"-"`
	Role               Role      `gorm:"not null;default:'User'"   json:"role"`
	RegistrationIP     string    `gorm:"size:64"                   json:"registration_ip,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RefreshToken is the server-side record of an issued refresh token. Only the
// sha256 of the token string is kept.
type RefreshToken struct {
	ID         uint      `gorm:"primaryKey"            json:"id"`
	JTI        string    `gorm:"uniqueIndex;not null"  json:"jti"`
	TokenHash  string    `gorm:"uniqueIndex;not null"  json:"-"`
	UserID     string    `gorm:"index;not null"        json:"user_id"`
	ExpiresAt  time.Time `gorm:"not null"              json:"expires_at"`
	Revoked    bool      `gorm:"default:false"         json:"revoked"`
	ReplacedBy string    `gorm:"default:''"            json:"replaced_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
