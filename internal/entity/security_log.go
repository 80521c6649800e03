package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SecurityAction string

const (
	LoginSuccess     SecurityAction = "login_success"
	LoginFailed      SecurityAction = "login_failed"
	Logout           SecurityAction = "logout"
	EmailVerified    SecurityAction = "email_verified"
	ResetRequested   SecurityAction = "reset_requested"
	ResetCompleted   SecurityAction = "reset_completed"
	ResetRateLimited SecurityAction = "reset_rate_limited"
	MFAFailed        SecurityAction = "mfa_failed"
	SessionRevoked   SecurityAction = "session_revoked"
)

type SecurityLog struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`

	UserID *uuid.UUID `gorm:"type:uuid;index"`
	User   *User      `gorm:"constraint:OnDelete:SET NULL"`

	IPAddress *string        `gorm:"type:varchar(45)"`
	Action    SecurityAction `gorm:"type:varchar(32);not null"`

	Metadata datatypes.JSON

	CreatedAt time.Time
}
