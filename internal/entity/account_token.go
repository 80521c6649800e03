package entity

import (
	"time"

	"github.com/google/uuid"
)

type TokenPurpose string

const (
	PurposeEmailVerify   TokenPurpose = "email_verify"
	PurposePasswordReset TokenPurpose = "password_reset"
)

// AccountToken is a single-use, time-limited credential tied to one account
// and one purpose. Only the SHA-256 of the secret is stored; the raw secret
// exists solely in the issuance response and the delivery email.
type AccountToken struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubjectID uuid.UUID `gorm:"type:uuid;not null;index:idx_account_tokens_subject_purpose"`
	Subject   User      `gorm:"foreignKey:SubjectID;constraint:OnDelete:CASCADE"`

	SecretHash string       `gorm:"type:text;not null;index"`
	Purpose    TokenPurpose `gorm:"type:varchar(32);not null;index:idx_account_tokens_subject_purpose"`

	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time

	CreatedAt time.Time
}

// Live reports whether the token can still be consumed at the given instant.
func (t *AccountToken) Live(now time.Time) bool {
	return t.ConsumedAt == nil && now.Before(t.ExpiresAt)
}
