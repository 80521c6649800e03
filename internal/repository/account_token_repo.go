package repository

import (
	"context"
	"errors"
	"time"

	"codescribe-auth/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AccountTokenRepository interface {
	// Replace invalidates any live token for the same (subject, purpose) and
	// inserts the new one in a single transaction, so at most one live token
	// per subject and purpose ever exists.
	Replace(ctx context.Context, token *entity.AccountToken) error
	FindValid(ctx context.Context, secretHash string, purpose entity.TokenPurpose) (*entity.AccountToken, error)
	// Consume conditionally marks the token used and clears its stored hash.
	// Returns false when another caller got there first or the token is gone.
	Consume(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) error
}

type accountTokenRepository struct {
	db *gorm.DB
}

func NewAccountTokenRepository(db *gorm.DB) AccountTokenRepository {
	return &accountTokenRepository{db: db}
}

func (r *accountTokenRepository) Replace(ctx context.Context, token *entity.AccountToken) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&entity.AccountToken{}).
			Where("subject_id = ? AND purpose = ? AND consumed_at IS NULL", token.SubjectID, token.Purpose).
			Updates(map[string]any{
				"consumed_at": token.IssuedAt,
				"secret_hash": "",
			}).Error
		if err != nil {
			return err
		}
		return tx.Create(token).Error
	})
}

func (r *accountTokenRepository) FindValid(
	ctx context.Context,
	secretHash string,
	purpose entity.TokenPurpose,
) (*entity.AccountToken, error) {

	var token entity.AccountToken
	err := r.db.WithContext(ctx).
		Where(`
			secret_hash = ? AND
			purpose = ? AND
			consumed_at IS NULL AND
			expires_at > NOW()
		`, secretHash, purpose).
		First(&token).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &token, err
}

func (r *accountTokenRepository) Consume(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entity.AccountToken{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Updates(map[string]any{
			"consumed_at": &now,
			"secret_hash": "",
		})
	return result.RowsAffected == 1, result.Error
}

func (r *accountTokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) error {
	return r.db.WithContext(ctx).
		Where("expires_at < ? OR consumed_at IS NOT NULL", cutoff).
		Delete(&entity.AccountToken{}).
		Error
}
