package service

import (
	"context"
	"fmt"
	"time"

	"codescribe-auth/internal/entity"
	"codescribe-auth/internal/repository"
	"codescribe-auth/internal/utils"

	"github.com/google/uuid"
)

const secretBytes = 32

// Mutation is the subject-state change a token authorizes, applied in the
// same transaction that marks the token consumed.
type Mutation func(ctx context.Context, r repository.Repositories, subjectID uuid.UUID) error

// TokenService issues, validates, and consumes single-use account tokens.
// Time-to-live is fixed per purpose: 24h for email verification, 1h for
// password reset.
type TokenService struct {
	tokens repository.AccountTokenRepository
	uow    repository.UnitOfWork
	clock  Clock
	config TokenConfig
}

type TokenConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

func NewTokenService(
	tokens repository.AccountTokenRepository,
	uow repository.UnitOfWork,
	clock Clock,
	config TokenConfig,
) *TokenService {
	return &TokenService{
		tokens: tokens,
		uow:    uow,
		clock:  clock,
		config: config,
	}
}

// Issue creates a fresh secret for the subject and purpose, replacing any
// live token of the same purpose. The raw secret is returned exactly once;
// only its hash is persisted.
func (s *TokenService) Issue(ctx context.Context, subjectID uuid.UUID, purpose entity.TokenPurpose) (string, error) {
	secret, err := utils.GenerateSecret(secretBytes)
	if err != nil {
		return "", err
	}

	now := s.now()
	token := &entity.AccountToken{
		SubjectID:  subjectID,
		SecretHash: utils.HashSecret(secret),
		Purpose:    purpose,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.ttl(purpose)),
	}
	if err := s.tokens.Replace(ctx, token); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return secret, nil
}

// Validate resolves a presented secret to its subject. It is a pure read
// and answers ErrInvalidToken uniformly for unknown, expired, and consumed
// secrets.
func (s *TokenService) Validate(ctx context.Context, secret string, purpose entity.TokenPurpose) (uuid.UUID, error) {
	token, err := s.tokens.FindValid(ctx, utils.HashSecret(secret), purpose)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if token == nil || !token.Live(s.now()) {
		return uuid.Nil, ErrInvalidToken
	}
	return token.SubjectID, nil
}

// Consume applies the mutation and marks the token used inside one
// transaction. The consumed_at update is conditional on the token still
// being unconsumed, so under concurrent consumption exactly one caller
// wins and the rest see ErrInvalidToken. A failed mutation rolls the
// transaction back and leaves the token live.
func (s *TokenService) Consume(ctx context.Context, secret string, purpose entity.TokenPurpose, mutation Mutation) error {
	hash := utils.HashSecret(secret)
	now := s.now()

	return s.uow.Do(ctx, func(r repository.Repositories) error {
		token, err := r.Tokens.FindValid(ctx, hash, purpose)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if token == nil || !token.Live(now) {
			return ErrInvalidToken
		}

		if err := mutation(ctx, r, token.SubjectID); err != nil {
			return fmt.Errorf("%w: %v", ErrMutationFailed, err)
		}

		consumed, err := r.Tokens.Consume(ctx, token.ID, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if !consumed {
			return ErrInvalidToken
		}
		return nil
	})
}

// CleanupExpired removes tokens that can never validate again. Expiry alone
// already makes them permanently invalid; this is housekeeping only.
func (s *TokenService) CleanupExpired(ctx context.Context) error {
	return s.tokens.DeleteExpiredBefore(ctx, s.now())
}

func (s *TokenService) ttl(purpose entity.TokenPurpose) time.Duration {
	switch purpose {
	case entity.PurposePasswordReset:
		if s.config.ResetTTL > 0 {
			return s.config.ResetTTL
		}
		return time.Hour
	default:
		if s.config.VerificationTTL > 0 {
			return s.config.VerificationTTL
		}
		return 24 * time.Hour
	}
}

func (s *TokenService) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}
