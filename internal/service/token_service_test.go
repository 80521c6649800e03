package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codescribe-auth/internal/entity"
	"codescribe-auth/internal/repository"

	"github.com/google/uuid"
)

func newTokenServiceForTest(t *testing.T) (*TokenService, *fakeTokenRepo, *fakeUserRepo, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tokens := newFakeTokenRepo(clock)
	users := newFakeUserRepo()
	uow := newFakeUnitOfWork(users, tokens)
	svc := NewTokenService(tokens, uow, clock, TokenConfig{})
	return svc, tokens, users, clock
}

func noopMutation(_ context.Context, _ repository.Repositories, _ uuid.UUID) error {
	return nil
}

func TestIssueReturnsFixedLengthSecret(t *testing.T) {
	svc, _, _, _ := newTokenServiceForTest(t)
	subject := uuid.New()

	secret, err := svc.Issue(context.Background(), subject, entity.PurposePasswordReset)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(secret) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(secret))
	}

	other, err := svc.Issue(context.Background(), subject, entity.PurposeEmailVerify)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if secret == other {
		t.Fatal("secrets must never repeat")
	}
}

func TestValidateResolvesSubject(t *testing.T) {
	svc, _, _, clock := newTokenServiceForTest(t)
	subject := uuid.New()

	secret, err := svc.Issue(context.Background(), subject, entity.PurposePasswordReset)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(30 * time.Minute)
	got, err := svc.Validate(context.Background(), secret, entity.PurposePasswordReset)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got != subject {
		t.Fatalf("expected subject %s, got %s", subject, got)
	}
}

func TestValidateIsScopedToPurpose(t *testing.T) {
	svc, _, _, _ := newTokenServiceForTest(t)

	secret, err := svc.Issue(context.Background(), uuid.New(), entity.PurposeEmailVerify)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Validate(context.Background(), secret, entity.PurposePasswordReset); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken across purposes, got %v", err)
	}
}

func TestExpiryBoundary(t *testing.T) {
	tests := []struct {
		name    string
		purpose entity.TokenPurpose
		ttl     time.Duration
	}{
		{"password reset 1h", entity.PurposePasswordReset, time.Hour},
		{"email verification 24h", entity.PurposeEmailVerify, 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, clock := newTokenServiceForTest(t)
			secret, err := svc.Issue(context.Background(), uuid.New(), tt.purpose)
			if err != nil {
				t.Fatalf("issue: %v", err)
			}

			clock.Advance(tt.ttl - time.Second)
			if _, err := svc.Validate(context.Background(), secret, tt.purpose); err != nil {
				t.Fatalf("expected valid just before expiry, got %v", err)
			}

			clock.Advance(time.Second)
			if _, err := svc.Validate(context.Background(), secret, tt.purpose); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken at expiry instant, got %v", err)
			}
		})
	}
}

func TestSingleUse(t *testing.T) {
	svc, _, _, _ := newTokenServiceForTest(t)
	secret, err := svc.Issue(context.Background(), uuid.New(), entity.PurposePasswordReset)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := svc.Consume(context.Background(), secret, entity.PurposePasswordReset, noopMutation); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if err := svc.Consume(context.Background(), secret, entity.PurposePasswordReset, noopMutation); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on second consume, got %v", err)
	}
	if _, err := svc.Validate(context.Background(), secret, entity.PurposePasswordReset); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on validate after consume, got %v", err)
	}
}

func TestOverwriteOnReissue(t *testing.T) {
	svc, _, _, _ := newTokenServiceForTest(t)
	subject := uuid.New()

	first, err := svc.Issue(context.Background(), subject, entity.PurposeEmailVerify)
	if err != nil {
		t.Fatalf("issue first: %v", err)
	}
	second, err := svc.Issue(context.Background(), subject, entity.PurposeEmailVerify)
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}

	if _, err := svc.Validate(context.Background(), first, entity.PurposeEmailVerify); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected first token invalidated, got %v", err)
	}
	if _, err := svc.Validate(context.Background(), second, entity.PurposeEmailVerify); err != nil {
		t.Fatalf("expected second token valid, got %v", err)
	}
}

func TestReissueLeavesOtherPurposeAlone(t *testing.T) {
	svc, _, _, _ := newTokenServiceForTest(t)
	subject := uuid.New()

	reset, err := svc.Issue(context.Background(), subject, entity.PurposePasswordReset)
	if err != nil {
		t.Fatalf("issue reset: %v", err)
	}
	if _, err := svc.Issue(context.Background(), subject, entity.PurposeEmailVerify); err != nil {
		t.Fatalf("issue verify: %v", err)
	}

	if _, err := svc.Validate(context.Background(), reset, entity.PurposePasswordReset); err != nil {
		t.Fatalf("reset token must survive verify reissue, got %v", err)
	}
}

func TestEnumerationResistance(t *testing.T) {
	svc, _, _, clock := newTokenServiceForTest(t)

	_, neverIssuedErr := svc.Validate(context.Background(), "0000000000000000000000000000000000000000000000000000000000000000", entity.PurposePasswordReset)

	expired, err := svc.Issue(context.Background(), uuid.New(), entity.PurposePasswordReset)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	clock.Advance(2 * time.Hour)
	_, expiredErr := svc.Validate(context.Background(), expired, entity.PurposePasswordReset)

	if !errors.Is(neverIssuedErr, ErrInvalidToken) || !errors.Is(expiredErr, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for both, got %v and %v", neverIssuedErr, expiredErr)
	}
	if neverIssuedErr.Error() != expiredErr.Error() {
		t.Fatalf("error messages must be identical: %q vs %q", neverIssuedErr, expiredErr)
	}
}

func TestConsumeAppliesMutationToSubject(t *testing.T) {
	svc, _, users, _ := newTokenServiceForTest(t)
	user := users.add(&entity.User{Email: "dev@codescribe.ai", IsActive: true})

	secret, err := svc.Issue(context.Background(), user.ID, entity.PurposeEmailVerify)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	err = svc.Consume(context.Background(), secret, entity.PurposeEmailVerify,
		func(ctx context.Context, r repository.Repositories, subject uuid.UUID) error {
			return r.Users.VerifyEmail(ctx, subject)
		})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	if users.get(user.ID).EmailVerifiedAt == nil {
		t.Fatal("expected email_verified_at set")
	}
}

func TestFailedMutationLeavesTokenLive(t *testing.T) {
	svc, _, _, _ := newTokenServiceForTest(t)
	secret, err := svc.Issue(context.Background(), uuid.New(), entity.PurposePasswordReset)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rejected := errors.New("policy rejected")
	err = svc.Consume(context.Background(), secret, entity.PurposePasswordReset,
		func(context.Context, repository.Repositories, uuid.UUID) error {
			return rejected
		})
	if !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed, got %v", err)
	}

	// The same link must work on retry.
	if err := svc.Consume(context.Background(), secret, entity.PurposePasswordReset, noopMutation); err != nil {
		t.Fatalf("retry consume: %v", err)
	}
}

func TestConcurrentConsumeHasOneWinner(t *testing.T) {
	svc, _, _, _ := newTokenServiceForTest(t)
	secret, err := svc.Issue(context.Background(), uuid.New(), entity.PurposePasswordReset)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	var mutations int32
	var mu sync.Mutex

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = svc.Consume(context.Background(), secret, entity.PurposePasswordReset,
				func(context.Context, repository.Repositories, uuid.UUID) error {
					mu.Lock()
					mutations++
					mu.Unlock()
					return nil
				})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrInvalidToken):
		default:
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if mutations != 1 {
		t.Fatalf("expected mutation applied once, got %d", mutations)
	}
}

func TestCleanupRemovesDeadTokens(t *testing.T) {
	svc, tokens, _, clock := newTokenServiceForTest(t)

	consumed, err := svc.Issue(context.Background(), uuid.New(), entity.PurposePasswordReset)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.Consume(context.Background(), consumed, entity.PurposePasswordReset, noopMutation); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if _, err := svc.Issue(context.Background(), uuid.New(), entity.PurposePasswordReset); err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(2 * time.Hour)
	if err := svc.CleanupExpired(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if tokens.count() != 0 {
		t.Fatalf("expected all dead tokens removed, %d left", tokens.count())
	}
}

func TestStorageFailureIsWrapped(t *testing.T) {
	svc, tokens, _, _ := newTokenServiceForTest(t)
	tokens.err = errors.New("connection refused")

	if _, err := svc.Issue(context.Background(), uuid.New(), entity.PurposePasswordReset); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable from issue, got %v", err)
	}
	if _, err := svc.Validate(context.Background(), "secret", entity.PurposePasswordReset); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable from validate, got %v", err)
	}
}
