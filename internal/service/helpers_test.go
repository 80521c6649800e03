package service

import (
	"context"
	"sync"
	"time"

	"codescribe-auth/internal/entity"
	"codescribe-auth/internal/repository"

	"github.com/google/uuid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*entity.AccountToken
	clock  *fakeClock
	err    error
}

func newFakeTokenRepo(clock *fakeClock) *fakeTokenRepo {
	return &fakeTokenRepo{
		tokens: make(map[uuid.UUID]*entity.AccountToken),
		clock:  clock,
	}
}

func (r *fakeTokenRepo) Replace(_ context.Context, token *entity.AccountToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, existing := range r.tokens {
		if existing.SubjectID == token.SubjectID && existing.Purpose == token.Purpose && existing.ConsumedAt == nil {
			consumedAt := token.IssuedAt
			existing.ConsumedAt = &consumedAt
			existing.SecretHash = ""
		}
	}
	stored := *token
	stored.ID = uuid.New()
	r.tokens[stored.ID] = &stored
	return nil
}

func (r *fakeTokenRepo) FindValid(_ context.Context, secretHash string, purpose entity.TokenPurpose) (*entity.AccountToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	now := r.clock.Now()
	for _, token := range r.tokens {
		if token.SecretHash == secretHash && token.Purpose == purpose && token.ConsumedAt == nil && now.Before(token.ExpiresAt) {
			found := *token
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeTokenRepo) Consume(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	token, ok := r.tokens[id]
	if !ok || token.ConsumedAt != nil {
		return false, nil
	}
	consumedAt := now
	token.ConsumedAt = &consumedAt
	token.SecretHash = ""
	return true, nil
}

func (r *fakeTokenRepo) DeleteExpiredBefore(_ context.Context, cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, token := range r.tokens {
		if token.ExpiresAt.Before(cutoff) || token.ConsumedAt != nil {
			delete(r.tokens, id)
		}
	}
	return nil
}

func (r *fakeTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

type fakeUserRepo struct {
	mu                 sync.Mutex
	users              map[uuid.UUID]*entity.User
	failUpdatePassword error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*entity.User)}
}

func (r *fakeUserRepo) add(user *entity.User) *entity.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	stored := *user
	r.users[stored.ID] = &stored
	return &stored
}

func (r *fakeUserRepo) Create(_ context.Context, user *entity.User) error {
	r.add(user)
	return nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || !user.IsActive {
		return nil, nil
	}
	found := *user
	return &found, nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email && user.IsActive {
			found := *user
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) VerifyEmail(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		now := time.Now()
		user.EmailVerifiedAt = &now
	}
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdatePassword != nil {
		return r.failUpdatePassword
	}
	if user, ok := r.users[userID]; ok {
		hash := passwordHash
		user.PasswordHash = &hash
	}
	return nil
}

func (r *fakeUserRepo) List(_ context.Context, _, _ int) ([]entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]entity.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, *user)
	}
	return users, nil
}

func (r *fakeUserRepo) get(id uuid.UUID) *entity.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		found := *user
		return &found
	}
	return nil
}

// fakeUnitOfWork serializes transactions with one mutex so conditional
// consumption behaves like row locking in the real store.
type fakeUnitOfWork struct {
	mu    sync.Mutex
	repos repository.Repositories
}

func newFakeUnitOfWork(users repository.UserRepository, tokens repository.AccountTokenRepository) *fakeUnitOfWork {
	return &fakeUnitOfWork{repos: repository.Repositories{Users: users, Tokens: tokens}}
}

func (u *fakeUnitOfWork) Do(_ context.Context, fn func(r repository.Repositories) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(u.repos)
}

type sentEmail struct {
	to     string
	secret string
}

type fakeEmailSender struct {
	mu           sync.Mutex
	verification []sentEmail
	reset        []sentEmail
	err          error
}

func (s *fakeEmailSender) SendVerificationEmail(_ context.Context, email string, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.verification = append(s.verification, sentEmail{to: email, secret: secret})
	return nil
}

func (s *fakeEmailSender) SendPasswordResetEmail(_ context.Context, email string, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reset = append(s.reset, sentEmail{to: email, secret: secret})
	return nil
}

func (s *fakeEmailSender) resetEmails() []sentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentEmail(nil), s.reset...)
}

func (s *fakeEmailSender) verificationEmails() []sentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentEmail(nil), s.verification...)
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entity.Session
	revoked  map[uuid.UUID]int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[uuid.UUID]*entity.Session),
		revoked:  make(map[uuid.UUID]int),
	}
}

func (r *fakeSessionRepo) Create(_ context.Context, session *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	stored := *session
	r.sessions[stored.ID] = &stored
	return nil
}

func (r *fakeSessionRepo) FindByTokenHash(_ context.Context, hash string) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.TokenHash == hash && session.RevokedAt == nil {
			found := *session
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) RotateToken(_ context.Context, sessionID uuid.UUID, newHash string, newExpiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[sessionID]; ok {
		session.TokenHash = newHash
		session.ExpiresAt = newExpiry
	}
	return nil
}

func (r *fakeSessionRepo) Revoke(_ context.Context, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[sessionID]; ok {
		now := time.Now()
		session.RevokedAt = &now
	}
	return nil
}

func (r *fakeSessionRepo) RevokeAllByUser(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[userID]++
	now := time.Now()
	for _, session := range r.sessions {
		if session.UserID == userID && session.RevokedAt == nil {
			session.RevokedAt = &now
		}
	}
	return nil
}

func (r *fakeSessionRepo) CleanupExpired(_ context.Context) error {
	return nil
}

func (r *fakeSessionRepo) revokedCount(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revoked[userID]
}

type fakeAccessIssuer struct{}

func (fakeAccessIssuer) IssueAccessToken(_ entity.User, _ uuid.UUID) (string, time.Duration, error) {
	return "access-token", 15 * time.Minute, nil
}

// countingLimiter lets tests drive AuthService against a deterministic
// limiter decision.
type countingLimiter struct {
	mu      sync.Mutex
	counts  map[string]int
	limit   int
	err     error
	allowed bool
	fixed   bool
}

func newCountingLimiter(limit int) *countingLimiter {
	return &countingLimiter{counts: make(map[string]int), limit: limit}
}

func (l *countingLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.fixed {
		return l.allowed, nil
	}
	l.counts[key]++
	return l.counts[key] <= l.limit, nil
}
