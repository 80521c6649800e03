package service

import "errors"

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrEmailNotVerified       = errors.New("email not verified")

	// ErrInvalidToken covers nonexistent, expired, and already-consumed
	// tokens alike. Callers must not be able to tell the three apart.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrTooManyRequests is deliberately visible to the requester; hitting
	// the issuance limit reveals nothing about whether an account exists.
	ErrTooManyRequests = errors.New("too many requests")

	// ErrMutationFailed means the action gated by a token was rejected;
	// the token stays live so the same link can be retried.
	ErrMutationFailed = errors.New("mutation failed")

	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrWeakPassword     = errors.New("password does not meet policy")
	ErrMFARequired      = errors.New("mfa required")
	ErrInvalidMFACode   = errors.New("invalid mfa code")
	ErrMFANotConfigured = errors.New("mfa not configured")
	ErrUserNotFound     = errors.New("user not found")
)
