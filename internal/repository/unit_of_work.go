package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories bundles the stores that participate in a token consumption
// transaction.
type Repositories struct {
	Users  UserRepository
	Tokens AccountTokenRepository
}

// UnitOfWork runs a function with all writes inside one database
// transaction. Token consumption uses it so the subject mutation and the
// consumed_at update are never separable.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(r Repositories) error) error
}

type gormUnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db}
}

func (u *gormUnitOfWork) Do(ctx context.Context, fn func(r Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(Repositories{
			Users:  NewUserRepository(tx),
			Tokens: NewAccountTokenRepository(tx),
		})
	})
}
