package uow

import (
	"context"

	"github.com/kirinyoku/spacebook/internal/repository"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// UoW represents a unit of work.
type UoW struct {
	store     repository.Store
	retryable func(error) bool
	attempts  int
}

type Option func(*UoW)

// WithRetry reruns the whole unit up to attempts times while retryable(err)
// holds. Hooks of failed attempts are discarded.
func WithRetry(retryable func(error) bool, attempts int) Option {
	return func(u *UoW) {
		u.retryable = retryable
		u.attempts = attempts
	}
}

func NewUoW(store repository.Store, opts ...Option) *UoW {
	u := &UoW{store: store, attempts: 1}
	for _, opt := range opts {
		opt(u)
	}
	if u.attempts < 1 {
		u.attempts = 1
	}
	return u
}

// Do runs fn inside the transaction. After a successful commit,
// it executes all after-commit hooks.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Tx, after func(AfterCommit)) error,
) error {
	var (
		hooks []AfterCommit
		err   error
	)

	for attempt := 1; attempt <= u.attempts; attempt++ {
		hooks = hooks[:0]

		err = u.store.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return fn(ctx, tx, func(h AfterCommit) {
				hooks = append(hooks, h)
			})
		})
		if err == nil || u.retryable == nil || !u.retryable(err) {
			break
		}
	}
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
