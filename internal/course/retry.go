package course

import (
	"context"
	"errors"
)

const DefaultRetries = 5

// RetryOnConflict runs fn until it stops returning ErrConflict, up to
// attempts times. Exhausting the budget yields a ConcurrencyConflict error.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = DefaultRetries
	}
	var err error
	for i := 0; i < attempts; i++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = fn()
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return ConcurrencyConflict(err)
}
