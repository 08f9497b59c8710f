package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports a token that is absent from the store, either
	// never issued or already swept as expired.
	ErrNotFound = errors.New("token not found")

	// ErrAlreadyConsumed reports a consume attempt on a token that was
	// already honored once.
	ErrAlreadyConsumed = errors.New("token already consumed")
)

// Record holds the stored state of an issued unlock token. The token's
// signed encoding is its own lookup key; there is no separate id.
type Record struct {
	OrderID   string
	Door      int
	Email     string
	Consumed  bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Store persists issued tokens and owns their single-use state. The
// signature on the token proves authenticity; the store is the authority
// on whether a token is still honorable.
//
// MarkConsumed is a compare-and-set: of any number of concurrent calls
// for the same token exactly one succeeds, the rest return
// ErrAlreadyConsumed. Operations on different tokens do not contend
// beyond whatever the driver needs for its own consistency.
type Store interface {
	Put(ctx context.Context, token string, rec Record) error

	// Get reports found=false for absent tokens; callers distinguish
	// "never issued or swept" from "found but consumed".
	Get(ctx context.Context, token string) (Record, bool, error)

	// MarkConsumed flips the consumed flag exactly once. Returns
	// ErrNotFound or ErrAlreadyConsumed otherwise.
	MarkConsumed(ctx context.Context, token string) error

	Delete(ctx context.Context, token string) error

	// SweepExpired removes every record with ExpiresAt <= now and
	// returns the number removed. Best-effort garbage collection; the
	// token's embedded expiry is the authoritative check.
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	// Ping verifies backend connectivity for readiness probes.
	Ping(ctx context.Context) error

	Close() error
}
