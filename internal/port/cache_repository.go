package port

import "context"

type IdempotencyCache interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)
}
