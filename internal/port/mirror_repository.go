package port

import (
	"context"

	"github.com/rl1809/stock-manager/internal/core/domain"
)

type MirrorRepository interface {
	// Apply replays a committed ledger change onto the replica
	Apply(ctx context.Context, change domain.Change) error
}
