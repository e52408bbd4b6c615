package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/rl1809/stock-manager/internal/core/domain"
	"github.com/rl1809/stock-manager/internal/port"
)

const mirrorApplyTimeout = 5 * time.Second

// RunMirror replays changes onto repo with the given number of workers and
// returns once changes is closed and every queued change has been handled.
// Changes to the same record always go to the same worker, so they are
// applied in commit order. Failures are logged and skipped: the ledger stays
// the source of truth and the replica can be rebuilt from it.
func RunMirror(changes <-chan domain.Change, repo port.MirrorRepository, workers int, log *zap.SugaredLogger) {
	if workers < 1 {
		workers = 1
	}

	queues := make([]chan domain.Change, workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan domain.Change, 64)
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			mirrorWorker(id, queues[id], repo, log)
		}(i)
	}

	for c := range changes {
		queues[shardOf(c, workers)] <- c
	}
	for _, q := range queues {
		close(q)
	}
	wg.Wait()
}

func shardOf(c domain.Change, workers int) int {
	return int(xxhash.Sum64String(string(c.Kind)+"/"+strconv.FormatUint(c.ID, 10)) % uint64(workers))
}

func mirrorWorker(id int, queue <-chan domain.Change, repo port.MirrorRepository, log *zap.SugaredLogger) {
	for change := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorApplyTimeout)

		if err := repo.Apply(ctx, change); err != nil {
			log.Errorw("mirror apply failed",
				"worker", id, "kind", change.Kind, "op", change.Op, "id", change.ID, "error", err)
		} else {
			log.Debugw("mirrored change", "worker", id, "kind", change.Kind, "op", change.Op, "id", change.ID)
		}

		cancel()
	}
}
