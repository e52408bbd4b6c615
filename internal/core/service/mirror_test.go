package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/stock-manager/internal/core/domain"
	"github.com/rl1809/stock-manager/internal/core/stable"
)

// Mock MirrorRepository
type mockMirrorRepo struct {
	mu      sync.Mutex
	applied map[string][]domain.Change
	failOn  uint64
}

func newMockMirrorRepo() *mockMirrorRepo {
	return &mockMirrorRepo{applied: make(map[string][]domain.Change), failOn: ^uint64(0)}
}

func (m *mockMirrorRepo) Apply(ctx context.Context, change domain.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if change.ID == m.failOn {
		return errors.New("replica unavailable")
	}
	key := string(change.Kind)
	m.applied[key] = append(m.applied[key], change)
	return nil
}

func (m *mockMirrorRepo) forRecord(kind domain.Kind, id uint64) []domain.Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Change
	for _, c := range m.applied[string(kind)] {
		if c.ID == id {
			out = append(out, c)
		}
	}
	return out
}

func TestRunMirror_PreservesPerRecordOrder(t *testing.T) {
	st, err := OpenStorage(stable.NewVectorMemory(), 1)
	require.NoError(t, err)
	l := NewLedger(st, 100)
	repo := newMockMirrorRepo()

	done := make(chan struct{})
	go func() {
		RunMirror(l.Changes(), repo, 4, zap.NewNop().Sugar())
		close(done)
	}()

	for i := 0; i < 10; i++ {
		_, err := l.AddStock(domain.StockPayload{ItemID: uint64(i), Quantity: 1})
		require.NoError(t, err)
	}
	for q := uint32(2); q <= 20; q++ {
		_, err := l.UpdateStock(3, domain.StockPayload{ItemID: 3, Quantity: q})
		require.NoError(t, err)
	}
	require.NoError(t, l.DeleteStock(3))

	l.Close()
	<-done

	changes := repo.forRecord(domain.KindStock, 3)
	require.Len(t, changes, 21)
	for i, c := range changes[:20] {
		assert.Equal(t, domain.ChangeUpsert, c.Op)
		assert.Equal(t, uint32(i+1), c.Record.(domain.Stock).Quantity)
	}
	assert.Equal(t, domain.ChangeDelete, changes[20].Op)
	assert.Len(t, repo.forRecord(domain.KindStock, 9), 1)
}

func TestRunMirror_ContinuesAfterFailure(t *testing.T) {
	repo := newMockMirrorRepo()
	repo.failOn = 1

	changes := make(chan domain.Change, 3)
	for id := uint64(0); id < 3; id++ {
		changes <- domain.Change{Kind: domain.KindItem, Op: domain.ChangeUpsert, ID: id, Record: domain.Item{ID: id}}
	}
	close(changes)

	RunMirror(changes, repo, 0, zap.NewNop().Sugar())

	assert.Len(t, repo.forRecord(domain.KindItem, 0), 1)
	assert.Empty(t, repo.forRecord(domain.KindItem, 1))
	assert.Len(t, repo.forRecord(domain.KindItem, 2), 1)
}
