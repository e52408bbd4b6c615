package service

import (
	"fmt"
	"sync"

	"github.com/rl1809/stock-manager/internal/core/domain"
	"github.com/rl1809/stock-manager/internal/core/stable"
)

// registry is the CRUD logic shared by every entity kind: one id counter and
// one ordered map, guarded by a mutex so that allocate-then-insert is atomic.
type registry[R any, P any] struct {
	mu       sync.Mutex
	kind     domain.Kind
	label    string // "Item" in "Item with the id=1 not found"
	empty    string // message when nothing is stored
	ids      *stable.Cell[uint64]
	records  *stable.BTreeMap[R]
	build    func(id uint64, p P) R
	apply    func(r *R, p P)
	validate func(p P) error // optional
	publish  func(domain.Change)
}

func (r *registry[R, P]) notFound(id uint64) error {
	return &domain.NotFoundError{Msg: fmt.Sprintf("%s with the id=%d not found", r.label, id)}
}

func (r *registry[R, P]) list() ([]R, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]R, 0, r.records.Len())
	for _, rec := range r.records.All() {
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, &domain.NotFoundError{Msg: r.empty}
	}
	return out, nil
}

func (r *registry[R, P]) get(id uint64) (R, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records.Get(id)
	if !ok {
		return rec, r.notFound(id)
	}
	return rec, nil
}

func (r *registry[R, P]) check(p P) error {
	if r.validate == nil {
		return nil
	}
	return r.validate(p)
}

func (r *registry[R, P]) create(p P) (R, error) {
	if err := r.check(p); err != nil {
		var zero R
		return zero, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.ids.Get()
	if err := r.ids.Set(id + 1); err != nil {
		panic(fmt.Sprintf("cannot increment id counter: %v", err))
	}

	rec := r.build(id, p)
	if _, _, err := r.records.Insert(id, rec); err != nil {
		// A rejected record must not burn its id.
		if err := r.ids.Set(id); err != nil {
			panic(fmt.Sprintf("cannot restore id counter: %v", err))
		}
		var zero R
		return zero, err
	}

	r.emit(domain.ChangeUpsert, id, rec)
	return rec, nil
}

func (r *registry[R, P]) update(id uint64, p P) (R, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records.Get(id)
	if !ok {
		return rec, r.notFound(id)
	}
	if err := r.check(p); err != nil {
		var zero R
		return zero, err
	}
	r.apply(&rec, p)
	if _, _, err := r.records.Insert(id, rec); err != nil {
		var zero R
		return zero, err
	}

	r.emit(domain.ChangeUpsert, id, rec)
	return rec, nil
}

func (r *registry[R, P]) remove(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records.Remove(id); !ok {
		return r.notFound(id)
	}

	r.emit(domain.ChangeDelete, id, nil)
	return nil
}

func (r *registry[R, P]) emit(op domain.ChangeOp, id uint64, rec any) {
	if r.publish == nil {
		return
	}
	r.publish(domain.Change{Kind: r.kind, Op: op, ID: id, Record: rec})
}
