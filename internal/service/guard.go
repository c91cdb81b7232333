package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// TableGuard is an in-process keyed mutex: at most one holder per table.
// Waiting honours context cancellation. Entries are removed once nobody
// holds or waits on them.
type TableGuard struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*tableLock
}

type tableLock struct {
	ch   chan struct{}
	refs int
}

func NewTableGuard() *TableGuard {
	return &TableGuard{locks: make(map[uuid.UUID]*tableLock)}
}

// Lock blocks until the table is free or ctx is done. The returned func
// releases the lock and must be called exactly once.
func (g *TableGuard) Lock(ctx context.Context, tableID uuid.UUID) (func(), error) {
	g.mu.Lock()
	l, ok := g.locks[tableID]
	if !ok {
		l = &tableLock{ch: make(chan struct{}, 1)}
		g.locks[tableID] = l
	}
	l.refs++
	g.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			g.release(tableID, l)
		}, nil
	case <-ctx.Done():
		g.release(tableID, l)
		return nil, ctx.Err()
	}
}

func (g *TableGuard) release(tableID uuid.UUID, l *tableLock) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(g.locks, tableID)
	}
}

// size reports how many tables currently have holders or waiters.
func (g *TableGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}
