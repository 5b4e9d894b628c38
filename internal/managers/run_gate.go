package managers

import (
	"context"
	"sync"

	"github.com/nudgekit/nudgekit/internal/domain"
)

// memoryRunGate enforces at-most-one concurrent run per configuration within
// a single process.
type memoryRunGate struct {
	mu    sync.Mutex
	inUse map[string]struct{}
}

func NewMemoryRunGate() domain.RunGate {
	return &memoryRunGate{inUse: map[string]struct{}{}}
}

func (g *memoryRunGate) TryAcquire(_ context.Context, configID string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inUse[configID]; held {
		return nil, false, nil
	}

	g.inUse[configID] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.inUse, configID)
		})
	}

	return release, true, nil
}
