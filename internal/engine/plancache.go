package engine

import (
	"sync"

	"github.com/nudgekit/nudgekit/internal/domain"
)

// PlanCache reuses compiled plans across runs. Entries are keyed by the
// content hash of the source spec, so a configuration edit misses the cache by
// identity; there is no TTL and staleness is never assumed.
type PlanCache struct {
	mu    sync.RWMutex
	plans map[string]*domain.CompiledPlan
}

func NewPlanCache() *PlanCache {
	return &PlanCache{plans: map[string]*domain.CompiledPlan{}}
}

func (c *PlanCache) Get(specHash string) (*domain.CompiledPlan, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	plan, ok := c.plans[specHash]

	return plan, ok
}

func (c *PlanCache) Put(plan *domain.CompiledPlan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.plans[plan.SpecHash] = plan
}

// Invalidate drops every cached plan. Called when the schema catalog is
// refreshed, since plans embed identifier resolutions from the old catalog.
func (c *PlanCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.plans = map[string]*domain.CompiledPlan{}
}
