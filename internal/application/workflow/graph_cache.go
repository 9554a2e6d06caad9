package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/formflow/internal/application/port"
	domainwf "github.com/garyjia/formflow/internal/domain/workflow"
)

// graphCache keeps parsed definition graphs by definition id.
// Only definitions bound to submissions are looked up here, and those are
// never modified, so entries never go stale.
type graphCache struct {
	definitionRepo port.DefinitionRepository

	mu     sync.RWMutex
	graphs map[int64]*domainwf.Graph
}

func newGraphCache(definitionRepo port.DefinitionRepository) *graphCache {
	return &graphCache{
		definitionRepo: definitionRepo,
		graphs:         make(map[int64]*domainwf.Graph),
	}
}

// Get returns the graph of a definition, loading it on first use
func (c *graphCache) Get(ctx context.Context, definitionID int64) (*domainwf.Graph, error) {
	c.mu.RLock()
	g, ok := c.graphs[definitionID]
	c.mu.RUnlock()
	if ok {
		return g, nil
	}

	def, err := c.definitionRepo.GetByID(ctx, definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow definition %d: %w", definitionID, err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: workflow definition %d", domainwf.ErrNotFound, definitionID)
	}

	g, err = domainwf.NewGraph(def)
	if err != nil {
		return nil, fmt.Errorf("stored workflow definition %d is unusable: %v", definitionID, err)
	}

	c.mu.Lock()
	c.graphs[definitionID] = g
	c.mu.Unlock()

	return g, nil
}
