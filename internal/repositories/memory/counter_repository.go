package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopstream/api/internal/repositories"
)

// CounterRepository hands out sequence values guarded by a mutex.
type CounterRepository struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewCounterRepository() *CounterRepository {
	return &CounterRepository{counters: make(map[string]int64)}
}

func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	_ = ctx
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step <= 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters[id] += step
	return r.counters[id], nil
}
