package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"landiq/internal/model"
)

// MemoryValuationRepository is an in-memory valuation store with the same
// semantics as the PostgreSQL repository: monotonically increasing surrogate
// ids, creation-time-descending list ordering, exact-match location lookup.
// Used in tests and local development without a database.
type MemoryValuationRepository struct {
	mu         sync.Mutex
	nextID     int64
	valuations []model.Valuation
}

// NewMemoryValuationRepository creates an empty in-memory repository
func NewMemoryValuationRepository() *MemoryValuationRepository {
	return &MemoryValuationRepository{nextID: 1}
}

// CreateValuation inserts one valuation and returns it with its assigned id
func (r *MemoryValuationRepository) CreateValuation(_ context.Context, v *model.Valuation) (*model.Valuation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *v
	stored.ID = r.nextID
	r.nextID++
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.valuations = append(r.valuations, stored)

	result := stored
	return &result, nil
}

// GetValuation returns the valuation with the given id, (nil, nil) when absent
func (r *MemoryValuationRepository) GetValuation(_ context.Context, id int64) (*model.Valuation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range r.valuations {
		if v.ID == id {
			result := v
			return &result, nil
		}
	}
	return nil, nil
}

// GetRecentValuations returns up to limit rows, most recently created first
func (r *MemoryValuationRepository) GetRecentValuations(_ context.Context, limit int) ([]model.Valuation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return takeOrdered(r.valuations, limit), nil
}

// GetValuationsByLocation returns up to limit rows whose location exactly
// equals the argument, most recently created first
func (r *MemoryValuationRepository) GetValuationsByLocation(_ context.Context, location string, limit int) ([]model.Valuation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []model.Valuation
	for _, v := range r.valuations {
		if v.Location == location {
			matched = append(matched, v)
		}
	}
	return takeOrdered(matched, limit), nil
}

// takeOrdered sorts by creation time descending with id descending as the
// tie-breaker, matching the SQL ORDER BY, and truncates to limit
func takeOrdered(valuations []model.Valuation, limit int) []model.Valuation {
	ordered := make([]model.Valuation, len(valuations))
	copy(ordered, valuations)

	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].ID > ordered[j].ID
	})

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered
}
