package verdict

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory OutcomeRepository for tests and ephemeral bots.
type MemoryStore struct {
	mu        sync.RWMutex
	closed    bool
	outcomes  map[string]DecisionOutcome
	lastPrune time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{outcomes: make(map[string]DecisionOutcome)}
}

// PutOutcome inserts or replaces an outcome.
func (s *MemoryStore) PutOutcome(_ context.Context, o DecisionOutcome) error {
	if err := ValidateOutcome(o); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.outcomes[o.ID] = cloneOutcome(o)
	return nil
}

// GetOutcome returns the outcome with id, or ErrNotFound.
func (s *MemoryStore) GetOutcome(_ context.Context, id string) (DecisionOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return DecisionOutcome{}, ErrStoreClosed
	}
	o, ok := s.outcomes[id]
	if !ok {
		return DecisionOutcome{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneOutcome(o), nil
}

// ScanOutcomes visits matching outcomes in (Timestamp, ID) order.
func (s *MemoryStore) ScanOutcomes(ctx context.Context, f OutcomeFilter, fn func(DecisionOutcome) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	matched := make([]DecisionOutcome, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		if f.Matches(o) {
			matched = append(matched, cloneOutcome(o))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		}
		return matched[i].ID < matched[j].ID
	})

	for i, o := range matched {
		if f.Limit > 0 && i >= f.Limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

// UpdateFeedback sets the satisfaction and details of an outcome.
func (s *MemoryStore) UpdateFeedback(_ context.Context, id string, satisfaction float64, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	o, ok := s.outcomes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	o.Satisfaction = &satisfaction
	o.FeedbackDetails = details
	s.outcomes[id] = o
	return nil
}

// PruneOutcomes deletes outcomes older than before.
func (s *MemoryStore) PruneOutcomes(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	n := 0
	for id, o := range s.outcomes {
		if o.Timestamp.Before(before) {
			delete(s.outcomes, id)
			n++
		}
	}
	s.lastPrune = time.Now().UTC()
	return n, nil
}

// Stats returns outcome counts.
func (s *MemoryStore) Stats(_ context.Context) (StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return StoreStats{}, ErrStoreClosed
	}
	stats := StoreStats{LastPrune: s.lastPrune, SchemaVersion: "memory"}
	for _, o := range s.outcomes {
		stats.OutcomeCount++
		if o.Kind == OutcomeRun {
			stats.RunCount++
		}
		if o.Satisfaction != nil {
			stats.FeedbackCount++
		}
	}
	return stats, nil
}

// Close marks the store closed. Subsequent calls return ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneOutcome(o DecisionOutcome) DecisionOutcome {
	if o.Satisfaction != nil {
		v := *o.Satisfaction
		o.Satisfaction = &v
	}
	return o
}
