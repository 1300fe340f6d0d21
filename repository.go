package verdict

import (
	"context"
	"fmt"
	"math"
	"time"
)

// OutcomeFilter selects outcomes in ScanOutcomes. Zero fields match everything.
type OutcomeFilter struct {
	UserID     string
	Kind       OutcomeKind
	RunID      string
	Capability string
	Strategy   Strategy
	// Since and Until bound Timestamp as [Since, Until).
	Since time.Time
	Until time.Time
	// Limit caps the number of outcomes visited. Zero means no limit.
	Limit int
}

// Matches reports whether o passes the filter.
func (f OutcomeFilter) Matches(o DecisionOutcome) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if f.Kind != "" && o.Kind != f.Kind {
		return false
	}
	if f.RunID != "" && o.RunID != f.RunID {
		return false
	}
	if f.Capability != "" && o.Capability != f.Capability {
		return false
	}
	if f.Strategy != "" && o.Strategy != f.Strategy {
		return false
	}
	if !f.Since.IsZero() && o.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !o.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// OutcomeRepository persists the append-only outcome log.
// ScanOutcomes visits outcomes in (Timestamp, ID) order; returning an error
// from fn stops the scan and is returned unchanged.
type OutcomeRepository interface {
	PutOutcome(ctx context.Context, o DecisionOutcome) error
	GetOutcome(ctx context.Context, id string) (DecisionOutcome, error)
	ScanOutcomes(ctx context.Context, f OutcomeFilter, fn func(DecisionOutcome) error) error
	UpdateFeedback(ctx context.Context, id string, satisfaction float64, details string) error
	PruneOutcomes(ctx context.Context, before time.Time) (int, error)
	Stats(ctx context.Context) (StoreStats, error)
	Close() error
}

// ValidateOutcome checks an outcome record.
// Returns an error wrapping ErrInvalidOutcome describing the first problem.
func ValidateOutcome(o DecisionOutcome) error {
	switch {
	case o.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidOutcome)
	case o.UserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidOutcome)
	case !o.Strategy.IsValid():
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidOutcome, o.Strategy)
	case o.Kind != OutcomeRun && o.Kind != OutcomeAttempt:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOutcome, o.Kind)
	case !inUnitRange(o.Confidence):
		return fmt.Errorf("%w: confidence %v out of range", ErrInvalidOutcome, o.Confidence)
	case !inUnitRange(o.Result.FinalConfidence):
		return fmt.Errorf("%w: final confidence %v out of range", ErrInvalidOutcome, o.Result.FinalConfidence)
	case o.ExecutionTime < 0:
		return fmt.Errorf("%w: negative execution time", ErrInvalidOutcome)
	case o.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidOutcome)
	case math.IsNaN(o.Factors.SystemLoad) || math.IsNaN(o.Factors.RelationshipStrength):
		return fmt.Errorf("%w: context factors contain NaN", ErrInvalidOutcome)
	case o.Satisfaction != nil && !inUnitRange(*o.Satisfaction):
		return fmt.Errorf("%w: satisfaction %v out of range", ErrInvalidOutcome, *o.Satisfaction)
	}
	return nil
}
