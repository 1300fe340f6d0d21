package verdict

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperengineering/verdict/internal/store/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const schemaVersion = "1"

// timeFormat is a fixed-width RFC3339 layout so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the SQLite-backed OutcomeRepository.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewStore opens or creates an outcome database at path.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, migrations.FS)
	if err != nil {
		return fmt.Errorf("store: create migration provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, schemaVersion)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// PutOutcome inserts an outcome, replacing any existing outcome with the same id.
func (s *Store) PutOutcome(ctx context.Context, o DecisionOutcome) error {
	if err := ValidateOutcome(o); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	var satisfaction *float64
	if o.Satisfaction != nil {
		v := *o.Satisfaction
		satisfaction = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO outcomes (
			id, kind, run_id, timestamp, user_id, strategy, capability, confidence, execution_ns,
			complexity, token_estimate, system_load, relationship_strength, mood,
			success, escalated, final_confidence, satisfaction, feedback_details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID,
		string(o.Kind),
		o.RunID,
		formatTime(o.Timestamp),
		o.UserID,
		string(o.Strategy),
		o.Capability,
		o.Confidence,
		int64(o.ExecutionTime),
		string(o.Factors.Complexity),
		o.Factors.TokenEstimate,
		o.Factors.SystemLoad,
		o.Factors.RelationshipStrength,
		string(o.Factors.Mood),
		boolToInt(o.Result.Success),
		boolToInt(o.Result.Escalated),
		o.Result.FinalConfidence,
		satisfaction,
		nullString(o.FeedbackDetails),
	)
	if err != nil {
		return fmt.Errorf("store: insert outcome: %w", err)
	}
	return nil
}

const outcomeColumns = `
	id, kind, run_id, timestamp, user_id, strategy, capability, confidence, execution_ns,
	complexity, token_estimate, system_load, relationship_strength, mood,
	success, escalated, final_confidence, satisfaction, feedback_details
`

// GetOutcome returns the outcome with id, or ErrNotFound.
func (s *Store) GetOutcome(ctx context.Context, id string) (DecisionOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return DecisionOutcome{}, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+outcomeColumns+" FROM outcomes WHERE id = ?", id)
	o, err := scanOutcomeFrom(row)
	if errors.Is(err, ErrNotFound) {
		return DecisionOutcome{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return o, err
}

// ScanOutcomes visits matching outcomes in (Timestamp, ID) order.
// Rows are read before fn is called, so fn may use the store.
func (s *Store) ScanOutcomes(ctx context.Context, f OutcomeFilter, fn func(DecisionOutcome) error) error {
	outcomes, err := s.queryOutcomes(ctx, f)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) queryOutcomes(ctx context.Context, f OutcomeFilter) ([]DecisionOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	query := "SELECT " + outcomeColumns + " FROM outcomes WHERE 1=1"
	args := []any{}

	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(f.Kind))
	}
	if f.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, f.RunID)
	}
	if f.Capability != "" {
		query += " AND capability = ?"
		args = append(args, f.Capability)
	}
	if f.Strategy != "" {
		query += " AND strategy = ?"
		args = append(args, string(f.Strategy))
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, formatTime(f.Until))
	}
	query += " ORDER BY timestamp, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var results []DecisionOutcome
	for rows.Next() {
		o, err := scanOutcomeFrom(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, o)
	}
	return results, rows.Err()
}

// UpdateFeedback sets the satisfaction and details of an outcome.
// Returns ErrNotFound if id is unknown.
func (s *Store) UpdateFeedback(ctx context.Context, id string, satisfaction float64, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE outcomes SET satisfaction = ?, feedback_details = ? WHERE id = ?
	`, satisfaction, nullString(details), id)
	if err != nil {
		return fmt.Errorf("store: update feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update feedback: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// PruneOutcomes deletes outcomes older than before and records the prune time.
func (s *Store) PruneOutcomes(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	res, err := tx.ExecContext(ctx, "DELETE FROM outcomes WHERE timestamp < ?", formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("store: prune outcomes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: prune outcomes: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('last_prune', ?)
	`, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("store: record prune: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit prune: %w", err)
	}
	return int(n), nil
}

// Stats returns statistics about the store.
func (s *Store) Stats(ctx context.Context) (StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return StoreStats{}, ErrStoreClosed
	}

	var stats StoreStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN kind = 'run' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN satisfaction IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM outcomes
	`).Scan(&stats.OutcomeCount, &stats.RunCount, &stats.FeedbackCount)
	if err != nil {
		return StoreStats{}, fmt.Errorf("store: count outcomes: %w", err)
	}

	var lastPrune sql.NullString
	err = s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'last_prune'").Scan(&lastPrune)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return StoreStats{}, fmt.Errorf("store: read last prune: %w", err)
	}
	if lastPrune.Valid {
		stats.LastPrune, _ = time.Parse(time.RFC3339, lastPrune.String)
	}

	stats.SchemaVersion = schemaVersion
	return stats, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// scanner abstracts the Scan method shared by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanOutcomeFrom scans a single outcome row from any scanner (Row or Rows).
// Returns ErrNotFound only for sql.ErrNoRows from *sql.Row.
func scanOutcomeFrom(sc scanner) (DecisionOutcome, error) {
	var (
		o            DecisionOutcome
		kind         string
		timestamp    string
		strategy     string
		executionNS  int64
		complexity   string
		mood         string
		success      int
		escalated    int
		satisfaction sql.NullFloat64
		details      sql.NullString
	)

	err := sc.Scan(
		&o.ID,
		&kind,
		&o.RunID,
		&timestamp,
		&o.UserID,
		&strategy,
		&o.Capability,
		&o.Confidence,
		&executionNS,
		&complexity,
		&o.Factors.TokenEstimate,
		&o.Factors.SystemLoad,
		&o.Factors.RelationshipStrength,
		&mood,
		&success,
		&escalated,
		&o.Result.FinalConfidence,
		&satisfaction,
		&details,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return DecisionOutcome{}, ErrNotFound
	}
	if err != nil {
		return DecisionOutcome{}, err
	}

	o.Kind = OutcomeKind(kind)
	o.Timestamp, _ = time.Parse(timeFormat, timestamp)
	o.Strategy = Strategy(strategy)
	o.ExecutionTime = time.Duration(executionNS)
	o.Factors.Complexity = Complexity(complexity)
	o.Factors.Mood = Mood(mood)
	o.Result.Success = success != 0
	o.Result.Escalated = escalated != 0
	if satisfaction.Valid {
		v := satisfaction.Float64
		o.Satisfaction = &v
	}
	if details.Valid {
		o.FeedbackDetails = details.String
	}

	return o, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
