package verdict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ImportJSON imports outcomes from a JSON export into repo.
// It streams the outcome array so large exports are not held in memory.
// Invalid outcomes are reported in ImportResult.Errors and skipped.
func ImportJSON(ctx context.Context, repo OutcomeRepository, r io.Reader, strategy MergeStrategy, dryRun bool) (*ImportResult, error) {
	if !strategy.IsValid() {
		return nil, fmt.Errorf("unknown merge strategy %q", strategy)
	}

	dec := json.NewDecoder(r)
	result := &ImportResult{}

	token, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read opening token: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected opening brace, got %v", token)
	}

	var version string
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		token, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read field name: %w", err)
		}
		fieldName, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("expected field name, got %v", token)
		}

		switch fieldName {
		case "version":
			if err := dec.Decode(&version); err != nil {
				return nil, fmt.Errorf("decode version: %w", err)
			}
			if version != ExportVersion {
				return nil, fmt.Errorf("unsupported export version %q (expected %q)", version, ExportVersion)
			}

		case "outcomes":
			if version == "" {
				return nil, fmt.Errorf("version field must precede outcomes")
			}
			if err := importOutcomeArray(ctx, repo, dec, strategy, dryRun, result); err != nil {
				return result, fmt.Errorf("import outcomes: %w", err)
			}

		default:
			var discard any
			if err := dec.Decode(&discard); err != nil {
				return nil, fmt.Errorf("decode %s: %w", fieldName, err)
			}
		}
	}

	if version == "" {
		return nil, fmt.Errorf("missing version field in export file")
	}

	return result, nil
}

func importOutcomeArray(ctx context.Context, repo OutcomeRepository, dec *json.Decoder, strategy MergeStrategy, dryRun bool, result *ImportResult) error {
	token, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read outcomes array start: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("expected outcomes array, got %v", token)
	}

	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var o DecisionOutcome
		if err := dec.Decode(&o); err != nil {
			return fmt.Errorf("decode outcome: %w", err)
		}
		result.Total++

		if err := ValidateOutcome(o); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("outcome %s: %v", o.ID, err))
			continue
		}

		exists := true
		if _, err := repo.GetOutcome(ctx, o.ID); errors.Is(err, ErrNotFound) {
			exists = false
		} else if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("check existence %s: %v", o.ID, err))
			continue
		}

		if exists && strategy == MergeStrategySkip {
			result.Skipped++
			continue
		}
		if !dryRun {
			if err := repo.PutOutcome(ctx, o); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("import %s: %v", o.ID, err))
				continue
			}
		}
		if exists {
			result.Replaced++
		} else {
			result.Created++
		}
	}

	token, err = dec.Token()
	if err != nil {
		return fmt.Errorf("read outcomes array end: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != ']' {
		return fmt.Errorf("expected outcomes array end, got %v", token)
	}
	return nil
}
