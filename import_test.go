package verdict_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hyperengineering/verdict"
)

func exportOf(t *testing.T, outcomes ...verdict.DecisionOutcome) *bytes.Buffer {
	t.Helper()
	src := verdict.NewMemoryStore()
	defer src.Close()
	for _, o := range outcomes {
		if err := src.PutOutcome(context.Background(), o); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := verdict.ExportJSON(context.Background(), src, "src", &buf); err != nil {
		t.Fatalf("ExportJSON() returned error: %v", err)
	}
	return &buf
}

func TestImportJSON_Empty(t *testing.T) {
	store := newTestStore(t)

	result, err := verdict.ImportJSON(context.Background(), store, exportOf(t), verdict.MergeStrategySkip, false)
	if err != nil {
		t.Fatalf("ImportJSON() returned error: %v", err)
	}
	if result.Total != 0 || result.Created != 0 {
		t.Errorf("result = %+v, want zero counts", result)
	}
}

func TestImportJSON_NewOutcomes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	data := exportOf(t, testOutcome("o1", "u1", baseTime), testOutcome("o2", "u2", baseTime))
	result, err := verdict.ImportJSON(ctx, store, data, verdict.MergeStrategySkip, false)
	if err != nil {
		t.Fatalf("ImportJSON() returned error: %v", err)
	}
	if result.Total != 2 || result.Created != 2 {
		t.Errorf("result = %+v, want Total=2 Created=2", result)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.OutcomeCount != 2 {
		t.Errorf("OutcomeCount = %d, want 2", stats.OutcomeCount)
	}
}

func TestImportJSON_SkipStrategy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	existing := testOutcome("o1", "u1", baseTime)
	if err := store.PutOutcome(ctx, existing); err != nil {
		t.Fatal(err)
	}

	incoming := existing
	incoming.Confidence = 0.9
	data := exportOf(t, incoming, testOutcome("o2", "u1", baseTime))

	result, err := verdict.ImportJSON(ctx, store, data, verdict.MergeStrategySkip, false)
	if err != nil {
		t.Fatalf("ImportJSON() returned error: %v", err)
	}
	if result.Skipped != 1 || result.Created != 1 {
		t.Errorf("result = %+v, want Skipped=1 Created=1", result)
	}

	got, err := store.GetOutcome(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want unchanged 0.5", got.Confidence)
	}
}

func TestImportJSON_ReplaceStrategy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	existing := testOutcome("o1", "u1", baseTime)
	if err := store.PutOutcome(ctx, existing); err != nil {
		t.Fatal(err)
	}

	incoming := existing
	incoming.Confidence = 0.9
	result, err := verdict.ImportJSON(ctx, store, exportOf(t, incoming), verdict.MergeStrategyReplace, false)
	if err != nil {
		t.Fatalf("ImportJSON() returned error: %v", err)
	}
	if result.Replaced != 1 {
		t.Errorf("Replaced = %d, want 1", result.Replaced)
	}

	got, err := store.GetOutcome(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", got.Confidence)
	}
}

func TestImportJSON_DryRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutOutcome(ctx, testOutcome("o1", "u1", baseTime)); err != nil {
		t.Fatal(err)
	}
	data := exportOf(t, testOutcome("o1", "u1", baseTime), testOutcome("o2", "u1", baseTime))

	result, err := verdict.ImportJSON(ctx, store, data, verdict.MergeStrategyReplace, true)
	if err != nil {
		t.Fatalf("ImportJSON() returned error: %v", err)
	}
	if result.Replaced != 1 || result.Created != 1 {
		t.Errorf("result = %+v, want Replaced=1 Created=1", result)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.OutcomeCount != 1 {
		t.Errorf("OutcomeCount = %d, want 1 after dry run", stats.OutcomeCount)
	}
}

func TestImportJSON_InvalidOutcomeReported(t *testing.T) {
	store := newTestStore(t)

	data := `{"version":"1.0","outcomes":[
		{"id":"bad","kind":"run","user_id":"u1","strategy":"shout","timestamp":"2026-03-01T12:00:00Z"},
		{"id":"good","kind":"run","user_id":"u1","strategy":"defer","confidence":0.4,"timestamp":"2026-03-01T12:00:00Z"}
	]}`
	result, err := verdict.ImportJSON(context.Background(), store, strings.NewReader(data), verdict.MergeStrategySkip, false)
	if err != nil {
		t.Fatalf("ImportJSON() returned error: %v", err)
	}
	if result.Total != 2 || result.Created != 1 {
		t.Errorf("result = %+v, want Total=2 Created=1", result)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "bad") {
		t.Errorf("Errors = %v, want one error naming outcome bad", result.Errors)
	}
}

func TestImportJSON_IgnoresUnknownFields(t *testing.T) {
	store := newTestStore(t)

	data := `{"version":"1.0","generator":{"name":"other"},"outcomes":[]}`
	if _, err := verdict.ImportJSON(context.Background(), store, strings.NewReader(data), verdict.MergeStrategySkip, false); err != nil {
		t.Errorf("ImportJSON() returned error: %v", err)
	}
}

func TestImportJSON_Rejects(t *testing.T) {
	tests := map[string]string{
		"wrong version":          `{"version":"9.9","outcomes":[]}`,
		"missing version":        `{"profile":"x"}`,
		"version after outcomes": `{"outcomes":[],"version":"1.0"}`,
		"malformed":              `{"version":"1.0","outcomes":[{`,
		"not an object":          `[]`,
		"outcomes not an array":  `{"version":"1.0","outcomes":{}}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			store := newTestStore(t)
			_, err := verdict.ImportJSON(context.Background(), store, strings.NewReader(data), verdict.MergeStrategySkip, false)
			if err == nil {
				t.Error("ImportJSON() returned nil error")
			}
		})
	}
}

func TestImportJSON_UnknownStrategy(t *testing.T) {
	store := newTestStore(t)
	if _, err := verdict.ImportJSON(context.Background(), store, exportOf(t), "merge", false); err == nil {
		t.Error("ImportJSON() returned nil error for unknown strategy")
	}
}

func TestImportJSON_Canceled(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := exportOf(t, testOutcome("o1", "u1", baseTime))
	if _, err := verdict.ImportJSON(ctx, store, data, verdict.MergeStrategySkip, false); err == nil {
		t.Error("ImportJSON() returned nil error for canceled context")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestStore(t)
	ctx := context.Background()

	want := []verdict.DecisionOutcome{
		testOutcome("o1", "u1", baseTime),
		testOutcome("o2", "u2", baseTime.Add(1500)),
	}
	want[1].Kind = verdict.OutcomeAttempt
	want[1].RunID = "o1"
	want[1].Capability = "large"
	for _, o := range want {
		if err := src.PutOutcome(ctx, o); err != nil {
			t.Fatal(err)
		}
	}
	if err := src.UpdateFeedback(ctx, "o1", 1, "perfect"); err != nil {
		t.Fatal(err)
	}
	sat := 1.0
	want[0].Satisfaction = &sat
	want[0].FeedbackDetails = "perfect"

	var buf bytes.Buffer
	if err := verdict.ExportJSON(ctx, src, "src", &buf); err != nil {
		t.Fatalf("ExportJSON() returned error: %v", err)
	}

	dst := verdict.NewMemoryStore()
	defer dst.Close()
	result, err := verdict.ImportJSON(ctx, dst, &buf, verdict.MergeStrategySkip, false)
	if err != nil {
		t.Fatalf("ImportJSON() returned error: %v", err)
	}
	if result.Created != 2 {
		t.Fatalf("Created = %d, want 2", result.Created)
	}

	var got []verdict.DecisionOutcome
	err = dst.ScanOutcomes(ctx, verdict.OutcomeFilter{}, func(o verdict.DecisionOutcome) error {
		got = append(got, o)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
