package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/richinex/parley/llm"
)

func TestUsageLedgerSummary(t *testing.T) {
	ledger, err := NewUsageLedgerInMemory(nil)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	defer ledger.Close()

	ctx := context.Background()
	now := time.Now()

	records := []llm.UsageRecord{
		{Provider: "openai", Model: "gpt-4o", Usage: &llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, Duration: 100 * time.Millisecond},
		{Provider: "openai", Model: "gpt-4o", Usage: &llm.TokenUsage{PromptTokens: 20, CompletionTokens: 5, TotalTokens: 25}, Duration: 300 * time.Millisecond},
		{Provider: "ollama", Model: "llama3", Duration: 50 * time.Millisecond, Err: errors.New("connection refused")},
	}
	for _, rec := range records {
		if err := ledger.Insert(ctx, rec, now); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	summaries, err := ledger.Summary(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}

	gpt := summaries[0]
	if gpt.Model != "gpt-4o" || gpt.Calls != 2 || gpt.TotalTokens != 40 || gpt.Failures != 0 {
		t.Errorf("unexpected gpt summary: %+v", gpt)
	}
	if gpt.AvgDuration != 200*time.Millisecond {
		t.Errorf("expected avg 200ms, got %v", gpt.AvgDuration)
	}

	llama := summaries[1]
	if llama.Model != "llama3" || llama.Failures != 1 || llama.TotalTokens != 0 {
		t.Errorf("unexpected llama summary: %+v", llama)
	}
}

func TestUsageLedgerSummarySince(t *testing.T) {
	ledger, err := NewUsageLedgerInMemory(nil)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	defer ledger.Close()

	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	if err := ledger.Insert(ctx, llm.UsageRecord{Provider: "openai", Model: "gpt-4o"}, old); err != nil {
		t.Fatal(err)
	}

	summaries, err := ledger.Summary(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 0 {
		t.Errorf("expected old rows filtered, got %+v", summaries)
	}
}

func TestUsageLedgerRecordUsageWithExpiredContext(t *testing.T) {
	ledger, err := NewUsageLedgerInMemory(nil)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	defer ledger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ledger.RecordUsage(ctx, llm.UsageRecord{Provider: "openai", Model: "gpt-4o"})

	summaries, err := ledger.Summary(context.Background(), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].Calls != 1 {
		t.Errorf("expected recorded row, got %+v", summaries)
	}
}

func TestOpenUsageLedgerCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "usage.db")
	ledger, err := OpenUsageLedger(path, nil)
	if err != nil {
		t.Fatalf("OpenUsageLedger failed: %v", err)
	}
	defer ledger.Close()

	if err := ledger.Insert(context.Background(), llm.UsageRecord{Provider: "p", Model: "m"}, time.Now()); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
}
