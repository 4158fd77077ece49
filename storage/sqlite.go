// SQLite usage ledger.
//
// Information Hiding:
// - SQLite connection management hidden behind the ledger type
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling
//
// The ledger stores one row per completion call: model, provider, token
// counts, latency and outcome. Message content is never written, so
// conversation history stays in memory only.

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/richinex/parley/llm"
)

// UsageLedger records completion calls in SQLite.
type UsageLedger struct {
	db     *sql.DB
	logger *slog.Logger
}

// UsageSummary aggregates ledger rows for one provider/model pair.
type UsageSummary struct {
	Provider         string
	Model            string
	Calls            int
	Failures         int
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	AvgDuration      time.Duration
}

// OpenUsageLedger opens or creates a ledger database at the given path.
// Creates parent directories if they don't exist.
func OpenUsageLedger(path string, logger *slog.Logger) (*UsageLedger, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newUsageLedger(db, logger)
}

// NewUsageLedgerInMemory creates an in-memory ledger (useful for testing).
func NewUsageLedgerInMemory(logger *slog.Logger) (*UsageLedger, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newUsageLedger(db, logger)
}

func newUsageLedger(db *sql.DB, logger *slog.Logger) (*UsageLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ledger := &UsageLedger{db: db, logger: logger}
	if err := ledger.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return ledger, nil
}

// Close closes the database connection.
func (l *UsageLedger) Close() error {
	return l.db.Close()
}

func (l *UsageLedger) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS completions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			error TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_completions_created
		ON completions(created_at);

		CREATE INDEX IF NOT EXISTS idx_completions_model
		ON completions(provider, model);
	`

	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Insert writes one record.
func (l *UsageLedger) Insert(ctx context.Context, rec llm.UsageRecord, at time.Time) error {
	var prompt, completion, total uint32
	if rec.Usage != nil {
		prompt, completion, total = rec.Usage.PromptTokens, rec.Usage.CompletionTokens, rec.Usage.TotalTokens
	}
	var errText sql.NullString
	if rec.Err != nil {
		errText = sql.NullString{String: rec.Err.Error(), Valid: true}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO completions
			(id, created_at, provider, model, prompt_tokens, completion_tokens, total_tokens, duration_ms, ok, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), at.Unix(), rec.Provider, rec.Model,
		prompt, completion, total, rec.Duration.Milliseconds(), rec.Err == nil, errText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage: %w", err)
	}
	return nil
}

// RecordUsage implements llm.UsageRecorder. Write failures are logged;
// the ledger never blocks a reply.
func (l *UsageLedger) RecordUsage(ctx context.Context, rec llm.UsageRecord) {
	// The completion context may already be past its deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := l.Insert(ctx, rec, time.Now()); err != nil {
		l.logger.Warn("usage ledger write failed", "model", rec.Model, "error", err)
	}
}

// Summary aggregates rows created at or after since, grouped by
// provider and model, busiest first.
func (l *UsageLedger) Summary(ctx context.Context, since time.Time) ([]UsageSummary, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT provider, model, COUNT(*),
			SUM(CASE WHEN ok THEN 0 ELSE 1 END),
			SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens),
			AVG(duration_ms)
		FROM completions
		WHERE created_at >= ?
		GROUP BY provider, model
		ORDER BY COUNT(*) DESC, provider, model`,
		since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	summaries := []UsageSummary{}
	for rows.Next() {
		var s UsageSummary
		var avgMs float64
		if err := rows.Scan(&s.Provider, &s.Model, &s.Calls, &s.Failures,
			&s.PromptTokens, &s.CompletionTokens, &s.TotalTokens, &avgMs); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		s.AvgDuration = time.Duration(avgMs * float64(time.Millisecond))
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage: %w", err)
	}
	return summaries, nil
}

// Verify UsageLedger implements llm.UsageRecorder
var _ llm.UsageRecorder = (*UsageLedger)(nil)
