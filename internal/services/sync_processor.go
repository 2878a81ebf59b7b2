package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	applog "splitter/internal/log"
	"splitter/internal/remote"
	"splitter/internal/storage"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending entries (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of entries claimed per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum attempts before an entry is marked failed (default: 3)
	MaxRetries int

	// RetryBackoff is the delay before the first retry; it doubles per attempt (default: 5s)
	RetryBackoff time.Duration

	// CleanupInterval is how often to clean up completed entries (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed entries must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:    30 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		RetryBackoff:    5 * time.Second,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// SyncProcessor drains the journal by pushing the ledger file to the remote
// document. One push covers every entry in a batch since the file is sent
// whole.
type SyncProcessor struct {
	journal *storage.Journal
	mirror  *Mirror
	config  SyncProcessorConfig

	trigger chan struct{}

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor creates a new sync processor
func NewSyncProcessor(journal *storage.Journal, mirror *Mirror, config SyncProcessorConfig) *SyncProcessor {
	return &SyncProcessor{
		journal: journal,
		mirror:  mirror,
		config:  config,
		trigger: make(chan struct{}, 1),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Entries left processing by a crashed run
	if _, err := p.journal.ResetStaleProcessing(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing entries", "error", err)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		applog.FieldComponent, applog.ComponentWorker,
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Trigger asks the loop to drain now instead of at the next tick. It never
// blocks; triggers arriving while one is pending are merged.
func (p *SyncProcessor) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.ProcessBatch(ctx)
		case <-p.trigger:
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// ProcessBatch claims one batch of due entries and pushes the ledger once
// for all of them. It returns the number of entries claimed.
func (p *SyncProcessor) ProcessBatch(ctx context.Context) int {
	entries, err := p.journal.DequeueBatch(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue journal batch", "error", err)
		return 0
	}
	if len(entries) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing journal batch", "count", len(entries))

	pushErr := p.mirror.Push(ctx)
	if errors.Is(pushErr, ErrMirrorDisabled) {
		slog.DebugContext(ctx, "Remote mirror disabled, completing journal entries", "count", len(entries))
		pushErr = nil
	}

	if pushErr == nil {
		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		if err := p.journal.MarkComplete(ctx, ids...); err != nil {
			slog.ErrorContext(ctx, "Failed to mark journal entries complete", "error", err)
		}
		return len(entries)
	}

	for _, e := range entries {
		p.handleFailure(ctx, e, pushErr)
	}
	return len(entries)
}

// handleFailure schedules a retry with exponential backoff or parks the entry
// once retries are exhausted. An unavailable document is never retried.
func (p *SyncProcessor) handleFailure(ctx context.Context, e storage.Entry, pushErr error) {
	attempt := e.Attempts + 1
	slog.WarnContext(ctx, "Journal push failed",
		"id", e.ID,
		applog.FieldOperation, e.Operation,
		applog.FieldSerialNumber, e.Serial,
		"attempt", attempt,
		"error", pushErr)

	if attempt >= p.config.MaxRetries || errors.Is(pushErr, remote.ErrUnavailable) {
		if err := p.journal.MarkFailed(ctx, e.ID, pushErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark journal entry failed", "id", e.ID, "error", err)
		}
		slog.ErrorContext(ctx, "Journal entry failed permanently",
			"id", e.ID,
			applog.FieldSerialNumber, e.Serial,
			"attempts", attempt)
		return
	}

	if err := p.journal.IncrementAttempt(ctx, e.ID, pushErr.Error(), p.backoff(e.Attempts)); err != nil {
		slog.ErrorContext(ctx, "Failed to schedule journal retry", "id", e.ID, "error", err)
	}
}

func (p *SyncProcessor) backoff(attempts int) time.Duration {
	return p.config.RetryBackoff << attempts
}

// cleanupCompleted removes old completed entries
func (p *SyncProcessor) cleanupCompleted(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupAge)
	n, err := p.journal.CleanupCompleted(ctx, cutoff)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup completed journal entries", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up completed journal entries", "count", n)
	}
}

// Stats returns current journal statistics
func (p *SyncProcessor) Stats(ctx context.Context) (storage.Stats, error) {
	return p.journal.Stats(ctx)
}

// RetryFailed resets all failed entries for retry and wakes the loop.
func (p *SyncProcessor) RetryFailed(ctx context.Context) (int64, error) {
	n, err := p.journal.RetryFailed(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.Trigger()
	}
	return n, nil
}
