package services

import (
	"context"
	"testing"
	"time"

	"splitter/internal/remote"
	"splitter/internal/remote/memory"
	"splitter/internal/storage"
)

func testProcessorConfig() SyncProcessorConfig {
	config := DefaultSyncProcessorConfig()
	config.PollInterval = time.Hour
	config.RetryBackoff = 0
	config.MaxRetries = 2
	return config
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	config := DefaultSyncProcessorConfig()

	if config.PollInterval != 30*time.Second {
		t.Errorf("expected PollInterval 30s, got %v", config.PollInterval)
	}
	if config.BatchSize != 10 {
		t.Errorf("expected BatchSize 10, got %d", config.BatchSize)
	}
	if config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", config.MaxRetries)
	}
	if config.CleanupInterval != 1*time.Hour {
		t.Errorf("expected CleanupInterval 1h, got %v", config.CleanupInterval)
	}
	if config.CleanupAge != 24*time.Hour {
		t.Errorf("expected CleanupAge 24h, got %v", config.CleanupAge)
	}
}

func TestProcessBatchPushesOnce(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if err := repo.ReplaceRaw(ctx, []byte(remoteRow)); err != nil {
		t.Fatal(err)
	}
	store := memory.New()
	journal := newTestJournal(t)
	for _, serial := range []string{"A001", "A002", "B001"} {
		if _, err := journal.Enqueue(ctx, storage.OpInsert, serial); err != nil {
			t.Fatal(err)
		}
	}

	p := NewSyncProcessor(journal, NewMirror(repo, store, "doc"), testProcessorConfig())
	if n := p.ProcessBatch(ctx); n != 3 {
		t.Fatalf("processed %d entries, want 3", n)
	}
	if store.Writes() != 1 {
		t.Errorf("expected a single push, got %d", store.Writes())
	}
	stats, err := p.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Completed != 3 || stats.Pending != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if n := p.ProcessBatch(ctx); n != 0 {
		t.Errorf("second batch should be empty, got %d", n)
	}
}

func TestProcessBatchRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if err := repo.ReplaceRaw(ctx, []byte(remoteRow)); err != nil {
		t.Fatal(err)
	}
	store := memory.New()
	store.FailWith(remote.ErrTransient)
	journal := newTestJournal(t)
	entry, err := journal.Enqueue(ctx, storage.OpInsert, "A001")
	if err != nil {
		t.Fatal(err)
	}

	p := NewSyncProcessor(journal, NewMirror(repo, store, "doc"), testProcessorConfig())

	p.ProcessBatch(ctx)
	got, err := journal.Get(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != storage.StatusPending || got.Attempts != 1 || got.LastError == "" {
		t.Fatalf("after first failure: %+v", got)
	}

	p.ProcessBatch(ctx)
	got, err = journal.Get(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != storage.StatusFailed {
		t.Fatalf("entry should fail after max retries: %+v", got)
	}

	store.FailWith(nil)
	n, err := p.RetryFailed(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RetryFailed = %d, %v", n, err)
	}
	p.ProcessBatch(ctx)
	if got, _ = journal.Get(ctx, entry.ID); got.Status != storage.StatusCompleted {
		t.Fatalf("entry should complete after retry: %+v", got)
	}
}

func TestProcessBatchUnavailableFailsImmediately(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if err := repo.ReplaceRaw(ctx, []byte(remoteRow)); err != nil {
		t.Fatal(err)
	}
	store := memory.New()
	store.FailWith(remote.ErrUnavailable)
	journal := newTestJournal(t)
	entry, err := journal.Enqueue(ctx, storage.OpDelete, "A001")
	if err != nil {
		t.Fatal(err)
	}

	config := testProcessorConfig()
	config.MaxRetries = 5
	NewSyncProcessor(journal, NewMirror(repo, store, "doc"), config).ProcessBatch(ctx)

	got, err := journal.Get(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != storage.StatusFailed {
		t.Fatalf("unavailable document should not be retried: %+v", got)
	}
}

func TestProcessBatchWithoutMirrorCompletes(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t)
	if _, err := journal.Enqueue(ctx, storage.OpPush, ""); err != nil {
		t.Fatal(err)
	}

	p := NewSyncProcessor(journal, NewMirror(newTestRepo(t), nil, ""), testProcessorConfig())
	p.ProcessBatch(ctx)

	stats, err := p.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Completed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSyncProcessorLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewSyncProcessor(newTestJournal(t), NewMirror(newTestRepo(t), memory.New(), "doc"), testProcessorConfig())
	if p.IsRunning() {
		t.Fatal("processor should not be running initially")
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop on idle processor: %v", err)
	}

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}

	p.Trigger()
	p.Trigger()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
}

func TestTriggerDrainsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := newTestRepo(t)
	if err := repo.ReplaceRaw(ctx, []byte(remoteRow)); err != nil {
		t.Fatal(err)
	}
	store := memory.New()
	journal := newTestJournal(t)
	p := NewSyncProcessor(journal, NewMirror(repo, store, "doc"), testProcessorConfig())
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer p.Stop(context.Background())

	if _, err := journal.Enqueue(ctx, storage.OpInsert, "A001"); err != nil {
		t.Fatal(err)
	}
	p.Trigger()

	deadline := time.Now().Add(5 * time.Second)
	for store.Writes() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("triggered drain did not push")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
