package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"splitter/internal/core"
	"splitter/internal/ledger"
	"splitter/internal/storage"
)

type recordingPublisher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *recordingPublisher) PublishLedgerChange(_ context.Context, operation, serial string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, operation+":"+serial)
	return p.err
}

func newTestRepo(t *testing.T) *ledger.Repository {
	t.Helper()
	return ledger.NewRepository(filepath.Join(t.TempDir(), "data", "transactions.csv"), core.DefaultRoster())
}

func newTestJournal(t *testing.T) *storage.Journal {
	t.Helper()
	j, err := storage.Open(filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func dollars(cents int64) core.Money {
	return core.Money{Cents: cents}
}
