package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"splitter/internal/cache"
	"splitter/internal/core"
	"splitter/internal/ledger"
	applog "splitter/internal/log"
	"splitter/internal/storage"
)

// ChangePublisher announces ledger changes to other processes.
type ChangePublisher interface {
	PublishLedgerChange(ctx context.Context, operation, serial string) error
}

// ValidationError wraps a rejected user submission.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// NewTransaction is a user submission before a serial number is assigned.
type NewTransaction struct {
	Description string
	PaidBy      string
	Date        string
	Group       string
	Category    string
	Split       float64
	Amount      core.Money
}

// Snapshot is the ledger together with the summaries derived from it.
type Snapshot struct {
	Version      string              `json:"version"`
	Transactions []core.Transaction  `json:"-"`
	Summary      core.Summary        `json:"summary"`
	Groups       []core.GroupSummary `json:"groups"`
}

const (
	snapshotCacheSize = 8
	snapshotCacheTTL  = 30 * time.Second
)

// SplitterService coordinates the ledger file, the sync journal and change
// notifications. The journal and publisher are optional.
type SplitterService struct {
	repo      *ledger.Repository
	roster    core.Roster
	journal   *storage.Journal
	publisher ChangePublisher
	snapshots *cache.LRU[*Snapshot]
	logger    *applog.StructuredLogger
	now       func() time.Time
}

func NewSplitterService(repo *ledger.Repository, roster core.Roster, journal *storage.Journal, publisher ChangePublisher) *SplitterService {
	return &SplitterService{
		repo:      repo,
		roster:    roster,
		journal:   journal,
		publisher: publisher,
		snapshots: cache.NewLRU[*Snapshot](snapshotCacheSize, snapshotCacheTTL),
		logger:    applog.NewStructuredLogger(applog.FromContext(context.Background())),
		now:       time.Now,
	}
}

// Roster returns the participant and category configuration.
func (s *SplitterService) Roster() core.Roster {
	return s.roster
}

// RegisterCaches hands the service's caches to m for periodic expiry.
func (s *SplitterService) RegisterCaches(m *cache.Manager) {
	m.Register(s.snapshots)
}

// AddTransaction validates in, assigns the next serial number for its
// category and appends it to the ledger. Serial assignment and append happen
// under one exclusive lock.
func (s *SplitterService) AddTransaction(ctx context.Context, in NewTransaction) (core.Transaction, error) {
	t := core.Transaction{
		Description: strings.TrimSpace(in.Description),
		PaidBy:      strings.TrimSpace(in.PaidBy),
		Date:        strings.TrimSpace(in.Date),
		Group:       strings.TrimSpace(in.Group),
		Category:    strings.TrimSpace(in.Category),
		Split:       core.RoundSplit(in.Split),
		Amount:      in.Amount,
	}
	if t.Date == "" {
		t.Date = s.now().Format(core.DateLayout)
	}
	if t.Group == "" {
		t.Group = core.DefaultGroup
	}
	if err := t.Validate(s.roster); err != nil {
		return core.Transaction{}, &ValidationError{Err: err}
	}

	stored, err := s.repo.Insert(ctx, func(existing []core.Transaction) (core.Transaction, error) {
		serial, err := core.NextSerial(s.roster, t.Category, existing)
		if err != nil {
			return core.Transaction{}, err
		}
		t.SerialNumber = serial
		return t, nil
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}

	s.logger.LogTransactionAdded(ctx, stored.SerialNumber, stored.PaidBy, stored.Category, stored.Group, stored.Amount.String())
	s.afterChange(ctx, storage.OpInsert, stored.SerialNumber)
	return stored, nil
}

// DeleteTransaction removes every row with serial. Deleting an unknown serial
// is not an error.
func (s *SplitterService) DeleteTransaction(ctx context.Context, serial string) error {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return &ValidationError{Err: errors.New("serial number is required")}
	}
	if err := s.repo.Delete(ctx, serial); err != nil {
		return fmt.Errorf("delete transaction %s: %w", serial, err)
	}
	slog.InfoContext(ctx, "Transaction deleted",
		applog.FieldComponent, applog.ComponentSplitter,
		applog.FieldSerialNumber, serial)
	s.afterChange(ctx, storage.OpDelete, serial)
	return nil
}

// Snapshot loads the ledger and computes its summaries. Results are cached by
// file version, so an unchanged file is not re-read.
func (s *SplitterService) Snapshot(ctx context.Context) (*Snapshot, error) {
	version, err := s.repo.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger version: %w", err)
	}
	if snap, ok := s.snapshots.Get(version); ok {
		return snap, nil
	}

	txns, err := s.repo.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	participants := s.roster.Participants()
	snap := &Snapshot{
		Version:      version,
		Transactions: txns,
		Summary:      core.Summarize(txns, participants),
		Groups:       core.SummarizeGroups(txns, participants),
	}
	s.snapshots.Set(version, snap)
	return snap, nil
}

// Ready reports whether the ledger location can be inspected.
func (s *SplitterService) Ready(ctx context.Context) error {
	_, err := s.repo.Version(ctx)
	return err
}

// Invalidate drops cached snapshots, e.g. after the file was replaced by a pull.
func (s *SplitterService) Invalidate() {
	s.snapshots.Purge()
}

func (s *SplitterService) afterChange(ctx context.Context, op storage.Operation, serial string) {
	s.snapshots.Purge()

	if s.journal != nil {
		if _, err := s.journal.Enqueue(ctx, op, serial); err != nil {
			// The row is stored; the next push carries it anyway.
			slog.ErrorContext(ctx, "Failed to enqueue journal entry",
				applog.FieldOperation, op,
				applog.FieldSerialNumber, serial,
				"error", err)
		}
	}

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerChange(ctx, string(op), serial); err != nil {
		slog.WarnContext(ctx, "Failed to publish ledger change",
			applog.FieldOperation, op,
			applog.FieldSerialNumber, serial,
			"error", err)
	}
}
