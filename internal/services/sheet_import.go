package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"splitter/internal/core"
	"splitter/internal/ledger"
	applog "splitter/internal/log"
	"splitter/internal/remote"
	"splitter/internal/storage"
)

// ErrSheetsDisabled is returned when no spreadsheet is configured.
var ErrSheetsDisabled = errors.New("no spreadsheet configured")

// SheetSource reads transactions kept in a spreadsheet range laid out like
// the ledger file, one transaction per row.
type SheetSource struct {
	reader        remote.RowReader
	roster        core.Roster
	spreadsheetID string
	readRange     string
}

// NewSheetSource returns a source for the given range. A nil reader gives a
// disabled source.
func NewSheetSource(reader remote.RowReader, roster core.Roster, spreadsheetID, readRange string) *SheetSource {
	return &SheetSource{reader: reader, roster: roster, spreadsheetID: spreadsheetID, readRange: readRange}
}

func (s *SheetSource) Enabled() bool { return s != nil && s.reader != nil }

func (s *SheetSource) SpreadsheetID() string {
	if s == nil {
		return ""
	}
	return s.spreadsheetID
}

// Load reads the range and decodes every row the ledger decoders accept.
// Short or malformed rows are skipped.
func (s *SheetSource) Load(ctx context.Context) ([]core.Transaction, error) {
	if !s.Enabled() {
		return nil, ErrSheetsDisabled
	}
	rows, err := s.reader.ReadRows(ctx, s.spreadsheetID, s.readRange)
	if err != nil {
		return nil, err
	}
	txns := ledger.DecodeRows(ctx, rows, s.roster)

	slog.InfoContext(ctx, "Spreadsheet read",
		applog.FieldComponent, applog.ComponentBackend,
		applog.FieldDocumentID, s.spreadsheetID,
		"range", s.readRange,
		"rows", len(rows),
		"transactions", len(txns))
	return txns, nil
}

// ImportResult reports which spreadsheet rows reached the ledger.
type ImportResult struct {
	Imported []string `json:"imported"`
	Skipped  int      `json:"skipped"`
}

// ImportTransactions appends the transactions whose serial the ledger does
// not hold yet. Rows already present are left untouched.
func (s *SplitterService) ImportTransactions(ctx context.Context, txns []core.Transaction) (ImportResult, error) {
	added, err := s.repo.AppendMissing(ctx, txns)
	if err != nil {
		return ImportResult{}, fmt.Errorf("import transactions: %w", err)
	}

	res := ImportResult{Imported: make([]string, 0, len(added)), Skipped: len(txns) - len(added)}
	for _, t := range added {
		res.Imported = append(res.Imported, t.SerialNumber)
	}
	if len(added) > 0 {
		s.afterChange(ctx, storage.OpPush, "")
	}
	return res, nil
}
