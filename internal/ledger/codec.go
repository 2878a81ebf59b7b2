package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"splitter/internal/core"
)

// Current row layout:
//
//	serial, description, paid_by, date, group, category, split, amount
const rowWidth = 8

// decoder turns one CSV record into a transaction or reports why it cannot.
type decoder func(row []string, r core.Roster) (core.Transaction, error)

// decoders are tried in order; the first success wins.
var decoders = []decoder{decodeCurrent, decodeLegacy}

var errShortRow = errors.New("row has fewer than 8 fields")

// DecodeRows decodes rows that come from outside the ledger file, such as a
// spreadsheet range. Rows no decoder accepts are skipped, as they are when
// loading the file.
func DecodeRows(ctx context.Context, rows [][]string, r core.Roster) []core.Transaction {
	out := make([]core.Transaction, 0, len(rows))
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		t, err := decodeRow(trimCells(row), r)
		if err != nil {
			slog.DebugContext(ctx, "Skipping malformed row", "row", i+1, "error", err)
			continue
		}
		out = append(out, t)
	}
	return out
}

func trimCells(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func decodeRow(row []string, r core.Roster) (core.Transaction, error) {
	var errs []error
	for _, dec := range decoders {
		t, err := dec(row, r)
		if err == nil {
			return t, nil
		}
		errs = append(errs, err)
	}
	return core.Transaction{}, errors.Join(errs...)
}

func decodeCurrent(row []string, _ core.Roster) (core.Transaction, error) {
	if len(row) < rowWidth {
		return core.Transaction{}, errShortRow
	}
	split, err := strconv.ParseFloat(strings.TrimSpace(row[6]), 64)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("split %q: %w", row[6], err)
	}
	// ParseFloat accepts NaN and Inf; neither can be allocated.
	if err := core.ValidateSplit(split); err != nil {
		return core.Transaction{}, fmt.Errorf("split %q: %w", row[6], err)
	}
	amount, err := core.ParseMoney(row[7])
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		SerialNumber: row[0],
		Description:  row[1],
		PaidBy:       row[2],
		Date:         row[3],
		Group:        row[4],
		Category:     row[5],
		Split:        split,
		Amount:       amount,
	}, nil
}

var fractionLabel = regexp.MustCompile(`\((\d+)/(\d+)`)

// decodeLegacy reads rows written before the split column became numeric:
//
//	serial, description, paid_by, group, date, amount, category, split_label
//
// The label carries the split as a fraction, e.g. "Even (1/2 each)". Without
// one the payer is assumed to cover an equal share.
func decodeLegacy(row []string, r core.Roster) (core.Transaction, error) {
	if len(row) < rowWidth {
		return core.Transaction{}, errShortRow
	}
	amount, err := core.ParseMoney(row[5])
	if err != nil {
		return core.Transaction{}, err
	}

	var split decimal.Decimal
	if m := fractionLabel.FindStringSubmatch(row[7]); m != nil {
		num, _ := decimal.NewFromString(m[1])
		den, _ := decimal.NewFromString(m[2])
		if den.IsZero() {
			return core.Transaction{}, fmt.Errorf("split label %q: zero denominator", row[7])
		}
		split = num.Div(den).Round(1)
	} else {
		n := len(r.Participants())
		if n == 0 {
			return core.Transaction{}, errors.New("no participants for default split")
		}
		split = decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(n))).Round(1)
	}

	f, _ := split.Float64()
	if err := core.ValidateSplit(f); err != nil {
		return core.Transaction{}, fmt.Errorf("split label %q: %w", row[7], err)
	}
	return core.Transaction{
		SerialNumber: row[0],
		Description:  row[1],
		PaidBy:       row[2],
		Group:        row[3],
		Date:         row[4],
		Category:     row[6],
		Split:        f,
		Amount:       amount,
	}, nil
}

func encodeRow(t core.Transaction) []string {
	return []string{
		t.SerialNumber,
		t.Description,
		t.PaidBy,
		t.Date,
		t.Group,
		t.Category,
		strconv.FormatFloat(t.Split, 'f', 1, 64),
		t.Amount.String(),
	}
}
