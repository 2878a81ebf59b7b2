package google

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"splitter/internal/remote"
)

// SheetsReader reads transaction rows from a Google spreadsheet.
type SheetsReader struct {
	svc *gsheet.Service
}

var _ remote.RowReader = (*SheetsReader)(nil)

// NewSheets creates a Sheets reader. As with New, ts may be nil when opts
// already carry an authenticated HTTP client.
func NewSheets(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*SheetsReader, error) {
	var all []option.ClientOption
	if ts != nil {
		all = append(all, option.WithHTTPClient(newHTTPClient(ts)))
	}
	all = append(all, opts...)

	svc, err := gsheet.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsReader{svc: svc}, nil
}

// ReadRows returns the formatted values of readRange. Cells are trimmed;
// the caller decides which rows are usable.
func (s *SheetsReader) ReadRows(ctx context.Context, spreadsheetID, readRange string) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).
		MajorDimension("ROWS").
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("sheets", "read "+readRange, spreadsheetID, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, cells := range resp.Values {
		row := make([]string, len(cells))
		for i, v := range cells {
			row[i] = strings.TrimSpace(fmt.Sprint(v))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
