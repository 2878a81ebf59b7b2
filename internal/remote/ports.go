// Package remote defines the shared-document port used to mirror the ledger
// file to a remote store, and the spreadsheet port transactions can be
// imported from.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// Ports for outbound adapters.
type (
	// DocumentStore reads and overwrites whole documents by opaque id. Stores
	// never retry; callers decide what a failure means.
	DocumentStore interface {
		Fetch(ctx context.Context, id string) ([]byte, error)
		Replace(ctx context.Context, id string, data []byte) error
	}

	// Describer is implemented by stores that can report document metadata
	// and the identity they act as.
	Describer interface {
		Describe(ctx context.Context, id string) (Document, error)
		WhoAmI(ctx context.Context) (Identity, error)
	}

	// RowReader returns the cell values of a spreadsheet range as text,
	// one slice per row. Trailing empty cells may be omitted.
	RowReader interface {
		ReadRows(ctx context.Context, spreadsheetID, readRange string) ([][]string, error)
	}
)

// Document is the metadata a store reports for one id.
type Document struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	DriveID string `json:"drive_id,omitempty"`
}

// Identity is the account a store is authenticated as.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

var (
	// ErrUnavailable means the document does not exist or the caller may not
	// access it. Retrying will not help.
	ErrUnavailable = errors.New("remote document unavailable")
	// ErrTransient covers timeouts, throttling and server errors.
	ErrTransient = errors.New("remote store temporarily unavailable")
)

// AccessRequestURL is the page where a user can ask the owner for access to
// the shared document.
func AccessRequestURL(id string) string {
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", id)
}
