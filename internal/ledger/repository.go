// Package ledger persists transactions to a headerless CSV file shared between
// processes through advisory file locks.
package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"splitter/internal/core"
)

// Repository is the CSV-backed transaction store. It holds no state besides
// the path: every call reopens the file, so several processes may share it.
type Repository struct {
	path   string
	roster core.Roster
}

func NewRepository(path string, roster core.Roster) *Repository {
	return &Repository{path: path, roster: roster}
}

// Path returns the ledger file location.
func (r *Repository) Path() string { return r.path }

// LoadAll returns every decodable row in file order. A missing file is an
// empty ledger. Rows no decoder accepts are skipped.
func (r *Repository) LoadAll(ctx context.Context) ([]core.Transaction, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []core.Transaction{}, nil
	}
	if err != nil {
		return nil, storageErr("open", r.path, err)
	}
	defer f.Close()

	release, err := acquire(ctx, f, lockShared)
	if err != nil {
		return nil, err
	}
	defer release()

	return r.decodeAll(ctx, f)
}

// Save appends t as one row, creating the file and its directory if needed.
func (r *Repository) Save(ctx context.Context, t core.Transaction) error {
	_, err := r.Insert(ctx, func([]core.Transaction) (core.Transaction, error) {
		return t, nil
	})
	return err
}

// Insert loads the ledger, asks build for the row to add, and appends it,
// all under one exclusive lock. Serial numbers minted inside build cannot
// collide with another writer on the same host.
func (r *Repository) Insert(ctx context.Context, build func(existing []core.Transaction) (core.Transaction, error)) (core.Transaction, error) {
	var t core.Transaction
	err := r.appendLocked(ctx, func(existing []core.Transaction) ([]core.Transaction, error) {
		var err error
		t, err = build(existing)
		if err != nil {
			return nil, err
		}
		return []core.Transaction{t}, nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.DebugContext(ctx, "Transaction appended",
		"serial_number", t.SerialNumber,
		"category", t.Category,
		"amount", t.Amount.String())
	return t, nil
}

// AppendMissing appends the transactions whose serial is not already in the
// ledger, keeping the first of any duplicates in txns. It returns what was
// written.
func (r *Repository) AppendMissing(ctx context.Context, txns []core.Transaction) ([]core.Transaction, error) {
	var added []core.Transaction
	err := r.appendLocked(ctx, func(existing []core.Transaction) ([]core.Transaction, error) {
		seen := make(map[string]struct{}, len(existing)+len(txns))
		for _, t := range existing {
			seen[t.SerialNumber] = struct{}{}
		}
		for _, t := range txns {
			if _, ok := seen[t.SerialNumber]; ok {
				continue
			}
			seen[t.SerialNumber] = struct{}{}
			added = append(added, t)
		}
		return added, nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// appendLocked reads the ledger and appends whatever build returns, all
// under one exclusive lock.
func (r *Repository) appendLocked(ctx context.Context, build func(existing []core.Transaction) ([]core.Transaction, error)) error {
	f, err := r.openWritable(os.O_APPEND)
	if err != nil {
		return err
	}
	defer f.Close()

	release, err := acquire(ctx, f, lockExclusive)
	if err != nil {
		return err
	}
	defer release()

	existing, err := r.decodeAll(ctx, f)
	if err != nil {
		return err
	}
	rows, err := build(existing)
	if err != nil || len(rows) == 0 {
		return err
	}

	var buf bytes.Buffer
	if needsNewline(f) {
		buf.WriteByte('\n')
	}
	if err := writeRows(&buf, rows); err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return storageErr("append", r.path, err)
	}
	return nil
}

// Delete removes every row whose serial equals serial. The read and the
// rewrite happen under one exclusive lock. Deleting an unknown serial, or
// from a missing file, is a no-op.
func (r *Repository) Delete(ctx context.Context, serial string) error {
	f, err := os.OpenFile(r.path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return storageErr("open", r.path, err)
	}
	defer f.Close()

	release, err := acquire(ctx, f, lockExclusive)
	if err != nil {
		return err
	}
	defer release()

	all, err := r.decodeAll(ctx, f)
	if err != nil {
		return err
	}
	remaining := all[:0:0]
	for _, t := range all {
		if t.SerialNumber != serial {
			remaining = append(remaining, t)
		}
	}
	if len(remaining) == len(all) {
		return nil
	}

	var buf bytes.Buffer
	if err := writeRows(&buf, remaining); err != nil {
		return err
	}
	if err := rewrite(f, buf.Bytes()); err != nil {
		return storageErr("rewrite", r.path, err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"serial_number", serial,
		"removed", len(all)-len(remaining))
	return nil
}

// ReadRaw returns the file bytes as stored. A missing file reads as
// fs.ErrNotExist so callers can tell it apart from an empty ledger.
func (r *Repository) ReadRaw(ctx context.Context) ([]byte, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("open", r.path, err)
	}
	defer f.Close()

	release, err := acquire(ctx, f, lockShared)
	if err != nil {
		return nil, err
	}
	defer release()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, storageErr("read", r.path, err)
	}
	return data, nil
}

// ReplaceRaw overwrites the whole file with data under an exclusive lock.
func (r *Repository) ReplaceRaw(ctx context.Context, data []byte) error {
	f, err := r.openWritable(0)
	if err != nil {
		return err
	}
	defer f.Close()

	release, err := acquire(ctx, f, lockExclusive)
	if err != nil {
		return err
	}
	defer release()

	if err := rewrite(f, data); err != nil {
		return storageErr("rewrite", r.path, err)
	}
	return nil
}

// Exists reports whether the ledger file is present.
func (r *Repository) Exists() bool {
	_, err := os.Stat(r.path)
	return err == nil
}

// Version fingerprints the file contents. Size and mtime are not enough: a
// same-size rewrite within one mtime tick would go unnoticed.
func (r *Repository) Version(ctx context.Context) (string, error) {
	data, err := r.ReadRaw(ctx)
	if errors.Is(err, fs.ErrNotExist) {
		return "absent", nil
	}
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%d-%x", len(data), sum[:8]), nil
}

func (r *Repository) openWritable(extra int) (*os.File, error) {
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageErr("mkdir", dir, err)
		}
	}
	f, err := os.OpenFile(r.path, os.O_RDWR|os.O_CREATE|extra, 0o644)
	if err != nil {
		return nil, storageErr("open", r.path, err)
	}
	return f, nil
}

func (r *Repository) decodeAll(ctx context.Context, f *os.File) ([]core.Transaction, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, storageErr("seek", r.path, err)
	}

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	out := []core.Transaction{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			slog.WarnContext(ctx, "Skipping unreadable ledger row",
				"path", r.path, "line", perr.Line, "error", err)
			continue
		}
		if err != nil {
			return nil, storageErr("read", r.path, err)
		}
		if isBlank(row) {
			continue
		}

		t, err := decodeRow(row, r.roster)
		if err != nil {
			line, _ := cr.FieldPos(0)
			slog.WarnContext(ctx, "Skipping malformed ledger row",
				"path", r.path, "line", line, "error", err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func writeRows(w io.Writer, txns []core.Transaction) error {
	cw := csv.NewWriter(w)
	for _, t := range txns {
		if err := cw.Write(encodeRow(t)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func rewrite(f *os.File, data []byte) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// needsNewline reports whether the file ends mid-row, as happens when it was
// last written by a tool that omits the trailing newline.
func needsNewline(f *os.File) bool {
	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return false
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false
	}
	return last[0] != '\n'
}

func isBlank(row []string) bool {
	for _, field := range row {
		if field != "" {
			return false
		}
	}
	return true
}
