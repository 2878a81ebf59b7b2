package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"splitter/internal/ledger"
	applog "splitter/internal/log"
	"splitter/internal/remote"
)

// ErrMirrorDisabled is returned by Pull and Push when no remote store is
// configured.
var ErrMirrorDisabled = errors.New("remote mirror is not configured")

// Mirror copies the whole ledger file to and from a remote document. The last
// writer wins; there is no merge.
type Mirror struct {
	repo  *ledger.Repository
	store remote.DocumentStore
	docID string
}

// NewMirror returns a mirror for docID. store may be nil, which disables it.
func NewMirror(repo *ledger.Repository, store remote.DocumentStore, docID string) *Mirror {
	return &Mirror{repo: repo, store: store, docID: docID}
}

func (m *Mirror) Enabled() bool { return m != nil && m.store != nil }

func (m *Mirror) DocumentID() string { return m.docID }

// Pull overwrites the local ledger with the remote document.
func (m *Mirror) Pull(ctx context.Context) error {
	if !m.Enabled() {
		return ErrMirrorDisabled
	}
	data, err := m.store.Fetch(ctx, m.docID)
	if err != nil {
		return fmt.Errorf("pull %s: %w", m.docID, err)
	}
	if err := m.repo.ReplaceRaw(ctx, data); err != nil {
		return fmt.Errorf("pull %s: %w", m.docID, err)
	}
	slog.InfoContext(ctx, "Pulled ledger from remote",
		applog.FieldComponent, applog.ComponentMirror,
		applog.FieldDocumentID, m.docID,
		applog.FieldBytes, len(data))
	return nil
}

// Push overwrites the remote document with the local ledger. A missing local
// file pushes nothing.
func (m *Mirror) Push(ctx context.Context) error {
	if !m.Enabled() {
		return ErrMirrorDisabled
	}
	if !m.repo.Exists() {
		slog.InfoContext(ctx, "No local ledger to push",
			applog.FieldComponent, applog.ComponentMirror,
			"path", m.repo.Path())
		return nil
	}
	data, err := m.repo.ReadRaw(ctx)
	if err != nil {
		return fmt.Errorf("push %s: %w", m.docID, err)
	}
	if err := m.store.Replace(ctx, m.docID, data); err != nil {
		return fmt.Errorf("push %s: %w", m.docID, err)
	}
	slog.InfoContext(ctx, "Pushed ledger to remote",
		applog.FieldComponent, applog.ComponentMirror,
		applog.FieldDocumentID, m.docID,
		applog.FieldBytes, len(data))
	return nil
}

// PullOnStartup pulls before the ledger is served. Only a local storage
// failure is returned; remote failures are logged and the local copy is used.
func (m *Mirror) PullOnStartup(ctx context.Context) error {
	err := m.Pull(ctx)
	switch {
	case err == nil, errors.Is(err, ErrMirrorDisabled):
		return nil
	case errors.Is(err, ledger.ErrStorageAccess):
		return err
	case errors.Is(err, remote.ErrUnavailable):
		slog.WarnContext(ctx, "Remote ledger unavailable, using local copy",
			applog.FieldComponent, applog.ComponentMirror,
			applog.FieldDocumentID, m.docID,
			applog.FieldAccessRequest, remote.AccessRequestURL(m.docID),
			"error", err)
	default:
		slog.WarnContext(ctx, "Pull failed, using local copy",
			applog.FieldComponent, applog.ComponentMirror,
			applog.FieldDocumentID, m.docID,
			"error", err)
	}
	return nil
}

// PushOnShutdown pushes the final state and logs any failure.
func (m *Mirror) PushOnShutdown(ctx context.Context) {
	if err := m.Push(ctx); err != nil && !errors.Is(err, ErrMirrorDisabled) {
		slog.ErrorContext(ctx, "Push on shutdown failed",
			applog.FieldComponent, applog.ComponentMirror,
			applog.FieldDocumentID, m.docID,
			"error", err)
	}
}

// MirrorStatus reports what the remote store knows about the document.
type MirrorStatus struct {
	Enabled          bool             `json:"enabled"`
	DocumentID       string           `json:"document_id,omitempty"`
	Document         *remote.Document `json:"document,omitempty"`
	Identity         *remote.Identity `json:"identity,omitempty"`
	AccessRequestURL string           `json:"access_request_url,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// Status runs the preflight checks: who the store acts as and whether the
// document is reachable.
func (m *Mirror) Status(ctx context.Context) MirrorStatus {
	st := MirrorStatus{Enabled: m.Enabled()}
	if !st.Enabled {
		return st
	}
	st.DocumentID = m.docID

	d, ok := m.store.(remote.Describer)
	if !ok {
		return st
	}
	if id, err := d.WhoAmI(ctx); err == nil {
		st.Identity = &id
	} else {
		st.Error = err.Error()
	}
	doc, err := d.Describe(ctx, m.docID)
	if err != nil {
		st.Error = err.Error()
		if errors.Is(err, remote.ErrUnavailable) {
			st.AccessRequestURL = remote.AccessRequestURL(m.docID)
		}
		return st
	}
	st.Document = &doc
	return st
}
