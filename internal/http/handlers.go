package http

import (
	"errors"
	"net/http"

	"splitter/internal/core"
	applog "splitter/internal/log"
	"splitter/internal/services"
	"splitter/internal/storage"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady fails while the ledger location cannot be inspected.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.splitter.Ready(r.Context()); err != nil {
		ErrorFromService(r.Context(), err, "").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(newRosterView(s.splitter.Roster())).Write(w)
}

type transactionList struct {
	Count        int               `json:"count"`
	Transactions []transactionView `json:"transactions"`
}

// handleListTransactions returns the ledger in file order. An optional
// ?group= filter matches on the normalized group key.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	snap, err := s.splitter.Snapshot(r.Context())
	if err != nil {
		ErrorFromService(r.Context(), err, s.mirror.DocumentID()).Write(w)
		return
	}

	group := sanitizeInput(r.URL.Query().Get("group"))
	out := transactionList{Transactions: make([]transactionView, 0, len(snap.Transactions))}
	for _, t := range snap.Transactions {
		if group != "" && core.NormalizeGroup(t.Group) != core.NormalizeGroup(group) {
			continue
		}
		out.Transactions = append(out.Transactions, newTransactionView(t))
	}
	out.Count = len(out.Transactions)
	NewResponse().JSON(out).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	in, err := ParseNewTransaction(p)
	if err != nil {
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Rejected transaction body",
			"json", p.IsJSON(), applog.FieldError, err.Error())
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
		BadRequestError(err.Error()).Write(w)
		return
	}

	t, err := s.splitter.AddTransaction(r.Context(), in)
	if err != nil {
		ErrorFromService(r.Context(), err, s.mirror.DocumentID()).Write(w)
		return
	}
	s.notifyProcessor()

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+t.SerialNumber).
		JSON(newTransactionView(t)).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.splitter.DeleteTransaction(r.Context(), r.PathValue("serial")); err != nil {
		ErrorFromService(r.Context(), err, s.mirror.DocumentID()).Write(w)
		return
	}
	s.notifyProcessor()
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := s.splitter.Snapshot(r.Context())
	if err != nil {
		ErrorFromService(r.Context(), err, s.mirror.DocumentID()).Write(w)
		return
	}
	NewResponse().JSON(snap).Write(w)
}

type syncResult struct {
	Status     string `json:"status"`
	DocumentID string `json:"document_id"`
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	if err := s.mirror.Pull(r.Context()); err != nil {
		ErrorFromService(r.Context(), err, s.mirror.DocumentID()).Write(w)
		return
	}
	s.splitter.Invalidate()
	NewResponse().JSON(syncResult{Status: "pulled", DocumentID: s.mirror.DocumentID()}).Write(w)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if err := s.mirror.Push(r.Context()); err != nil {
		ErrorFromService(r.Context(), err, s.mirror.DocumentID()).Write(w)
		return
	}
	NewResponse().JSON(syncResult{Status: "pushed", DocumentID: s.mirror.DocumentID()}).Write(w)
}

// handleRetry moves failed journal entries back to pending.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		ErrorFromService(r.Context(), services.ErrMirrorDisabled, "").Write(w)
		return
	}
	n, err := s.processor.RetryFailed(r.Context())
	if err != nil {
		ErrorFromService(r.Context(), err, "").Write(w)
		return
	}
	NewResponse().JSON(retryResult{Requeued: n}).Write(w)
}

type retryResult struct {
	Requeued int64 `json:"requeued"`
}

type serverStats struct {
	TotalRequests int64 `json:"total_requests"`
	RateLimited   int64 `json:"rate_limited"`
	ActiveClients int   `json:"active_clients"`
}

type syncStatus struct {
	Mirror  services.MirrorStatus `json:"mirror"`
	Journal *storage.Stats        `json:"journal,omitempty"`
	Server  serverStats           `json:"server"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	out := syncStatus{
		Mirror: s.mirror.Status(r.Context()),
		Server: serverStats{
			TotalRequests: s.tracer.TotalRequests(),
			RateLimited:   s.limiter.Rejected(),
			ActiveClients: s.limiter.ActiveClients(),
		},
	}
	if s.processor != nil {
		stats, err := s.processor.Stats(r.Context())
		if err != nil {
			ErrorFromService(r.Context(), err, "").Write(w)
			return
		}
		out.Journal = &stats
	}
	NewResponse().JSON(out).Write(w)
}

func (s *Server) notifyProcessor() {
	if s.processor != nil {
		s.processor.Trigger()
	}
}

// handleSheetTransactions lists the transactions in the configured
// spreadsheet range without touching the ledger.
func (s *Server) handleSheetTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := s.sheets.Load(r.Context())
	if err != nil {
		ErrorFromService(r.Context(), err, s.sheets.SpreadsheetID()).Write(w)
		return
	}
	out := transactionList{Count: len(txns), Transactions: make([]transactionView, 0, len(txns))}
	for _, t := range txns {
		out.Transactions = append(out.Transactions, newTransactionView(t))
	}
	NewResponse().JSON(out).Write(w)
}

// handleSheetImport appends spreadsheet rows whose serial the ledger lacks.
func (s *Server) handleSheetImport(w http.ResponseWriter, r *http.Request) {
	txns, err := s.sheets.Load(r.Context())
	if err != nil {
		ErrorFromService(r.Context(), err, s.sheets.SpreadsheetID()).Write(w)
		return
	}
	res, err := s.splitter.ImportTransactions(r.Context(), txns)
	if err != nil {
		ErrorFromService(r.Context(), err, s.mirror.DocumentID()).Write(w)
		return
	}
	if len(res.Imported) > 0 {
		s.notifyProcessor()
	}
	NewResponse().JSON(res).Write(w)
}
