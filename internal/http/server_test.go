package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"splitter/internal/core"
	"splitter/internal/ledger"
	"splitter/internal/remote"
	"splitter/internal/remote/memory"
	"splitter/internal/services"
	"splitter/internal/storage"
)

type testEnv struct {
	srv     *Server
	store   *memory.Store
	repo    *ledger.Repository
	journal *storage.Journal
}

func newTestEnv(t *testing.T, withMirror bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	roster := core.DefaultRoster()
	repo := ledger.NewRepository(filepath.Join(dir, "transactions.csv"), roster)

	journal, err := storage.Open(filepath.Join(dir, "sync.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	env := &testEnv{repo: repo, journal: journal}
	deps := Deps{Splitter: services.NewSplitterService(repo, roster, journal, nil)}
	if withMirror {
		env.store = memory.New()
		deps.Mirror = services.NewMirror(repo, env.store, "doc")
		deps.Processor = services.NewSyncProcessor(journal, deps.Mirror, services.DefaultSyncProcessorConfig())
	}
	env.srv = NewServer(":0", deps)
	t.Cleanup(func() { env.srv.Shutdown(context.Background()) })
	return env
}

func (e *testEnv) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

const jsonType = "application/json"
const formType = "application/x-www-form-urlencoded"

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, false)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s missing middleware headers: %v", path, rr.Header())
		}
	}
}

func TestReadyFailsWhenStorageUnreachable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	repo := ledger.NewRepository(filepath.Join(blocker, "transactions.csv"), core.DefaultRoster())
	srv := NewServer(":0", Deps{Splitter: services.NewSplitterService(repo, core.DefaultRoster(), nil, nil)})
	defer srv.Shutdown(context.Background())

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestRoster(t *testing.T) {
	env := newTestEnv(t, false)
	rr := env.do(t, http.MethodGet, "/api/roster", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	got := decode[rosterView](t, rr)
	if len(got.Participants) != 2 || got.Participants[0] != "Adrian" {
		t.Fatalf("participants %v", got.Participants)
	}
	if len(got.Categories) != 4 || got.Categories[1] != (categoryView{Name: "Travel", Letter: "B"}) {
		t.Fatalf("categories %v", got.Categories)
	}
}

func TestCreateTransaction(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodPost, "/api/transactions", jsonType,
		`{"description":"Lunch","paid_by":"Adrian","amount":12.5,"date":"2025-07-14","category":"Food & Drinks","split":0.5}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decode[map[string]any](t, rr)
	if got["serial_number"] != "A001" || got["amount"] != 12.5 || got["group"] != core.DefaultGroup {
		t.Fatalf("unexpected body %v", got)
	}
	if rr.Header().Get("Location") != "/api/transactions/A001" {
		t.Fatalf("Location = %q", rr.Header().Get("Location"))
	}

	rr = env.do(t, http.MethodPost, "/api/transactions", formType,
		"description=Dinner&paid_by=Vic&amount=20%2C00&date=2025-07-14&category=Food+%26+Drinks&group=trip")
	if rr.Code != http.StatusCreated {
		t.Fatalf("form status=%d body=%s", rr.Code, rr.Body.String())
	}
	form := decode[transactionView](t, rr)
	if form.SerialNumber != "A002" || form.Amount.Cents != 2000 || form.Split != 0.5 {
		t.Fatalf("unexpected form result %+v", form)
	}
}

func TestCreateTransactionRejects(t *testing.T) {
	env := newTestEnv(t, false)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad amount", `{"description":"x","paid_by":"Vic","amount":"abc","category":"Travel"}`, http.StatusUnprocessableEntity},
		{"zero amount", `{"description":"x","paid_by":"Vic","amount":"0","category":"Travel"}`, http.StatusUnprocessableEntity},
		{"missing description", `{"description":"","paid_by":"Vic","amount":"1.23","category":"Travel"}`, http.StatusUnprocessableEntity},
		{"unknown payer", `{"description":"x","paid_by":"Sam","amount":"1.23","category":"Travel"}`, http.StatusUnprocessableEntity},
		{"unknown category", `{"description":"x","paid_by":"Vic","amount":"1.23","category":"Rent"}`, http.StatusUnprocessableEntity},
		{"split out of range", `{"description":"x","paid_by":"Vic","amount":"1.23","category":"Travel","split":2}`, http.StatusUnprocessableEntity},
		{"split not a number", `{"description":"x","paid_by":"Vic","amount":"1.23","category":"Travel","split":"half"}`, http.StatusUnprocessableEntity},
		{"malformed json", `{"description":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/transactions", jsonType, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
			if body := decode[errorBody](t, rr); body.Error == "" {
				t.Fatal("error message missing")
			}
		})
	}

	if rr := env.do(t, http.MethodGet, "/api/transactions", "", ""); decode[transactionList](t, rr).Count != 0 {
		t.Fatal("rejected submissions must not be stored")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, false)
	rr := env.do(t, http.MethodPut, "/api/transactions", "", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func seedTrip(t *testing.T, env *testEnv) {
	t.Helper()
	for _, body := range []string{
		`{"description":"Hotel","paid_by":"Adrian","amount":"40","date":"2025-07-14","group":"Trip","category":"Travel","split":1}`,
		`{"description":"Museum","paid_by":"Vic","amount":"20","date":"2025-07-15","group":"trip","category":"Other","split":0.5}`,
		`{"description":"Milk","paid_by":"Vic","amount":"3","date":"2025-07-16","category":"Groceries"}`,
	} {
		if rr := env.do(t, http.MethodPost, "/api/transactions", jsonType, body); rr.Code != http.StatusCreated {
			t.Fatalf("seed status=%d body=%s", rr.Code, rr.Body.String())
		}
	}
}

func TestListAndFilterTransactions(t *testing.T) {
	env := newTestEnv(t, false)
	seedTrip(t, env)

	all := decode[transactionList](t, env.do(t, http.MethodGet, "/api/transactions", "", ""))
	if all.Count != 3 || all.Transactions[0].SerialNumber != "B001" || all.Transactions[1].SerialNumber != "D001" {
		t.Fatalf("unexpected list %+v", all)
	}

	trip := decode[transactionList](t, env.do(t, http.MethodGet, "/api/transactions?group=TRIP", "", ""))
	if trip.Count != 2 {
		t.Fatalf("expected 2 trip transactions, got %+v", trip)
	}
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t, false)
	seedTrip(t, env)

	rr := env.do(t, http.MethodGet, "/api/summary", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var got struct {
		Summary struct {
			Count int     `json:"count"`
			Total float64 `json:"total"`
		} `json:"summary"`
		Groups []struct {
			Group    string `json:"group"`
			Balances []struct {
				Participant string  `json:"participant"`
				Net         float64 `json:"net"`
			} `json:"balances"`
		} `json:"groups"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Summary.Count != 3 || got.Summary.Total != 63 {
		t.Fatalf("unexpected summary %+v", got.Summary)
	}
	if len(got.Groups) != 2 || got.Groups[0].Group != "trip" || got.Groups[1].Group != core.DefaultGroup {
		t.Fatalf("unexpected groups %+v", got.Groups)
	}
	trip := got.Groups[0].Balances
	if trip[0].Participant != "Adrian" || trip[0].Net != -10 || trip[1].Net != 10 {
		t.Fatalf("unexpected trip balances %+v", trip)
	}
}

func TestDeleteTransaction(t *testing.T) {
	env := newTestEnv(t, false)
	seedTrip(t, env)

	if rr := env.do(t, http.MethodDelete, "/api/transactions/D001", "", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/transactions/Z999", "", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("deleting unknown serial status=%d", rr.Code)
	}
	list := decode[transactionList](t, env.do(t, http.MethodGet, "/api/transactions", "", ""))
	if list.Count != 2 {
		t.Fatalf("expected 2 transactions after delete, got %d", list.Count)
	}
	for _, tv := range list.Transactions {
		if tv.SerialNumber == "D001" {
			t.Fatal("D001 still listed")
		}
	}
}

func TestSyncPushPullAndStatus(t *testing.T) {
	env := newTestEnv(t, true)
	seedTrip(t, env)

	status := decode[syncStatus](t, env.do(t, http.MethodGet, "/api/sync/status", "", ""))
	if !status.Mirror.Enabled || status.Journal == nil || status.Journal.Pending != 3 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Mirror.AccessRequestURL == "" {
		t.Fatal("document not pushed yet; access link expected")
	}

	if rr := env.do(t, http.MethodPost, "/api/sync/push", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("push status=%d body=%s", rr.Code, rr.Body.String())
	}
	if env.store.Writes() != 1 {
		t.Fatalf("expected one remote write, got %d", env.store.Writes())
	}

	env.store.Put("doc", []byte("A001,Remote lunch,Vic,2025-07-20,general,Food & Drinks,0.5,8.00\n"))
	if rr := env.do(t, http.MethodPost, "/api/sync/pull", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("pull status=%d body=%s", rr.Code, rr.Body.String())
	}
	list := decode[transactionList](t, env.do(t, http.MethodGet, "/api/transactions", "", ""))
	if list.Count != 1 || list.Transactions[0].Description != "Remote lunch" {
		t.Fatalf("pull not reflected: %+v", list)
	}
}

func TestPullUnavailableReturnsAccessLink(t *testing.T) {
	env := newTestEnv(t, true)

	rr := env.do(t, http.MethodPost, "/api/sync/pull", "", "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	body := decode[errorBody](t, rr)
	if !strings.Contains(body.AccessRequestURL, "/file/d/doc/") {
		t.Fatalf("access link missing: %+v", body)
	}
}

func TestSyncWithoutMirror(t *testing.T) {
	env := newTestEnv(t, false)
	for _, path := range []string{"/api/sync/pull", "/api/sync/push"} {
		if rr := env.do(t, http.MethodPost, path, "", ""); rr.Code != http.StatusConflict {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	status := decode[syncStatus](t, env.do(t, http.MethodGet, "/api/sync/status", "", ""))
	if status.Mirror.Enabled || status.Journal != nil {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestRetryRequeuesFailedEntries(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	entry, err := env.journal.Enqueue(ctx, storage.OpPush, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.journal.MarkFailed(ctx, entry.ID, "remote unavailable"); err != nil {
		t.Fatal(err)
	}

	rr := env.do(t, http.MethodPost, "/api/sync/retry", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("retry status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode[retryResult](t, rr); got.Requeued != 1 {
		t.Fatalf("requeued = %d, want 1", got.Requeued)
	}

	status := decode[syncStatus](t, env.do(t, http.MethodGet, "/api/sync/status", "", ""))
	if status.Journal == nil || status.Journal.Failed != 0 || status.Journal.Pending != 1 {
		t.Fatalf("unexpected journal stats %+v", status.Journal)
	}
	if status.Server.TotalRequests < 2 {
		t.Errorf("total_requests = %d, want at least 2", status.Server.TotalRequests)
	}
}

func TestRetryWithoutMirror(t *testing.T) {
	env := newTestEnv(t, false)
	if rr := env.do(t, http.MethodPost, "/api/sync/retry", "", ""); rr.Code != http.StatusConflict {
		t.Fatalf("retry status=%d, want 409", rr.Code)
	}
}

type sheetRows [][]string

func (r sheetRows) ReadRows(context.Context, string, string) ([][]string, error) {
	return r, nil
}

type failingSheet struct{}

func (failingSheet) ReadRows(context.Context, string, string) ([][]string, error) {
	return nil, remote.ErrUnavailable
}

func newSheetServer(t *testing.T, reader remote.RowReader) (*Server, *ledger.Repository) {
	t.Helper()
	roster := core.DefaultRoster()
	repo := ledger.NewRepository(filepath.Join(t.TempDir(), "transactions.csv"), roster)
	srv := NewServer(":0", Deps{
		Splitter: services.NewSplitterService(repo, roster, nil, nil),
		Sheets:   services.NewSheetSource(reader, roster, "SHEETID", "Sheet1!A:H"),
	})
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv, repo
}

func TestSheetImport(t *testing.T) {
	rows := sheetRows{
		{"A001", "Lunch", "Adrian", "2024-01-01", "general", "Food & Drinks", "0.5", "10.0"},
		{"Serial", "Description"},
		{"B001", "Taxi", "Vic", "2024-01-02", "general", "Travel", "1.0", "20.0"},
	}
	srv, repo := newSheetServer(t, rows)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sheets/transactions", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode[transactionList](t, rr); got.Count != 2 {
		t.Fatalf("sheet list count = %d, want 2", got.Count)
	}

	for i, want := range []int{2, 0} {
		rr = httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sheets/import", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("import %d status=%d body=%s", i, rr.Code, rr.Body.String())
		}
		got := decode[services.ImportResult](t, rr)
		if len(got.Imported) != want || got.Skipped != 2-want {
			t.Fatalf("import %d = %+v", i, got)
		}
	}

	txns, err := repo.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 2 || txns[0].SerialNumber != "A001" || txns[1].SerialNumber != "B001" {
		t.Fatalf("ledger after import %+v", txns)
	}
}

func TestSheetRoutesErrors(t *testing.T) {
	env := newTestEnv(t, false)
	for _, req := range [][2]string{{http.MethodGet, "/api/sheets/transactions"}, {http.MethodPost, "/api/sheets/import"}} {
		if rr := env.do(t, req[0], req[1], "", ""); rr.Code != http.StatusConflict {
			t.Fatalf("%s %s status=%d, want 409", req[0], req[1], rr.Code)
		}
	}

	srv, _ := newSheetServer(t, failingSheet{})
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sheets/import", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	if body := decode[errorBody](t, rr); !strings.Contains(body.AccessRequestURL, "/file/d/SHEETID/") {
		t.Fatalf("access link missing: %+v", body)
	}
}
