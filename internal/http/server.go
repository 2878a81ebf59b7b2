package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "splitter/internal/log"
	"splitter/internal/middleware/ratelimit"
	"splitter/internal/middleware/security"
	"splitter/internal/middleware/trace"
	"splitter/internal/services"
)

// requestTimeout bounds every handler; remote calls inherit it.
const requestTimeout = 30 * time.Second

// Deps are the services the API is built on. Mirror and Processor may be
// nil when no remote store is configured, Sheets when no spreadsheet is.
type Deps struct {
	Splitter  *services.SplitterService
	Mirror    *services.Mirror
	Processor *services.SyncProcessor
	Sheets    *services.SheetSource
	Logger    *applog.Logger
}

type Server struct {
	http.Server
	splitter  *services.SplitterService
	mirror    *services.Mirror
	processor *services.SyncProcessor
	sheets    *services.SheetSource
	limiter   *ratelimit.Limiter
	tracer    *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}
	resolver := security.NewResolver()

	s := &Server{
		splitter:  deps.Splitter,
		mirror:    deps.Mirror,
		processor: deps.Processor,
		sheets:    deps.Sheets,
		limiter:   ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		tracer:    trace.NewMiddleware(logger.WithComponent(applog.ComponentHTTP), resolver.ClientIP),
	}
	if s.mirror == nil {
		s.mirror = services.NewMirror(nil, nil, "")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/roster", s.handleRoster)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{serial}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("POST /api/sync/pull", s.handlePull)
	mux.HandleFunc("POST /api/sync/push", s.handlePush)
	mux.HandleFunc("POST /api/sync/retry", s.handleRetry)
	mux.HandleFunc("GET /api/sync/status", s.handleSyncStatus)
	mux.HandleFunc("GET /api/sheets/transactions", s.handleSheetTransactions)
	mux.HandleFunc("POST /api/sheets/import", s.handleSheetImport)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(resolver.ClientIP, http.MethodPost, http.MethodDelete)(handler)
	handler = withTimeout(handler, requestTimeout)
	handler = s.tracer.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func withTimeout(next http.Handler, d time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Shutdown stops the limiter cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
