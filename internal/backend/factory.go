package backend

import (
	"context"
	"fmt"
	"log/slog"

	"splitter/internal/auth"
	"splitter/internal/remote"
	"splitter/internal/remote/google"
	"splitter/internal/remote/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case NoneBackend:
		f.logger.Info("Remote mirror disabled")
		return &Result{}, nil
	case MemoryBackend:
		return f.createMemoryBackend(config)
	case DriveBackend:
		return f.createDriveBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*Result, error) {
	store, err := memory.NewFromFile(config.DocumentID, config.SeedPath)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Initialized memory backend",
		"document_id", config.DocumentID,
		"seed_path", config.SeedPath)

	return &Result{
		Store:      store,
		Describer:  store,
		DocumentID: config.DocumentID,
	}, nil
}

func (f *DefaultFactory) createDriveBackend(ctx context.Context, config Config) (*Result, error) {
	provider := auth.NewProvider(config.ClientSecretsFile, config.TokenPath)
	ts, err := provider.TokenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("load drive credentials: %w", err)
	}

	client, err := google.New(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Drive client: %w", err)
	}

	f.logger.Info("Initialized Google Drive backend",
		"document_id", config.DocumentID,
		"token_path", config.TokenPath)

	return &Result{
		Store:      client,
		Describer:  client,
		DocumentID: config.DocumentID,
	}, nil
}

// CreateSheetReader implements Factory.CreateSheetReader. The reader shares
// the OAuth client and token with the drive backend.
func (f *DefaultFactory) CreateSheetReader(ctx context.Context, config Config) (remote.RowReader, error) {
	if config.SpreadsheetID == "" {
		return nil, nil
	}

	provider := auth.NewProvider(config.ClientSecretsFile, config.TokenPath)
	ts, err := provider.TokenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sheets credentials: %w", err)
	}
	reader, err := google.NewSheets(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets reader: %w", err)
	}

	f.logger.Info("Initialized Google Sheets reader",
		"spreadsheet_id", config.SpreadsheetID,
		"range", config.SheetsRange)
	return reader, nil
}
