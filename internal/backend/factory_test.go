package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"splitter/internal/auth"
	"splitter/internal/config"
)

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{
		RemoteBackend:       "memory",
		LedgerCSVPath:       filepath.Join("data", "transactions.csv"),
		SheetsSpreadsheetID: "SHEETID",
		SheetsRange:         "Sheet1!A:H",
	}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.DocumentID != memoryDocumentID {
		t.Errorf("document id = %q, want %q", cfg.DocumentID, memoryDocumentID)
	}
	if cfg.SeedPath != filepath.Join("data", "remote.csv") {
		t.Errorf("seed path = %q", cfg.SeedPath)
	}
	if cfg.SpreadsheetID != "SHEETID" || cfg.SheetsRange != "Sheet1!A:H" {
		t.Errorf("spreadsheet settings not carried over: %+v", cfg)
	}

	if _, err := FromAppConfig(&config.Config{RemoteBackend: "sheets"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"none", Config{Type: NoneBackend}, false},
		{"memory", Config{Type: MemoryBackend, DocumentID: "local"}, false},
		{"memory without id", Config{Type: MemoryBackend}, true},
		{"drive", Config{Type: DriveBackend, DocumentID: "f", ClientSecretsFile: "c.json", TokenPath: "t.json"}, false},
		{"drive without token", Config{Type: DriveBackend, DocumentID: "f", ClientSecretsFile: "c.json"}, true},
		{"drive without id", Config{Type: DriveBackend, ClientSecretsFile: "c.json", TokenPath: "t.json"}, true},
		{"unknown", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateNoneBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: NoneBackend})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if res.Enabled() {
		t.Fatal("none backend should not be enabled")
	}
}

func TestCreateMemoryBackendSeeds(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "remote.csv")
	data := []byte("A001,Lunch,Adrian,2025-07-14,general,Food & Drinks,0.5,12.00\n")
	if err := os.WriteFile(seed, data, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:       MemoryBackend,
		DocumentID: "local",
		SeedPath:   seed,
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if !res.Enabled() || res.Describer == nil {
		t.Fatal("memory backend should be enabled with a describer")
	}
	got, err := res.Store.Fetch(context.Background(), "local")
	if err != nil || string(got) != string(data) {
		t.Fatalf("Fetch = %q, %v", got, err)
	}
}

func TestCreateDriveBackendWithoutToken(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:              DriveBackend,
		DocumentID:        "file",
		ClientSecretsFile: filepath.Join(dir, "credentials.json"),
		TokenPath:         filepath.Join(dir, "token.json"),
	})
	if err == nil {
		t.Fatal("expected error without credentials")
	}
}

// The drive factory surfaces a missing token as auth.ErrNoToken once the
// client secrets are readable.
func TestCreateDriveBackendMissingToken(t *testing.T) {
	dir := t.TempDir()
	secrets := filepath.Join(dir, "credentials.json")
	json := `{"installed":{"client_id":"id","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`
	if err := os.WriteFile(secrets, []byte(json), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:              DriveBackend,
		DocumentID:        "file",
		ClientSecretsFile: secrets,
		TokenPath:         filepath.Join(dir, "token.json"),
	})
	if !errors.Is(err, auth.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestCreateSheetReader(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	reader, err := f.CreateSheetReader(ctx, Config{Type: NoneBackend})
	if err != nil || reader != nil {
		t.Fatalf("expected no reader without a spreadsheet, got %v, %v", reader, err)
	}

	dir := t.TempDir()
	secrets := filepath.Join(dir, "credentials.json")
	json := `{"installed":{"client_id":"id","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`
	if err := os.WriteFile(secrets, []byte(json), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = f.CreateSheetReader(ctx, Config{
		Type:              NoneBackend,
		SpreadsheetID:     "SHEETID",
		SheetsRange:       "Sheet1!A:H",
		ClientSecretsFile: secrets,
		TokenPath:         filepath.Join(dir, "token.json"),
	})
	if !errors.Is(err, auth.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}
