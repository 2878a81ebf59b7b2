package backend

import (
	"errors"
	"fmt"
	"path/filepath"

	"splitter/internal/config"
)

// memoryDocumentID names the document when the memory backend runs without
// a Drive file id.
const memoryDocumentID = "local"

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.RemoteBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.RemoteBackend)
	}

	cfg := Config{
		Type:              backendType,
		DocumentID:        appConfig.DriveFileID,
		ClientSecretsFile: appConfig.ClientSecretsFile,
		TokenPath:         appConfig.TokenPath,
		SeedPath:          filepath.Join(filepath.Dir(appConfig.LedgerCSVPath), "remote.csv"),
		SpreadsheetID:     appConfig.SheetsSpreadsheetID,
		SheetsRange:       appConfig.SheetsRange,
	}
	if cfg.Type == MemoryBackend && cfg.DocumentID == "" {
		cfg.DocumentID = memoryDocumentID
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case DriveBackend:
		if c.DocumentID == "" {
			return errors.New("drive file id is required for drive backend")
		}
		if c.ClientSecretsFile == "" {
			return errors.New("client secrets file is required for drive backend")
		}
		if c.TokenPath == "" {
			return errors.New("token path is required for drive backend")
		}
	case MemoryBackend:
		if c.DocumentID == "" {
			return errors.New("document id is required for memory backend")
		}
	}

	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{NoneBackend.String(), MemoryBackend.String(), DriveBackend.String()}
}
