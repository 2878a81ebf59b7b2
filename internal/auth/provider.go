// Package auth supplies OAuth2 credentials for the Drive mirror from an
// installed-app client secrets file and a cached token file.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/sheets/v4"
)

// ErrNoToken means no token has been stored yet; run oauth-init first.
var ErrNoToken = errors.New("no oauth token stored")

// Scopes requested for the mirror and the spreadsheet import. drive.file
// limits Drive access to files the app created or was handed; spreadsheets
// are only ever read.
var Scopes = []string{drive.DriveFileScope, sheets.SpreadsheetsReadonlyScope}

type Provider struct {
	secretsPath string
	tokenPath   string
}

func NewProvider(secretsPath, tokenPath string) *Provider {
	return &Provider{secretsPath: secretsPath, tokenPath: tokenPath}
}

// TokenPath returns where tokens are read from and written to.
func (p *Provider) TokenPath() string { return p.tokenPath }

// Config loads the OAuth client configuration.
func (p *Provider) Config() (*oauth2.Config, error) {
	b, err := os.ReadFile(p.secretsPath)
	if err != nil {
		return nil, fmt.Errorf("read client secrets: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets: %w", err)
	}
	return cfg, nil
}

func (p *Provider) LoadToken() (*oauth2.Token, error) {
	b, err := os.ReadFile(p.tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s", ErrNoToken, p.tokenPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", p.tokenPath, err)
	}
	return &tok, nil
}

// SaveToken writes tok readable only by the current user.
func (p *Provider) SaveToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(p.tokenPath), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(p.tokenPath, b, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// TokenSource returns a source that refreshes the stored token as needed and
// writes every new token back to the token file.
func (p *Provider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	cfg, err := p.Config()
	if err != nil {
		return nil, err
	}
	tok, err := p.LoadToken()
	if err != nil {
		return nil, err
	}
	return &persistingSource{
		base: cfg.TokenSource(ctx, tok),
		last: tok.AccessToken,
		save: p.SaveToken,
	}, nil
}

type persistingSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	last string
	save func(*oauth2.Token) error
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.save(tok); err != nil {
			// The refreshed token is still usable for this process.
			slog.Warn("Failed to persist refreshed token", "error", err)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}
