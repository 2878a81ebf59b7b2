// Package google mirrors the ledger to a file on Google Drive and reads
// transactions kept in a Google spreadsheet.
package google

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"splitter/internal/remote"
)

// csvMimeType is the media type uploaded content is stored as.
const csvMimeType = "text/csv"

type Client struct {
	svc *drive.Service
}

// Ensure interface conformance
var (
	_ remote.DocumentStore = (*Client)(nil)
	_ remote.Describer     = (*Client)(nil)
)

// New creates a Drive client. ts may be nil when opts already carry an
// authenticated HTTP client.
func New(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*Client, error) {
	var all []option.ClientOption
	if ts != nil {
		all = append(all, option.WithHTTPClient(newHTTPClient(ts)))
	}
	all = append(all, opts...)

	svc, err := drive.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// newHTTPClient wraps the pooled transport with OAuth2 so refreshed tokens
// flow through ts.
func newHTTPClient(ts oauth2.TokenSource) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: transport},
		Timeout:   60 * time.Second,
	}
}

// Fetch downloads the file content.
func (c *Client) Fetch(ctx context.Context, id string) ([]byte, error) {
	start := time.Now()
	resp, err := c.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, classify("drive", "download", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify("drive", "download", id, err)
	}
	slog.InfoContext(ctx, "Downloaded document from Drive",
		"document_id", id,
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds())
	return data, nil
}

// Replace overwrites the file content. The file must already exist; its
// metadata and sharing are left untouched.
func (c *Client) Replace(ctx context.Context, id string, data []byte) error {
	start := time.Now()
	_, err := c.svc.Files.Update(id, &drive.File{}).
		SupportsAllDrives(true).
		Media(bytes.NewReader(data), googleapi.ContentType(csvMimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return classify("drive", "upload", id, err)
	}
	slog.InfoContext(ctx, "Uploaded document to Drive",
		"document_id", id,
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Describe fetches the file metadata; it doubles as an access preflight.
func (c *Client) Describe(ctx context.Context, id string) (remote.Document, error) {
	f, err := c.svc.Files.Get(id).SupportsAllDrives(true).Fields("id", "name", "driveId").Context(ctx).Do()
	if err != nil {
		return remote.Document{}, classify("drive", "describe", id, err)
	}
	return remote.Document{ID: f.Id, Name: f.Name, DriveID: f.DriveId}, nil
}

// WhoAmI reports the authenticated Drive user.
func (c *Client) WhoAmI(ctx context.Context) (remote.Identity, error) {
	about, err := c.svc.About.Get().Fields("user(emailAddress,displayName)").Context(ctx).Do()
	if err != nil {
		return remote.Identity{}, classify("drive", "about", "", err)
	}
	if about.User == nil {
		return remote.Identity{}, nil
	}
	return remote.Identity{Email: about.User.EmailAddress, Name: about.User.DisplayName}, nil
}

// classify maps API failures onto the remote sentinels. Context errors are
// returned as they are.
func classify(api, op, id string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s %s: %w", api, op, id, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized,
			gerr.Code == http.StatusForbidden && !isRateLimit(gerr),
			gerr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %s %s %s: %v", remote.ErrUnavailable, api, op, id, err)
		case gerr.Code == http.StatusTooManyRequests,
			gerr.Code == http.StatusForbidden,
			gerr.Code >= 500:
			return fmt.Errorf("%w: %s %s %s: %v", remote.ErrTransient, api, op, id, err)
		}
		return fmt.Errorf("%s %s %s: %w", api, op, id, err)
	}

	var uerr *url.Error
	var nerr net.Error
	if errors.As(err, &uerr) || errors.As(err, &nerr) {
		return fmt.Errorf("%w: %s %s %s: %v", remote.ErrTransient, api, op, id, err)
	}
	return fmt.Errorf("%s %s %s: %w", api, op, id, err)
}

// Google APIs report quota exhaustion as 403 with a rate limit reason.
func isRateLimit(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}
