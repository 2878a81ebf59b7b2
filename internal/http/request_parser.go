// Package http serves the ledger as a JSON API.
//
// This file parses request bodies. JSON and form-encoded bodies are both
// accepted so the API can be driven by curl or a plain HTML form.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"splitter/internal/core"
	"splitter/internal/services"
)

// maxBodyBytes bounds request bodies; a transaction is a few hundred bytes.
const maxBodyBytes = 64 << 10

// defaultSplit is the payer fraction used when the request names none.
const defaultSplit = 0.5

// RequestBodyParser handles different content types for request body parsing.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body once and stores it for parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = fmt.Errorf("invalid JSON body: %w", err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

var errSplitFormat = errors.New("split must be a number")

// ParseNewTransaction reads a submission. Amount and split formats are
// checked here; domain rules are checked by the service.
func ParseNewTransaction(p *RequestBodyParser) (services.NewTransaction, error) {
	if err := p.Parse(); err != nil {
		return services.NewTransaction{}, err
	}

	in := services.NewTransaction{
		Description: p.Get("description"),
		PaidBy:      p.Get("paid_by"),
		Date:        p.Get("date"),
		Group:       p.Get("group"),
		Category:    p.Get("category"),
		Split:       defaultSplit,
	}

	cents, err := core.ParseDecimalToCents(p.Get("amount"))
	if err != nil {
		return services.NewTransaction{}, &services.ValidationError{Err: err}
	}
	in.Amount = core.Money{Cents: cents}

	if raw := strings.Replace(p.Get("split"), ",", ".", 1); raw != "" {
		split, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return services.NewTransaction{}, &services.ValidationError{Err: errSplitFormat}
		}
		in.Split = split
	}
	return in, nil
}
