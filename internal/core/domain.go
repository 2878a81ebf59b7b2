package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO layout used for transaction dates.
const DateLayout = "2006-01-02"

// DefaultGroup is used when a transaction is submitted without a group.
const DefaultGroup = "general"

// Transaction is one shared expense entry. It is never mutated once stored;
// corrections are a delete followed by a new insert.
type Transaction struct {
	SerialNumber string
	Description  string
	PaidBy       string
	Date         string // YYYY-MM-DD
	Group        string
	Category     string
	Split        float64 // payer fraction, 0.0-1.0
	Amount       Money
}

var (
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidSplit       = errors.New("split must be between 0 and 1")
	ErrInvalidDate        = errors.New("invalid date")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrUnknownCategory    = errors.New("unknown category")
)

// Validate checks a transaction built from user input against the roster.
// The repository does not call this: stored rows are accepted as they are.
func (t Transaction) Validate(r Roster) error {
	desc := strings.TrimSpace(t.Description)
	if desc == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(desc) > 200 {
		return ErrDescriptionTooLong
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := ValidateSplit(t.Split); err != nil {
		return err
	}
	if _, err := ParseDate(t.Date); err != nil {
		return err
	}
	if !r.IsParticipant(t.PaidBy) {
		return fmt.Errorf("%w: %q", ErrUnknownParticipant, t.PaidBy)
	}
	if _, ok := r.Letter(t.Category); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, t.Category)
	}
	return nil
}

// ValidateSplit reports whether f is a usable payer fraction.
func ValidateSplit(f float64) error {
	// NaN fails both comparisons.
	if !(f >= 0 && f <= 1) {
		return ErrInvalidSplit
	}
	return nil
}

// RoundSplit rounds f to the one decimal the ledger stores, half away from
// zero. Non-finite values are returned unchanged for ValidateSplit to reject.
func RoundSplit(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	r, _ := decimal.NewFromFloat(f).Round(1).Float64()
	return r
}

// ParseDate parses an ISO date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}
