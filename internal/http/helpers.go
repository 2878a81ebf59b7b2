package http

import (
	"strings"

	"splitter/internal/core"
)

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// transactionView is the JSON shape of a ledger row.
type transactionView struct {
	SerialNumber string     `json:"serial_number"`
	Description  string     `json:"description"`
	PaidBy       string     `json:"paid_by"`
	Date         string     `json:"date"`
	Group        string     `json:"group"`
	Category     string     `json:"category"`
	Split        float64    `json:"split"`
	Amount       core.Money `json:"amount"`
}

func newTransactionView(t core.Transaction) transactionView {
	return transactionView{
		SerialNumber: t.SerialNumber,
		Description:  t.Description,
		PaidBy:       t.PaidBy,
		Date:         t.Date,
		Group:        t.Group,
		Category:     t.Category,
		Split:        t.Split,
		Amount:       t.Amount,
	}
}

type categoryView struct {
	Name   string `json:"name"`
	Letter string `json:"letter"`
}

type rosterView struct {
	Participants []string       `json:"participants"`
	Categories   []categoryView `json:"categories"`
}

func newRosterView(r core.Roster) rosterView {
	v := rosterView{Participants: r.Participants()}
	for _, c := range r.Categories() {
		v.Categories = append(v.Categories, categoryView{Name: c.Name, Letter: c.Letter})
	}
	return v
}
