package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Balance is one participant's position over a set of transactions.
type Balance struct {
	Participant string `json:"participant"`
	Paid        Money  `json:"paid"`  // amounts they paid as payer
	Share       Money  `json:"share"` // sum of their allocated shares
	Net         Money  `json:"net"`   // Paid - Share; positive means they are owed
}

// Summary is the settlement view over a transaction set.
type Summary struct {
	Count     int       `json:"count"`
	Total     Money     `json:"total"`
	PerPerson Money     `json:"per_person"`
	Balances  []Balance `json:"balances"`
}

// GroupSummary is a Summary restricted to one normalized group.
type GroupSummary struct {
	Group string `json:"group"`
	Summary
}

// Balance returns the entry for participant p.
func (s Summary) Balance(p string) (Balance, bool) {
	for _, b := range s.Balances {
		if b.Participant == p {
			return b, true
		}
	}
	return Balance{}, false
}

// Summarize folds every transaction's allocation into per-participant
// balances, reported in the order of participants.
func Summarize(txns []Transaction, participants []string) Summary {
	idx := make(map[string]int, len(participants))
	s := Summary{Balances: make([]Balance, 0, len(participants))}
	for _, p := range participants {
		if _, dup := idx[p]; dup {
			continue
		}
		idx[p] = len(s.Balances)
		s.Balances = append(s.Balances, Balance{Participant: p})
	}

	for _, t := range txns {
		s.Count++
		s.Total = s.Total.Add(t.Amount)
		if i, ok := idx[t.PaidBy]; ok {
			s.Balances[i].Paid = s.Balances[i].Paid.Add(t.Amount)
		}
		for p, share := range Allocate(t.Amount, t.Split, t.PaidBy, participants) {
			if i, ok := idx[p]; ok {
				s.Balances[i].Share = s.Balances[i].Share.Add(share)
			}
		}
	}

	for i := range s.Balances {
		s.Balances[i].Net = s.Balances[i].Paid.Sub(s.Balances[i].Share)
	}
	if n := len(s.Balances); n > 0 {
		s.PerPerson = NewMoney(s.Total.Decimal().Div(decimal.NewFromInt(int64(n))))
	}
	return s
}

// SummarizeGroups partitions txns by NormalizeGroup and summarizes each
// partition. Groups are returned in order of first appearance.
func SummarizeGroups(txns []Transaction, participants []string) []GroupSummary {
	var order []string
	byGroup := map[string][]Transaction{}
	for _, t := range txns {
		g := NormalizeGroup(t.Group)
		if _, ok := byGroup[g]; !ok {
			order = append(order, g)
		}
		byGroup[g] = append(byGroup[g], t)
	}

	out := make([]GroupSummary, 0, len(order))
	for _, g := range order {
		out = append(out, GroupSummary{Group: g, Summary: Summarize(byGroup[g], participants)})
	}
	return out
}

// NormalizeGroup turns a free-form group label into an aggregation key:
// trimmed, lowercased, punctuation removed. A blank label maps to DefaultGroup.
func NormalizeGroup(g string) string {
	g = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, g)
	g = strings.Join(strings.Fields(g), " ")
	if g == "" {
		return DefaultGroup
	}
	return g
}
