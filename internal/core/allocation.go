package core

import "github.com/shopspring/decimal"

// Shares maps a participant to their allocated portion of one transaction.
type Shares map[string]Money

// Total sums every share.
func (s Shares) Total() Money {
	var t Money
	for _, m := range s {
		t = t.Add(m)
	}
	return t
}

// Allocate splits amount between participants. The payer keeps split of the
// amount; the remainder is divided evenly among the other participants in the
// order given, and the last of them absorbs the rounding difference so the
// shares always add up to amount exactly.
//
// An empty participant list yields an empty result.
func Allocate(amount Money, split float64, payer string, participants []string) Shares {
	shares := Shares{}
	if len(participants) == 0 {
		return shares
	}

	total := amount.Decimal()
	payerRaw := total.Mul(decimal.NewFromFloat(split))

	others := make([]string, 0, len(participants))
	seen := map[string]struct{}{payer: {}}
	for _, p := range participants {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		others = append(others, p)
	}

	if len(others) == 0 {
		shares[payer] = amount
		return shares
	}
	payerShare := NewMoney(payerRaw)
	shares[payer] = payerShare

	// The even base comes from the unrounded payer share.
	remainder := total.Sub(payerRaw)
	n := int64(len(others))
	base := NewMoney(remainder.Div(decimal.NewFromInt(n)))
	for _, p := range others[:n-1] {
		shares[p] = base
	}
	// Equal to round(remainder - base*(n-1), 2) except when the payer share sits
	// exactly on a half cent, where rounding both sides away from zero would
	// leak a cent.
	shares[others[n-1]] = Money{Cents: amount.Cents - payerShare.Cents - base.Cents*(n-1)}
	return shares
}
