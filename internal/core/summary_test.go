package core

import "testing"

func txn(serial, paidBy, group string, split float64, cents int64) Transaction {
	return Transaction{
		SerialNumber: serial,
		PaidBy:       paidBy,
		Date:         "2025-07-14",
		Group:        group,
		Category:     "Other",
		Split:        split,
		Amount:       Money{Cents: cents},
	}
}

func TestSummarizeGroupsTrip(t *testing.T) {
	parts := []string{"Adrian", "Vic"}
	txns := []Transaction{
		txn("E001", "Adrian", "trip", 1.0, 4000),
		txn("E002", "Vic", "trip", 0.5, 2000),
	}

	groups := SummarizeGroups(txns, parts)
	if len(groups) != 1 || groups[0].Group != "trip" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
	trip := groups[0]

	adrian, _ := trip.Balance("Adrian")
	vic, _ := trip.Balance("Vic")
	if adrian.Share.Float() != 50.0 || vic.Share.Float() != 10.0 {
		t.Fatalf("shares: Adrian=%s Vic=%s, want 50.00 and 10.00", adrian.Share, vic.Share)
	}
	if adrian.Net.Cents != -1000 || vic.Net.Cents != 1000 {
		t.Fatalf("net: Adrian=%s Vic=%s, want -10.00 and 10.00", adrian.Net, vic.Net)
	}
	if trip.Total.Cents != 6000 {
		t.Fatalf("total %s, want 60.00", trip.Total)
	}
}

func TestSummarizeGroupsNormalizesKeys(t *testing.T) {
	parts := []string{"Adrian", "Vic"}
	txns := []Transaction{
		txn("A001", "Adrian", "  Trip! ", 0.5, 1000),
		txn("A002", "Vic", "trip", 0.5, 1000),
		txn("A003", "Vic", "Home", 0.5, 500),
		txn("A004", "Vic", "", 0.5, 300),
	}
	groups := SummarizeGroups(txns, parts)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %+v", groups)
	}
	want := []string{"trip", "home", DefaultGroup}
	for i, g := range groups {
		if g.Group != want[i] {
			t.Errorf("group %d = %q, want %q", i, g.Group, want[i])
		}
	}
	if groups[0].Count != 2 {
		t.Errorf("trip should hold 2 transactions, got %d", groups[0].Count)
	}
}

func TestSummarizeOverall(t *testing.T) {
	parts := []string{"Adrian", "Vic"}
	txns := []Transaction{
		txn("A001", "Adrian", "trip", 0.5, 10000),
		txn("B001", "Vic", "home", 0.3, 4560),
	}
	s := Summarize(txns, parts)

	if s.Count != 2 || s.Total.Cents != 14560 || s.PerPerson.Cents != 7280 {
		t.Fatalf("unexpected totals: %+v", s)
	}

	// net[p] = paid - shares; nets cancel out between participants.
	var net int64
	for _, b := range s.Balances {
		net += b.Net.Cents
	}
	if net != 0 {
		t.Fatalf("nets should cancel, got %d", net)
	}

	adrian, _ := s.Balance("Adrian")
	// Adrian paid 100, owes 50 of it plus 70% of 45.60 = 31.92.
	if adrian.Paid.Cents != 10000 || adrian.Share.Cents != 5000+3192 {
		t.Fatalf("unexpected Adrian balance: %+v", adrian)
	}
	if adrian.Net.Cents != 10000-8192 {
		t.Fatalf("unexpected Adrian net: %s", adrian.Net)
	}
}

func TestSummarizeOrderAndEmpty(t *testing.T) {
	s := Summarize(nil, []string{"Vic", "Adrian"})
	if len(s.Balances) != 2 || s.Balances[0].Participant != "Vic" {
		t.Fatalf("balances should follow roster order: %+v", s.Balances)
	}
	if s.Total.Cents != 0 || s.PerPerson.Cents != 0 {
		t.Fatalf("expected zero totals: %+v", s)
	}
	if _, ok := s.Balance("Nobody"); ok {
		t.Fatal("unexpected balance for unknown participant")
	}
}

func TestNormalizeGroup(t *testing.T) {
	cases := map[string]string{
		"trip":           "trip",
		"  Trip ":        "trip",
		"Ski-Trip 2025!": "skitrip 2025",
		"Mom's  B-day":   "moms bday",
		"...":            DefaultGroup,
		"":               DefaultGroup,
	}
	for in, want := range cases {
		if got := NormalizeGroup(in); got != want {
			t.Errorf("NormalizeGroup(%q) = %q, want %q", in, got, want)
		}
	}
}
