package core

import (
	"errors"
	"testing"
)

func TestNewRoster(t *testing.T) {
	cats := []Category{{Name: "Travel", Letter: "B"}}

	r, err := NewRoster([]string{" Adrian ", "", "Vic"}, cats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.Participants(); len(got) != 2 || got[0] != "Adrian" || got[1] != "Vic" {
		t.Fatalf("unexpected participants %v", got)
	}

	if _, err := NewRoster(nil, cats); !errors.Is(err, ErrNoParticipants) {
		t.Fatalf("expected ErrNoParticipants, got %v", err)
	}
	if _, err := NewRoster([]string{"A"}, nil); !errors.Is(err, ErrNoCategories) {
		t.Fatalf("expected ErrNoCategories, got %v", err)
	}

	bad := [][]Category{
		{{Name: "Travel", Letter: "BB"}},
		{{Name: "Travel", Letter: "1"}},
		{{Name: "", Letter: "B"}},
		{{Name: "Travel", Letter: "B"}, {Name: "Travel", Letter: "C"}},
		{{Name: "Travel", Letter: "B"}, {Name: "Other", Letter: "B"}},
	}
	for i, c := range bad {
		if _, err := NewRoster([]string{"A"}, c); err == nil {
			t.Errorf("case %d: expected error for %v", i, c)
		}
	}
	if _, err := NewRoster([]string{"A", "A"}, cats); err == nil {
		t.Error("expected error for duplicate participant")
	}
}

func TestRosterAccessorsReturnCopies(t *testing.T) {
	r := DefaultRoster()
	p := r.Participants()
	p[0] = "Changed"
	c := r.Categories()
	c[0].Letter = "Z"

	if r.Participants()[0] != "Adrian" {
		t.Fatal("participants slice leaked")
	}
	if l, _ := r.Letter("Food & Drinks"); l != "A" {
		t.Fatal("categories slice leaked")
	}
}

func TestRosterLookups(t *testing.T) {
	r := DefaultRoster()
	if !r.IsParticipant("Vic") || r.IsParticipant("vic") {
		t.Fatal("participant lookup should be exact")
	}
	want := map[string]string{"Food & Drinks": "A", "Travel": "B", "Groceries": "C", "Other": "D"}
	for name, letter := range want {
		if got, ok := r.Letter(name); !ok || got != letter {
			t.Errorf("Letter(%q) = %q, %v", name, got, ok)
		}
	}
	if _, ok := r.Letter("Pets"); ok {
		t.Error("unexpected letter for unknown category")
	}
}

func TestParseRosterSettings(t *testing.T) {
	if got := ParseParticipants(" Adrian, Vic ,,Sam"); len(got) != 3 || got[2] != "Sam" {
		t.Fatalf("unexpected participants %v", got)
	}

	cats, err := ParseCategories("Food & Drinks=A, Travel = B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cats) != 2 || cats[0].Name != "Food & Drinks" || cats[1].Letter != "B" {
		t.Fatalf("unexpected categories %+v", cats)
	}
	if _, err := ParseCategories("Travel"); err == nil {
		t.Fatal("expected error for missing letter")
	}
}
