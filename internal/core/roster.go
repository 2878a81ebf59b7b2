package core

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Category is a transaction category and the letter its serial numbers use.
type Category struct {
	Name   string
	Letter string
}

// Roster is the process-wide participant and category configuration. It is
// built once at startup and shared by value; its slices are never exposed.
type Roster struct {
	participants []string
	categories   []Category
}

var (
	ErrNoParticipants = errors.New("roster needs at least one participant")
	ErrNoCategories   = errors.New("roster needs at least one category")
)

// NewRoster validates and copies the given participants and categories.
func NewRoster(participants []string, categories []Category) (Roster, error) {
	var r Roster
	seen := map[string]struct{}{}
	for _, p := range participants {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			return Roster{}, fmt.Errorf("duplicate participant %q", p)
		}
		seen[p] = struct{}{}
		r.participants = append(r.participants, p)
	}
	if len(r.participants) == 0 {
		return Roster{}, ErrNoParticipants
	}

	names := map[string]struct{}{}
	letters := map[string]string{}
	for _, c := range categories {
		c.Name = strings.TrimSpace(c.Name)
		c.Letter = strings.TrimSpace(c.Letter)
		if c.Name == "" {
			return Roster{}, errors.New("category name cannot be empty")
		}
		if utf8.RuneCountInString(c.Letter) != 1 || !unicode.IsLetter([]rune(c.Letter)[0]) {
			return Roster{}, fmt.Errorf("category %q: code must be a single letter, got %q", c.Name, c.Letter)
		}
		if _, dup := names[c.Name]; dup {
			return Roster{}, fmt.Errorf("duplicate category %q", c.Name)
		}
		if other, dup := letters[c.Letter]; dup {
			return Roster{}, fmt.Errorf("categories %q and %q share letter %q", other, c.Name, c.Letter)
		}
		names[c.Name] = struct{}{}
		letters[c.Letter] = c.Name
		r.categories = append(r.categories, c)
	}
	if len(r.categories) == 0 {
		return Roster{}, ErrNoCategories
	}
	return r, nil
}

// DefaultRoster returns the two-person roster the application ships with.
func DefaultRoster() Roster {
	r, err := NewRoster([]string{"Adrian", "Vic"}, []Category{
		{Name: "Food & Drinks", Letter: "A"},
		{Name: "Travel", Letter: "B"},
		{Name: "Groceries", Letter: "C"},
		{Name: "Other", Letter: "D"},
	})
	if err != nil {
		panic(err)
	}
	return r
}

// Participants returns the participants in configured order.
func (r Roster) Participants() []string {
	return append([]string(nil), r.participants...)
}

// Categories returns the categories in configured order.
func (r Roster) Categories() []Category {
	return append([]Category(nil), r.categories...)
}

func (r Roster) IsParticipant(name string) bool {
	for _, p := range r.participants {
		if p == name {
			return true
		}
	}
	return false
}

// Letter returns the serial-number letter for a category name.
func (r Roster) Letter(category string) (string, bool) {
	for _, c := range r.categories {
		if c.Name == category {
			return c.Letter, true
		}
	}
	return "", false
}

// ParseParticipants splits a comma-separated participant list.
func ParseParticipants(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseCategories parses "Name=L,Other Name=M" into categories.
func ParseCategories(s string) ([]Category, error) {
	var out []Category
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, letter, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("category %q: expected Name=Letter", item)
		}
		out = append(out, Category{Name: strings.TrimSpace(name), Letter: strings.TrimSpace(letter)})
	}
	return out, nil
}
