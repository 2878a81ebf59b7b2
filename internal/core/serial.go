package core

import "fmt"

// NextSerial returns the next serial number for category: its letter followed
// by the zero-padded count of existing transactions sharing that letter, plus
// one. If that serial is still live (an earlier entry was deleted) the
// sequence moves forward until it finds a free one.
func NextSerial(r Roster, category string, existing []Transaction) (string, error) {
	letter, ok := r.Letter(category)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	count := 0
	live := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		live[t.SerialNumber] = struct{}{}
		if l, ok := r.Letter(t.Category); ok && l == letter {
			count++
		}
	}

	for n := count + 1; ; n++ {
		serial := fmt.Sprintf("%s%03d", letter, n)
		if _, taken := live[serial]; !taken {
			return serial, nil
		}
	}
}
