package address

import "strings"

// Address is the subset of a postal address the billing profile needs.
type Address struct {
	Line1 string
	City  string
	State string
	Zip   string
}

// IsZero reports whether no field was extracted.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Parse extracts street, city, state and zip from a free-text address blob as the store
// settings page stores it: line 1 is the street, line 2 is "City STATE ZIP". Any further
// lines (country) are ignored.
//
// This is a positional heuristic, not a postal address parser. Input that does not have
// the expected shape yields an all-empty Address rather than an error.
func Parse(blob string) Address {
	lines := make([]string, 0, 3)
	for _, raw := range strings.Split(strings.ReplaceAll(blob, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) < 2 {
		return Address{}
	}

	tokens := strings.Fields(lines[1])
	if len(tokens) < 3 {
		return Address{}
	}

	n := len(tokens)
	city := strings.TrimRight(strings.Join(tokens[:n-2], " "), ",")
	state := strings.TrimRight(tokens[n-2], ",")
	zip := tokens[n-1]
	if city == "" || state == "" {
		return Address{}
	}

	return Address{
		Line1: lines[0],
		City:  city,
		State: state,
		Zip:   zip,
	}
}
