package handler

import "regexp"

var ticketPattern = regexp.MustCompile(`\b[A-Z]+-\d+\b`)

// FindTickets returns the distinct ticket keys in text, in order of appearance.
func FindTickets(text string) []string {
	matches := ticketPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := matches[:0]
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
