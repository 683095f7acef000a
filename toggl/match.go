/*
match.go - Matching time entries to a card

Entries are matched to a card by name: the entry's description, or the
name of its project, must contain the card's name (case-insensitive).
There is no id-level link between the two systems; name containment is
the contract users follow when describing their time entries.
*/
package toggl

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MatchEntries returns the entries belonging to the named card. The
// projects slice may be nil when only description matching is wanted.
func MatchEntries(cardName string, entries []TimeEntry, projects []Project) []TimeEntry {
	needle := strings.ToLower(strings.TrimSpace(cardName))
	if needle == "" {
		return nil
	}

	projectNames := make(map[int]string, len(projects))
	for _, p := range projects {
		projectNames[p.ID] = strings.ToLower(p.Name)
	}

	var matched []TimeEntry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Description), needle) {
			matched = append(matched, e)
			continue
		}
		if name, ok := projectNames[e.ProjectID]; ok && strings.Contains(name, needle) {
			matched = append(matched, e)
		}
	}
	return matched
}

// TotalHours sums entry durations into hours. Negative durations
// (running timers) are skipped.
func TotalHours(entries []TimeEntry) decimal.Decimal {
	var totalSeconds int64
	for _, e := range entries {
		if e.Duration > 0 {
			totalSeconds += e.Duration
		}
	}
	return decimal.NewFromInt(totalSeconds).Div(decimal.NewFromInt(3600))
}
