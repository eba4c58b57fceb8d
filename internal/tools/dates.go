// Package tools implements the registry of read-only capabilities the
// chat model may invoke: portfolio lookups, performance analysis, and
// market intelligence. Tools never mutate portfolio data; every failure
// is returned as a structured error payload the model can react to.
package tools

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ResolveDate normalizes a date argument to YYYY-MM-DD. It accepts ISO
// dates and the relative terms "today", "yesterday" and "tomorrow"
// (case-insensitive), resolved against now in UTC.
func ResolveDate(s string, now time.Time) (string, error) {
	now = now.UTC()
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today", "":
		return now.Format(dateLayout), nil
	case "yesterday":
		return now.AddDate(0, 0, -1).Format(dateLayout), nil
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format(dateLayout), nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid date %q: use YYYY-MM-DD, today, yesterday or tomorrow", s)
	}
	return t.Format(dateLayout), nil
}
