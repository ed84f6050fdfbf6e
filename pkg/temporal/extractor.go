// Package temporal scans content for date, duration, and recurrence
// expressions and normalizes each to a machine-readable value.
package temporal

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/adverant/nexus-memory/pkg/memmodel"
)

// Match is one temporal expression found in content.
type Match struct {
	Start           int
	End             int
	Text            string
	Type            memmodel.TemporalType
	NormalizedValue string
}

type pattern struct {
	re       *regexp.Regexp
	priority int
	normalize func(now time.Time, groups []string) (memmodel.TemporalType, string, bool)
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

var unitDay = map[string]struct {
	iso  string
	days int
}{
	"day": {"D", 1}, "days": {"D", 1},
	"week": {"W", 7}, "weeks": {"W", 7},
}

// patterns is consulted in priority order; a position already claimed by
// a higher-priority pattern is never re-emitted by a later one.
var patterns = []pattern{
	{
		re:       regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`),
		priority: 0,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			return memmodel.TemporalDate, fmt.Sprintf("%s-%s-%s", g[1], g[2], g[3]), true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\b(\d{1,2})/(\d{1,2})/(\d{4})\b`),
		priority: 0,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			month, _ := strconv.Atoi(g[1])
			day, _ := strconv.Atoi(g[2])
			return memmodel.TemporalDate, fmt.Sprintf("%s-%02d-%02d", g[3], month, day), true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\bevery\s+(\d+)?\s*(day|week)s?\b`),
		priority: 1,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			interval := 1
			if g[1] != "" {
				interval, _ = strconv.Atoi(g[1])
			}
			rule := fmt.Sprintf("RRULE:FREQ=%s", freqFor(g[2]))
			if interval > 1 {
				rule += fmt.Sprintf(";INTERVAL=%d", interval)
			}
			return memmodel.TemporalRecurring, rule, true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\bevery\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`),
		priority: 1,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			return memmodel.TemporalRecurring, fmt.Sprintf("RRULE:FREQ=WEEKLY;BYDAY=%s", byday(g[1])), true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\bweekly\b`),
		priority: 1,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			return memmodel.TemporalRecurring, "RRULE:FREQ=WEEKLY", true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\bdaily\b`),
		priority: 1,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			return memmodel.TemporalRecurring, "RRULE:FREQ=DAILY", true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\b(\d+)\s*-\s*(\d+)\s*(day|days|week|weeks|hour|hours|minute|minutes)\b`),
		priority: 4,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			unit := isoUnit(g[3])
			return memmodel.TemporalDuration, fmt.Sprintf("P%s%s/P%s%s", g[1], unit.period, g[2], unit.period), true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\b(\d+)\s*(day|days|week|weeks|hour|hours|minute|minutes|month|months)\b`),
		priority: 4,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			unit := isoUnit(g[2])
			return memmodel.TemporalDuration, fmt.Sprintf("P%s%s", g[1], unit.period), true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\b(\d+)\s*(day|days|week|weeks)\s+ago\b`),
		priority: 3,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			n, _ := strconv.Atoi(g[1])
			d := unitDaysFor(g[2])
			return memmodel.TemporalRelative, now.AddDate(0, 0, -n*d).Format("2006-01-02"), true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\bin\s+(\d+)\s*(day|days|week|weeks)\b`),
		priority: 3,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			n, _ := strconv.Atoi(g[1])
			d := unitDaysFor(g[2])
			return memmodel.TemporalRelative, now.AddDate(0, 0, n*d).Format("2006-01-02"), true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\bnext\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`),
		priority: 3,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			return memmodel.TemporalRelative, nextWeekday(now, weekdays[lower(g[1])]).Format("2006-01-02"), true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\blast\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`),
		priority: 3,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			return memmodel.TemporalRelative, lastWeekday(now, weekdays[lower(g[1])]).Format("2006-01-02"), true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\btoday\b`),
		priority: 3,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			return memmodel.TemporalRelative, now.Format("2006-01-02"), true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\btomorrow\b`),
		priority: 3,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			return memmodel.TemporalRelative, now.AddDate(0, 0, 1).Format("2006-01-02"), true
		},
	},
	{
		re:       regexp.MustCompile(`(?i)\byesterday\b`),
		priority: 3,
		normalize: func(now time.Time, g []string) (memmodel.TemporalType, string, bool) {
			return memmodel.TemporalRelative, now.AddDate(0, 0, -1).Format("2006-01-02"), true
		},
	},
}

func freqFor(unit string) string {
	if unit == "week" || unit == "weeks" {
		return "WEEKLY"
	}
	return "DAILY"
}

func byday(weekday string) string {
	codes := map[string]string{
		"sunday": "SU", "monday": "MO", "tuesday": "TU", "wednesday": "WE",
		"thursday": "TH", "friday": "FR", "saturday": "SA",
	}
	return codes[lower(weekday)]
}

type durationUnit struct{ period string }

func isoUnit(unit string) durationUnit {
	switch lower(unit) {
	case "day", "days":
		return durationUnit{"D"}
	case "week", "weeks":
		return durationUnit{"W"}
	case "month", "months":
		return durationUnit{"M"}
	case "hour", "hours":
		return durationUnit{"T1H"}
	case "minute", "minutes":
		return durationUnit{"T1M"}
	default:
		return durationUnit{"D"}
	}
}

func unitDaysFor(unit string) int {
	if lower(unit) == "week" || lower(unit) == "weeks" {
		return 7
	}
	return 1
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func nextWeekday(from time.Time, target time.Weekday) time.Time {
	days := (int(target) - int(from.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return from.AddDate(0, 0, days)
}

func lastWeekday(from time.Time, target time.Weekday) time.Time {
	days := (int(from.Weekday()) - int(target) + 7) % 7
	if days == 0 {
		days = 7
	}
	return from.AddDate(0, 0, -days)
}

// Extract scans content once against the prioritized pattern set and
// returns matches sorted by start position. A span already claimed by a
// higher-priority pattern is skipped by any lower-priority pattern.
func Extract(content string, now time.Time) []Match {
	type claim struct{ start, end int }
	var claimed []claim
	var matches []Match

	byPriority := make([][]pattern, 0)
	maxPriority := 0
	for _, p := range patterns {
		if p.priority > maxPriority {
			maxPriority = p.priority
		}
	}
	for i := 0; i <= maxPriority; i++ {
		var tier []pattern
		for _, p := range patterns {
			if p.priority == i {
				tier = append(tier, p)
			}
		}
		byPriority = append(byPriority, tier)
	}

	overlaps := func(start, end int) bool {
		for _, c := range claimed {
			if start < c.end && end > c.start {
				return true
			}
		}
		return false
	}

	for _, tier := range byPriority {
		for _, p := range tier {
			for _, loc := range p.re.FindAllStringSubmatchIndex(content, -1) {
				start, end := loc[0], loc[1]
				if overlaps(start, end) {
					continue
				}
				groups := make([]string, len(loc)/2)
				for i := range groups {
					gs, ge := loc[2*i], loc[2*i+1]
					if gs >= 0 {
						groups[i] = content[gs:ge]
					}
				}
				kind, normalized, ok := p.normalize(now, groups)
				if !ok {
					continue
				}
				claimed = append(claimed, claim{start, end})
				matches = append(matches, Match{
					Start:           start,
					End:             end,
					Text:            content[start:end],
					Type:            kind,
					NormalizedValue: normalized,
				})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })
	return matches
}
