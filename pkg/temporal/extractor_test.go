package temporal

import (
	"testing"
	"time"

	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) // a Friday
}

func TestExtractAbsoluteDate(t *testing.T) {
	matches := Extract("The deploy happened on 2026-01-15 without issue.", fixedNow())
	require.Len(t, matches, 1)
	assert.Equal(t, memmodel.TemporalDate, matches[0].Type)
	assert.Equal(t, "2026-01-15", matches[0].NormalizedValue)
}

func TestExtractRelativeToday(t *testing.T) {
	matches := Extract("Let's ship this today.", fixedNow())
	require.Len(t, matches, 1)
	assert.Equal(t, memmodel.TemporalRelative, matches[0].Type)
	assert.Equal(t, "2026-07-31", matches[0].NormalizedValue)
}

func TestExtractRelativeDaysAgo(t *testing.T) {
	matches := Extract("We talked about this 3 days ago.", fixedNow())
	require.Len(t, matches, 1)
	assert.Equal(t, memmodel.TemporalRelative, matches[0].Type)
	assert.Equal(t, "2026-07-28", matches[0].NormalizedValue)
}

func TestExtractRelativeInWeeks(t *testing.T) {
	matches := Extract("Follow up in 2 weeks.", fixedNow())
	require.Len(t, matches, 1)
	assert.Equal(t, "2026-08-14", matches[0].NormalizedValue)
}

func TestExtractNextMonday(t *testing.T) {
	matches := Extract("Meet next Monday to review.", fixedNow())
	require.Len(t, matches, 1)
	assert.Equal(t, "2026-08-03", matches[0].NormalizedValue)
}

func TestExtractRecurringEveryMonday(t *testing.T) {
	matches := Extract("We sync every Monday at 9am.", fixedNow())
	require.Len(t, matches, 1)
	assert.Equal(t, memmodel.TemporalRecurring, matches[0].Type)
	assert.Equal(t, "RRULE:FREQ=WEEKLY;BYDAY=MO", matches[0].NormalizedValue)
}

func TestExtractRecurringEveryNDays(t *testing.T) {
	matches := Extract("This job runs every 3 days.", fixedNow())
	require.Len(t, matches, 1)
	assert.Equal(t, memmodel.TemporalRecurring, matches[0].Type)
	assert.Equal(t, "RRULE:FREQ=DAILY;INTERVAL=3", matches[0].NormalizedValue)
}

func TestExtractDuration(t *testing.T) {
	matches := Extract("The migration took 5 days to finish.", fixedNow())
	require.Len(t, matches, 1)
	assert.Equal(t, memmodel.TemporalDuration, matches[0].Type)
	assert.Equal(t, "P5D", matches[0].NormalizedValue)
}

func TestExtractDurationRange(t *testing.T) {
	matches := Extract("Expect a 2-4 week rollout.", fixedNow())
	require.Len(t, matches, 1)
	assert.Equal(t, memmodel.TemporalDuration, matches[0].Type)
	assert.Equal(t, "P2W/P4W", matches[0].NormalizedValue)
}

func TestExtractResultsSortedByPosition(t *testing.T) {
	matches := Extract("It happened 2026-01-15 but we discussed it again today.", fixedNow())
	require.Len(t, matches, 2)
	assert.Less(t, matches[0].Start, matches[1].Start)
}

func TestOverlapRuleSkipsLowerPriorityMatchOnSameSpan(t *testing.T) {
	// "2026-01-15" should only be captured once by the absolute-date
	// pattern, never re-claimed by a lower-priority pattern.
	matches := Extract("2026-01-15", fixedNow())
	require.Len(t, matches, 1)
	assert.Equal(t, memmodel.TemporalDate, matches[0].Type)
}

func TestExtractNoMatchesReturnsEmpty(t *testing.T) {
	matches := Extract("Nothing temporal in this sentence at all.", fixedNow())
	assert.Empty(t, matches)
}
