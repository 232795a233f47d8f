package domain

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodsPartitionEveryMonth(t *testing.T) {
	cal := DefaultCalendar()
	for year := 2023; year <= 2024; year++ {
		for month := time.January; month <= time.December; month++ {
			last := LastDayOfMonth(year, month)
			periods := cal.PeriodsInMonth(year, month)

			expected := 5
			if last == 28 {
				expected = 4
			}
			require.Len(t, periods, expected, "%d-%02d", year, month)

			assert.Equal(t, 1, periods[0].StartDate.Day())
			assert.Equal(t, last, periods[len(periods)-1].EndDate.Day())
			for i := 1; i < len(periods); i++ {
				assert.Equal(t, periods[i-1].EndDate.AddDate(0, 0, 1), periods[i].StartDate)
			}

			for day := 1; day <= last; day++ {
				p, err := cal.PeriodFor(date(year, month, day))
				require.NoError(t, err)
				hits := 0
				for _, candidate := range periods {
					if candidate.Contains(date(year, month, day)) {
						hits++
						assert.Equal(t, candidate, p)
					}
				}
				assert.Equal(t, 1, hits, "%d-%02d-%02d", year, month, day)
			}
		}
	}
}

func TestPeriodBoundaries(t *testing.T) {
	cal := DefaultCalendar()
	cases := []struct {
		name  string
		date  time.Time
		start int
		end   int
		label string
	}{
		{"first day", date(2024, 3, 1), 1, 7, "07"},
		{"cutoff day closes period", date(2024, 3, 7), 1, 7, "07"},
		{"day after cutoff", date(2024, 3, 8), 8, 14, "14"},
		{"twenty first", date(2024, 3, 21), 15, 21, "21"},
		{"twenty eighth", date(2024, 3, 28), 22, 28, "28"},
		{"tail of 31 day month", date(2024, 3, 31), 29, 31, "EOM"},
		{"tail of 30 day month", date(2024, 4, 29), 29, 30, "EOM"},
		{"leap february tail", date(2024, 2, 29), 29, 29, "EOM"},
		{"non-leap february last", date(2023, 2, 28), 22, 28, "28"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := cal.PeriodFor(tc.date)
			require.NoError(t, err)
			assert.Equal(t, tc.start, p.StartDate.Day())
			assert.Equal(t, tc.end, p.EndDate.Day())
			assert.Equal(t, tc.label, p.CutoffLabel())
		})
	}
}

func TestPeriodForRejectsZeroDate(t *testing.T) {
	_, err := DefaultCalendar().PeriodFor(time.Time{})
	assert.True(t, errors.Is(err, ErrInvalidDate))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-09")
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 9), d)

	for _, raw := range []string{"", "2024-02-30", "09/03/2024", "2024-13-01"} {
		_, err := ParseDate(raw)
		assert.True(t, errors.Is(err, ErrInvalidDate), raw)
	}
}

func TestCalendarUsesBillingTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Istanbul")
	require.NoError(t, err)
	cal, err := NewCalendar(DefaultCutoffDays, loc)
	require.NoError(t, err)

	// 22:30 UTC on the 7th is already the 8th in Istanbul (UTC+3).
	p, err := cal.PeriodForTimestamp(time.Date(2024, 3, 7, 22, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "14", p.CutoffLabel())

	from, to := cal.Range(p)
	assert.Equal(t, time.Date(2024, 3, 7, 21, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 3, 14, 21, 0, 0, 0, time.UTC), to)
}

func TestPeriodsBetweenAndNext(t *testing.T) {
	cal := DefaultCalendar()
	periods, err := cal.PeriodsBetween(date(2024, 2, 20), date(2024, 3, 2))
	require.NoError(t, err)
	keys := make([]string, 0, len(periods))
	for _, p := range periods {
		keys = append(keys, p.Key())
	}
	assert.Equal(t, []string{"2024-02/21", "2024-02/28", "2024-02/EOM", "2024-03/07"}, keys)

	last := periods[len(periods)-2]
	assert.Equal(t, "2024-03/07", cal.Next(last).Key())
}

func TestNewCalendarValidatesCutoffs(t *testing.T) {
	for _, cutoffs := range [][]int{{}, {0, 7}, {7, 7}, {14, 7}, {7, 29}} {
		_, err := NewCalendar(cutoffs, time.UTC)
		assert.True(t, errors.Is(err, ErrInvalidCutoffs), "%v", cutoffs)
	}
}
