// Package domain holds the billing calendar that maps dates to cutoff periods.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var (
	ErrInvalidDate    = errors.New("invalid_date")
	ErrInvalidCutoffs = errors.New("invalid_cutoff_schedule")
)

// DefaultCutoffDays closes periods on the 7th, 14th, 21st, 28th and the last day of the month.
var DefaultCutoffDays = []int{7, 14, 21, 28}

// Calendar partitions every month into contiguous periods ending on the
// configured cutoff days plus the last day of the month.
type Calendar struct {
	cutoffs []int
	loc     *time.Location
}

func NewCalendar(cutoffs []int, loc *time.Location) (*Calendar, error) {
	if len(cutoffs) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidCutoffs)
	}
	for i, day := range cutoffs {
		if day < 1 || day > 28 {
			return nil, fmt.Errorf("%w: day %d outside 1..28", ErrInvalidCutoffs, day)
		}
		if i > 0 && day <= cutoffs[i-1] {
			return nil, fmt.Errorf("%w: days must be strictly ascending", ErrInvalidCutoffs)
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{cutoffs: append([]int(nil), cutoffs...), loc: loc}, nil
}

// DefaultCalendar uses the port cutoff schedule in UTC.
func DefaultCalendar() *Calendar {
	cal, _ := NewCalendar(DefaultCutoffDays, time.UTC)
	return cal
}

func (c *Calendar) Location() *time.Location { return c.loc }

// DateOf returns the billing-timezone calendar date of a timestamp.
func (c *Calendar) DateOf(ts time.Time) time.Time {
	local := ts.In(c.loc)
	return civil(local.Year(), local.Month(), local.Day())
}

// PeriodFor returns the period containing the calendar date of d.
// The date is read in d's own location.
func (c *Calendar) PeriodFor(d time.Time) (BillingPeriod, error) {
	if d.IsZero() {
		return BillingPeriod{}, ErrInvalidDate
	}
	year, month, day := d.Date()
	last := LastDayOfMonth(year, month)

	start := 1
	for _, cutoff := range c.cutoffs {
		if cutoff >= last {
			break
		}
		if day <= cutoff {
			return newPeriod(year, month, start, cutoff, false), nil
		}
		start = cutoff + 1
	}
	return c.tailPeriod(year, month, start, last), nil
}

// PeriodForTimestamp buckets a timestamp by its billing-timezone date.
func (c *Calendar) PeriodForTimestamp(ts time.Time) (BillingPeriod, error) {
	if ts.IsZero() {
		return BillingPeriod{}, ErrInvalidDate
	}
	return c.PeriodFor(c.DateOf(ts))
}

// PeriodsInMonth returns the ordered partition of a month.
func (c *Calendar) PeriodsInMonth(year int, month time.Month) []BillingPeriod {
	last := LastDayOfMonth(year, month)
	periods := make([]BillingPeriod, 0, len(c.cutoffs)+1)

	start := 1
	for _, cutoff := range c.cutoffs {
		if cutoff >= last {
			break
		}
		periods = append(periods, newPeriod(year, month, start, cutoff, false))
		start = cutoff + 1
	}
	return append(periods, c.tailPeriod(year, month, start, last))
}

// Next returns the period starting the day after p ends.
func (c *Calendar) Next(p BillingPeriod) BillingPeriod {
	next, _ := c.PeriodFor(p.EndDate.AddDate(0, 0, 1))
	return next
}

// PeriodsBetween returns every period that intersects the inclusive date range.
func (c *Calendar) PeriodsBetween(from, to time.Time) ([]BillingPeriod, error) {
	if from.IsZero() || to.IsZero() {
		return nil, ErrInvalidDate
	}
	from = truncateDate(from)
	to = truncateDate(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end before start", ErrInvalidDate)
	}

	current, err := c.PeriodFor(from)
	if err != nil {
		return nil, err
	}
	var periods []BillingPeriod
	for !current.StartDate.After(to) {
		periods = append(periods, current)
		current = c.Next(current)
	}
	return periods, nil
}

// Range returns the half-open instant range [from, to) covered by p in the billing timezone.
func (c *Calendar) Range(p BillingPeriod) (time.Time, time.Time) {
	from := time.Date(p.StartDate.Year(), p.StartDate.Month(), p.StartDate.Day(), 0, 0, 0, 0, c.loc)
	end := p.EndDate.AddDate(0, 0, 1)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, c.loc)
	return from.UTC(), to.UTC()
}

// The tail period also absorbs a month whose last day equals the final cutoff.
func (c *Calendar) tailPeriod(year int, month time.Month, start, last int) BillingPeriod {
	for _, cutoff := range c.cutoffs {
		if cutoff == last {
			return newPeriod(year, month, start, last, false)
		}
	}
	return newPeriod(year, month, start, last, true)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return parsed, nil
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(dateLayout)
}

// LastDayOfMonth returns 28..31 for the given month.
func LastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// SortPeriods orders periods chronologically.
func SortPeriods(periods []BillingPeriod) {
	sort.Slice(periods, func(i, j int) bool {
		return periods[i].StartDate.Before(periods[j].StartDate)
	})
}

func civil(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func truncateDate(d time.Time) time.Time {
	year, month, day := d.Date()
	return civil(year, month, day)
}
