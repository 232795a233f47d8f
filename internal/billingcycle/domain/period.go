package domain

import (
	"fmt"
	"time"
)

const endOfMonthLabel = "EOM"

// BillingPeriod is a derived date window; StartDate and EndDate are
// inclusive calendar dates stored as UTC midnight.
type BillingPeriod struct {
	YearMonth  string    `json:"year_month"`
	CutoffDay  int       `json:"cutoff_day"`
	EndOfMonth bool      `json:"end_of_month"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
}

func newPeriod(year int, month time.Month, startDay, endDay int, endOfMonth bool) BillingPeriod {
	return BillingPeriod{
		YearMonth:  fmt.Sprintf("%04d-%02d", year, int(month)),
		CutoffDay:  endDay,
		EndOfMonth: endOfMonth,
		StartDate:  civil(year, month, startDay),
		EndDate:    civil(year, month, endDay),
	}
}

// CutoffLabel is "07".."28" for fixed cutoffs and "EOM" for the month tail.
func (p BillingPeriod) CutoffLabel() string {
	if p.EndOfMonth {
		return endOfMonthLabel
	}
	return fmt.Sprintf("%02d", p.CutoffDay)
}

// CompactYearMonth renders the period month as yyyyMM.
func (p BillingPeriod) CompactYearMonth() string {
	return p.StartDate.Format("200601")
}

// Key uniquely identifies the period, e.g. "2024-03/07".
func (p BillingPeriod) Key() string {
	return p.YearMonth + "/" + p.CutoffLabel()
}

// Contains reports whether the calendar date of d falls inside the period.
func (p BillingPeriod) Contains(d time.Time) bool {
	date := truncateDate(d)
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// Days returns the number of calendar days covered.
func (p BillingPeriod) Days() int {
	return int(p.EndDate.Sub(p.StartDate).Hours()/24) + 1
}

func (p BillingPeriod) IsZero() bool {
	return p.YearMonth == ""
}

func (p BillingPeriod) String() string {
	return fmt.Sprintf("%s [%s..%s]", p.Key(), FormatDate(p.StartDate), FormatDate(p.EndDate))
}
