/*
period.go - Pure cadence calculator

PURPOSE:
  Computes payroll period boundaries for a reference date given a company's
  cadence and anchor. Deterministic, no I/O. Previous and next periods are
  date-shifted re-applications of the same function, so gaps and overlaps
  between adjacent periods are structurally impossible.

CADENCES:
  weekly    boundaries recur every 7 days; the period containing the
            reference starts on the most recent date whose weekday equals
            the anchor, and ends 6 days later
  biweekly  14-day blocks counted from a fixed origin (the first occurrence
            of the anchor weekday on or after 2000-01-01), so boundaries stay
            stable across month and year edges
  monthly   anchored to a day-of-month, clamped to the last valid day of
            short months; a period runs from the anchor of month M to the
            day before the anchor of month M+1
*/
package engine

import "time"

// CadenceConfig is the input to the calculator: a frequency plus its anchor.
// For weekly/biweekly the anchor is an ISO weekday (1=Mon..7=Sun); for
// monthly it is a day of month (1..31, clamped).
type CadenceConfig struct {
	Frequency     Frequency
	CycleStartDay int
}

// Validate checks the anchor range for the frequency.
func (c CadenceConfig) Validate() error {
	switch c.Frequency {
	case FrequencyWeekly, FrequencyBiweekly:
		if c.CycleStartDay < 1 || c.CycleStartDay > 7 {
			return ErrInvalidCadence
		}
	case FrequencyMonthly:
		if c.CycleStartDay < 1 || c.CycleStartDay > 31 {
			return ErrInvalidCadence
		}
	default:
		return ErrInvalidCadence
	}
	return nil
}

// Bounds is an inclusive [Start, End] date range produced by the calculator.
type Bounds struct {
	Start Date
	End   Date
}

func (b Bounds) Contains(d Date) bool {
	return d.AfterOrEqual(b.Start) && d.BeforeOrEqual(b.End)
}

// biweeklyEpoch anchors all biweekly cycles. 2000-01-01 was a Saturday; the
// origin for a given anchor weekday is its first occurrence on or after this
// date, so two companies with the same anchor share block boundaries.
var biweeklyEpoch = NewDate(2000, time.January, 1)

// ComputePeriod returns the period bounds containing ref.
func ComputePeriod(ref Date, cfg CadenceConfig) (Bounds, error) {
	if err := cfg.Validate(); err != nil {
		return Bounds{}, err
	}
	switch cfg.Frequency {
	case FrequencyWeekly:
		start := weekStart(ref, cfg.CycleStartDay)
		return Bounds{Start: start, End: start.AddDays(6)}, nil

	case FrequencyBiweekly:
		origin := weekStart(biweeklyEpoch.AddDays(6), cfg.CycleStartDay)
		block := floorDiv(ref.DaysSince(origin), 14)
		start := origin.AddDays(block * 14)
		return Bounds{Start: start, End: start.AddDays(13)}, nil

	case FrequencyMonthly:
		year, month := ref.Year(), ref.Month()
		start := anchorInMonth(year, month, cfg.CycleStartDay)
		if ref.Before(start) {
			year, month = shiftMonth(year, month, -1)
			start = anchorInMonth(year, month, cfg.CycleStartDay)
		}
		nextYear, nextMonth := shiftMonth(start.Year(), start.Month(), 1)
		end := anchorInMonth(nextYear, nextMonth, cfg.CycleStartDay).AddDays(-1)
		return Bounds{Start: start, End: end}, nil
	}
	return Bounds{}, ErrInvalidCadence
}

// ComputeNext returns the period immediately after b, by re-applying the
// calculator to the day after b's end.
func ComputeNext(b Bounds, cfg CadenceConfig) (Bounds, error) {
	return ComputePeriod(b.End.AddDays(1), cfg)
}

// ComputePrevious returns the period immediately before b, by re-applying
// the calculator to the day before b's start.
func ComputePrevious(b Bounds, cfg CadenceConfig) (Bounds, error) {
	return ComputePeriod(b.Start.AddDays(-1), cfg)
}

// weekStart returns the most recent date on or before ref whose ISO weekday
// equals anchor.
func weekStart(ref Date, anchor int) Date {
	delta := (ref.ISOWeekday() - anchor + 7) % 7
	return ref.AddDays(-delta)
}

// anchorInMonth returns the anchor day within (year, month), clamped to the
// month's length. anchor=31 in February yields Feb 28/29.
func anchorInMonth(year int, month time.Month, anchor int) Date {
	day := anchor
	if n := daysInMonth(year, month); day > n {
		day = n
	}
	return NewDate(year, month, day)
}

// shiftMonth moves (year, month) by delta whole months, wrapping years.
func shiftMonth(year int, month time.Month, delta int) (int, time.Month) {
	m := int(month) - 1 + delta
	return year + floorDiv(m, 12), time.Month(((m%12)+12)%12 + 1)
}

// floorDiv divides rounding toward negative infinity, so dates before the
// biweekly origin still land in well-formed 14-day blocks.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
