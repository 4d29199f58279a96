package schedule

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

const (
	PayWeekly      PayFrequency = "weekly"
	PayBiweekly    PayFrequency = "biweekly"
	PayEvery4Weeks PayFrequency = "every_4_weeks"
	PaySemimonthly PayFrequency = "semimonthly"
	PayMonthly     PayFrequency = "monthly"
)

const (
	AdjustNone   WeekendAdjustment = "none"
	AdjustBefore WeekendAdjustment = "before"
	AdjustAfter  WeekendAdjustment = "after"
)

// LastDay marks a configured pay day meaning "last day of the month".
const LastDay = -1

type (
	PayFrequency      string
	WeekendAdjustment string

	// PaydayConfig describes one income source's pay rhythm.
	PaydayConfig struct {
		Frequency         PayFrequency
		AnchorDate        core.Date // fixed-interval frequencies
		SemiMonthDays     [2]int    // semimonthly; LastDay allowed
		MonthlyDay        int       // monthly; LastDay allowed
		WeekendAdjustment WeekendAdjustment
		Amount            decimal.Decimal
	}

	// Prediction is the upcoming pay date plus the current month's
	// projection. Occurrences count unadjusted dates falling in the
	// current calendar month.
	Prediction struct {
		NextPayDate           core.Date
		OccurrencesThisMonth  int
		ProjectedMonthlyTotal decimal.Decimal
	}
)

// NextPayDate computes the first adjusted pay date on or after today and
// the number of pay events landing in today's calendar month.
func NextPayDate(cfg PaydayConfig, today core.Date) (Prediction, error) {
	switch cfg.Frequency {
	case PayWeekly:
		return fixedInterval(cfg, today, 7)
	case PayBiweekly:
		return fixedInterval(cfg, today, 14)
	case PayEvery4Weeks:
		return fixedInterval(cfg, today, 28)
	case PaySemimonthly:
		return fromMonthDays(cfg, today, cfg.SemiMonthDays[:])
	case PayMonthly:
		return fromMonthDays(cfg, today, []int{cfg.MonthlyDay})
	default:
		return Prediction{}, fmt.Errorf("unknown pay frequency: %q", cfg.Frequency)
	}
}

func fixedInterval(cfg PaydayConfig, today core.Date, intervalDays int) (Prediction, error) {
	if cfg.AnchorDate.IsZero() {
		return Prediction{}, fmt.Errorf("fixed-interval frequency needs an anchor date")
	}

	p := Prediction{}
	monthKey := today.MonthKey()
	found := false

	d := cfg.AnchorDate
	for i := 0; i < 10000; i++ {
		adj := adjustWeekend(d, cfg.WeekendAdjustment)
		if d.MonthKey() == monthKey {
			p.OccurrencesThisMonth++
		}
		if !found && !adj.Before(today.Time) {
			p.NextPayDate = adj
			found = true
		}
		if found && d.MonthKey() > monthKey {
			break
		}
		d = d.AddDays(intervalDays)
	}
	if !found {
		return Prediction{}, fmt.Errorf("no pay date found within horizon")
	}
	p.ProjectedMonthlyTotal = cfg.Amount.Mul(decimal.NewFromInt(int64(p.OccurrencesThisMonth)))
	return p, nil
}

func fromMonthDays(cfg PaydayConfig, today core.Date, days []int) (Prediction, error) {
	p := Prediction{OccurrencesThisMonth: len(days)}

	var candidates []core.Date
	ny, nm := nextMonth(today.Year(), today.Month())
	months := []struct{ year, month int }{
		{today.Year(), today.Month()},
		{ny, nm},
	}
	for _, m := range months {
		for _, day := range days {
			candidates = append(candidates, resolveMonthDay(m.year, m.month, day))
		}
	}

	found := false
	for _, c := range candidates {
		adj := adjustWeekend(c, cfg.WeekendAdjustment)
		if adj.Before(today.Time) {
			continue
		}
		if !found || adj.Before(p.NextPayDate.Time) {
			p.NextPayDate = adj
			found = true
		}
	}
	if !found {
		return Prediction{}, fmt.Errorf("no pay date found within horizon")
	}
	p.ProjectedMonthlyTotal = cfg.Amount.Mul(decimal.NewFromInt(int64(p.OccurrencesThisMonth)))
	return p, nil
}

func nextMonth(year, month int) (int, int) {
	if month == 12 {
		return year + 1, 1
	}
	return year, month + 1
}

// resolveMonthDay clamps the configured day into the month and resolves the
// LastDay marker.
func resolveMonthDay(year, month, day int) core.Date {
	last := core.LastDayOfMonth(year, month)
	if day == LastDay || day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return core.NewDate(year, month, day)
}

// adjustWeekend shifts weekend pay dates onto the adjacent business day:
// before moves Sat/Sun back to Friday, after moves them forward to Monday.
func adjustWeekend(d core.Date, adj WeekendAdjustment) core.Date {
	switch adj {
	case AdjustBefore:
		switch d.Weekday() {
		case time.Saturday:
			return d.AddDays(-1)
		case time.Sunday:
			return d.AddDays(-2)
		}
	case AdjustAfter:
		switch d.Weekday() {
		case time.Saturday:
			return d.AddDays(2)
		case time.Sunday:
			return d.AddDays(1)
		}
	}
	return d
}
