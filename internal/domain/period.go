package domain

import (
	"time"
	_ "time/tzdata"
)

// Eastern is the calendar used to decide which quarter is currently being filed.
var Eastern = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// CurrentPeriod returns the quarter whose reports are being posted on the Eastern calendar date of now.
//
//	Jan 21 < d <= Apr 21  first_quarter
//	Apr 21 < d <= Jul 21  second_quarter
//	Jul 21 < d <= Oct 20  third_quarter
//	otherwise             fourth_quarter (of the previous year when d <= Jan 21)
func CurrentPeriod(now time.Time) (Period, int) {
	local := now.In(Eastern)
	year := local.Year()
	d := time.Date(year, local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	on := func(m time.Month, day int) time.Time { return time.Date(year, m, day, 0, 0, 0, 0, time.UTC) }

	switch {
	case d.After(on(time.January, 21)) && !d.After(on(time.April, 21)):
		return PeriodFirstQuarter, year
	case d.After(on(time.April, 21)) && !d.After(on(time.July, 21)):
		return PeriodSecondQuarter, year
	case d.After(on(time.July, 21)) && !d.After(on(time.October, 20)):
		return PeriodThirdQuarter, year
	case !d.After(on(time.January, 21)):
		return PeriodFourthQuarter, year - 1
	default:
		return PeriodFourthQuarter, year
	}
}
