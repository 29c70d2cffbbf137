package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCurrentPeriodWindows(t *testing.T) {
	cases := []struct {
		name   string
		date   time.Time
		period Period
		year   int
	}{
		{"early january belongs to last year's q4", time.Date(2025, 1, 10, 12, 0, 0, 0, Eastern), PeriodFourthQuarter, 2024},
		{"jan 21 is still q4", time.Date(2025, 1, 21, 23, 0, 0, 0, Eastern), PeriodFourthQuarter, 2024},
		{"jan 22 opens q1", time.Date(2025, 1, 22, 0, 30, 0, 0, Eastern), PeriodFirstQuarter, 2025},
		{"apr 21 closes q1", time.Date(2025, 4, 21, 9, 0, 0, 0, Eastern), PeriodFirstQuarter, 2025},
		{"may is q2", time.Date(2025, 5, 2, 9, 0, 0, 0, Eastern), PeriodSecondQuarter, 2025},
		{"oct 20 closes q3", time.Date(2025, 10, 20, 9, 0, 0, 0, Eastern), PeriodThirdQuarter, 2025},
		{"november is q4", time.Date(2025, 11, 3, 9, 0, 0, 0, Eastern), PeriodFourthQuarter, 2025},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, y := CurrentPeriod(tc.date)
			require.Equal(t, tc.period, p)
			require.Equal(t, tc.year, y)
		})
	}
}

func TestCurrentPeriodUsesEasternCalendar(t *testing.T) {
	// 03:00 UTC on Apr 22 is still Apr 21 in New York.
	p, y := CurrentPeriod(time.Date(2025, 4, 22, 3, 0, 0, 0, time.UTC))
	require.Equal(t, PeriodFirstQuarter, p)
	require.Equal(t, 2025, y)
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod(" Second_Quarter ")
	require.NoError(t, err)
	require.Equal(t, PeriodSecondQuarter, p)

	_, err = ParsePeriod("q2")
	require.Error(t, err)
}
