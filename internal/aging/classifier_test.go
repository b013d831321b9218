package aging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyBands(t *testing.T) {
	cases := []struct {
		days int
		want Color
	}{
		{0, ColorGreen},
		{1, ColorGreen},
		{2, ColorAmber},
		{3, ColorAmber},
		{4, ColorRed},
		{5, ColorRed},
		{30, ColorRed},
		{-1, ColorGreen},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Classify(tc.days), "days=%d", tc.days)
	}
}

func TestClassifyIsTotal(t *testing.T) {
	for days := -2; days <= 60; days++ {
		switch Classify(days) {
		case ColorGreen, ColorAmber, ColorRed:
		default:
			t.Fatalf("no color for %d days", days)
		}
	}
}

func TestDaysBetween(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.Equal(t, 0, DaysBetween(now, now))
	require.Equal(t, 0, DaysBetween(now.Add(-23*time.Hour), now))
	require.Equal(t, 1, DaysBetween(now.Add(-24*time.Hour), now))
	require.Equal(t, 6, DaysBetween(now.AddDate(0, 0, -6), now))
	require.Equal(t, 0, DaysBetween(now.Add(time.Hour), now), "future entry clamps to zero")
}

func TestParseColor(t *testing.T) {
	for _, s := range []string{"GREEN", "AMBER", "RED"} {
		c, err := ParseColor(s)
		require.NoError(t, err)
		require.Equal(t, Color(s), c)
	}
	_, err := ParseColor("purple")
	require.Error(t, err)
}
