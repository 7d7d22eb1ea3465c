package marketdata

import (
	"errors"
	"testing"
	"time"

	"github.com/newthinker/stonks/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodStart(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		period string
		want   time.Time
	}{
		{"5d", time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)},
		{"1wk", time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC)},
		{"3mo", time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)},
		{"1y", time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)},
		{"2Y", time.Date(2022, 6, 15, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := PeriodStart(now, tt.period)
		require.NoError(t, err, tt.period)
		assert.Equal(t, tt.want, got, tt.period)
	}

	for _, bad := range []string{"", "y", "0d", "3h", "-1y"} {
		_, err := PeriodStart(now, bad)
		assert.Error(t, err, bad)
	}
}

func TestEarningsTiming(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	assert.Equal(t, TimingBeforeOpen, EarningsTiming(time.Date(2024, 7, 25, 7, 30, 0, 0, ny)))
	assert.Equal(t, TimingAfterClose, EarningsTiming(time.Date(2024, 7, 25, 16, 5, 0, 0, ny)))
	assert.Equal(t, "", EarningsTiming(time.Date(2024, 7, 25, 13, 0, 0, 0, ny)))
	// 21:00 UTC is 17:00 in New York during daylight time
	assert.Equal(t, TimingAfterClose, EarningsTiming(time.Date(2024, 7, 25, 21, 0, 0, 0, time.UTC)))
}

func TestInfo_HasRange(t *testing.T) {
	var nilInfo *Info
	assert.False(t, nilInfo.HasRange())
	assert.False(t, (&Info{Price: 10, High52: 12}).HasRange())
	assert.True(t, (&Info{Price: 10, High52: 12, Low52: 8}).HasRange())
}

func TestBatchError(t *testing.T) {
	err := &BatchError{Failed: map[string]error{
		"MSFT": core.ErrProviderFailed,
		"AAPL": core.ErrNoData,
	}}
	assert.Equal(t, "marketdata: 2 symbol(s) failed: AAPL, MSFT", err.Error())
	assert.True(t, errors.Is(err, core.ErrNoData))

	var be *BatchError
	assert.True(t, errors.As(error(err), &be))
}

func TestDaysUntil(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2025, 6, 2, 22, 0, 0, 0, ny)

	assert.Equal(t, 0, DaysUntil(time.Date(2025, 6, 2, 8, 0, 0, 0, ny), now))
	assert.Equal(t, 1, DaysUntil(time.Date(2025, 6, 3, 8, 0, 0, 0, ny), now))
	assert.Equal(t, 7, DaysUntil(time.Date(2025, 6, 9, 16, 30, 0, 0, ny), now))
	assert.Equal(t, -1, DaysUntil(time.Date(2025, 6, 1, 16, 30, 0, 0, ny), now))
	// 02:00 UTC on the 3rd is still the 2nd in New York.
	assert.Equal(t, 0, DaysUntil(time.Date(2025, 6, 3, 2, 0, 0, 0, time.UTC), now))
}
