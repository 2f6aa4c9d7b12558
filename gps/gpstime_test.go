package gps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestToGPS(t *testing.T) {
	cases := []struct {
		utc  time.Time
		week int
		tow  time.Duration
	}{
		{time.Date(2025, 4, 10, 10, 49, 15, 0, time.UTC), 2361, 384573 * time.Second},
		// Sunday midnight GPS time is 18s before UTC midnight.
		{time.Date(2024, 5, 4, 23, 59, 42, 0, time.UTC), 2313, 0},
		{time.Date(2024, 5, 4, 23, 59, 41, 0, time.UTC), 2312, Week - time.Second},
	}
	for _, c := range cases {
		week, tow, err := ToGPS(c.utc)
		require.NoError(t, err)
		require.Equal(t, c.week, week, c.utc)
		require.Equal(t, c.tow, tow, c.utc)
		require.True(t, FromGPS(week, tow).Equal(c.utc))
	}
}

func TestToGPSBeforeEpoch(t *testing.T) {
	_, _, err := ToGPS(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}
