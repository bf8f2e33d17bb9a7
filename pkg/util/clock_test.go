package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 14, h, m, 0, 0, time.Local)
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("07:05")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 7, Minute: 5}, c)
	assert.Equal(t, "07:05", c.String())

	for _, bad := range []string{"", "7", "24:00", "12:60", "ab:cd"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestWindowWrapsMidnight(t *testing.T) {
	w, err := ParseWindow("23:00", "07:00")
	require.NoError(t, err)

	assert.True(t, w.Contains(at(23, 0)))
	assert.True(t, w.Contains(at(23, 59)))
	assert.True(t, w.Contains(at(0, 0)))
	assert.True(t, w.Contains(at(6, 59)))
	assert.False(t, w.Contains(at(7, 0)))
	assert.False(t, w.Contains(at(12, 0)))
	assert.False(t, w.Contains(at(22, 59)))
}

func TestWindowSameDay(t *testing.T) {
	w, err := ParseWindow("09:00", "17:30")
	require.NoError(t, err)

	assert.False(t, w.Contains(at(8, 59)))
	assert.True(t, w.Contains(at(9, 0)))
	assert.True(t, w.Contains(at(17, 29)))
	assert.False(t, w.Contains(at(17, 30)))
}

func TestWindowEmpty(t *testing.T) {
	w, err := ParseWindow("00:00", "00:00")
	require.NoError(t, err)
	for h := 0; h < 24; h++ {
		assert.False(t, w.Contains(at(h, 0)))
	}
}
