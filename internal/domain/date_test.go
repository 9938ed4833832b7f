package domain_test

import (
	"testing"
	"time"

	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in          string
		want        string
		reformatted bool
	}{
		{"2002-06-01", "2002-06-01", false},
		{"20020601", "2002-06-01", true},
		{"06/01/2002", "2002-06-01", true},
		{"06-01-2002", "2002-06-01", true},
		{" 2002-06-01 ", "2002-06-01", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, reformatted := domain.NormalizeDate(tt.in)
			require.True(t, d.IsValid())
			assert.Equal(t, tt.want, d.String())
			assert.Equal(t, tt.reformatted, reformatted)
		})
	}
}

func TestNormalizeDate_Invalid(t *testing.T) {
	for _, in := range []string{"not-a-date", "", "2002-13-01", "20020230", "2002/06/01", "June 1 2002"} {
		t.Run(in, func(t *testing.T) {
			d, _ := domain.NormalizeDate(in)
			assert.False(t, d.IsValid())
			assert.Equal(t, domain.NoDate, d)
			assert.Equal(t, "nd", d.String())
		})
	}
}

func TestParseDate_RejectsLegacyLayouts(t *testing.T) {
	_, err := domain.ParseDate("20020601")
	require.ErrorIs(t, err, domain.ErrInvalidDate)

	d, err := domain.ParseDate("2002-06-01")
	require.NoError(t, err)
	assert.Equal(t, domain.NewDate(2002, time.June, 1), d)
}

func TestDateRange(t *testing.T) {
	start := domain.NewDate(2024, time.February, 27)
	end := domain.NewDate(2024, time.March, 2)

	days, err := domain.DateRange(start, end)
	require.NoError(t, err)

	got := make([]string, len(days))
	for i, d := range days {
		got[i] = d.String()
	}
	assert.Equal(t, []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02"}, got)
}

func TestDateRange_EndBeforeStart(t *testing.T) {
	days, err := domain.DateRange(domain.NewDate(2024, 3, 2), domain.NewDate(2024, 3, 1))
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestDateRange_InvalidBound(t *testing.T) {
	_, err := domain.DateRange(domain.NoDate, domain.NewDate(2024, 3, 1))
	require.ErrorIs(t, err, domain.ErrInvalidDate)
}

func TestDate_Arithmetic(t *testing.T) {
	d := domain.NewDate(2002, time.June, 1)
	assert.Equal(t, "2002-08-23", d.AddDays(83).String())
	assert.Equal(t, 83, d.AddDays(83).DaysSince(d))
	assert.Equal(t, "2002-06", d.Month().String())
	assert.False(t, domain.NoDate.AddDays(1).IsValid())
}

func TestParseMonth(t *testing.T) {
	m, err := domain.ParseMonth("2010-09")
	require.NoError(t, err)
	assert.Equal(t, "2010-09", m.String())
	assert.Equal(t, m, domain.NewDate(2010, time.September, 30).Month())

	_, err = domain.ParseMonth("2010-9")
	assert.Error(t, err)
}

func TestYesterday(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.March, 1, 3, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	assert.Equal(t, "2024-02-29", domain.Yesterday().String())
}
