package timeutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  string // YYYY-MM-DD, empty means parse failure
	}{
		{"Mon, 15 Jan 2024 10:30:00 +0000", "2024-01-15"},
		{"Mon, 15 Jan 2024 10:30:00 GMT", "2024-01-15"},
		{"Tue, 2 Apr 2024 08:00:00 -0500", "2024-04-02"},
		{"2024-01-15T10:30:00Z", "2024-01-15"},
		{"2024-01-15T10:30:00+02:00", "2024-01-15"},
		{"2024-01-15 10:30:00", "2024-01-15"},
		{"2024-01-15", "2024-01-15"},
		{"15 Jan 2024", "2024-01-15"},
		{"15 January 2024", "2024-01-15"},
		{"January 15, 2024", "2024-01-15"},
		{"2024/01/15", "2024-01-15"},
		{"", ""},
		{"not a date", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}
}

func TestPublicationDate(t *testing.T) {
	tests := []struct {
		year, month, day int
		want             string
		ok               bool
	}{
		{2024, 3, 15, "2024-03-15", true},
		{2024, 0, 0, "2024-01-01", true},
		{2024, 6, 0, "2024-06-01", true},
		{1900, 1, 1, "1900-01-01", true},
		{1899, 1, 1, "", false},
		{time.Now().Year() + 2, 1, 1, "", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-%d-%d", tt.year, tt.month, tt.day), func(t *testing.T) {
			got, ok := PublicationDate(tt.year, tt.month, tt.day)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.Format("2006-01-02"))
			}
		})
	}
}

func TestPublicationDateAcceptsNextYear(t *testing.T) {
	next := time.Now().Year() + 1
	got, ok := PublicationDate(next, 1, 1)
	require.True(t, ok)
	assert.Equal(t, next, got.Year())
}

func TestMonthNumber(t *testing.T) {
	assert.Equal(t, 1, MonthNumber("Jan"))
	assert.Equal(t, 9, MonthNumber("september"))
	assert.Equal(t, 12, MonthNumber("Dec"))
	assert.Equal(t, 0, MonthNumber("Smarch"))
}
