package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTime(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  time.Time
		expectErr bool
	}{
		{
			name:     "RFC3339 with zone",
			raw:      "2024-06-15T08:30:00+02:00",
			expected: time.Date(2024, 6, 15, 6, 30, 0, 0, time.UTC),
		},
		{
			name:     "RFC3339 UTC with fraction",
			raw:      "2024-06-15T08:30:00.250Z",
			expected: time.Date(2024, 6, 15, 8, 30, 0, 250_000_000, time.UTC),
		},
		{
			name:     "ISO without zone",
			raw:      "2024-01-01T00:00:00",
			expected: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "ISO without zone and microseconds",
			raw:      "2025-03-04T10:11:12.123456",
			expected: time.Date(2025, 3, 4, 10, 11, 12, 123_456_000, time.UTC),
		},
		{
			name:     "ISO minutes only",
			raw:      "2024-07-01T14:30",
			expected: time.Date(2024, 7, 1, 14, 30, 0, 0, time.UTC),
		},
		{
			name:     "Date only",
			raw:      "2023-05-03",
			expected: time.Date(2023, 5, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "Space separated",
			raw:      "2023-05-03 17:45:09",
			expected: time.Date(2023, 5, 3, 17, 45, 9, 0, time.UTC),
		},
		{
			name:     "Surrounding whitespace",
			raw:      "  2023-05-03 ",
			expected: time.Date(2023, 5, 3, 0, 0, 0, 0, time.UTC),
		},
		{name: "Empty", raw: "", expectErr: true},
		{name: "Slashed day-first", raw: "03/05/2023", expectErr: true},
		{name: "Slashed month-first", raw: "05/03/2023", expectErr: true},
		{name: "Two digit year", raw: "23-05-03", expectErr: true},
		{name: "Out of range month", raw: "2023-13-01", expectErr: true},
		{name: "Garbage", raw: "not-a-date", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Time(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.True(t, tc.expected.Equal(parsed), "got %s, want %s", parsed, tc.expected)
			}
		})
	}
}

func TestTime_EmptyIsErrEmpty(t *testing.T) {
	_, err := Time("   ")
	assert.ErrorIs(t, err, ErrEmpty)
}
