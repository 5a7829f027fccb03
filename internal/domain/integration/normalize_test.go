package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpicorTimeToUnixMs(t *testing.T) {
	tests := []struct {
		name     string
		input    *string
		expected *int64
	}{
		{"nil", nil, nil},
		{"blank", strp(" "), nil},
		{"invalid", strp("not a date"), nil},
		{"utc", strp("2024-01-15T10:30:00Z"), int64p(1705314600000)},
		{"offset", strp("2024-01-15T05:30:00-05:00"), int64p(1705314600000)},
		{"fractional", strp("2024-01-15T10:30:00.250Z"), int64p(1705314600250)},
		{"no zone means utc", strp("2024-01-15T10:30:00"), int64p(1705314600000)},
		{"no zone fractional", strp("2024-01-15T10:30:00.5"), int64p(1705314600500)},
		{"space separated", strp("2024-01-15 10:30:00"), int64p(1705314600000)},
		{"date only", strp("2024-01-15"), int64p(1705276800000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EpicorTimeToUnixMs(tt.input))
		})
	}
}

func TestParseEpicorTime(t *testing.T) {
	parsed, ok := ParseEpicorTime("2024-01-15T10:30:00Z")
	require.True(t, ok)
	assert.True(t, parsed.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)))

	_, ok = ParseEpicorTime("not a date")
	assert.False(t, ok)
}

func TestFormatPhoneE164(t *testing.T) {
	tests := []struct {
		name     string
		input    *string
		region   string
		expected *string
	}{
		{"nil", nil, "US", nil},
		{"blank", strp("  "), "US", nil},
		{"not a number", strp("ext."), "US", nil},
		{"letters", strp("n/a"), "US", nil},
		{"parenthesized area code", strp("(416) 555-1234"), "US", strp("+14165551234")},
		{"dotted", strp("416.555.1234"), "US", strp("+14165551234")},
		{"national prefix", strp("1-416-555-1234"), "US", strp("+14165551234")},
		{"extension is dropped", strp("(555) 123-4567 ext 89"), "US", strp("+15551234567")},
		{"international", strp("+44 20 7946 0958"), "US", strp("+442079460958")},
		{"national UK number", strp("020 7946 0958"), "GB", strp("+442079460958")},
		{"no region without country code", strp("416 555 1234"), "", nil},
		{"no region with country code", strp("+1 416 555 1234"), "", strp("+14165551234")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatPhoneE164(tt.input, tt.region))
		})
	}
}

func TestGUIDToString(t *testing.T) {
	assert.Nil(t, GUIDToString(nil))
	assert.Nil(t, GUIDToString(strp("  ")))
	assert.Equal(t, "123e4567e89b12d3a456426614174000", *GUIDToString(strp("123e4567-e89b-12d3-a456-426614174000")))
	assert.Equal(t, "123e4567e89b12d3a456426614174000", *GUIDToString(strp("123E4567-E89B-12D3-A456-426614174000")))
	assert.Equal(t, "legacy-id", *GUIDToString(strp(" legacy-id ")))
}
