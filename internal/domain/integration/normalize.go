package integration

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// Layouts tried when the timestamp carries no zone. Epicor emits local
// timestamps without an offset; they are read as UTC.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// EpicorTimeToUnixMs converts an ISO-8601 timestamp to unix milliseconds.
// Returns nil for blank or unparsable input.
func EpicorTimeToUnixMs(s *string) *int64 {
	if s == nil {
		return nil
	}
	t, ok := ParseEpicorTime(*s)
	if !ok {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// ParseEpicorTime parses an ISO-8601 timestamp, assuming UTC when no zone is given
func ParseEpicorTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatPhoneE164 normalizes a phone number to E.164. Numbers without a
// country code are read as numbers of region. Extensions are dropped.
// Input that does not parse as a phone number yields nil.
func FormatPhoneE164(s *string, region string) *string {
	if s == nil {
		return nil
	}
	raw := strings.TrimSpace(*s)
	if raw == "" {
		return nil
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return nil
	}
	out := phonenumbers.Format(num, phonenumbers.E164)
	return &out
}

// GUIDToString renders an Epicor SysRowID as 32 lower-case hex characters.
// Values that are not GUIDs are returned trimmed.
func GUIDToString(s *string) *string {
	if s == nil {
		return nil
	}
	raw := strings.TrimSpace(*s)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return &raw
	}
	out := strings.ReplaceAll(id.String(), "-", "")
	return &out
}
