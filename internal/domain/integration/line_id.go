package integration

import (
	"fmt"
	"strconv"
	"strings"
)

// LineKind identifies the parent document of a line item
type LineKind string

const (
	// LineKindQuote marks quote detail lines
	LineKindQuote LineKind = "Q"
	// LineKindOrder marks sales order detail lines
	LineKindOrder LineKind = "O"
)

// IsValid returns true if the line kind is known
func (k LineKind) IsValid() bool {
	return k == LineKindQuote || k == LineKindOrder
}

// String returns the string representation of LineKind
func (k LineKind) String() string {
	return string(k)
}

// LineID is the natural key of a CRM line item
type LineID struct {
	Kind         LineKind
	ParentNumber int64
	LineNumber   int64
}

// String encodes the line id
func (id LineID) String() string {
	return EncodeLineID(id.Kind, id.ParentNumber, id.LineNumber)
}

// EncodeLineID builds "Q{parent}-{line}" or "O{parent}-{line}".
func EncodeLineID(kind LineKind, parentNumber, lineNumber int64) string {
	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteString(strconv.FormatInt(parentNumber, 10))
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(lineNumber, 10))
	return b.String()
}

// DecodeLineID parses a natural key produced by EncodeLineID.
// Anything else, including ids written by other systems, yields false.
func DecodeLineID(s string) (LineID, bool) {
	if len(s) < 4 {
		return LineID{}, false
	}
	kind := LineKind(s[:1])
	if !kind.IsValid() {
		return LineID{}, false
	}
	parts := strings.Split(s[1:], "-")
	if len(parts) != 2 {
		return LineID{}, false
	}
	parent, ok := parseCanonicalNumber(parts[0])
	if !ok {
		return LineID{}, false
	}
	line, ok := parseCanonicalNumber(parts[1])
	if !ok {
		return LineID{}, false
	}
	return LineID{Kind: kind, ParentNumber: parent, LineNumber: line}, true
}

// ParseLineID is DecodeLineID with an error wrapping ErrInvalidLineID
func ParseLineID(s string) (LineID, error) {
	id, ok := DecodeLineID(s)
	if !ok {
		return LineID{}, fmt.Errorf("%w: %q", ErrInvalidLineID, s)
	}
	return id, nil
}

// parseCanonicalNumber accepts unsigned decimal digits without leading zeros
func parseCanonicalNumber(s string) (int64, bool) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
