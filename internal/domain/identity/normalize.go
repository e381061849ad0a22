// Package identity normalizes patient identifiers and dates found in RIPS
// exports and keeps the merged patient roster.
package identity

import (
	"regexp"
	"strings"
)

var (
	docPrefixPattern = regexp.MustCompile(`^(?:CC|TI|RC|CE|PA|PE|CN|MS)`)
	nonAlnumPattern  = regexp.MustCompile(`[^A-Za-z0-9]+`)

	// DatePattern matches either YYYY-MM-DD or DD/MM/YYYY.
	DatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{2}/\d{2}/\d{4}`)
)

// NormalizeID returns the canonical form of a raw patient identifier: the
// leading document-type prefix (CC, TI, RC, CE, PA, PE, CN, MS) and its
// separator are dropped, every non-alphanumeric character is removed and the
// rest is uppercased.
//
// Prefix stripping repeats until the result no longer starts with a document
// type, so NormalizeID(NormalizeID(x)) == NormalizeID(x) for every x.
func NormalizeID(raw string) string {
	s := strings.ToUpper(nonAlnumPattern.ReplaceAllString(raw, ""))
	for {
		loc := docPrefixPattern.FindStringIndex(s)
		if loc == nil {
			return s
		}
		s = s[loc[1]:]
	}
}

// ParseDateFromLine returns the leftmost YYYY-MM-DD or DD/MM/YYYY substring of
// line verbatim, or "" when neither appears.
func ParseDateFromLine(line string) string {
	return DatePattern.FindString(line)
}
