package identity

import (
	"fmt"
	"strings"
	"time"
)

// Age brackets reported by AgeBracket.
const (
	BracketEarlyChildhood = "PRIMERA INFANCIA (0m-5a)"
	BracketChildhood      = "INFANCIA (6-11)"
	BracketAdolescence    = "ADOLESCENCIA (12-17)"
	BracketYouth          = "JÓVENES (18-28)"
	BracketAdulthood      = "ADULTEZ (29-59)"
	BracketOldAge         = "VEJEZ (60+)"
)

const daysPerMonth = 30.4375

var birthLayouts = []string{"2006-01-02", "02/01/2006"}

// ParseBirthDate parses an ISO (YYYY-MM-DD, optionally followed by a time
// part) or D/M/Y date as a UTC calendar day.
func ParseBirthDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	for _, layout := range birthLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AgeDetailed renders the age of a patient born on birth as of now.
func AgeDetailed(birth string) string {
	return AgeDetailedAt(birth, time.Now())
}

// AgeDetailedAt renders the age as "N días" under 30 days, "N meses" under
// 24 months and "N años" (plus " M meses" when M > 0) otherwise. Unparsable
// and future dates yield "".
func AgeDetailedAt(birth string, now time.Time) string {
	b, ok := ParseBirthDate(birth)
	if !ok {
		return ""
	}
	if now.Before(b) {
		return ""
	}
	days := int(now.Sub(b).Hours() / 24)
	if days < 30 {
		return fmt.Sprintf("%d días", days)
	}
	months := int(float64(days) / daysPerMonth)
	if months < 24 {
		return fmt.Sprintf("%d meses", months)
	}
	years, rem := months/12, months%12
	if rem > 0 {
		return fmt.Sprintf("%d años %d meses", years, rem)
	}
	return fmt.Sprintf("%d años", years)
}

// AgeYears returns the exact calendar age in years.
func AgeYears(birth string) (int, bool) {
	return AgeYearsAt(birth, time.Now())
}

// AgeYearsAt is AgeYears evaluated at now.
func AgeYearsAt(birth string, now time.Time) (int, bool) {
	b, ok := ParseBirthDate(birth)
	if !ok {
		return 0, false
	}
	n := calendarDay(now)
	years := n.Year() - b.Year()
	if n.Month() < b.Month() || (n.Month() == b.Month() && n.Day() < b.Day()) {
		years--
	}
	return years, true
}

// AgeMonths returns the month difference from year and month fields only.
// It ignores the day of month and is therefore coarser than AgeYears.
func AgeMonths(birth string) (int, bool) {
	return AgeMonthsAt(birth, time.Now())
}

// AgeMonthsAt is AgeMonths evaluated at now.
func AgeMonthsAt(birth string, now time.Time) (int, bool) {
	b, ok := ParseBirthDate(birth)
	if !ok {
		return 0, false
	}
	n := calendarDay(now)
	return (n.Year()-b.Year())*12 + int(n.Month()) - int(b.Month()), true
}

// AgeBracket returns the life-course bracket for birth.
func AgeBracket(birth string) string {
	return AgeBracketAt(birth, time.Now())
}

// AgeBracketAt classifies with AgeMonths for early childhood and AgeYears for
// every other bracket. The two functions disagree near boundaries and the
// brackets depend on that exact combination.
func AgeBracketAt(birth string, now time.Time) string {
	if strings.TrimSpace(birth) == "" {
		return ""
	}
	months, ok := AgeMonthsAt(birth, now)
	if !ok {
		return ""
	}
	years, _ := AgeYearsAt(birth, now)
	switch {
	case months <= 60:
		return BracketEarlyChildhood
	case years <= 11:
		return BracketChildhood
	case years <= 17:
		return BracketAdolescence
	case years <= 28:
		return BracketYouth
	case years <= 59:
		return BracketAdulthood
	default:
		return BracketOldAge
	}
}

// Summary is the demographic view of a patient shown next to rankings.
type Summary struct {
	FullName  string `json:"full_name"`
	Sex       string `json:"sex"`
	BirthDate string `json:"birth_date"`
	Age       string `json:"age"`
	Bracket   string `json:"bracket"`
}

// Demographics summarizes the roster entry for id as of now. Unknown IDs get
// an empty summary.
func (r *Roster) Demographics(id string, now time.Time) Summary {
	if r == nil {
		return Summary{}
	}
	p, ok := r.Get(id)
	if !ok {
		return Summary{}
	}
	return Summary{
		FullName:  p.FullName,
		Sex:       p.Sex,
		BirthDate: p.BirthDate,
		Age:       AgeDetailedAt(p.BirthDate, now),
		Bracket:   AgeBracketAt(p.BirthDate, now),
	}
}
