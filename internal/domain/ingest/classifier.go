package ingest

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rips/rips/internal/domain/identity"
)

// Section names the kind of content a line belongs to. Explicit file markers
// may set any name; names starting with "US" denote the patient roster.
type Section string

const (
	SectionUnset   Section = ""
	SectionRoster  Section = "US"
	SectionService Section = "SERVICIOS"
)

// IsRoster reports whether lines in s are patient roster content.
func (s Section) IsRoster() bool {
	return strings.HasPrefix(string(s), string(SectionRoster))
}

// SkipReason explains why a line produced no fields.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipEmpty       SkipReason = "empty"
	SkipMarker      SkipReason = "marker"
	SkipNoSeparator SkipReason = "no_separator"
	SkipTooFewField SkipReason = "too_few_fields"
)

// Line is the classification state of one physical line. Stages receive a
// Line and return a new one; they never mutate their input.
type Line struct {
	Raw     string
	Upper   string
	Section Section
	Roster  bool
	Fields  []string
	Skip    SkipReason
}

// Skipped reports whether the line carries no data.
func (l Line) Skipped() bool {
	return l.Skip != SkipNone
}

var (
	explicitMarkerPattern = regexp.MustCompile(`°-+ARCHIVO-(.+?)-+°\|?`)
	sexTokenPattern       = regexp.MustCompile(`\b[MF]\b`)

	serviceMarkers = []string{"CONSULTAS", "PROCEDIMIENTOS", "MEDICAMENTOS", "OTROS SERVICIOS"}
	rosterGlyphs   = []string{"*", "°", "-"}
	servicePrefix  = []string{"AC", "AP", "AM", "AT"}
)

// SectionFromFilename returns the default section for a file before any of
// its lines are read.
func SectionFromFilename(name string) Section {
	base := strings.ToUpper(filepath.Base(strings.TrimSpace(name)))
	if strings.HasPrefix(base, "US") {
		return SectionRoster
	}
	for _, p := range servicePrefix {
		if strings.HasPrefix(base, p) {
			return SectionService
		}
	}
	return SectionUnset
}

type stage func(c *Classifier, l Line) Line

// Classifier tracks the running section of a single file.
type Classifier struct {
	section Section
	stages  []stage
}

// NewClassifier starts a file in the given default section.
func NewClassifier(initial Section) *Classifier {
	return &Classifier{
		section: initial,
		stages:  []stage{markerStage, separatorStage, contentStage},
	}
}

// Section returns the section currently in effect.
func (c *Classifier) Section() Section {
	return c.section
}

// Classify runs the stage chain over one physical line.
func (c *Classifier) Classify(raw string) Line {
	l := Line{Raw: strings.TrimSpace(raw)}
	if l.Raw == "" {
		l.Skip = SkipEmpty
		return l
	}
	l.Upper = strings.ToUpper(l.Raw)
	for _, st := range c.stages {
		l = st(c, l)
		if l.Skipped() {
			break
		}
	}
	return l
}

// markerStage switches sections on header lines and discards them.
func markerStage(c *Classifier, l Line) Line {
	if m := explicitMarkerPattern.FindStringSubmatch(l.Raw); m != nil {
		c.section = Section(strings.ToUpper(strings.TrimSpace(m[1])))
		l.Skip = SkipMarker
		return l
	}
	if strings.Contains(l.Upper, "USUARIOS") && containsAny(l.Upper, rosterGlyphs) {
		c.section = SectionRoster
		l.Skip = SkipMarker
		return l
	}
	if containsAny(l.Upper, serviceMarkers) {
		c.section = SectionService
		l.Skip = SkipMarker
		return l
	}
	return l
}

// separatorStage splits on comma when the line has at least three of them,
// otherwise on pipe.
func separatorStage(_ *Classifier, l Line) Line {
	var fields []string
	switch {
	case strings.Count(l.Raw, ",") >= 3:
		parts := strings.Split(l.Raw, ",")
		fields = make([]string, len(parts))
		for i, p := range parts {
			fields[i] = strings.TrimSuffix(strings.TrimSpace(p), "|")
		}
	case strings.Contains(l.Raw, "|"):
		parts := strings.Split(l.Raw, "|")
		fields = make([]string, len(parts))
		for i, p := range parts {
			fields[i] = strings.TrimSpace(p)
		}
	default:
		l.Skip = SkipNoSeparator
		return l
	}
	if len(fields) < 2 {
		l.Skip = SkipTooFewField
		return l
	}
	l.Fields = fields
	return l
}

// contentStage decides the extraction branch. A line outside the roster that
// carries both a date and a standalone M/F token is roster content anyway.
func contentStage(c *Classifier, l Line) Line {
	l.Section = c.section
	l.Roster = c.section.IsRoster()
	if !l.Roster && identity.DatePattern.MatchString(l.Raw) && sexTokenPattern.MatchString(l.Raw) {
		l.Roster = true
	}
	return l
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
