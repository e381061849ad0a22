package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rips/rips/internal/domain/catalog"
	"github.com/rips/rips/internal/domain/identity"
)

const (
	minPatientIDLen = 3
	maxNameParts    = 4
)

var (
	numericPattern     = regexp.MustCompile(`^\d+$`)
	rosterIDPattern    = regexp.MustCompile(`(?i)^(?:CC|TI|RC|CE|PA|PE|CN|MS)?-?\d{3,20}$`)
	sexFieldPattern    = regexp.MustCompile(`(?i)^(M|F)$`)
	latinLetterPattern = regexp.MustCompile(`[A-Za-zÁÉÍÓÚÜÑáéíóúüñ]`)
	serviceCodePattern = regexp.MustCompile(`\b\d{6}\b`)
	prefixedIDPattern  = regexp.MustCompile(`(?i)\b(?:CC|TI|RC|CE|PA|PE|CN|MS)-?\d{4,15}\b`)
	bareIDPattern      = regexp.MustCompile(`\b\d{6,15}\b`)
)

// ExtractRoster builds a roster update from the fields of a roster line. It
// reports false when no usable patient identifier is found.
func ExtractRoster(fields []string) (identity.Patient, bool) {
	raw := ""
	if len(fields) > 1 && numericPattern.MatchString(fields[1]) {
		raw = fields[1]
	} else {
		for _, f := range fields {
			if rosterIDPattern.MatchString(f) {
				raw = f
				break
			}
		}
	}
	id := identity.NormalizeID(raw)
	if len(id) < minPatientIDLen {
		return identity.Patient{}, false
	}

	p := identity.Patient{ID: id}
	for _, f := range fields {
		if sexFieldPattern.MatchString(f) {
			p.Sex = strings.ToUpper(f)
			break
		}
	}
	for _, f := range fields {
		if identity.DatePattern.MatchString(f) {
			p.BirthDate = f
			break
		}
	}

	var names []string
	for _, f := range fields {
		if len(names) == maxNameParts {
			break
		}
		if isNamePart(f) {
			names = append(names, f)
		}
	}
	p.FullName = strings.Join(names, " ")
	return p, true
}

func isNamePart(f string) bool {
	return latinLetterPattern.MatchString(f) &&
		!sexFieldPattern.MatchString(f) &&
		!numericPattern.MatchString(f) &&
		utf8.RuneCountInString(f) > 2
}

// ExtractService builds a service record from a service line. Lines without a
// six-digit code, or whose code is not in the catalog, yield false.
func ExtractService(line string, cat *catalog.Catalog) (ServiceRecord, bool) {
	code := serviceCodePattern.FindString(line)
	if code == "" {
		return ServiceRecord{}, false
	}
	entry, ok := cat.Lookup(code)
	if !ok {
		return ServiceRecord{}, false
	}

	raw := prefixedIDPattern.FindString(line)
	if raw == "" {
		raw = bareIDPattern.FindString(line)
	}
	pid := identity.NormalizeID(raw)
	if pid == "" {
		pid = PlaceholderPatientID
	}

	return ServiceRecord{
		ServiceCode: code,
		PatientID:   pid,
		ServiceType: entry.ServiceType,
		ServiceName: entry.DisplayName,
		ServiceDate: identity.ParseDateFromLine(line),
	}, true
}
