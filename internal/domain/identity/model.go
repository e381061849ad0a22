package identity

import (
	"github.com/rips/rips/pkg/orderedmap"
)

// Sex values accepted on a roster entry. Empty means unknown.
const (
	SexMale   = "M"
	SexFemale = "F"
)

// Patient is one roster entry keyed by its canonical identifier.
type Patient struct {
	ID        string `json:"patient_id" yaml:"patient_id"`
	Sex       string `json:"sex" yaml:"sex"`
	BirthDate string `json:"birth_date" yaml:"birth_date"`
	FullName  string `json:"full_name" yaml:"full_name"`
}

// mergeFrom applies the roster overwrite rule: each field takes the new value
// only when the new value is non-empty.
func (p *Patient) mergeFrom(update Patient) {
	if update.Sex != "" {
		p.Sex = update.Sex
	}
	if update.BirthDate != "" {
		p.BirthDate = update.BirthDate
	}
	if update.FullName != "" {
		p.FullName = update.FullName
	}
}

// Roster is the set of known patients in first-seen order.
type Roster struct {
	entries *orderedmap.Map[string, Patient]
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{entries: orderedmap.New[string, Patient]()}
}

// RosterFromPatients builds a roster by merging the given patients in order.
// Entries whose ID normalizes to empty are ignored.
func RosterFromPatients(patients []Patient) *Roster {
	r := NewRoster()
	for _, p := range patients {
		r.Merge(p)
	}
	return r
}

// Merge folds update into the roster. A new ID creates an entry with empty
// defaults first; an existing entry keeps any field the update leaves empty.
func (r *Roster) Merge(update Patient) bool {
	id := NormalizeID(update.ID)
	if id == "" {
		return false
	}
	p := r.entries.GetOrInsert(id, func() Patient { return Patient{ID: id} })
	p.mergeFrom(update)
	r.entries.Set(id, p)
	return true
}

// MergeRoster folds every entry of other into r, in other's order.
func (r *Roster) MergeRoster(other *Roster) {
	if other == nil {
		return
	}
	other.entries.Each(func(_ string, p Patient) bool {
		r.Merge(p)
		return true
	})
}

// Get returns the patient stored under a canonical ID.
func (r *Roster) Get(id string) (Patient, bool) {
	return r.entries.Get(id)
}

// Len returns the number of known patients.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return r.entries.Len()
}

// Values returns a copy of all patients in first-seen order.
func (r *Roster) Values() []Patient {
	if r == nil {
		return nil
	}
	return r.entries.Values()
}

// Clone returns an independent copy.
func (r *Roster) Clone() *Roster {
	if r == nil {
		return NewRoster()
	}
	return &Roster{entries: r.entries.Clone()}
}
