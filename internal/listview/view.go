// Package listview derives the display list and dashboard analytics from a
// principal's full record set. Everything here is a pure function of its
// inputs: no I/O, no shared state, no errors.
package listview

import (
	"iter"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/kalambet/jobtrack/internal/application"
)

type SortField string

const (
	SortCompanyName SortField = "companyName"
	SortDateApplied SortField = "dateApplied"
	SortStatus      SortField = "status"
	SortJobType     SortField = "jobType"
)

// SortFields lists the sortable columns.
var SortFields = []SortField{SortCompanyName, SortDateApplied, SortStatus, SortJobType}

func (f SortField) Valid() bool {
	return slices.Contains(SortFields, f)
}

type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// FilterState is the search and filter bar. Zero values mean "no filter".
// StartDate and EndDate are inclusive calendar days.
type FilterState struct {
	Search    string
	JobType   application.JobType
	StartDate time.Time
	EndDate   time.Time
}

type SortState struct {
	Field     SortField `json:"field"`
	Direction Direction `json:"direction"`
}

// DefaultSort is newest application first.
var DefaultSort = SortState{Field: SortDateApplied, Direction: Descending}

// Toggle returns the state after a click on field's column header: the same
// field flips direction, a new field starts ascending.
func (s SortState) Toggle(field SortField) SortState {
	if s.Field == field {
		if s.Direction == Ascending {
			return SortState{Field: field, Direction: Descending}
		}
		return SortState{Field: field, Direction: Ascending}
	}
	return SortState{Field: field, Direction: Ascending}
}

// View holds the language used for collation. The zero View collates as
// English.
type View struct {
	Lang language.Tag
}

// Default collates with English rules.
var Default = View{Lang: language.English}

func (v View) tag() language.Tag {
	if v.Lang == language.Und {
		return language.English
	}
	return v.Lang
}

// Apply returns the records that match f ordered by s. The input slice is not
// modified. Records with equal sort keys keep their input order.
func (v View) Apply(records []application.Application, f FilterState, s SortState) []application.Application {
	fold := cases.Fold()
	needle := fold.String(f.Search)

	out := make([]application.Application, 0, len(records))
	for _, r := range records {
		if matches(r, f, needle, fold) {
			out = append(out, r)
		}
	}

	cmp := v.comparator(s.Field)
	sign := 1
	if s.Direction == Descending {
		sign = -1
	}
	sort.SliceStable(out, func(i, j int) bool {
		return sign*cmp(out[i], out[j]) < 0
	})
	return out
}

// Iter is the lazy form of Apply. Each call to the returned sequence
// recomputes the view from records, so it can be ranged over repeatedly.
func (v View) Iter(records []application.Application, f FilterState, s SortState) iter.Seq[application.Application] {
	return func(yield func(application.Application) bool) {
		for _, r := range v.Apply(records, f, s) {
			if !yield(r) {
				return
			}
		}
	}
}

// Apply filters and sorts with the Default view.
func Apply(records []application.Application, f FilterState, s SortState) []application.Application {
	return Default.Apply(records, f, s)
}

// Matches reports whether r passes every filter in f.
func Matches(r application.Application, f FilterState) bool {
	fold := cases.Fold()
	return matches(r, f, fold.String(f.Search), fold)
}

func matches(r application.Application, f FilterState, needle string, fold cases.Caser) bool {
	if needle != "" && !strings.Contains(fold.String(r.CompanyName), needle) {
		return false
	}
	if f.JobType != "" && r.JobType != f.JobType {
		return false
	}
	if f.StartDate.IsZero() && f.EndDate.IsZero() {
		return true
	}
	applied, ok := r.AppliedOn()
	if !ok {
		return false
	}
	if !f.StartDate.IsZero() && applied.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && applied.After(f.EndDate) {
		return false
	}
	return true
}

func (v View) comparator(field SortField) func(a, b application.Application) int {
	if field == SortDateApplied {
		return func(a, b application.Application) int {
			ta, _ := a.AppliedOn()
			tb, _ := b.AppliedOn()
			return ta.Compare(tb)
		}
	}

	col := collate.New(v.tag())
	key := textKey(field)
	return func(a, b application.Application) int {
		return col.CompareString(key(a), key(b))
	}
}

func textKey(field SortField) func(application.Application) string {
	switch field {
	case SortStatus:
		return func(a application.Application) string { return string(a.Status) }
	case SortJobType:
		return func(a application.Application) string { return string(a.JobType) }
	default:
		return func(a application.Application) string { return a.CompanyName }
	}
}

// JobTypeOptions returns the distinct job types present in records in the
// order they first appear, for populating a filter dropdown.
func JobTypeOptions(records []application.Application) []application.JobType {
	seen := make(map[application.JobType]bool)
	var out []application.JobType
	for _, r := range records {
		if !seen[r.JobType] {
			seen[r.JobType] = true
			out = append(out, r.JobType)
		}
	}
	return out
}
