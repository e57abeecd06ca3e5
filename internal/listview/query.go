package listview

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kalambet/jobtrack/internal/application"
)

// ParseFilter reads search, job_type, start_date and end_date from q. The
// search term is kept verbatim, surrounding spaces included.
func ParseFilter(q url.Values) (FilterState, error) {
	f := FilterState{
		Search:  q.Get("search"),
		JobType: application.JobType(strings.ToLower(strings.TrimSpace(q.Get("job_type")))),
	}
	if s := q.Get("start_date"); s != "" {
		d, ok := application.ParseDate(s)
		if !ok {
			return FilterState{}, fmt.Errorf("invalid start_date %q", s)
		}
		f.StartDate = d
	}
	if s := q.Get("end_date"); s != "" {
		d, ok := application.ParseDate(s)
		if !ok {
			return FilterState{}, fmt.Errorf("invalid end_date %q", s)
		}
		f.EndDate = d
	}
	return f, nil
}

// ParseSort reads sort and order from q, falling back to DefaultSort. An
// order without a sort field applies to the default field.
func ParseSort(q url.Values) (SortState, error) {
	s := DefaultSort
	if field := q.Get("sort"); field != "" {
		if !SortField(field).Valid() {
			return SortState{}, fmt.Errorf("invalid sort field %q", field)
		}
		s = SortState{Field: SortField(field), Direction: Ascending}
	}
	switch order := strings.ToLower(q.Get("order")); order {
	case "":
	case "asc", "ascending":
		s.Direction = Ascending
	case "desc", "descending":
		s.Direction = Descending
	default:
		return SortState{}, fmt.Errorf("invalid sort order %q", order)
	}
	return s, nil
}

// Values encodes the state back into query parameters.
func Values(f FilterState, s SortState) url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.JobType != "" {
		q.Set("job_type", string(f.JobType))
	}
	if !f.StartDate.IsZero() {
		q.Set("start_date", f.StartDate.Format(application.DateLayout))
	}
	if !f.EndDate.IsZero() {
		q.Set("end_date", f.EndDate.Format(application.DateLayout))
	}
	if s.Field != "" {
		q.Set("sort", string(s.Field))
	}
	if s.Direction != "" {
		q.Set("order", string(s.Direction))
	}
	return q
}
