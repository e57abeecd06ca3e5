package listview

import (
	"fmt"
	"math/rand"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/kalambet/jobtrack/internal/application"
)

func rec(id, company, date string, status application.Status, jobType application.JobType) application.Application {
	return application.Application{
		ID:          id,
		CompanyName: company,
		DateApplied: date,
		Status:      status,
		JobType:     jobType,
	}
}

func ids(apps []application.Application) []string {
	out := make([]string, len(apps))
	for i, a := range apps {
		out[i] = a.ID
	}
	return out
}

func day(s string) time.Time {
	d, ok := application.ParseDate(s)
	if !ok {
		panic("bad date " + s)
	}
	return d
}

func acmePair() []application.Application {
	return []application.Application{
		rec("jan", "Acme", "2024-01-05", application.Applied, application.FullTime),
		rec("feb", "Acme", "2024-02-10", application.Accepted, application.FullTime),
	}
}

func TestApply_DateDescending(t *testing.T) {
	got := Apply(acmePair(), FilterState{}, SortState{Field: SortDateApplied, Direction: Descending})
	assert.Equal(t, []string{"feb", "jan"}, ids(got))
}

func TestApply_SearchIsCaseInsensitive(t *testing.T) {
	got := Apply(acmePair(), FilterState{Search: "acme"}, DefaultSort)
	assert.Len(t, got, 2)

	got = Apply(acmePair(), FilterState{Search: "zzz"}, DefaultSort)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestApply_SearchIsSubstring(t *testing.T) {
	records := []application.Application{
		rec("1", "Globex Corporation", "2024-01-01", application.Applied, application.Remote),
		rec("2", "Initech", "2024-01-02", application.Applied, application.Remote),
	}
	got := Apply(records, FilterState{Search: "BEX CORP"}, DefaultSort)
	assert.Equal(t, []string{"1"}, ids(got))
}

func TestApply_JobTypeAndDateRange(t *testing.T) {
	records := []application.Application{
		rec("a", "A Co", "2024-01-01", application.Applied, application.FullTime),
		rec("b", "B Co", "2024-01-15", application.Applied, application.Contract),
		rec("c", "C Co", "2024-01-31", application.Applied, application.FullTime),
		rec("d", "D Co", "2024-02-01", application.Applied, application.FullTime),
		rec("e", "E Co", "not a date", application.Applied, application.FullTime),
	}

	f := FilterState{JobType: application.FullTime, StartDate: day("2024-01-01"), EndDate: day("2024-01-31")}
	got := Apply(records, f, SortState{Field: SortDateApplied, Direction: Ascending})
	assert.Equal(t, []string{"a", "c"}, ids(got))

	got = Apply(records, FilterState{JobType: application.FullTime}, SortState{Field: SortCompanyName, Direction: Ascending})
	assert.Equal(t, []string{"a", "c", "d", "e"}, ids(got))
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	records := acmePair()
	_ = Apply(records, FilterState{}, SortState{Field: SortDateApplied, Direction: Descending})
	assert.Equal(t, []string{"jan", "feb"}, ids(records))
}

func TestApply_LocaleAwareCompanyOrder(t *testing.T) {
	records := []application.Application{
		rec("1", "banana", "2024-01-01", application.Applied, application.Remote),
		rec("2", "Zeta", "2024-01-01", application.Applied, application.Remote),
		rec("3", "Äpfel", "2024-01-01", application.Applied, application.Remote),
		rec("4", "apple", "2024-01-01", application.Applied, application.Remote),
	}

	got := Apply(records, FilterState{}, SortState{Field: SortCompanyName, Direction: Ascending})
	assert.Equal(t, []string{"3", "4", "1", "2"}, ids(got))

	sv := View{Lang: language.Swedish}
	got = sv.Apply(records, FilterState{}, SortState{Field: SortCompanyName, Direction: Ascending})
	assert.Equal(t, []string{"4", "1", "2", "3"}, ids(got))
}

func TestApply_StableForEqualKeys(t *testing.T) {
	records := []application.Application{
		rec("1", "Acme", "2024-01-01", application.Applied, application.Remote),
		rec("2", "Beta", "2024-01-01", application.Applied, application.Remote),
		rec("3", "Acme", "2024-01-01", application.Applied, application.Remote),
		rec("4", "Beta", "2024-01-01", application.Applied, application.Remote),
	}

	asc := Apply(records, FilterState{}, SortState{Field: SortCompanyName, Direction: Ascending})
	assert.Equal(t, []string{"1", "3", "2", "4"}, ids(asc))

	desc := Apply(records, FilterState{}, SortState{Field: SortCompanyName, Direction: Descending})
	assert.Equal(t, []string{"2", "4", "1", "3"}, ids(desc))

	byStatus := Apply(records, FilterState{}, SortState{Field: SortStatus, Direction: Descending})
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(byStatus))
}

func TestApply_Idempotent(t *testing.T) {
	records := randomRecords(rand.New(rand.NewSource(7)), 50)
	f := FilterState{Search: "o"}
	s := SortState{Field: SortStatus, Direction: Descending}

	first := Apply(records, f, s)
	second := Apply(records, f, s)
	assert.Equal(t, first, second)
}

// TestApply_FilterIsExact checks that the output holds exactly the records
// satisfying the predicate, for many random inputs.
func TestApply_FilterIsExact(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	searches := []string{"", "a", "CO", "inc", "zz"}
	for i := 0; i < 200; i++ {
		records := randomRecords(rng, rng.Intn(30))
		f := FilterState{Search: searches[rng.Intn(len(searches))]}
		if rng.Intn(2) == 0 {
			f.JobType = application.JobTypes[rng.Intn(len(application.JobTypes))]
		}
		if rng.Intn(2) == 0 {
			f.StartDate = day("2024-01-10")
		}
		if rng.Intn(2) == 0 {
			f.EndDate = day("2024-02-20")
		}

		got := Apply(records, f, SortState{Field: SortField(SortFields[rng.Intn(len(SortFields))]), Direction: Ascending})

		in := make(map[string]bool)
		for _, r := range got {
			require.True(t, Matches(r, f), "record %s should not be included for %+v", r.ID, f)
			in[r.ID] = true
		}
		for _, r := range records {
			if !in[r.ID] {
				require.False(t, Matches(r, f), "record %s should be included for %+v", r.ID, f)
			}
		}
	}
}

func TestToggle(t *testing.T) {
	s := DefaultSort
	s = s.Toggle(SortDateApplied)
	assert.Equal(t, SortState{Field: SortDateApplied, Direction: Ascending}, s)

	s = s.Toggle(SortCompanyName)
	assert.Equal(t, SortState{Field: SortCompanyName, Direction: Ascending}, s)

	s = s.Toggle(SortCompanyName)
	assert.Equal(t, SortState{Field: SortCompanyName, Direction: Descending}, s)
}

func TestToggle_TwiceReversesOrder(t *testing.T) {
	records := []application.Application{
		rec("1", "Delta", "2024-01-04", application.Applied, application.Remote),
		rec("2", "Alpha", "2024-01-02", application.Applied, application.Remote),
		rec("3", "Charlie", "2024-01-03", application.Applied, application.Remote),
		rec("4", "Bravo", "2024-01-01", application.Applied, application.Remote),
	}

	once := DefaultSort.Toggle(SortCompanyName)
	twice := once.Toggle(SortCompanyName)

	a := ids(Apply(records, FilterState{}, once))
	b := ids(Apply(records, FilterState{}, twice))
	for i := range a {
		assert.Equal(t, a[i], b[len(b)-1-i])
	}
}

func TestIter_Restartable(t *testing.T) {
	seq := Default.Iter(acmePair(), FilterState{}, SortState{Field: SortDateApplied, Direction: Descending})

	var first, second []string
	for a := range seq {
		first = append(first, a.ID)
	}
	for a := range seq {
		second = append(second, a.ID)
		break
	}
	assert.Equal(t, []string{"feb", "jan"}, first)
	assert.Equal(t, []string{"feb"}, second)
}

func TestJobTypeOptions(t *testing.T) {
	records := []application.Application{
		rec("1", "A", "2024-01-01", application.Applied, application.Contract),
		rec("2", "B", "2024-01-01", application.Applied, application.FullTime),
		rec("3", "C", "2024-01-01", application.Applied, application.Contract),
	}
	assert.Equal(t, []application.JobType{application.Contract, application.FullTime}, JobTypeOptions(records))
}

func TestParseFilterAndSort(t *testing.T) {
	q := url.Values{
		"search":     {" acme "},
		"job_type":   {"Full-Time"},
		"start_date": {"2024-01-01"},
		"sort":       {"companyName"},
		"order":      {"desc"},
	}
	f, err := ParseFilter(q)
	require.NoError(t, err)
	assert.Equal(t, " acme ", f.Search)
	assert.Equal(t, application.FullTime, f.JobType)
	assert.Equal(t, day("2024-01-01"), f.StartDate)
	assert.True(t, f.EndDate.IsZero())

	s, err := ParseSort(q)
	require.NoError(t, err)
	assert.Equal(t, SortState{Field: SortCompanyName, Direction: Descending}, s)

	s, err = ParseSort(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSort, s)

	_, err = ParseSort(url.Values{"sort": {"location"}})
	assert.Error(t, err)

	_, err = ParseFilter(url.Values{"end_date": {"yesterday"}})
	assert.Error(t, err)

	back, err := ParseFilter(Values(f, s))
	require.NoError(t, err)
	assert.Equal(t, f, back)
}

func TestParseFilter_SearchMatchesApply(t *testing.T) {
	records := []application.Application{
		rec("1", "Acme Inc", "2024-01-01", application.Applied, application.FullTime),
		rec("2", "Initech", "2024-01-02", application.Applied, application.FullTime),
	}

	f, err := ParseFilter(url.Values{"search": {" Inc"}})
	require.NoError(t, err)

	direct := Apply(records, FilterState{Search: " Inc"}, DefaultSort)
	assert.Equal(t, ids(direct), ids(Apply(records, f, DefaultSort)))
	assert.Equal(t, []string{"1"}, ids(direct))
}

func randomRecords(rng *rand.Rand, n int) []application.Application {
	companies := []string{"Acme Inc", "Globex Co", "Initech", "Umbrella", "Hooli", "Pied Piper", "Stark Co"}
	out := make([]application.Application, n)
	base := day("2024-01-01")
	for i := range out {
		out[i] = rec(
			fmt.Sprintf("r%d", i),
			companies[rng.Intn(len(companies))],
			base.AddDate(0, 0, rng.Intn(90)).Format(application.DateLayout),
			application.Statuses[rng.Intn(len(application.Statuses))],
			application.JobTypes[rng.Intn(len(application.JobTypes))],
		)
	}
	return out
}
