package listview

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/jobtrack/internal/application"
)

func TestAggregate_Empty(t *testing.T) {
	a := Aggregate(nil)

	assert.Equal(t, 0, a.Total)
	assert.Equal(t, 0.0, a.SuccessRate)
	assert.Equal(t, "0.0", a.SuccessRateText)
	assert.Equal(t, 0, a.AvgResponseDays)
	assert.Empty(t, a.TopCompanies)
	assert.Empty(t, a.ByJobType)
	assert.Len(t, a.ByStatus, len(application.Statuses))
}

func TestAggregate_SuccessRate(t *testing.T) {
	var records []application.Application
	for i := 0; i < 10; i++ {
		status := application.Rejected
		if i < 3 {
			status = application.Accepted
		}
		records = append(records, rec(fmt.Sprint(i), "Acme", "2024-01-01", status, application.FullTime))
	}

	a := Aggregate(records)
	assert.Equal(t, "30.0", a.SuccessRateText)
	assert.InDelta(t, 30.0, a.SuccessRate, 1e-9)
	assert.Equal(t, KPIs{Total: 10, Accepted: 3, Rejected: 7}, a.KPIs())
}

func TestAggregate_StatusCountsSumToTotal(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	records := randomRecords(rng, 40)
	records = append(records, rec("odd", "Legacy", "2024-01-01", application.Pending, "gig"))

	a := Aggregate(records)

	sum := 0
	for _, c := range a.ByStatus {
		sum += c.Count
	}
	assert.Equal(t, a.Total, sum)
	assert.Equal(t, 1, a.StatusCount(application.Pending))

	jobSum := 0
	for _, c := range a.ByJobType {
		jobSum += c.Count
	}
	assert.Equal(t, a.Total, jobSum)
}

func TestAggregate_ActiveIsAppliedPlusInterviewing(t *testing.T) {
	records := []application.Application{
		rec("1", "A", "2024-01-01", application.Applied, application.Remote),
		rec("2", "B", "2024-01-01", application.Interviewing, application.Remote),
		rec("3", "C", "2024-01-01", application.Rejected, application.Remote),
	}
	assert.Equal(t, 2, Aggregate(records).Active)
}

func TestAggregate_AvgResponseDays(t *testing.T) {
	mk := func(id, date string, updated time.Time) application.Application {
		a := rec(id, "Acme", date, application.Applied, application.Remote)
		a.UpdatedAt = updated
		return a
	}
	records := []application.Application{
		mk("1", "2024-01-01", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)),
		mk("2", "2024-01-01", time.Date(2024, 1, 4, 12, 0, 0, 0, time.UTC)),
		mk("3", "2024-01-01", time.Time{}),
		mk("4", "", time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)),
	}

	// (2 + 3.5) / 2 = 2.75
	assert.Equal(t, 3, Aggregate(records).AvgResponseDays)
}

func TestAggregate_TopCompaniesTieBreakByFirstSeen(t *testing.T) {
	var records []application.Application
	add := func(company string, n int) {
		for i := 0; i < n; i++ {
			records = append(records, rec(fmt.Sprintf("%s-%d", company, i), company, "2024-01-01", application.Applied, application.Remote))
		}
	}
	add("Zed", 1)
	add("Acme", 3)
	add("Yak", 1)
	add("Beta", 2)
	add("Xeno", 1)
	add("Wolf", 1)
	add("Gamma", 2)

	top := Aggregate(records).TopCompanies
	require.Len(t, top, 5)

	var names []string
	for _, c := range top {
		names = append(names, c.Key)
	}
	assert.Equal(t, []string{"Acme", "Beta", "Gamma", "Zed", "Yak"}, names)
	assert.Equal(t, 3, top[0].Count)
}

func TestAggregate_JobTypeDistributionInFirstSeenOrder(t *testing.T) {
	records := []application.Application{
		rec("1", "A", "2024-01-01", application.Applied, application.Internship),
		rec("2", "B", "2024-01-01", application.Applied, application.FullTime),
		rec("3", "C", "2024-01-01", application.Applied, application.Internship),
	}
	got := Aggregate(records).ByJobType
	assert.Equal(t, []Count{
		{Key: "internship", Label: "Internship", Count: 2},
		{Key: "full-time", Label: "Full Time", Count: 1},
	}, got)
}
