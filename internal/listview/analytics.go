package listview

import (
	"fmt"
	"math"
	"sort"

	"github.com/kalambet/jobtrack/internal/application"
)

const topCompanyLimit = 5

// Count is one labelled bucket in a distribution.
type Count struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Analytics is the dashboard summary over a principal's full record set.
type Analytics struct {
	Total           int     `json:"total"`
	ByStatus        []Count `json:"byStatus"`
	Active          int     `json:"active"`
	SuccessRate     float64 `json:"successRate"`
	SuccessRateText string  `json:"successRateText"`
	AvgResponseDays int     `json:"avgResponseDays"`
	TopCompanies    []Count `json:"topCompanies"`
	ByJobType       []Count `json:"byJobType"`
}

// KPIs are the four headline cards on the list screen.
type KPIs struct {
	Total        int `json:"total"`
	Interviewing int `json:"interviewing"`
	Rejected     int `json:"rejected"`
	Accepted     int `json:"accepted"`
}

// StatusCount returns the number of records with status s.
func (a Analytics) StatusCount(s application.Status) int {
	for _, c := range a.ByStatus {
		if c.Key == string(s) {
			return c.Count
		}
	}
	return 0
}

func (a Analytics) KPIs() KPIs {
	return KPIs{
		Total:        a.Total,
		Interviewing: a.StatusCount(application.Interviewing),
		Rejected:     a.StatusCount(application.Rejected),
		Accepted:     a.StatusCount(application.Accepted),
	}
}

// Aggregate computes analytics over every record, ignoring any filter or sort.
// Statuses outside the canonical set are counted under their raw value so the
// per-status counts always sum to Total.
func Aggregate(records []application.Application) Analytics {
	a := Analytics{Total: len(records)}

	statusIdx := make(map[string]int)
	for _, s := range application.Statuses {
		statusIdx[string(s)] = len(a.ByStatus)
		a.ByStatus = append(a.ByStatus, Count{Key: string(s), Label: s.Label()})
	}

	companyIdx := make(map[string]int)
	typeIdx := make(map[string]int)
	var responseDays float64
	var responded int

	for _, r := range records {
		bump(&a.ByStatus, statusIdx, string(r.Status), r.Status.Label())
		bump(&a.TopCompanies, companyIdx, r.CompanyName, r.CompanyName)
		bump(&a.ByJobType, typeIdx, string(r.JobType), r.JobType.Label())

		applied, ok := r.AppliedOn()
		if ok && !r.UpdatedAt.IsZero() {
			responseDays += r.UpdatedAt.Sub(applied).Hours() / 24
			responded++
		}
	}

	a.Active = a.StatusCount(application.Applied) + a.StatusCount(application.Interviewing)

	if a.Total > 0 {
		a.SuccessRate = float64(a.StatusCount(application.Accepted)) / float64(a.Total) * 100
	}
	a.SuccessRateText = fmt.Sprintf("%.1f", a.SuccessRate)

	if responded > 0 {
		a.AvgResponseDays = int(math.Floor(responseDays/float64(responded) + 0.5))
	}

	sort.SliceStable(a.TopCompanies, func(i, j int) bool {
		return a.TopCompanies[i].Count > a.TopCompanies[j].Count
	})
	if len(a.TopCompanies) > topCompanyLimit {
		a.TopCompanies = a.TopCompanies[:topCompanyLimit]
	}
	if a.ByJobType == nil {
		a.ByJobType = []Count{}
	}
	if a.TopCompanies == nil {
		a.TopCompanies = []Count{}
	}
	return a
}

func bump(counts *[]Count, idx map[string]int, key, label string) {
	i, ok := idx[key]
	if !ok {
		i = len(*counts)
		idx[key] = i
		*counts = append(*counts, Count{Key: key, Label: label})
	}
	(*counts)[i].Count++
}
