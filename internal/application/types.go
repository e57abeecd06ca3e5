// Package application defines the job application record and the form
// validator shared by every create and update path.
package application

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date form used for DateApplied.
const DateLayout = "2006-01-02"

type JobType string

const (
	FullTime   JobType = "full-time"
	PartTime   JobType = "part-time"
	Contract   JobType = "contract"
	Internship JobType = "internship"
	Remote     JobType = "remote"
)

// JobTypes lists the canonical job types in display order.
var JobTypes = []JobType{FullTime, PartTime, Contract, Internship, Remote}

var jobTypeLabels = map[JobType]string{
	FullTime:   "Full Time",
	PartTime:   "Part Time",
	Contract:   "Contract",
	Internship: "Internship",
	Remote:     "Remote",
}

// Label returns the display label, or the raw value for unknown types.
func (t JobType) Label() string {
	if l, ok := jobTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

// Valid reports whether t matches a canonical job type, ignoring case.
func (t JobType) Valid() bool {
	_, ok := jobTypeLabels[JobType(strings.ToLower(string(t)))]
	return ok
}

type Status string

const (
	Applied      Status = "applied"
	Interviewing Status = "interviewing"
	Rejected     Status = "rejected"
	Accepted     Status = "accepted"

	// Pending is a legacy display value. It renders with its own label but is
	// not accepted by the validator.
	Pending Status = "application-pending"
)

// Statuses lists the canonical statuses in display order.
var Statuses = []Status{Applied, Interviewing, Rejected, Accepted}

var statusLabels = map[Status]string{
	Applied:      "Applied",
	Interviewing: "Interviewing",
	Rejected:     "Rejected",
	Accepted:     "Accepted",
}

func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	if s == Pending {
		return "Application Pending"
	}
	return string(s)
}

// Valid reports whether s is one of the canonical statuses, ignoring case.
func (s Status) Valid() bool {
	_, ok := statusLabels[Status(strings.ToLower(string(s)))]
	return ok
}

// Link is a named URL attached to an application.
type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Application is one tracked job application owned by a single principal.
type Application struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	CompanyName    string    `json:"companyName"`
	JobTitle       string    `json:"jobTitle"`
	JobType        JobType   `json:"jobType"`
	Location       string    `json:"location"`
	DateApplied    string    `json:"dateApplied"`
	Status         Status    `json:"status"`
	JobURL         string    `json:"jobUrl,omitempty"`
	MeetingURL     string    `json:"meetingUrl,omitempty"`
	OtherURLs      []Link    `json:"otherUrls"`
	JobDescription string    `json:"jobDescription,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AppliedOn parses DateApplied. ok is false when the value is empty or
// malformed.
func (a Application) AppliedOn() (time.Time, bool) {
	return ParseDate(a.DateApplied)
}

// ParseDate accepts a calendar date or an RFC 3339 timestamp and returns the
// calendar day in UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// Candidate is the user-editable part of an application as submitted by a
// create form. Empty strings mean the field was left blank.
type Candidate struct {
	CompanyName    string `json:"companyName"`
	JobTitle       string `json:"jobTitle"`
	JobType        string `json:"jobType"`
	Location       string `json:"location"`
	DateApplied    string `json:"dateApplied"`
	Status         string `json:"status"`
	JobURL         string `json:"jobUrl"`
	MeetingURL     string `json:"meetingUrl"`
	OtherURLs      []Link `json:"otherUrls"`
	JobDescription string `json:"jobDescription"`
	Notes          string `json:"notes"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	CompanyName    *string `json:"companyName,omitempty"`
	JobTitle       *string `json:"jobTitle,omitempty"`
	JobType        *string `json:"jobType,omitempty"`
	Location       *string `json:"location,omitempty"`
	DateApplied    *string `json:"dateApplied,omitempty"`
	Status         *string `json:"status,omitempty"`
	JobURL         *string `json:"jobUrl,omitempty"`
	MeetingURL     *string `json:"meetingUrl,omitempty"`
	OtherURLs      *[]Link `json:"otherUrls,omitempty"`
	JobDescription *string `json:"jobDescription,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// New builds a record from a validated candidate. Enum values are stored in
// their canonical lower-case form.
func New(id, owner string, c Candidate, now time.Time) Application {
	now = now.UTC()
	return Application{
		ID:             id,
		OwnerID:        owner,
		CompanyName:    strings.TrimSpace(c.CompanyName),
		JobTitle:       strings.TrimSpace(c.JobTitle),
		JobType:        JobType(strings.ToLower(c.JobType)),
		Location:       strings.TrimSpace(c.Location),
		DateApplied:    normalizeDate(c.DateApplied),
		Status:         Status(strings.ToLower(c.Status)),
		JobURL:         c.JobURL,
		MeetingURL:     c.MeetingURL,
		OtherURLs:      compactLinks(c.OtherURLs),
		JobDescription: c.JobDescription,
		Notes:          c.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Apply returns a copy of a with the patch applied and UpdatedAt refreshed.
// ID, OwnerID and CreatedAt are never changed.
func (p Patch) Apply(a Application, now time.Time) Application {
	if p.CompanyName != nil {
		a.CompanyName = strings.TrimSpace(*p.CompanyName)
	}
	if p.JobTitle != nil {
		a.JobTitle = strings.TrimSpace(*p.JobTitle)
	}
	if p.JobType != nil {
		a.JobType = JobType(strings.ToLower(*p.JobType))
	}
	if p.Location != nil {
		a.Location = strings.TrimSpace(*p.Location)
	}
	if p.DateApplied != nil {
		a.DateApplied = normalizeDate(*p.DateApplied)
	}
	if p.Status != nil {
		a.Status = Status(strings.ToLower(*p.Status))
	}
	if p.JobURL != nil {
		a.JobURL = *p.JobURL
	}
	if p.MeetingURL != nil {
		a.MeetingURL = *p.MeetingURL
	}
	if p.OtherURLs != nil {
		a.OtherURLs = compactLinks(*p.OtherURLs)
	}
	if p.JobDescription != nil {
		a.JobDescription = *p.JobDescription
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	a.UpdatedAt = now.UTC()
	return a
}

func normalizeDate(s string) string {
	if t, ok := ParseDate(s); ok {
		return t.Format(DateLayout)
	}
	return strings.TrimSpace(s)
}

// compactLinks drops rows where both name and url are blank, the way an
// empty "add another link" row is discarded on save.
func compactLinks(links []Link) []Link {
	out := make([]Link, 0, len(links))
	for _, l := range links {
		if strings.TrimSpace(l.Name) == "" && strings.TrimSpace(l.URL) == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}
