package application

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

const minNameLength = 2

// FieldError is one violated constraint on a form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors is the complete result of a validation pass.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, e := range fe {
		parts[i] = e.Field + ": " + e.Message
	}
	return "invalid application: " + strings.Join(parts, "; ")
}

// Has reports whether any error is tagged with field.
func (fe FieldErrors) Has(field string) bool {
	for _, e := range fe {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Validate checks a create candidate against every field rule and returns all
// violations. now is the instant the check runs; dates after its calendar day
// are rejected.
func Validate(c Candidate, now time.Time) FieldErrors {
	v := validator{now: now}

	v.required("companyName", c.CompanyName)
	v.required("jobTitle", c.JobTitle)
	v.required("jobType", c.JobType)
	v.required("location", c.Location)
	v.required("status", c.Status)
	v.required("dateApplied", c.DateApplied)

	v.checkFields(fields{
		companyName: &c.CompanyName,
		jobTitle:    &c.JobTitle,
		jobType:     &c.JobType,
		status:      &c.Status,
		dateApplied: &c.DateApplied,
		jobURL:      &c.JobURL,
		meetingURL:  &c.MeetingURL,
		otherURLs:   c.OtherURLs,
	})
	return v.errs
}

// ValidatePatch checks only the fields present in p. A required field that is
// present but blank is reported as missing.
func ValidatePatch(p Patch, now time.Time) FieldErrors {
	v := validator{now: now}

	requiredPtr := func(field string, s *string) {
		if s != nil {
			v.required(field, *s)
		}
	}
	requiredPtr("companyName", p.CompanyName)
	requiredPtr("jobTitle", p.JobTitle)
	requiredPtr("jobType", p.JobType)
	requiredPtr("location", p.Location)
	requiredPtr("status", p.Status)
	requiredPtr("dateApplied", p.DateApplied)

	f := fields{
		companyName: p.CompanyName,
		jobTitle:    p.JobTitle,
		jobType:     p.JobType,
		status:      p.Status,
		dateApplied: p.DateApplied,
		jobURL:      p.JobURL,
		meetingURL:  p.MeetingURL,
	}
	if p.OtherURLs != nil {
		f.otherURLs = *p.OtherURLs
	}
	v.checkFields(f)
	return v.errs
}

type fields struct {
	companyName, jobTitle, jobType, status, dateApplied, jobURL, meetingURL *string
	otherURLs                                                               []Link
}

type validator struct {
	now  time.Time
	errs FieldErrors
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "%s is required", strings.ToUpper(field[:1])+field[1:])
	}
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func (v *validator) checkFields(f fields) {
	if present(f.companyName) && utf8.RuneCountInString(strings.TrimSpace(*f.companyName)) < minNameLength {
		v.add("companyName", "Company name must be at least %d characters long", minNameLength)
	}
	if present(f.jobTitle) && utf8.RuneCountInString(strings.TrimSpace(*f.jobTitle)) < minNameLength {
		v.add("jobTitle", "Job title must be at least %d characters long", minNameLength)
	}
	if present(f.jobType) && !JobType(*f.jobType).Valid() {
		v.add("jobType", "Invalid job type")
	}
	if present(f.status) && !Status(*f.status).Valid() {
		v.add("status", "Invalid application status")
	}
	if present(f.dateApplied) {
		v.checkDate(*f.dateApplied)
	}
	if present(f.jobURL) && !ValidURL(*f.jobURL) {
		v.add("jobUrl", "Invalid job URL")
	}
	if present(f.meetingURL) && !ValidURL(*f.meetingURL) {
		v.add("meetingUrl", "Invalid meeting URL")
	}
	for i, l := range f.otherURLs {
		if strings.TrimSpace(l.URL) == "" {
			if strings.TrimSpace(l.Name) != "" {
				v.add(fmt.Sprintf("otherUrls[%d].url", i), "URL is required for link %q", l.Name)
			}
			continue
		}
		if !ValidURL(l.URL) {
			v.add(fmt.Sprintf("otherUrls[%d].url", i), "Invalid URL")
		}
	}
}

func (v *validator) checkDate(s string) {
	d, ok := ParseDate(s)
	if !ok {
		v.add("dateApplied", "Invalid application date")
		return
	}
	y, m, day := v.now.Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	if d.After(today) {
		v.add("dateApplied", "Application date cannot be in the future")
	}
}

// ValidURL reports whether s parses as an absolute URL. Opaque and
// host-less forms such as mailto: and file:/// are accepted; http(s) URLs
// need a host, and a host name must convert to ASCII.
func ValidURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || !u.IsAbs() {
		return false
	}
	host := u.Hostname()
	if host == "" {
		scheme := strings.ToLower(u.Scheme)
		return scheme != "http" && scheme != "https"
	}
	if net.ParseIP(host) != nil {
		return true
	}
	// Punycode skips the STD3 rules, so underscores in labels pass.
	_, err = idna.Punycode.ToASCII(host)
	return err == nil
}
