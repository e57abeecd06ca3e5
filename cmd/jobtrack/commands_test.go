package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/jobtrack/internal/api"
	"github.com/kalambet/jobtrack/internal/application"
	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

type cannedResponse struct {
	status int
	body   string
}

func newTestServer(t *testing.T, responses map[string]cannedResponse) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			status := resp.status
			if status == 0 {
				status = http.StatusOK
			}
			w.WriteHeader(status)
			w.Write([]byte(resp.body))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		session:    auth.NewSession("alice"),
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestCreateApplication_SendsCandidate(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /applications": {status: http.StatusCreated, body: `{"id":"app-123"}`},
	})
	client := ts.client()

	c := application.Candidate{CompanyName: "Acme", JobTitle: "Engineer", JobType: "remote"}
	resp, err := client.post(ctx, "/applications", c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["id"] != "app-123" {
		t.Errorf("id = %q, want app-123", result["id"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	var body application.Candidate
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body.CompanyName != "Acme" || body.JobType != "remote" {
		t.Errorf("body = %+v", body)
	}
}

func TestDecodeJSON_ValidationEnvelope(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /applications": {
			status: http.StatusUnprocessableEntity,
			body:   `{"error":{"message":"please fix the highlighted fields","type":"validation_error"},"fields":[{"field":"companyName","message":"Company name is required"}]}`,
		},
	})

	resp, err := ts.client().post(ctx, "/applications", map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	err = decodeJSON(resp, &struct{}{})

	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apiError, got %T: %v", err, err)
	}
	if apiErr.Status != 422 || apiErr.Type != "validation_error" || len(apiErr.Fields) != 1 {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if !strings.Contains(err.Error(), "companyName: Company name is required") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestDecodeJSON_PlainBody(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /applications": {status: http.StatusBadGateway, body: "upstream down"},
	})

	resp, err := ts.client().get(ctx, "/applications")
	if err != nil {
		t.Fatal(err)
	}
	err = decodeJSON(resp, &struct{}{})
	if err == nil || err.Error() != "server returned 502: upstream down" {
		t.Errorf("err = %v", err)
	}
}

func TestListQuery(t *testing.T) {
	cmd := &cobra.Command{}
	addListFlags(cmd)
	cmd.Flags().Set("search", "acme")
	cmd.Flags().Set("job-type", "Remote")
	cmd.Flags().Set("from", "2024-01-01")
	cmd.Flags().Set("sort", "companyName")

	query, err := listQuery(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q, _ := url.ParseQuery(query)
	if q.Get("search") != "acme" || q.Get("job_type") != "remote" || q.Get("start_date") != "2024-01-01" {
		t.Errorf("query = %s", query)
	}
	if q.Get("sort") != "companyName" || q.Get("order") != "asc" {
		t.Errorf("sort in query = %s", query)
	}
}

func TestListQuery_Invalid(t *testing.T) {
	for flag, value := range map[string]string{
		"from":  "last week",
		"sort":  "salary",
		"order": "sideways",
	} {
		cmd := &cobra.Command{}
		addListFlags(cmd)
		cmd.Flags().Set(flag, value)
		if _, err := listQuery(cmd); err == nil {
			t.Errorf("--%s %q: expected error", flag, value)
		}
	}
}

func TestParseLinks(t *testing.T) {
	links := parseLinks([]string{"Recruiter = https://example.com/jane", "https://example.com/bare"})
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if links[0].Name != "Recruiter" || links[0].URL != "https://example.com/jane" {
		t.Errorf("links[0] = %+v", links[0])
	}
	if links[1].Name != "" || links[1].URL != "https://example.com/bare" {
		t.Errorf("links[1] = %+v", links[1])
	}
}

func TestCandidateFromFlags_Defaults(t *testing.T) {
	dir := t.TempDir()
	descPath := filepath.Join(dir, "posting.txt")
	os.WriteFile(descPath, []byte("  Build   things.\n\n\n\nShip them.  "), 0o644)

	cmd := &cobra.Command{}
	addApplicationFlags(cmd)
	cmd.Flags().Set("company", "Acme")
	cmd.Flags().Set("title", "Engineer")
	cmd.Flags().Set("description-file", descPath)

	now := time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)
	c, err := candidateFromFlags(cmd, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.DateApplied != "2024-03-15" {
		t.Errorf("date = %q, want today", c.DateApplied)
	}
	if c.Status != "applied" {
		t.Errorf("status = %q, want applied", c.Status)
	}
	if c.JobDescription != "Build things.\n\nShip them." {
		t.Errorf("description = %q", c.JobDescription)
	}
	if len(c.OtherURLs) != 0 {
		t.Errorf("links = %+v", c.OtherURLs)
	}
}

func TestCandidateFromFlags_MissingDescriptionFile(t *testing.T) {
	cmd := &cobra.Command{}
	addApplicationFlags(cmd)
	cmd.Flags().Set("description-file", filepath.Join(t.TempDir(), "missing.txt"))

	if _, err := candidateFromFlags(cmd, time.Now()); err == nil {
		t.Error("expected error for missing description file")
	}
}

func TestPatchFromFlags_OnlyChanged(t *testing.T) {
	cmd := &cobra.Command{}
	addApplicationFlags(cmd)

	p, err := patchFromFlags(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Empty() {
		t.Errorf("expected empty patch, got %+v", p)
	}

	cmd.Flags().Set("status", "interviewing")
	cmd.Flags().Set("notes", "")
	cmd.Flags().Set("link", "Portal=https://example.com")
	p, err = patchFromFlags(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status == nil || *p.Status != "interviewing" {
		t.Errorf("status = %v", p.Status)
	}
	if p.Notes == nil || *p.Notes != "" {
		t.Errorf("notes should be cleared, got %v", p.Notes)
	}
	if p.CompanyName != nil || p.JobDescription != nil {
		t.Errorf("unchanged fields set: %+v", p)
	}
	if p.OtherURLs == nil || len(*p.OtherURLs) != 1 {
		t.Errorf("links = %v", p.OtherURLs)
	}
}

func TestRequireSession(t *testing.T) {
	c := &apiClient{session: auth.NewSession("")}
	if _, err := c.requireSession(); !errors.Is(err, errNotLoggedIn) {
		t.Errorf("err = %v, want errNotLoggedIn", err)
	}

	c.session.SignIn("alice")
	p, err := c.requireSession()
	if err != nil || p != "alice" {
		t.Errorf("requireSession = %q, %v", p, err)
	}

	c.session.SignOut()
	if _, err := c.requireSession(); !errors.Is(err, errNotLoggedIn) {
		t.Errorf("after sign-out err = %v", err)
	}
}

func TestVerifyToken(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /session": {body: `{"principal":"alice"}`},
	})

	p, err := verifyToken(ctx, ts.client())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != "alice" {
		t.Errorf("principal = %q", p)
	}
}

func TestVerifyToken_Rejected(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /session": {status: http.StatusUnauthorized, body: `{"error":{"message":"invalid or missing bearer token","type":"authentication_error"}}`},
	})

	_, err := verifyToken(ctx, ts.client())
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != 401 {
		t.Errorf("err = %v", err)
	}
}

func TestReadSnapshots(t *testing.T) {
	stream := "event: snapshot\ndata: {\"count\":0,\"total\":0,\"empty\":true}\n\n" +
		": keep-alive\n\n" +
		"event: snapshot\ndata: {\"count\":1,\"total\":1,\"empty\":false}\n\n" +
		"event: error\ndata: {\"error\":{\"message\":\"database is locked\",\"type\":\"server_error\"}}\n\n"

	var got []api.ListResponse
	err := readSnapshots(strings.NewReader(stream), func(l api.ListResponse) {
		got = append(got, l)
	})
	if len(got) != 2 || !got[0].Empty || got[1].Count != 1 {
		t.Errorf("snapshots = %+v", got)
	}
	if err == nil || !strings.Contains(err.Error(), "database is locked") {
		t.Errorf("err = %v", err)
	}
}

func TestPrintApplications(t *testing.T) {
	noColor = true
	defer func() { noColor = false }()

	var buf bytes.Buffer
	printApplications(&buf, api.ListResponse{
		Applications: []application.Application{{
			ID:          "0123456789abcdef",
			CompanyName: "Acme",
			JobTitle:    "Engineer",
			JobType:     application.FullTime,
			DateApplied: "2024-01-05",
			Status:      application.Pending,
		}},
		Count: 1,
		Total: 3,
	})
	out := buf.String()
	for _, want := range []string{"01234567", "Full Time", "Application Pending", "1 of 3 applications"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printApplications(&buf, api.ListResponse{Empty: true, Total: 2})
	if !strings.Contains(buf.String(), "No applications match") {
		t.Errorf("filtered-empty output = %q", buf.String())
	}

	buf.Reset()
	printApplications(&buf, api.ListResponse{Empty: true})
	if !strings.Contains(buf.String(), "No applications yet") {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "info", JSON: true}, &buf)
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Errorf("record = %v", rec)
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))
	if err := writePIDFile(path); err != nil {
		t.Fatal(err)
	}
	pid, err := readPIDFile(path)
	if err != nil || pid != os.Getpid() {
		t.Errorf("readPIDFile = %d, %v", pid, err)
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}

func TestNewView(t *testing.T) {
	if v := newView("sv"); v.Lang.String() != "sv" {
		t.Errorf("lang = %s", v.Lang)
	}
	if v := newView("not a locale!"); v.Lang.String() != "en" {
		t.Errorf("fallback lang = %s", v.Lang)
	}
}
