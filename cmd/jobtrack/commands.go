package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/jobtrack/internal/api"
	"github.com/kalambet/jobtrack/internal/application"
	"github.com/kalambet/jobtrack/internal/export"
	"github.com/kalambet/jobtrack/internal/importer"
	"github.com/kalambet/jobtrack/internal/listview"
	"github.com/kalambet/jobtrack/internal/storage"
)

// --- apps ---

var appsCmd = &cobra.Command{
	Use:     "apps",
	Aliases: []string{"applications"},
	Short:   "List, add and edit job applications",
}

// listQuery validates the list flags and encodes them as a query string.
func listQuery(cmd *cobra.Command) (string, error) {
	q := url.Values{}
	for flag, param := range map[string]string{
		"search":   "search",
		"job-type": "job_type",
		"from":     "start_date",
		"to":       "end_date",
		"sort":     "sort",
		"order":    "order",
	} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			q.Set(param, v)
		}
	}
	f, err := listview.ParseFilter(q)
	if err != nil {
		return "", err
	}
	s, err := listview.ParseSort(q)
	if err != nil {
		return "", err
	}
	return listview.Values(f, s).Encode(), nil
}

func addListFlags(cmd *cobra.Command) {
	cmd.Flags().String("search", "", "company name contains (case-insensitive)")
	cmd.Flags().String("job-type", "", "full-time, part-time, contract, internship or remote")
	cmd.Flags().String("from", "", "applied on or after YYYY-MM-DD")
	cmd.Flags().String("to", "", "applied on or before YYYY-MM-DD")
	cmd.Flags().String("sort", "", "companyName, dateApplied, status or jobType")
	cmd.Flags().String("order", "", "asc or desc")
}

func printApplications(w io.Writer, list api.ListResponse) {
	fmt.Fprintf(w, "%s %d  %s %d  %s %d  %s %d\n",
		colorize(colorBold, "Total"), list.KPIs.Total,
		colorize(colorBold, "Interviewing"), list.KPIs.Interviewing,
		colorize(colorBold, "Rejected"), list.KPIs.Rejected,
		colorize(colorBold, "Accepted"), list.KPIs.Accepted,
	)
	if list.Empty {
		if list.Total == 0 {
			fmt.Fprintln(w, "No applications yet. Add one with `jobtrack apps add`.")
		} else {
			fmt.Fprintln(w, "No applications match the current filters.")
		}
		return
	}
	fmt.Fprintln(w)
	for _, a := range list.Applications {
		fmt.Fprintf(w, "%s  %s  %-24s %-28s %-10s %s\n",
			colorize(colorCyan, shortID(a.ID)),
			a.DateApplied,
			truncate(a.CompanyName, 24),
			truncate(a.JobTitle, 28),
			a.JobType.Label(),
			colorize(statusColor(a.Status), a.Status.Label()),
		)
	}
	if list.Count != list.Total {
		fmt.Fprintf(w, "\n%d of %d applications\n", list.Count, list.Total)
	}
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List applications with optional filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := listQuery(cmd)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/applications?"+query)
		if err != nil {
			return err
		}
		var list api.ListResponse
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if asJSON {
			return printJSON(list.Applications)
		}
		printApplications(os.Stdout, list)
		return nil
	},
}

var appsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single application as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/applications/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var a application.Application
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}
		return printJSON(a)
	},
}

func addApplicationFlags(cmd *cobra.Command) {
	cmd.Flags().String("company", "", "company name")
	cmd.Flags().String("title", "", "job title")
	cmd.Flags().String("type", "", "full-time, part-time, contract, internship or remote")
	cmd.Flags().String("location", "", "job location")
	cmd.Flags().String("date", "", "date applied, YYYY-MM-DD")
	cmd.Flags().String("status", "", "applied, interviewing, rejected or accepted")
	cmd.Flags().String("job-url", "", "link to the posting")
	cmd.Flags().String("meeting-url", "", "link to the interview meeting")
	cmd.Flags().StringArray("link", nil, "extra link as name=url (repeatable)")
	cmd.Flags().String("description", "", "job description text")
	cmd.Flags().String("description-file", "", "read the job description from a .pdf or text file")
	cmd.Flags().String("notes", "", "free-form notes")
}

// parseLinks turns name=url pairs into links. A bare URL gets no name.
func parseLinks(raw []string) []application.Link {
	links := make([]application.Link, 0, len(raw))
	for _, r := range raw {
		name, u, found := strings.Cut(r, "=")
		if !found {
			name, u = "", r
		}
		links = append(links, application.Link{Name: strings.TrimSpace(name), URL: strings.TrimSpace(u)})
	}
	return links
}

func description(cmd *cobra.Command) (string, bool, error) {
	if path, _ := cmd.Flags().GetString("description-file"); path != "" {
		text, err := importer.ReadDescription(path)
		if err != nil {
			return "", false, err
		}
		return text, true, nil
	}
	if cmd.Flags().Changed("description") {
		text, _ := cmd.Flags().GetString("description")
		return text, true, nil
	}
	return "", false, nil
}

// candidateFromFlags builds a create request. Date defaults to today and
// status to applied.
func candidateFromFlags(cmd *cobra.Command, now time.Time) (application.Candidate, error) {
	str := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	c := application.Candidate{
		CompanyName: str("company"),
		JobTitle:    str("title"),
		JobType:     str("type"),
		Location:    str("location"),
		DateApplied: str("date"),
		Status:      str("status"),
		JobURL:      str("job-url"),
		MeetingURL:  str("meeting-url"),
		Notes:       str("notes"),
	}
	if c.DateApplied == "" {
		c.DateApplied = now.Format(application.DateLayout)
	}
	if c.Status == "" {
		c.Status = string(application.Applied)
	}
	links, _ := cmd.Flags().GetStringArray("link")
	c.OtherURLs = parseLinks(links)

	desc, _, err := description(cmd)
	if err != nil {
		return c, err
	}
	c.JobDescription = desc
	return c, nil
}

// patchFromFlags includes only the flags given on the command line.
func patchFromFlags(cmd *cobra.Command) (application.Patch, error) {
	var p application.Patch
	str := func(name string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		v, _ := cmd.Flags().GetString(name)
		return &v
	}
	p.CompanyName = str("company")
	p.JobTitle = str("title")
	p.JobType = str("type")
	p.Location = str("location")
	p.DateApplied = str("date")
	p.Status = str("status")
	p.JobURL = str("job-url")
	p.MeetingURL = str("meeting-url")
	p.Notes = str("notes")
	if cmd.Flags().Changed("link") {
		raw, _ := cmd.Flags().GetStringArray("link")
		links := parseLinks(raw)
		p.OtherURLs = &links
	}
	desc, ok, err := description(cmd)
	if err != nil {
		return p, err
	}
	if ok {
		p.JobDescription = &desc
	}
	return p, nil
}

var appsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a new application",
	Long: `Record a new application.

Examples:
  jobtrack apps add --company Acme --title "Backend Engineer" --type full-time --location Berlin
  jobtrack apps add --company Globex --title SRE --type remote --location Remote \
    --date 2024-05-02 --description-file ./posting.pdf --link "Recruiter=https://example.com/jane"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if _, err := client.requireSession(); err != nil {
			return err
		}

		c, err := candidateFromFlags(cmd, time.Now())
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/applications", c)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Recorded %s at %s (%s)", c.JobTitle, c.CompanyName, result["id"])
		return nil
	},
}

var appsEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change fields of an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}
		if p.Empty() {
			return fmt.Errorf("nothing to change: pass at least one field flag")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if _, err := client.requireSession(); err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/applications/"+url.PathEscape(args[0]), p)
		if err != nil {
			return err
		}
		var a application.Application
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}
		printSuccess("Updated %s at %s (%s)", a.JobTitle, a.CompanyName, a.Status.Label())
		return nil
	},
}

var appsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This permanently deletes application %s. Use --confirm to proceed.", args[0])
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if _, err := client.requireSession(); err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/applications/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted application %s", args[0])
		return nil
	},
}

var appsEventsCmd = &cobra.Command{
	Use:   "events <id>",
	Short: "Show the change history of an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/applications/"+url.PathEscape(args[0])+"/events")
		if err != nil {
			return err
		}
		var events []storage.Event
		if err := decodeJSON(resp, &events); err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No history recorded.")
			return nil
		}
		for _, e := range events {
			fmt.Printf("%s  %-15s %s\n",
				e.CreatedAt.Local().Format("2006-01-02 15:04"),
				colorize(colorCyan, e.Type),
				e.Details,
			)
		}
		return nil
	},
}

var appsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the filtered list as CSV or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatFlag, _ := cmd.Flags().GetString("format")
		format, err := export.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		query, err := listQuery(cmd)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = format.Filename(time.Now())
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/applications/export?format="+string(format)+"&"+query)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return readAPIError(resp)
		}
		defer resp.Body.Close()

		var w io.Writer = os.Stdout
		if output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if _, err := io.Copy(w, resp.Body); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		if output != "-" {
			printSuccess("Exported to %s", output)
		}
		return nil
	},
}

// readSnapshots decodes "snapshot" events from a server-sent event stream
// and calls fn for each. An "error" event ends the stream with its message.
func readSnapshots(r io.Reader, fn func(api.ListResponse)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := []byte(strings.TrimPrefix(line, "data: "))
			switch event {
			case "snapshot":
				var list api.ListResponse
				if err := json.Unmarshal(data, &list); err != nil {
					return fmt.Errorf("decoding snapshot: %w", err)
				}
				fn(list)
			case "error":
				var env struct {
					Error apiError `json:"error"`
				}
				json.Unmarshal(data, &env)
				return fmt.Errorf("stream ended: %s", env.Error.Message)
			}
		case line == "":
			event = ""
		}
	}
	return scanner.Err()
}

var appsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the list again every time it changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := listQuery(cmd)
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		resp, err := client.stream(ctx, "/applications/stream?"+query)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		printStep("Watching for changes (Ctrl-C to stop)")
		return readSnapshots(resp.Body, func(list api.ListResponse) {
			fmt.Printf("\n%s\n", colorize(colorBold, time.Now().Format("15:04:05")))
			printApplications(os.Stdout, list)
		})
	},
}

func init() {
	addListFlags(appsListCmd)
	appsListCmd.Flags().Bool("json", false, "print the rows as JSON")

	addApplicationFlags(appsAddCmd)
	addApplicationFlags(appsEditCmd)

	appsDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")

	addListFlags(appsExportCmd)
	appsExportCmd.Flags().String("format", "csv", "csv or xlsx")
	appsExportCmd.Flags().String("output", "", "output file, - for stdout (default: job-applications-<date>.<ext>)")

	addListFlags(appsWatchCmd)

	appsCmd.AddCommand(appsListCmd)
	appsCmd.AddCommand(appsShowCmd)
	appsCmd.AddCommand(appsAddCmd)
	appsCmd.AddCommand(appsEditCmd)
	appsCmd.AddCommand(appsDeleteCmd)
	appsCmd.AddCommand(appsEventsCmd)
	appsCmd.AddCommand(appsExportCmd)
	appsCmd.AddCommand(appsWatchCmd)
}

// --- analytics ---

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show application statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/analytics")
		if err != nil {
			return err
		}
		var a listview.Analytics
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}
		if asJSON {
			return printJSON(a)
		}
		printAnalytics(os.Stdout, a)
		return nil
	},
}

func printAnalytics(w io.Writer, a listview.Analytics) {
	fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Applications:"), a.Total)
	fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Active:"), a.Active)
	fmt.Fprintf(w, "%s %s%%\n", colorize(colorBold, "Success rate:"), a.SuccessRateText)
	fmt.Fprintf(w, "%s %d days\n", colorize(colorBold, "Avg. response:"), a.AvgResponseDays)

	section := func(title string, counts []listview.Count) {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, title))
		if len(counts) == 0 {
			fmt.Fprintln(w, "  none")
			return
		}
		for _, c := range counts {
			fmt.Fprintf(w, "  %-24s %d\n", c.Label, c.Count)
		}
	}
	section("By status", a.ByStatus)
	section("Top companies", a.TopCompanies)
	section("By job type", a.ByJobType)
}

func init() {
	analyticsCmd.Flags().Bool("json", false, "print the raw JSON")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
