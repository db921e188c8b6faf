package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"jobportal/internal/listsync"
	"jobportal/internal/model"
	"jobportal/internal/portal"
)

type listOutput[T model.Item] struct {
	Resource portal.Resource `json:"resource"`
	Query    model.ListQuery `json:"query"`
	Total    int             `json:"total"`
	Loaded   int             `json:"loaded"`
	HasMore  bool            `json:"has_more"`
	Items    []T             `json:"items"`
}

func runList(name string, args []string) error {
	res, ok := portal.ParseResource(name)
	if !ok {
		return fmt.Errorf("unknown list %q", name)
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	dir := dirFlag(fs)
	search := fs.String("search", "", "free-text search")
	status := fs.String("status", model.StatusFilterAll, "status filter (All for no filter)")
	page := fs.Int("page", 1, "page to load")
	limit := fs.Int("limit", 0, "page size (0 uses settings)")
	all := fs.Bool("all", false, "load every page")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := loadApp(*dir)
	if err != nil {
		return err
	}
	q := model.ListQuery{
		SearchText:   *search,
		StatusFilter: *status,
		Page:         *page,
		PageSize:     *limit,
	}
	if q.PageSize <= 0 {
		q.PageSize = a.settings.PageSize
	}
	ctx := context.Background()
	timeout := a.settings.FetchTimeout

	if res.ItemsAreApplications() {
		fetch := listsync.FetcherFunc[model.ApplicationRecord](func(ctx context.Context, q model.ListQuery) (model.ResultPage[model.ApplicationRecord], error) {
			return a.client.ListApplications(ctx, q)
		})
		list, err := collectList(ctx, listsync.NewAccumulator(fetch, a.logger), q, *all, timeout)
		if err != nil {
			return err
		}
		return printList(res, list, *jsonOut, printApplicationRows)
	}

	fetch := listsync.FetcherFunc[model.Job](func(ctx context.Context, q model.ListQuery) (model.ResultPage[model.Job], error) {
		return a.client.ListJobs(ctx, res, q)
	})
	list, err := collectList(ctx, listsync.NewAccumulator(fetch, a.logger), q, *all, timeout)
	if err != nil {
		return err
	}
	return printList(res, list, *jsonOut, printJobRows)
}

// collectList loads pages 1 through q.Page into a fresh accumulator, or every
// page when all is set. Each request gets its own timeout.
func collectList[T model.Item](ctx context.Context, acc *listsync.Accumulator[T], q model.ListQuery, all bool, timeout time.Duration) (listsync.AccumulatedList[T], error) {
	target := q.Normalize().Page
	snap := acc.Snapshot()
	for page := 1; ; page++ {
		before := len(snap.Order)
		if err := fetchWithTimeout(ctx, acc, q.WithPage(page), timeout); err != nil {
			return listsync.AccumulatedList[T]{}, err
		}
		snap = acc.Snapshot()
		if !snap.HasMore() || (!all && page >= target) {
			return snap, nil
		}
		if page > 1 && len(snap.Order) == before {
			// the backend reports more items than its pages return
			return snap, nil
		}
	}
}

func fetchWithTimeout[T model.Item](ctx context.Context, acc *listsync.Accumulator[T], q model.ListQuery, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return acc.FetchList(ctx, q, acc.NextGeneration())
}

func printList[T model.Item](res portal.Resource, list listsync.AccumulatedList[T], jsonOut bool, rows func(*tabwriter.Writer, []T)) error {
	items := list.Items()
	if jsonOut {
		return printJSON(listOutput[T]{
			Resource: res,
			Query:    list.Query,
			Total:    list.Total,
			Loaded:   len(items),
			HasMore:  list.HasMore(),
			Items:    items,
		})
	}
	if len(items) == 0 {
		fmt.Fprintf(stdout, "no %s match\n", res)
		return nil
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	rows(tw, items)
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\nshowing %d of %d (page %d)", len(items), list.Total, list.Query.Page)
	if list.HasMore() {
		fmt.Fprint(stdout, "; use --page or --all for more")
	}
	fmt.Fprintln(stdout)
	return nil
}

func printJobRows(tw *tabwriter.Writer, jobs []model.Job) {
	fmt.Fprintln(tw, "ID\tTITLE\tCOMPANY\tLOCATION\tSTATUS")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, truncateRunes(j.Title, 40), truncateRunes(j.Company, 24), defaultIfEmpty(j.Location, "-"), defaultIfEmpty(j.Status, "-"))
	}
}

func printApplicationRows(tw *tabwriter.Writer, apps []model.ApplicationRecord) {
	fmt.Fprintln(tw, "ID\tCANDIDATE\tJOB\tSTATUS\tINTERVIEW")
	for _, a := range apps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ID, truncateRunes(defaultIfEmpty(a.CandidateName, a.CandidateID), 28), truncateRunes(defaultIfEmpty(a.JobTitle, a.JobID), 36), a.Status, formatInterview(a.InterviewDate))
	}
}

func formatInterview(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// parseInterviewDate accepts RFC3339 or a local "2006-01-02 15:04".
func parseInterviewDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", raw, time.Local)
	if err != nil {
		return nil, fmt.Errorf("interview date %q: use RFC3339 or YYYY-MM-DD HH:MM", raw)
	}
	return &t, nil
}
