package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"jobportal/internal/model"
	"jobportal/internal/workflow"
)

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	dir := dirFlag(fs)
	id := fs.String("id", "", "application id")
	to := fs.String("to", "", "target status: "+strings.Join(statusNames(), "|"))
	interview := fs.String("interview", "", "interview date (RFC3339 or YYYY-MM-DD HH:MM); required for Interview Scheduled")
	note := fs.String("note", "", "note appended to the application")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return fmt.Errorf("--id is required")
	}
	target, ok := model.ParseStatus(*to)
	if !ok {
		return model.Errorf(model.KindValidation, "status", "unknown status %q (use %s)", *to, strings.Join(statusNames(), ", "))
	}
	when, err := parseInterviewDate(*interview)
	if err != nil {
		return model.Errorf(model.KindValidation, "status", "%v", err)
	}

	a, err := loadApp(*dir)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.settings.RequestTimeout*2)
	defer cancel()

	rec, err := a.client.GetApplication(ctx, *id)
	if err != nil {
		return err
	}
	wf := workflow.NewStatusWorkflow(a.client, workflow.Options{Logger: a.logger})
	updated, err := wf.ChangeStatus(ctx, rec, workflow.ChangeRequest{Target: target, InterviewDate: when, Note: *note})
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(updated)
	}
	if updated.Status == rec.Status {
		fmt.Fprintf(stdout, "application %s already %s\n", updated.ID, updated.Status)
		return nil
	}
	fmt.Fprintf(stdout, "application %s: %s -> %s\n", updated.ID, rec.Status, updated.Status)
	if updated.InterviewDate != nil {
		fmt.Fprintf(stdout, "interview: %s\n", formatInterview(updated.InterviewDate))
	}
	if next := model.NextStatuses(updated.Status); len(next) > 0 {
		names := make([]string, 0, len(next))
		for _, s := range next {
			names = append(names, string(s))
		}
		fmt.Fprintf(stdout, "next: %s\n", strings.Join(names, ", "))
	}
	return nil
}

func statusNames() []string {
	all := model.ApplicationStatuses()
	out := make([]string, 0, len(all))
	for _, s := range all {
		out = append(out, string(s))
	}
	return out
}
