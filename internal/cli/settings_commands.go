package cli

import (
	"flag"
	"fmt"
	"time"

	"jobportal/internal/config"
)

func runSettings(args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(args[1:])
	case "set":
		return runSettingsSet(args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func runSettingsShow(args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	dir := dirFlag(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := config.Load(config.LoadOptions{Dir: *dir})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": config.ConfigPath(*dir),
			"settings":    s,
			"token":       tokenState(s),
		})
	}
	printSettings(config.ConfigPath(*dir), s)
	return nil
}

func runSettingsSet(args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	dir := dirFlag(fs)
	baseURL := fs.String("base-url", "", "portal API base URL (empty keeps current)")
	token := fs.String("token", "", "bearer token (empty keeps current)")
	clearToken := fs.Bool("clear-token", false, "remove the stored token")
	pageSize := fs.Int("page-size", 0, "default page size 1..100 (0 keeps current)")
	debounce := fs.Duration("debounce", 0, "search debounce delay (0 keeps current)")
	requestTimeout := fs.Duration("request-timeout", 0, "HTTP request timeout (0 keeps current)")
	fetchTimeout := fs.Duration("fetch-timeout", 0, "list fetch timeout (0 keeps current)")
	logLevel := fs.String("log-level", "", "debug|info|warn|error (empty keeps current)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *clearToken && *token != "" {
		return fmt.Errorf("--token and --clear-token are mutually exclusive")
	}

	opts := config.UpdateOptions{Dir: *dir}
	if *baseURL != "" {
		opts.BaseURL = baseURL
	}
	if *token != "" {
		opts.Token = token
	}
	if *clearToken {
		empty := ""
		opts.Token = &empty
	}
	if *pageSize != 0 {
		opts.PageSize = pageSize
	}
	opts.Debounce = durationIfSet(*debounce)
	opts.RequestTimeout = durationIfSet(*requestTimeout)
	opts.FetchTimeout = durationIfSet(*fetchTimeout)
	if *logLevel != "" {
		opts.LogLevel = logLevel
	}

	res, err := config.Update(opts)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": res.ConfigPath,
			"settings":    res.Settings,
			"token":       tokenState(res.Settings),
		})
	}
	fmt.Fprintf(stdout, "updated settings in %s\n", res.ConfigPath)
	printSettings(res.ConfigPath, res.Settings)
	return nil
}

func printSettings(path string, s config.Settings) {
	fmt.Fprintf(stdout, "config: %s\n", path)
	fmt.Fprintf(stdout, "base_url: %s\n", s.BaseURL)
	fmt.Fprintf(stdout, "token: %s\n", tokenState(s))
	fmt.Fprintf(stdout, "page_size: %d\n", s.PageSize)
	fmt.Fprintf(stdout, "debounce: %s\n", s.Debounce)
	fmt.Fprintf(stdout, "request_timeout: %s\n", s.RequestTimeout)
	fmt.Fprintf(stdout, "fetch_timeout: %s\n", s.FetchTimeout)
	fmt.Fprintf(stdout, "log_level: %s\n", s.LogLevel)
}

func tokenState(s config.Settings) string {
	if s.HasToken() {
		return "set"
	}
	return "missing"
}

func durationIfSet(d time.Duration) *time.Duration {
	if d == 0 {
		return nil
	}
	return &d
}

func printSettingsUsage() {
	fmt.Fprintln(stdout, "settings commands:")
	fmt.Fprintln(stdout, "  settings show [--json]")
	fmt.Fprintln(stdout, "  settings set [--base-url URL] [--token T | --clear-token] [--page-size N]")
	fmt.Fprintln(stdout, "               [--debounce D] [--request-timeout D] [--fetch-timeout D] [--log-level L]")
}
