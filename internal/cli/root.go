package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "init":
		return runInit(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "jobs", "applications", "applied", "shortlist":
		return runList(args[0], args[1:])
	case "status":
		return runStatus(args[1:])
	case "profile":
		return runProfile(args[1:])
	case "browse":
		return runBrowse(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Fprintln(stdout, "jobportal: job portal client for listings, applications and profiles")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Quick Start:")
	fmt.Fprintln(stdout, "  jobportal init")
	fmt.Fprintln(stdout, "  jobportal settings set --base-url <url> --token <token>")
	fmt.Fprintln(stdout, "  jobportal jobs --search developer")
	fmt.Fprintln(stdout, "  jobportal browse applications")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Workspace Commands:")
	fmt.Fprintln(stdout, "  init          create .jobportal/ with default settings")
	fmt.Fprintln(stdout, "  doctor        check settings, token, state dir and backend")
	fmt.Fprintln(stdout, "  settings      show/update client settings")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Portal Commands:")
	fmt.Fprintln(stdout, "  jobs          list job postings")
	fmt.Fprintln(stdout, "  applications  list applications (employer view)")
	fmt.Fprintln(stdout, "  applied       list jobs the candidate applied to")
	fmt.Fprintln(stdout, "  shortlist     list shortlisted jobs")
	fmt.Fprintln(stdout, "  status        move an application to a new status")
	fmt.Fprintln(stdout, "  profile       build and save a candidate or company profile")
	fmt.Fprintln(stdout, "  browse        interactive list browser (search, filter, load more)")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Notes:")
	fmt.Fprintln(stdout, "  - Use --json on commands for machine-readable output")
	fmt.Fprintln(stdout, "  - PORTAL_TOKEN and PORTAL_BASE_URL override the settings file")
}
