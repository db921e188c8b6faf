package cli

import (
	"context"
	"flag"
	"fmt"

	"jobportal/internal/config"
	"jobportal/internal/logging"
)

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	dir := dirFlag(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := config.Init(config.InitOptions{Dir: *dir})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(res)
	}
	if res.CreatedConfig {
		fmt.Fprintf(stdout, "created settings: %s\n", res.ConfigPath)
	} else {
		fmt.Fprintf(stdout, "settings already present: %s\n", res.ConfigPath)
	}
	fmt.Fprintln(stdout, "next: jobportal settings set --base-url <url> --token <token>")
	return nil
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	dir := dirFlag(fs)
	offline := fs.Bool("offline", false, "skip the backend reachability check")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := config.DoctorOptions{Dir: *dir}
	if !*offline {
		opts.Ping = func(ctx context.Context, s config.Settings) error {
			client, err := newClient(s, logging.Discard())
			if err != nil {
				return err
			}
			return client.Ping(ctx)
		}
	}
	res := config.Doctor(context.Background(), opts)
	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		for _, c := range res.Checks {
			mark := "ok"
			if !c.OK {
				mark = "FAIL"
			}
			fmt.Fprintf(stdout, "[%s] %s: %s\n", mark, c.Name, c.Message)
		}
	}
	if !res.OK {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}
