package main

import (
	"fmt"
	"os"

	"jobportal/internal/cli"
	"jobportal/internal/model"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		// 2 tells scripts to re-authenticate rather than retry
		if model.IsAuth(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
