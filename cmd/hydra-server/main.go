package main

import (
	"fmt"
	"os"

	"github.com/gislas3/hydra/internal/api"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	buildInfo := api.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	if err := api.Execute(buildInfo); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
