// Package main is the t2i command line previewer.
//
// # Basic Usage
//
// Save a token and check which models answer:
//
//	t2i login hf_xxx
//	t2i probe
//
// Generate an image with the selected model:
//
//	t2i generate "a lighthouse at dusk" --out lighthouse.png
//
// # Environment Variables
//
//   - T2I_TOKEN or HF_TOKEN: default API token
//   - T2I_CONFIG: path to a YAML configuration file
//   - T2I_*: any configuration key, e.g. T2I_MAX_RETRIES
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
