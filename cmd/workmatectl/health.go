package main

import (
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe a running workmate service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(apiFlag, cmd.OutOrStdout())
		},
	}
}

func runHealth(baseURL string, out io.Writer) error {
	client := resty.New().SetBaseURL(baseURL).SetTimeout(5 * time.Second)

	for _, path := range []string{"/api/health", "/api/health/db"} {
		resp, err := client.R().Get(path)
		if err != nil {
			return fmt.Errorf("GET %s: %w", path, err)
		}
		fmt.Fprintf(out, "%s %d %s\n", path, resp.StatusCode(), resp.String())
	}
	return nil
}
