package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/connectorgw/internal/connector"
	"github.com/JonMunkholm/connectorgw/internal/core"
	"github.com/JonMunkholm/connectorgw/internal/fetch"
	"github.com/JonMunkholm/connectorgw/internal/logging"
	"github.com/JonMunkholm/connectorgw/internal/pipeline"
)

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "connectorctl",
		Short:         "Validate and run connector documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(logLevel, "text")
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newValidateCmd(), newToolsCmd(), newRunCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Decode and validate connector documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				spec, err := connector.LoadFile(path)
				if err == nil {
					err = connector.Validate(spec, core.Default)
				}
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s, route %s)\n", path, spec.Name(), spec.Route())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents invalid", failed, len(args))
			}
			return nil
		},
	}
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List registered transforms and their parameters",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, t := range core.Default.All() {
				fmt.Fprintf(out, "%s\n", t.Name)
				if t.Description != "" {
					fmt.Fprintf(out, "    %s\n", t.Description)
				}
				for _, p := range t.Params {
					req := "optional"
					if p.Required {
						req = "required"
					}
					fmt.Fprintf(out, "    - %s (%s, %s)\n", p.Name, p.Kind, req)
				}
			}
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		params  []string
		now     string
		input   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a connector and print its envelope",
		Long: `Run a connector document against its upstream and print the result envelope.

With --input every api call is answered with the contents of that JSON file
instead of contacting the upstream.

Example:
  connectorctl run persons.yaml --input persons.json --now 2024-06-01T00:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := connector.LoadFile(args[0])
			if err != nil {
				return err
			}
			bound, err := parseParams(params)
			if err != nil {
				return err
			}

			var f fetch.Fetcher = fetch.Router{URL: fetch.NewHTTP(fetch.HTTPConfig{}, nil)}
			if input != "" {
				body, err := os.ReadFile(input)
				if err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				f = fetch.Func(func(context.Context, fetch.Request) ([]byte, error) {
					return body, nil
				})
			}

			runner := pipeline.New(core.Default, f)
			if timeout > 0 {
				runner.DefaultTimeout = timeout
			}
			if now != "" {
				ref, err := time.Parse(time.RFC3339, now)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
				runner.Now = func() time.Time { return ref }
			}

			env := runner.Run(cmd.Context(), spec, bound)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(env); err != nil {
				return err
			}
			if !env.OK() {
				return fmt.Errorf("run failed: %s", env.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Inbound parameter as name=value (repeatable)")
	cmd.Flags().StringVar(&now, "now", "", "Reference time for age calculations (RFC3339)")
	cmd.Flags().StringVar(&input, "input", "", "JSON file served as every api call's response")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Run timeout when the connector declares none")
	return cmd
}

func parseParams(raw []string) (map[string]string, error) {
	params := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("--param %q: want name=value", kv)
		}
		params[name] = value
	}
	return params, nil
}
