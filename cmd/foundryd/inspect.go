package main

import (
	"github.com/spf13/cobra"
)

func newToolsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the latest version of every registered tool",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			tools, err := store.ListTools()
			if err != nil {
				return err
			}
			return writeTools(tools, opts.jsonOutput)
		},
	}
}

func newHistoryCmd(opts *cliOptions) *cobra.Command {
	var (
		after int
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history <tool-name>",
		Short: "List a tool's versions in ascending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			versions, err := store.History(args[0], after, limit)
			if err != nil {
				return err
			}
			return writeTools(versions, opts.jsonOutput)
		},
	}

	cmd.Flags().IntVar(&after, "after", 0, "return versions greater than this number")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of versions to return (0 means all)")
	return cmd
}

func newReportCmd(opts *cliOptions) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "report <tool-name>",
		Short: "Show the stored validation report for a tool version",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			name := args[0]
			if version == 0 {
				latest, err := store.Get(name)
				if err != nil {
					return err
				}
				version = latest.Version
			}
			report, err := store.Report(name, version)
			if err != nil {
				return err
			}
			return writeReport(report, opts.jsonOutput)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "tool version (0 means the latest active version)")
	return cmd
}

func newFixesCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fixes <tool-name>",
		Short: "Show the fix audit trail for a tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := store.FixHistory(args[0])
			if err != nil {
				return err
			}
			return writeFixRecords(records, opts.jsonOutput)
		},
	}
}
