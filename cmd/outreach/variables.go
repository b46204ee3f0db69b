package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/book-expert/voice-outreach/internal/resolve"
)

func newVariablesCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "variables",
		Short: "Print the template variables resolved for every lead",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printVariables(cmd.OutOrStdout(), opts)
		},
	}

	addLeadsFlags(cmd, opts)

	return cmd
}

func printVariables(out io.Writer, opts *cliOptions) error {
	env, err := setup(opts)
	if err != nil {
		return err
	}
	defer env.close()

	records, err := loadLeads(opts, env.log)
	if err != nil {
		return err
	}

	table := resolve.DefaultAliasTable()
	names := resolve.Names(table)

	fmt.Fprintf(out, "Available variables: {%s}\n", strings.Join(names, "}, {"))

	for row, record := range records {
		vars := resolve.Resolve(record, table)

		pairs := make([]string, 0, len(names))
		for _, name := range names {
			pairs = append(pairs, fmt.Sprintf("%s=%q", name, vars[name]))
		}

		fmt.Fprintf(out, "row %d: %s\n", row, strings.Join(pairs, " "))
	}

	return nil
}
