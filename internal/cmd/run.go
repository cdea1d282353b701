// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

const (
	runCmdUsage = "run [NAME...]"
	runCmdShort = "run transfers once and print their statistics"
	runCmdLong  = `Run the transfers defined in the transfer files once.
	Every transfer loads the pages of its source, maps the records and writes
	them to its destination. When no name is given every transfer found is run,
	one after the other.

	A transfer interrupted mid way is resumed from its last checkpoint when a
	checkpoint backend is configured with the CHECKPOINT_BACKEND variable.`

	runCmdExample = `# Run every transfer found in the folder
	transfer run -f transfers/

	# Run a single transfer printing the records instead of sending them
	transfer run people -f transfers/people.yaml --local-output

	# Resume a transfer from a known page
	transfer run people -f transfers/people.yaml --resume 200`
)

// RunCmd returns the "run" cli command for running transfers once.
func RunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:     runCmdUsage,
		Short:   heredoc.Doc(runCmdShort),
		Long:    heredoc.Doc(runCmdLong),
		Example: heredoc.Doc(runCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: validArgsFunc,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.toOptions(cmd, args)
			if err != nil {
				return handleError(cmd, err)
			}

			if err := opts.validate(); err != nil {
				return handleError(cmd, err)
			}

			if err := opts.execute(cmd.Context()); err != nil {
				return handleError(cmd, err)
			}

			return nil
		},
	}

	flags.addFlags(cmd)
	return cmd
}
