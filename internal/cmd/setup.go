// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

const (
	setupCmdUsage = "setup"
	setupCmdShort = "provision or remove the resources needed by the destinations"
	setupCmdLong  = `Provision or remove the resources needed by the destinations of the transfers,
	like a blob container or a Pub/Sub topic.

	Every transfer destination is tagged with the transfer name and with "all".
	Destinations are installed following their dependsOn order and uninstalled
	in the reverse order. Destinations without setup hooks are skipped.`

	installCmdUsage = "install [TAG]"
	installCmdShort = "create the resources of the destinations with the given tag"

	uninstallCmdUsage = "uninstall [TAG]"
	uninstallCmdShort = "delete the resources of the destinations with the given tag"

	setupCmdExample = `# Create the resources of every destination
	transfer setup install -f transfers/

	# Delete the resources of the people transfer destination
	transfer setup uninstall people -f transfers/`
)

// SetupCmd returns the "setup" cli command grouping the install and uninstall commands.
func SetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     setupCmdUsage,
		Short:   heredoc.Doc(setupCmdShort),
		Long:    heredoc.Doc(setupCmdLong),
		Example: heredoc.Doc(setupCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: cobra.NoFileCompletions,
	}

	cmd.AddCommand(
		setupOperationCmd(installCmdUsage, installCmdShort, setupInstall),
		setupOperationCmd(uninstallCmdUsage, uninstallCmdShort, setupUninstall),
	)

	return cmd
}

func setupOperationCmd(use, short string, operation setupOperation) *cobra.Command {
	flags := &flags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: heredoc.Doc(short),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: validArgsFunc,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.toSetupOptions(cmd, operation, args)
			if err != nil {
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
