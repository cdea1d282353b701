// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

const (
	serveCmdUsage = "serve"
	serveCmdShort = "expose the transfers through an HTTP server"
	serveCmdLong  = `Start an HTTP server exposing the transfers defined in the transfer files.
	Every transfer can be started with a POST request and its statistics can be
	read while it runs.

	Routes:
	- GET  /transfers        list the transfers and their last statistics
	- GET  /transfers/:name  statistics of a single transfer
	- POST /transfers/:name  run a transfer and return its statistics, the optional
	                         JSON body {"resumeToken": "..."} resumes it from a page

	The server listens on HTTP_HOST and HTTP_PORT.`

	serveCmdExample = `# Serve every transfer found in the folder
	transfer serve -f transfers/`
)

// ServeCmd returns the "serve" cli command exposing the transfers over HTTP.
func ServeCmd() *cobra.Command {
	flags := &flags{}
	cmd := &cobra.Command{
		Use:     serveCmdUsage,
		Short:   heredoc.Doc(serveCmdShort),
		Long:    heredoc.Doc(serveCmdLong),
		Example: heredoc.Doc(serveCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.toServeOptions(cmd)
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
