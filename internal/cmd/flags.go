// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"io"

	"github.com/spf13/cobra"
)

const (
	transferFileFlagName  = "file"
	transferFileFlagShort = "f"
	transferFileFlagUsage = "Path to a file or directory containing transfer definitions. Can be specified multiple times."

	localOutputFlagName  = "local-output"
	localOutputFlagUsage = "If set, every destination is replaced by a writer printing the records to stdout"
	defaultLocalOutput   = false

	resumeFlagName  = "resume"
	resumeFlagUsage = "Resume token handed to the first load, overriding any stored checkpoint. Needs a single transfer"

	batchWriteFlagName  = "batch-write"
	batchWriteFlagUsage = "Number of loaded pages accumulated before every write, overrides the transfer file value"

	traceFlagName  = "trace"
	traceFlagUsage = "Trace id attached to the progress events of the run, generated when empty"
)

// flags collects the CLI options shared by every command reading transfer files.
type flags struct {
	transferPaths []string
	localOutput   bool
}

// addFlags registers the CLI flags on cmd.
func (f *flags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(
		&f.transferPaths,
		transferFileFlagName,
		transferFileFlagShort,
		nil,
		transferFileFlagUsage)

	cmd.Flags().BoolVar(&f.localOutput, localOutputFlagName, defaultLocalOutput, localOutputFlagUsage)
}

// localWriter returns the writer replacing the configured destinations, nil when they are kept.
func (f *flags) localWriter(cmd *cobra.Command) io.Writer {
	if !f.localOutput {
		return nil
	}

	return cmd.OutOrStdout()
}

// runFlags adds the per run overrides to flags.
type runFlags struct {
	flags

	resumeToken string
	batchWrite  int
	trace       string
}

// addFlags registers the CLI flags on cmd.
func (f *runFlags) addFlags(cmd *cobra.Command) {
	f.flags.addFlags(cmd)

	cmd.Flags().StringVar(&f.resumeToken, resumeFlagName, "", resumeFlagUsage)
	cmd.Flags().IntVar(&f.batchWrite, batchWriteFlagName, 0, batchWriteFlagUsage)
	cmd.Flags().StringVar(&f.trace, traceFlagName, "", traceFlagUsage)
}
