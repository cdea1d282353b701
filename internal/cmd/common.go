// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/mia-platform/transfer/internal/checkpoint"
	"github.com/mia-platform/transfer/internal/config"
	"github.com/mia-platform/transfer/internal/logger"
	"github.com/mia-platform/transfer/internal/pipeline"
)

const (
	closeTimeout = 10 * time.Second
)

var (
	errNoTransferFile   = errors.New("no transfer file provided")
	errInvalidTransfer  = errors.New("invalid transfer name provided")
	errInvalidArguments = errors.New("invalid arguments")

	// checkpointGetter returns the store used to remember resume tokens between runs.
	// It can be overridden for testing purposes.
	checkpointGetter = checkpoint.NewStoreFromEnv
)

// handleError will do custom print error handling based on the type of error received.
// it will return nil if the command must return 0 exit code, otherwise it will return
// the original error.
func handleError(cmd *cobra.Command, err error) error {
	switch {
	case errors.Is(err, errNoTransferFile):
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return nil
	case errors.Is(err, errInvalidTransfer), errors.Is(err, errInvalidArguments):
		cmd.PrintErrln(err)
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return err
	default:
		cmd.PrintErrln(err)
		return err
	}
}

// unwrappedError returns the unwrapped error if available, otherwise it returns the original error.
func unwrappedError(err error) error {
	if unwrapped := errors.Unwrap(err); unwrapped != nil {
		return unwrapped
	}

	return err
}

// validArgsFunc completes the transfer names found in the files passed with the file flag.
func validArgsFunc(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	paths, err := cmd.Flags().GetStringArray(transferFileFlagName)
	if err != nil || len(paths) == 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	transfers, err := loadTransfers(paths)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var comps []string
	for _, transfer := range transfers {
		if slices.Contains(args, transfer.Name) || !strings.HasPrefix(transfer.Name, toComplete) {
			continue
		}

		description := fmt.Sprintf("%s to %s", transfer.Source.Type, transfer.Destination.Type)
		comps = append(comps, cobra.CompletionWithDesc(transfer.Name, description))
	}

	return comps, cobra.ShellCompDirectiveNoFileComp
}

func collectPaths(paths []string) ([]string, error) {
	collected := make([]string, 0)
	for _, p := range paths {
		cleanedPath := filepath.Clean(p)
		err := filepath.Walk(cleanedPath, func(walkedPath string, info fs.FileInfo, err error) error {
			if err != nil {
				return fmt.Errorf("transfer file %q: %w", walkedPath, unwrappedError(err))
			}

			switch {
			case !info.IsDir(): // it's a file add to the collection
				collected = append(collected, walkedPath)
			case info.IsDir() && cleanedPath != walkedPath: // skip directories if is not the root path
				return filepath.SkipDir
			}

			return nil
		})

		if err != nil {
			return nil, err
		}
	}

	return collected, nil
}

// loadTransfers reads every transfer defined in the files found at paths.
func loadTransfers(paths []string) ([]*config.TransferConfig, error) {
	if len(paths) == 0 {
		return nil, errNoTransferFile
	}

	files, err := collectPaths(paths)
	if err != nil {
		return nil, err
	}

	return config.NewTransferConfigsFromPaths(files)
}

// selectTransfers returns the transfers named in names, in the order they are given, or all of
// them when names is empty.
func selectTransfers(transfers []*config.TransferConfig, names []string) ([]*config.TransferConfig, error) {
	if len(names) == 0 {
		return transfers, nil
	}

	byName := lo.KeyBy(transfers, func(transfer *config.TransferConfig) string {
		return transfer.Name
	})

	selected := make([]*config.TransferConfig, 0, len(names))
	for _, name := range lo.Uniq(names) {
		transfer, found := byName[name]
		if !found {
			return nil, fmt.Errorf("%w: %s", errInvalidTransfer, name)
		}
		selected = append(selected, transfer)
	}

	return selected, nil
}

// closePipelines releases the resources held by every pipeline.
func closePipelines(ctx context.Context, pipelines []*pipeline.Pipeline) {
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx)
	for _, p := range pipelines {
		if err := p.Close(ctx, closeTimeout); err != nil {
			log.Warn("error closing transfer", "transfer", p.Name(), "error", err)
		}
	}
}
