package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stackvity/dirhash/internal/cli"
	"github.com/stackvity/dirhash/internal/cli/config"
)

var (
	// These are set during build time using -ldflags
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCmd builds the dirhash command with all flags registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dirhash [flags] <directory>",
		Short: "Computes a content hash for every file under a directory.",
		Long: `dirhash walks a directory tree, hashes every regular file in parallel and
prints one digest per file once the whole tree has been hashed.

It features:
  - BLAKE3 by default; sha256, sha512, sha1 and md5 on request.
  - A bounded worker pool (--concurrency).
  - gitignore-style exclusions (--ignore).
  - An interactive Terminal UI, a progress bar, or plain logs.
  - text, json, yaml or toml output.

Any unreadable file aborts the run with a non-zero exit status; partial
results are never printed.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if len(args) == 1 {
				if flags.Changed("root") {
					return fmt.Errorf("directory given both as argument %q and via --root", args[0])
				}
				if err := flags.Set("root", args[0]); err != nil {
					return err
				}
			}

			cfgFile, _ := flags.GetString("config")
			profileName, _ := flags.GetString("profile")
			verbose, _ := flags.GetBool("verbose")

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			settings, logger, err := config.LoadAndValidate(cfgFile, profileName, version, verbose, flags)
			if err != nil {
				return err
			}
			return cli.Run(ctx, settings, logger, cmd.OutOrStdout())
		},
	}
	cmd.SetVersionTemplate(`{{.Name}} version {{.Version}}` + "\n")
	config.DefineFlags(cmd.Flags())
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
