// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/aibor/kernrun/internal/build"
	"github.com/aibor/kernrun/internal/exitcode"
	"github.com/aibor/kernrun/internal/pipe"
	"github.com/aibor/kernrun/internal/qemu"
	"github.com/spf13/cobra"
)

const (
	name            = "kernrun"
	localConfigFile = ".kernrun-args"
)

// IO provides input and output details for the command.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error [%s]: %v\n", name, err)
}

func handleRunError(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}

	exitCode := -1

	var qemuErr *qemu.CommandError
	if errors.As(err, &qemuErr) && qemuErr.ExitCode > 0 {
		exitCode = qemuErr.ExitCode

		// The emulator terminated on its own. Its exit code is passed
		// through and its own output tells the reason.
		var codeErr exitcode.Error
		if errors.As(err, &codeErr) {
			slog.Debug("Emulator exit code", slog.Int("code", exitCode))
			return exitCode
		}
	}

	var toolErr *build.ToolError
	if errors.As(err, &toolErr) && toolErr.Hint != "" {
		defer fmt.Fprintf(stderr, "Hint: %s\n", toolErr.Hint)
	}

	var buildErr *build.BuildError
	if errors.As(err, &buildErr) {
		if diagnostics := buildErr.Diagnostics(); diagnostics != "" {
			fmt.Fprintln(stderr, diagnostics)
		}
	}

	if errors.Is(err, pipe.ErrNoOutput) {
		slog.Warn("Kernel did not print anything, " +
			"maybe the UART is not initialized or the serial channel is wrong")
	}

	printError(stderr, err)

	return exitCode
}

// Run is the main entry point for the CLI command.
func Run(ctx context.Context, args []string, cfg IO) int {
	args, err := MergedArgs(args, os.DirFS("."), localConfigFile)
	if err != nil {
		printError(cfg.Stderr, err)
		return -1
	}

	return execute(ctx, args, newEnvironment(cfg))
}

func execute(ctx context.Context, args []string, env *environment) int {
	root := newRootCommand(env)
	root.SetArgs(args)
	root.SetIn(env.Stdin)
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)

	err := root.ExecuteContext(ctx)

	return handleRunError(err, env.Stderr)
}

func newRootCommand(env *environment) *cobra.Command {
	var debugLog bool

	root := &cobra.Command{
		Use:   name,
		Short: "Build, boot and debug bare-metal kernels for the Raspberry Pi 3",
		Long: `Build, boot and debug bare-metal kernels for the Raspberry Pi 3 in QEMU.

Additional arguments are read from the file ./` + localConfigFile + `, one
argument per line. Arguments at the top of the file are global flags like
--debug-log. Arguments after a line "[launch]" are used for the launch command
only, and so on for the other commands. The given arguments take precedence.
Use the "--flag=value" form there.`,
		Version:       version(),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd.ErrOrStderr(), debugLog)
		},
	}

	root.PersistentFlags().BoolVar(&debugLog, "debug-log", false,
		"enable debug log output")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ParseArgsError{msg: "parse flags", err: err}
	})

	root.AddCommand(
		buildCommand(env),
		launchCommand(env),
		attachCommand(env),
		debugCommand(env),
		runCommand(env),
	)

	return root
}

func version() string {
	buildInfo, err := getBuildInfo()
	if err != nil {
		return "unknown"
	}

	return buildInfo.Main.Version
}

func getBuildInfo() (*debug.BuildInfo, error) {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, ErrReadBuildInfo
	}

	return buildInfo, nil
}
