// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"fmt"
	"time"

	"github.com/aibor/kernrun/internal/build"
	"github.com/aibor/kernrun/internal/harness"
	"github.com/aibor/kernrun/internal/qemu"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	defaultKernelName = "kernel"
	defaultTriple     = "aarch64-unknown-none"
	defaultHost       = "localhost"
)

func addTargetFlags(flags *pflag.FlagSet, target *build.Target) {
	flags.StringVar(&target.Name, "name", defaultKernelName,
		"name of the kernel, artifacts are named after it")
	flags.StringVar(&target.SourceDir, "src", ".",
		"source directory the compiler runs in")
	flags.StringVar(&target.OutputDir, "out", build.DefaultOutputDir,
		"output directory of the artifacts")
	flags.StringVar(&target.Triple, "triple", defaultTriple,
		"compiler target triple")
}

func newTarget(board qemu.BoardProfile) build.Target {
	return build.Target{
		Arch:         board.Arch,
		MaxImageSize: board.MaxImageSize,
	}
}

type launchFlags struct {
	executable  string
	sdImage     string
	port        int
	serialStdio bool
	gracePeriod time.Duration
	extraArgs   []qemu.Argument
}

func addLaunchFlags(flags *pflag.FlagSet, launch *launchFlags) {
	launch.port = qemu.DefaultDebugPort
	launch.gracePeriod = qemu.DefaultGracePeriod

	flags.StringVar(&launch.executable, "qemu", "",
		"emulator executable (default from board profile)")
	flags.StringVar(&launch.sdImage, "sd-image", "",
		"raw image attached as SD card")
	flags.Var(portValue(&launch.port), "port",
		"TCP port of the debug stub")
	flags.DurationVar(&launch.gracePeriod, "grace-period", launch.gracePeriod,
		"time the emulator has to terminate before it is killed")
	flags.Var(&QemuArgsValue{Args: &launch.extraArgs}, "qemu-arg",
		"additional emulator argument as name=value, may be repeated")
}

func buildCommand(env *environment) *cobra.Command {
	var (
		target  = newTarget(env.board)
		release bool
	)

	c := &cobra.Command{
		Use:   "build",
		Short: "Build the kernel executable and its raw binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile := build.ProfileDebug
			if release {
				profile = build.ProfileRelease
			}

			image, err := env.builder().Build(cmd.Context(), target, profile)
			if err != nil {
				return err //nolint:wrapcheck
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n%s\t%s\n",
				image.Executable, image.ExecutableDigest,
				image.Binary, image.BinaryDigest)

			return nil
		},
	}

	addTargetFlags(c.Flags(), &target)
	c.Flags().BoolVar(&release, "release", false, "build with release profile")

	return c
}

func launchCommand(env *environment) *cobra.Command {
	var (
		launch       launchFlags
		debugEnabled bool
	)

	c := &cobra.Command{
		Use:   "launch [flags] build/kernel.bin",
		Short: "Boot a raw kernel binary in the emulator",
		Long: `Boot a raw kernel binary in the emulator.

The kernel's serial output is written to stdout. With --debug, the machine
halts at the reset vector until a debugger continues it, and the serial
channel is bridged to stdio. The exit code is the emulator's.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return launchKernel(cmd.Context(), env, &launch, args[0], debugEnabled)
		},
	}

	addLaunchFlags(c.Flags(), &launch)
	c.Flags().BoolVar(&debugEnabled, "debug", false,
		"start the debug stub and halt the machine until a debugger continues")
	c.Flags().BoolVar(&launch.serialStdio, "serial-stdio", false,
		"bridge the serial channel to stdio, so the kernel can read input")

	return c
}

func attachCommand(env *environment) *cobra.Command {
	var (
		host        string
		port        = qemu.DefaultDebugPort
		breakpoints []string
	)

	c := &cobra.Command{
		Use:   "attach [flags] build/kernel.elf",
		Short: "Attach a debug session to a launched emulator",
		Long: `Attach a debug session to an emulator launched with --debug.

Breakpoints are set, the target is continued and each halt is reported with
its location. Symbols are read from the kernel executable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			session, err := env.bridge().Attach(ctx, args[0], host, port)
			if err != nil {
				return err //nolint:wrapcheck
			}
			defer session.Close()

			view, err := session.View(ctx)
			if err == nil {
				fmt.Fprintf(env.Stderr, "Attached to %s, %s\n%s\n",
					session.Address(), session.LastStop(), view)
			}

			return harness.Follow(ctx, session, breakpoints, env.Stderr) //nolint:wrapcheck
		},
	}

	c.Flags().StringVar(&host, "host", defaultHost, "host of the debug stub")
	c.Flags().Var(portValue(&port), "port", "TCP port of the debug stub")
	c.Flags().StringArrayVar(&breakpoints, "break", nil,
		"symbol or address to halt at, may be repeated")

	return c
}

func debugCommand(env *environment) *cobra.Command {
	var (
		host = defaultHost
		port = qemu.DefaultDebugPort
	)

	c := &cobra.Command{
		Use:   "debug [flags] build/kernel.elf",
		Short: "Run an interactive debugger connected to a launched emulator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.frontend().Run(cmd.Context(), args[0], host, port) //nolint:wrapcheck
		},
	}

	c.Flags().StringVar(&host, "host", host, "host of the debug stub")
	c.Flags().Var(portValue(&port), "port", "TCP port of the debug stub")

	return c
}

func runCommand(env *environment) *cobra.Command {
	var (
		target      = newTarget(env.board)
		launch      launchFlags
		breakpoints []string
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Build, launch with debug stub, attach and continue the kernel",
		Long: `Build the kernel with debug profile, launch it with the debug stub
enabled, attach a debug session and continue it.

The kernel's serial output is written to stdout, debug session reports to
stderr. The exit code is the emulator's.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The debug launch bridges the serial channel to stdio anyway.
			launch.serialStdio = true

			return withTerminalRestored(env.Stdin, func() error {
				return env.harness(&launch).Run(cmd.Context(), harness.RunConfig{ //nolint:wrapcheck
					Target:      target,
					Host:        defaultHost,
					Breakpoints: breakpoints,
				})
			})
		},
	}

	addTargetFlags(c.Flags(), &target)
	addLaunchFlags(c.Flags(), &launch)
	c.Flags().StringArrayVar(&breakpoints, "break", nil,
		"symbol or address to halt at, may be repeated")

	return c
}
