// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// Toolchain compiles kernels and converts them into raw binaries.
type Toolchain interface {
	// Check returns an error wrapping [ErrToolchainMissing] if any of the
	// tools is not available.
	Check() error

	// Compile compiles the target and writes the resulting executable to
	// the given path.
	Compile(ctx context.Context, target Target, profile Profile, output string) error

	// Convert converts the executable into a raw binary written to the
	// given path.
	Convert(ctx context.Context, executable, output string) error
}

// Default tools for Rust kernels.
const (
	DefaultCompiler  = "cargo"
	DefaultConverter = "rust-objcopy"
)

// CommandToolchain is a [Toolchain] that runs external commands.
//
// The compiler is run in the target's source directory with the arguments
// "build --target <triple>" and "--release" for release builds. The
// executable is taken from "target/<triple>/<profile>/<name>". This is the
// layout cargo uses.
type CommandToolchain struct {
	Compiler      string
	CompilerArgs  []string
	Converter     string
	ConverterArgs []string

	// ArtifactDir overrides the directory the compiler writes the executable
	// to, relative to the source directory.
	ArtifactDir string
}

var _ Toolchain = (*CommandToolchain)(nil)

// NewCommandToolchain returns a [CommandToolchain] with default tools.
func NewCommandToolchain() *CommandToolchain {
	return &CommandToolchain{
		Compiler:      DefaultCompiler,
		Converter:     DefaultConverter,
		ConverterArgs: []string{"--strip-all", "-O", "binary"},
	}
}

// Check implements [Toolchain].
func (t *CommandToolchain) Check() error {
	tools := []struct {
		name string
		hint string
	}{
		{
			name: t.Compiler,
			hint: "install the Rust toolchain with rustup and add the target " +
				"with \"rustup target add aarch64-unknown-none\"",
		},
		{
			name: t.Converter,
			hint: "install cargo-binutils with \"cargo install cargo-binutils\" " +
				"and \"rustup component add llvm-tools-preview\"",
		},
	}

	for _, tool := range tools {
		_, err := exec.LookPath(tool.name)
		if err != nil {
			return &ToolError{
				Tool: tool.name,
				Hint: tool.hint,
				Err:  fmt.Errorf("%w: %w", ErrToolchainMissing, err),
			}
		}
	}

	return nil
}

func (t *CommandToolchain) compilerArgs(target Target, profile Profile) []string {
	args := []string{"build"}
	if target.Triple != "" {
		args = append(args, "--target", target.Triple)
	}

	if profile == ProfileRelease {
		args = append(args, "--release")
	}

	return append(args, t.CompilerArgs...)
}

func (t *CommandToolchain) artifactPath(target Target, profile Profile) string {
	dir := t.ArtifactDir
	if dir == "" {
		dir = filepath.Join("target", target.Triple, string(profile))
	}

	return filepath.Join(target.SourceDir, dir, target.Name)
}

// Compile implements [Toolchain].
func (t *CommandToolchain) Compile(
	ctx context.Context,
	target Target,
	profile Profile,
	output string,
) error {
	err := t.run(ctx, "compile", target.SourceDir, t.Compiler,
		t.compilerArgs(target, profile)...)
	if err != nil {
		return err
	}

	artifact := t.artifactPath(target, profile)
	slog.Debug("Compiled executable", slog.String("path", artifact))

	err = copyFile(output, artifact)
	if err != nil {
		return fmt.Errorf("copy executable: %w", err)
	}

	return nil
}

// Convert implements [Toolchain].
func (t *CommandToolchain) Convert(
	ctx context.Context,
	executable string,
	output string,
) error {
	args := append([]string{}, t.ConverterArgs...)
	args = append(args, executable, output)

	return t.run(ctx, "convert", "", t.Converter, args...)
}

func (*CommandToolchain) run(
	ctx context.Context,
	step string,
	dir string,
	name string,
	args ...string,
) error {
	var output bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = &output
	cmd.Stderr = &output

	slog.Debug("Run tool", slog.String("command", cmd.String()))

	err := cmd.Run()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return &ToolError{
				Tool: name,
				Err:  fmt.Errorf("%w: %w", ErrToolchainMissing, err),
			}
		}

		return &BuildError{
			Step:   step,
			Output: output.Bytes(),
			Err:    err,
		}
	}

	return nil
}

func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err //nolint:wrapcheck
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return err //nolint:wrapcheck
	}

	_, err = io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return err //nolint:wrapcheck
	}

	return out.Close() //nolint:wrapcheck
}
