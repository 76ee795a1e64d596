// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aibor/kernrun/internal/sys"
)

const stagingPattern = ".staging-*"

// Builder builds [KernelImage]s with a [Toolchain].
type Builder struct {
	Toolchain Toolchain
}

// NewBuilder creates a new [Builder] using the given [Toolchain].
func NewBuilder(toolchain Toolchain) *Builder {
	return &Builder{Toolchain: toolchain}
}

// Build compiles the given target and converts it into a raw binary.
//
// Both artifacts are staged in a temporary directory inside the output
// directory first. Only if both were produced successfully, the previous
// pair is replaced. On any error the previous pair is left untouched.
func (b *Builder) Build(
	ctx context.Context,
	target Target,
	profile Profile,
) (*KernelImage, error) {
	err := target.Validate()
	if err != nil {
		return nil, err
	}

	if !profile.isKnown() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProfile, profile)
	}

	err = b.Toolchain.Check()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	outDir := target.Dir(profile)

	err = os.MkdirAll(outDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	stagingDir, err := os.MkdirTemp(outDir, stagingPattern)
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	staged := &KernelImage{
		Name:       target.Name,
		Profile:    profile,
		Executable: filepath.Join(stagingDir, target.Name+".elf"),
		Binary:     filepath.Join(stagingDir, target.Name+".bin"),
	}

	err = b.stage(ctx, target, staged)
	if err != nil {
		return nil, err
	}

	image := &KernelImage{
		Name:       target.Name,
		Profile:    profile,
		Executable: target.ExecutablePath(profile),
		Binary:     target.BinaryPath(profile),
	}

	err = commit(staged, image)
	if err != nil {
		return nil, err
	}

	err = image.digest()
	if err != nil {
		return nil, err
	}

	slog.Debug("Built kernel image",
		slog.String("executable", image.Executable),
		slog.String("executable_sha256", image.ExecutableDigest),
		slog.String("binary", image.Binary),
		slog.String("binary_sha256", image.BinaryDigest),
	)

	return image, nil
}

func (b *Builder) stage(
	ctx context.Context,
	target Target,
	staged *KernelImage,
) error {
	err := b.Toolchain.Compile(ctx, target, staged.Profile, staged.Executable)
	if err != nil {
		return err //nolint:wrapcheck
	}

	info, err := sys.ReadELFInfo(staged.Executable)
	if err != nil {
		return &BuildError{Step: "verify executable", Err: err}
	}

	if info.Arch != target.Arch {
		return &BuildError{
			Step: "verify executable",
			Err: fmt.Errorf("%w: built for %s, want %s",
				sys.ErrMachineNotSupported, info.Arch, target.Arch),
		}
	}

	if !info.HasSymbols {
		slog.Warn("Executable has no symbol table, debugging will be limited",
			slog.String("target", target.Name))
	}

	err = b.Toolchain.Convert(ctx, staged.Executable, staged.Binary)
	if err != nil {
		return err //nolint:wrapcheck
	}

	stat, err := os.Stat(staged.Binary)
	if err != nil {
		return &BuildError{Step: "verify binary", Err: err}
	}

	if target.MaxImageSize > 0 && stat.Size() > target.MaxImageSize {
		return fmt.Errorf("%w: %d bytes exceed %d bytes",
			ErrImageTooLarge, stat.Size(), target.MaxImageSize)
	}

	return nil
}

// commit moves the staged pair into place. The old binary is removed first
// and the new binary is moved last, so an existing binary always has its
// matching executable next to it.
func commit(staged, image *KernelImage) error {
	err := os.Remove(image.Binary)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove previous binary: %w", err)
	}

	err = os.Rename(staged.Executable, image.Executable)
	if err != nil {
		return fmt.Errorf("move executable: %w", err)
	}

	err = os.Rename(staged.Binary, image.Binary)
	if err != nil {
		return fmt.Errorf("move binary: %w", err)
	}

	return nil
}
