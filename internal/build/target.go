// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package build

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aibor/kernrun/internal/sys"
)

// Profile is a build profile.
type Profile string

// Supported build profiles.
const (
	ProfileDebug   Profile = "debug"
	ProfileRelease Profile = "release"
)

// String implements [fmt.Stringer].
func (p *Profile) String() string {
	return string(*p)
}

func (p *Profile) isKnown() bool {
	return *p == ProfileDebug || *p == ProfileRelease
}

// Set implements [flag.Value].
func (p *Profile) Set(s string) error {
	profile := Profile(s)
	if !profile.isKnown() {
		return fmt.Errorf("%w: %s", ErrInvalidProfile, s)
	}

	*p = profile

	return nil
}

// Type implements [pflag.Value].
func (*Profile) Type() string {
	return "profile"
}

// DefaultOutputDir is the directory build artifacts are written to, relative
// to the working directory.
const DefaultOutputDir = "build"

// Target is a kernel that can be built.
type Target struct {
	// Name of the kernel. Artifacts are named after it.
	Name string

	// SourceDir is the directory the compiler is run in.
	SourceDir string

	// Triple is the compiler's target triple, like "aarch64-unknown-none".
	Triple string

	// Arch is the architecture the executable must be built for.
	Arch sys.Arch

	// OutputDir is the directory the artifacts are written to.
	OutputDir string

	// MaxImageSize is the maximum size of the raw binary. Zero means no
	// limit.
	MaxImageSize int64
}

// Validate checks that all required fields are set.
func (t *Target) Validate() error {
	switch {
	case t.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidTarget)
	case strings.ContainsRune(t.Name, filepath.Separator):
		return fmt.Errorf("%w: name must not contain path separators: %s",
			ErrInvalidTarget, t.Name)
	case t.Arch == "":
		return fmt.Errorf("%w: no architecture", ErrInvalidTarget)
	}

	return nil
}

// Dir returns the profile specific output directory. Debug artifacts are
// written to the output directory directly, release artifacts to a
// sub-directory.
func (t *Target) Dir(profile Profile) string {
	dir := t.OutputDir
	if dir == "" {
		dir = DefaultOutputDir
	}

	if profile == ProfileRelease {
		dir = filepath.Join(dir, string(ProfileRelease))
	}

	return dir
}

// ExecutablePath returns the path of the symbol-bearing executable.
func (t *Target) ExecutablePath(profile Profile) string {
	return filepath.Join(t.Dir(profile), t.Name+".elf")
}

// BinaryPath returns the path of the raw binary.
func (t *Target) BinaryPath(profile Profile) string {
	return filepath.Join(t.Dir(profile), t.Name+".bin")
}
