// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package build

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// KernelImage is the pair of artifacts of a successful build.
type KernelImage struct {
	Name    string
	Profile Profile

	// Executable is the path of the ELF file with symbols. It is what the
	// debugger loads.
	Executable string

	// Binary is the path of the raw binary. It is what the emulator boots.
	Binary string

	ExecutableDigest string
	BinaryDigest     string
}

// OpenImage returns the [KernelImage] of a previous build of the given target.
//
// Both files must be present. The binary is the last file written by a build,
// so its presence implies a complete pair.
func OpenImage(target Target, profile Profile) (*KernelImage, error) {
	image := &KernelImage{
		Name:       target.Name,
		Profile:    profile,
		Executable: target.ExecutablePath(profile),
		Binary:     target.BinaryPath(profile),
	}

	err := image.digest()
	if err != nil {
		return nil, err
	}

	return image, nil
}

func (i *KernelImage) digest() error {
	var err error

	i.ExecutableDigest, err = fileDigest(i.Executable)
	if err != nil {
		return fmt.Errorf("executable: %w", err)
	}

	i.BinaryDigest, err = fileDigest(i.Binary)
	if err != nil {
		return fmt.Errorf("binary: %w", err)
	}

	return nil
}

func fileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	defer file.Close()

	hash := sha256.New()

	_, err = io.Copy(hash, file)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
