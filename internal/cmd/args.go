// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// LocalConfig are the arguments of a local config file.
type LocalConfig struct {
	// Global arguments are put before the command name. Only persistent
	// flags are valid there.
	Global []string

	// Commands holds the arguments per command name. They are put right after
	// the command name.
	Commands map[string][]string
}

// LocalConfigArgs returns kernrun arguments from a local config file.
//
// The file's format is one argument per line. Empty lines and lines starting
// with "#" are ignored. A line "[name]" starts the section of the command
// with that name. Arguments before the first section are global. A missing
// file is not an error.
func LocalConfigArgs(fsys fs.FS, file string) (LocalConfig, error) {
	config := LocalConfig{
		Global:   []string{},
		Commands: map[string][]string{},
	}

	conf, err := fs.ReadFile(fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config, nil
		}

		return config, fmt.Errorf("read file: %w", err)
	}

	section := ""

	for _, line := range strings.Split(string(conf), "\n") {
		line = strings.TrimSpace(line)

		switch {
		case line == "", strings.HasPrefix(line, "#"):
		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			section = strings.TrimSpace(line[1 : len(line)-1])
			if section == "" {
				return config, fmt.Errorf("empty section name: %s", line)
			}
		case section == "":
			config.Global = append(config.Global, line)
		default:
			config.Commands[section] = append(config.Commands[section], line)
		}
	}

	return config, nil
}

// Merge returns the given arguments with the config's arguments added. The
// given arguments come last, so they take precedence.
//
// The command name is the first argument that is not a flag.
func (c LocalConfig) Merge(args []string) []string {
	merged := append([]string{}, c.Global...)

	for idx, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}

		merged = append(merged, args[:idx+1]...)
		merged = append(merged, c.Commands[arg]...)

		return append(merged, args[idx+1:]...)
	}

	return append(merged, args...)
}

// MergedArgs returns the given arguments merged with the arguments of the
// local config file.
func MergedArgs(args []string, fsys fs.FS, file string) ([]string, error) {
	config, err := LocalConfigArgs(fsys, file)
	if err != nil {
		return nil, &ParseArgsError{msg: "local config args", err: err}
	}

	return config.Merge(args), nil
}
