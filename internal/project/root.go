// Package project locates and loads the hilrun workspace: the main
// configuration file and the environment definitions it names.
package project

import (
	"errors"
	"os"
	"path/filepath"
)

// ConfigFileNames lists the accepted main configuration file names in
// lookup order. The first one present in a directory wins.
var ConfigFileNames = []string{
	"hilrun.json",
	"hilrun.yaml",
	"hilrun.yml",
	"hilrun.toml",
}

// ErrNoConfig is returned when no configuration file is found.
var ErrNoConfig = errors.New("hilrun.json (or .yaml/.yml/.toml) not found in the current directory or any parent up to the root")

// FindConfig walks up from the current working directory until it finds a
// configuration file and returns its path.
func FindConfig() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return FindConfigFrom(cwd)
}

// FindConfigFrom walks up from the given directory until it finds a
// configuration file and returns its path.
func FindConfigFrom(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		for _, name := range ConfigFileNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoConfig
		}
		dir = parent
	}
}
