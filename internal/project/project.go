package project

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/AndreyAkinshin/hilrun/internal/config"
)

// Project is a loaded hilrun workspace.
type Project struct {
	ConfigPath string // empty when running on defaults
	Config     *config.Config
	Warnings   []string
}

// Load loads the configuration at path. With an empty path the
// configuration is discovered from the working directory; when none exists
// the defaults rooted at the working directory are used.
func Load(path string) (*Project, error) {
	if path == "" {
		found, err := FindConfig()
		if errors.Is(err, ErrNoConfig) {
			return defaultProject(".")
		}
		if err != nil {
			return nil, err
		}
		path = found
	}
	return LoadFrom(path)
}

// LoadFrom loads and validates the configuration file at path.
func LoadFrom(path string) (*Project, error) {
	cfg, warnings, err := config.LoadAndValidate(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return &Project{
		ConfigPath: path,
		Config:     cfg,
		Warnings:   warnings,
	}, nil
}

func defaultProject(dir string) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Project{
		Config:   config.Default(abs),
		Warnings: []string{"no configuration file found, using defaults"},
	}, nil
}

// Environments returns the expanded environment definition files.
func (p *Project) Environments() ([]string, error) {
	paths, err := ExpandEnvironments(p.Config.EnvironmentPaths())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve environments: %w", err)
	}
	return paths, nil
}
