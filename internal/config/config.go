package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AndreyAkinshin/hilrun/internal/model"
	"github.com/AndreyAkinshin/hilrun/internal/schema"
)

// Load reads a main configuration file in any supported format and applies
// defaults. It does not run schema or semantic validation.
func Load(path string) (*Config, error) {
	cfg, _, err := decodeConfig(path, false)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// LoadAndValidate reads a main configuration file, validates it against the
// embedded schema, applies defaults, runs semantic validation, and returns
// warnings.
func LoadAndValidate(path string) (*Config, []string, error) {
	cfg, unknownWarnings, err := decodeConfig(path, true)
	if err != nil {
		return nil, nil, err
	}

	applyDefaults(cfg)

	validationWarnings, err := Validate(cfg)

	allWarnings := make([]string, 0, len(unknownWarnings)+len(validationWarnings))
	allWarnings = append(allWarnings, unknownWarnings...)
	allWarnings = append(allWarnings, validationWarnings...)

	if err != nil {
		return nil, allWarnings, err
	}

	return cfg, allWarnings, nil
}

func decodeConfig(path string, validate bool) (*Config, []string, error) {
	data, err := readAsJSON(path)
	if err != nil {
		return nil, nil, err
	}
	if validate {
		if err := schema.ValidateConfig(data); err != nil {
			return nil, nil, err
		}
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.Dir = absDir(path)

	return &cfg, detectUnknownFields(data), nil
}

// Default returns a configuration with every default applied, rooted at dir.
// It is used when no main configuration file exists.
func Default(dir string) *Config {
	cfg := &Config{Dir: dir}
	applyDefaults(cfg)
	return cfg
}

// ResolvePath resolves p against the configuration directory unless it is
// already absolute. An empty path stays empty.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// TaskPath returns the task configuration path. A non-empty override, as
// given on the command line, wins over task_config_path.
func (c *Config) TaskPath(override string) string {
	if override != "" {
		return override
	}
	return c.ResolvePath(c.TaskConfigPath)
}

// EnvironmentPaths returns the configured environment definition paths,
// resolved against the configuration directory.
func (c *Config) EnvironmentPaths() []string {
	paths := make([]string, 0, len(c.Environment.Paths))
	for _, p := range c.Environment.Paths {
		paths = append(paths, c.ResolvePath(p))
	}
	return paths
}

// LoadTask reads, validates and converts a task configuration. Returned
// warnings report unknown fields.
func LoadTask(path string) (*model.TaskConfig, []string, error) {
	data, err := readAsJSON(path)
	if err != nil {
		return nil, nil, err
	}
	if err := schema.ValidateTask(data); err != nil {
		return nil, nil, err
	}

	var tf taskFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("failed to parse task config: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse task config: %w", err)
	}

	task, err := buildTask(tf, raw)
	if err != nil {
		return nil, nil, err
	}
	task.Dir = absDir(path)
	applyTaskDefaults(task)

	if err := ValidateTask(task); err != nil {
		return nil, nil, err
	}
	return task, detectUnknownTaskFields(data), nil
}

func buildTask(tf taskFile, raw map[string]json.RawMessage) (*model.TaskConfig, error) {
	task := &model.TaskConfig{
		Name:    tf.TaskInfo.Name,
		Version: tf.TaskInfo.Version,
	}
	if pc := tf.PackageConfig; pc != nil {
		task.Packages.Enabled = pc.Enabled
		for _, p := range pc.Packages {
			task.Packages.Packages = append(task.Packages.Packages, model.Package{
				Name:   p.Name,
				Source: p.Source,
				SHA256: strings.ToLower(p.SHA256),
			})
		}
	}
	if fc := tf.FlashConfig; fc != nil {
		task.Flash = model.FlashConfig{
			Enabled:           fc.Enabled,
			FilePath:          fc.FilePath,
			MaxRetries:        fc.MaxRetries,
			Timeout:           fc.Timeout.Std(),
			UsePackageManager: fc.UsePackageManager,
		}
	}

	cases, err := buildCases(model.DefaultGroup, tf.TestCases)
	if err != nil {
		return nil, err
	}
	task.TestCases = cases

	for key, value := range raw {
		if !strings.HasPrefix(key, model.GroupPrefix) {
			continue
		}
		var files []testCaseFile
		if err := json.Unmarshal(value, &files); err != nil {
			return nil, fmt.Errorf("failed to parse group %s: %w", key, err)
		}
		cases, err := buildCases(key, files)
		if err != nil {
			return nil, err
		}
		if task.Groups == nil {
			task.Groups = make(map[string][]model.TestCase)
		}
		task.Groups[key] = cases
	}
	return task, nil
}

func buildCases(group string, files []testCaseFile) ([]model.TestCase, error) {
	cases := make([]model.TestCase, 0, len(files))
	for i, f := range files {
		kind, err := ParseKind(f.Type)
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("%s[%d].type", group, i), Message: err.Error()}
		}
		tc := model.TestCase{
			Name:       f.Name,
			Kind:       kind,
			Enabled:    f.Enabled == nil || *f.Enabled,
			Parameters: f.Parameters,
		}
		switch kind {
		case model.KindExternal:
			fn := f.FunctionOrClass
			if fn == "" {
				fn = f.Name
			}
			tc.External = &model.ExternalCase{Module: f.TestFile, Function: fn}
		case model.KindNative:
			fn := f.FunctionOrClass
			if fn == "" {
				fn = "command"
			}
			tc.Native = &model.NativeCase{File: f.TestFile, Function: fn}
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

// ParseKind maps a task-file type name to a test case kind. The legacy
// names "capl" and "python" are accepted for external and native.
func ParseKind(name string) (model.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "external", "capl":
		return model.KindExternal, nil
	case "native", "python":
		return model.KindNative, nil
	default:
		return "", fmt.Errorf("unrecognized test case type %q", name)
	}
}

func absDir(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Dir(path)
	}
	return filepath.Dir(abs)
}
