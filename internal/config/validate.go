package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/AndreyAkinshin/hilrun/internal/model"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a main configuration for errors and returns warnings for
// non-fatal issues.
func Validate(cfg *Config) (warnings []string, err error) {
	if cfg.Mode != ModeMulti && cfg.Mode != ModeSingle {
		return nil, &ValidationError{Field: "mode", Message: `must be "multi" or "single"`}
	}

	envWarnings, err := validateEnvironment(cfg.Environment)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, envWarnings...)

	if err := validateFlashSettings(cfg.Flash); err != nil {
		return nil, err
	}

	if err := validateNotifications(cfg.Notifications); err != nil {
		return nil, err
	}

	return warnings, nil
}

func validateEnvironment(env *EnvironmentConfig) ([]string, error) {
	var warnings []string
	if env == nil {
		return nil, nil
	}
	if env.Path != "" && len(env.Paths) > 0 && (len(env.Paths) != 1 || env.Paths[0] != env.Path) {
		warnings = append(warnings, "environment.path is ignored because environment.paths is set")
	}
	for i, p := range env.Paths {
		if strings.TrimSpace(p) == "" {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("environment.paths[%d]", i),
				Message: "must not be empty",
			}
		}
	}
	for i, rule := range env.GroupRules {
		if rule.Marker == "" {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("environment.group_rules[%d].marker", i),
				Message: "is required",
			}
		}
		if rule.Group != model.DefaultGroup && !strings.HasPrefix(rule.Group, model.GroupPrefix) {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("environment.group_rules[%d].group", i),
				Message: fmt.Sprintf("must be %q or start with %q", model.DefaultGroup, model.GroupPrefix),
			}
		}
	}
	if env.Bridge != nil && strings.TrimSpace(env.Bridge.Command) == "" {
		return nil, &ValidationError{Field: "environment.bridge.command", Message: "is required"}
	}
	return warnings, nil
}

func validateFlashSettings(f *FlashSettings) error {
	if f == nil {
		return nil
	}
	for i, ext := range f.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return &ValidationError{
				Field:   fmt.Sprintf("flash.allowed_extensions[%d]", i),
				Message: fmt.Sprintf("must start with a dot, got %q", ext),
			}
		}
	}
	return nil
}

func validateNotifications(n *NotificationsConfig) error {
	if n == nil {
		return nil
	}
	if e := n.Email; e != nil && e.Enabled {
		if e.SMTPHost == "" {
			return &ValidationError{Field: "notifications.email.smtp_host", Message: "is required when email is enabled"}
		}
		if e.From == "" {
			return &ValidationError{Field: "notifications.email.from", Message: "is required when email is enabled"}
		}
		if len(e.Recipients) == 0 {
			return &ValidationError{Field: "notifications.email.recipients", Message: "at least one recipient is required when email is enabled"}
		}
	}
	if w := n.Webhook; w != nil && w.Enabled {
		u, err := url.Parse(w.URL)
		if w.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return &ValidationError{Field: "notifications.webhook.url", Message: "must be an http or https URL when the webhook is enabled"}
		}
	}
	for kind := range n.Templates {
		switch kind {
		case "success", "failure", "custom":
		default:
			return &ValidationError{
				Field:   fmt.Sprintf("notifications.templates.%s", kind),
				Message: `template kind must be "success", "failure" or "custom"`,
			}
		}
	}
	return nil
}

// ValidateTask checks a loaded task configuration.
func ValidateTask(task *model.TaskConfig) error {
	if strings.TrimSpace(task.Name) == "" {
		return &ValidationError{Field: "task_info.name", Message: "is required"}
	}
	if task.Flash.Enabled {
		if task.Flash.FilePath == "" {
			return &ValidationError{Field: "flash_config.file_path", Message: "is required when flashing is enabled"}
		}
		if task.Flash.MaxRetries < 1 {
			return &ValidationError{Field: "flash_config.max_retries", Message: "must be at least 1"}
		}
	}
	if task.Flash.UsePackageManager && !task.Packages.Enabled {
		return &ValidationError{Field: "flash_config.use_package_manager", Message: "requires package_config.enabled"}
	}
	seenPkg := make(map[string]bool)
	for i, p := range task.Packages.Packages {
		if seenPkg[p.Name] {
			return &ValidationError{
				Field:   fmt.Sprintf("package_config.packages[%d].name", i),
				Message: fmt.Sprintf("duplicate package name %q", p.Name),
			}
		}
		seenPkg[p.Name] = true
	}
	for _, group := range task.GroupNames() {
		cases, _ := task.Group(group)
		if err := validateGroup(group, cases); err != nil {
			return err
		}
	}
	return nil
}

func validateGroup(group string, cases []model.TestCase) error {
	seen := make(map[string]bool)
	for i, tc := range cases {
		field := fmt.Sprintf("%s[%d]", group, i)
		if tc.Name == "" {
			return &ValidationError{Field: field + ".name", Message: "is required"}
		}
		if seen[tc.Name] {
			return &ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate test case name %q in group %s", tc.Name, group),
			}
		}
		seen[tc.Name] = true
		if !tc.Kind.Valid() {
			return &ValidationError{Field: field + ".type", Message: fmt.Sprintf("unrecognized test case type %q", tc.Kind)}
		}
		if (tc.Kind == model.KindExternal) != (tc.External != nil) || (tc.Kind == model.KindNative) != (tc.Native != nil) {
			return &ValidationError{Field: field, Message: "test case payload does not match its type"}
		}
	}
	return nil
}
