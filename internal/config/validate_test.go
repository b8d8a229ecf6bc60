package config

import (
	"errors"
	"testing"

	"github.com/AndreyAkinshin/hilrun/internal/model"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{"defaults", func(*Config) {}, "", false},
		{"bad mode", func(c *Config) { c.Mode = "both" }, "mode", true},
		{"empty path", func(c *Config) { c.Environment.Paths = []string{"a.tse", " "} }, "environment.paths[1]", true},
		{"rule without marker", func(c *Config) {
			c.Environment.GroupRules = []GroupRule{{Group: "testcases_Diag"}}
		}, "environment.group_rules[0].marker", true},
		{"rule with foreign group", func(c *Config) {
			c.Environment.GroupRules = []GroupRule{{Marker: "x", Group: "diag"}}
		}, "environment.group_rules[0].group", true},
		{"rule to default group", func(c *Config) {
			c.Environment.GroupRules = []GroupRule{{Marker: "smoke", Group: model.DefaultGroup}}
		}, "", false},
		{"extension without dot", func(c *Config) { c.Flash.AllowedExtensions = []string{"hex"} }, "flash.allowed_extensions[0]", true},
		{"email without host", func(c *Config) {
			c.Notifications.Email = &EmailConfig{Enabled: true, From: "a@b", Recipients: []string{"c@d"}}
		}, "notifications.email.smtp_host", true},
		{"email without recipients", func(c *Config) {
			c.Notifications.Email = &EmailConfig{Enabled: true, SMTPHost: "smtp", From: "a@b"}
		}, "notifications.email.recipients", true},
		{"disabled email not checked", func(c *Config) {
			c.Notifications.Email = &EmailConfig{Enabled: false}
		}, "", false},
		{"webhook bad url", func(c *Config) {
			c.Notifications.Webhook = &WebhookConfig{Enabled: true, URL: "not a url"}
		}, "notifications.webhook.url", true},
		{"unknown template kind", func(c *Config) {
			c.Notifications.Templates = map[string]string{"weekly": "x"}
		}, "notifications.templates.weekly", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(cfg)
			_, err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %v is not a ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestValidateTask_PayloadMismatch(t *testing.T) {
	task := &model.TaskConfig{
		Name: "n",
		TestCases: []model.TestCase{
			{Name: "a", Kind: model.KindNative, External: &model.ExternalCase{Module: "m"}},
		},
	}
	if err := ValidateTask(task); err == nil {
		t.Error("ValidateTask() expected error for mismatched payload")
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "mode", Message: "is invalid"}
	if got := err.Error(); got != "mode: is invalid" {
		t.Errorf("Error() = %q", got)
	}
}
