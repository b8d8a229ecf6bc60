package config

import (
	"time"

	"github.com/AndreyAkinshin/hilrun/internal/envcheck"
	"github.com/AndreyAkinshin/hilrun/internal/model"
	"github.com/AndreyAkinshin/hilrun/internal/notify"
)

// Default configuration values.
const (
	DefaultConfigFile     = "hilrun.json"
	DefaultTaskConfigPath = "task.json"
	DefaultMode           = ModeMulti
	DefaultCheckCase      = envcheck.DefaultCheckCase
	DefaultLoadTimeout    = 120 * time.Second
	DefaultTestTimeout    = 300 * time.Second
	DefaultFlashTimeout   = 300 * time.Second
	DefaultMaxRetries     = 3
	DefaultBackupDir      = "backups"
	DefaultDownloadPath   = "downloads"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultArchivePath    = "archive"
	DefaultWebhookTimeout = 10 * time.Second
	DefaultWebhookRetries = 3
	DefaultEmailTimeout   = notify.DefaultEmailTimeout
	DefaultSMTPPort       = 25
	DefaultSubjectPrefix  = "[HIL]"
)

// Run modes.
const (
	ModeMulti  = "multi"
	ModeSingle = "single"
)

// DefaultAllowedExtensions lists the firmware artifact extensions accepted
// when flash.allowed_extensions is not set.
var DefaultAllowedExtensions = []string{".hex", ".s19", ".srec", ".mot", ".bin", ".vbf", ".elf"}

// DefaultArchiveFormats lists the summary formats written when
// archive.formats is not set.
var DefaultArchiveFormats = []string{"json", "csv", "html"}

// DefaultGroupRules maps environment file name markers to test-case
// groups. Rules are evaluated in order and the first match wins.
var DefaultGroupRules = []GroupRule{
	{Marker: "diag", Group: model.GroupPrefix + "Diag"},
	{Marker: "can", Group: model.GroupPrefix + "Can"},
	{Marker: "frame", Group: model.GroupPrefix + "Can"},
	{Marker: "network", Group: model.GroupPrefix + "Can"},
	{Marker: "net", Group: model.GroupPrefix + "Can"},
}

// applyDefaults fills in default values for unset configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.TaskConfigPath == "" {
		cfg.TaskConfigPath = DefaultTaskConfigPath
	}
	if cfg.Mode == "" {
		cfg.Mode = DefaultMode
	}
	applyEnvironmentDefaults(cfg)
	applyFlashDefaults(cfg)
	applyPackageDefaults(cfg)
	applyLoggingDefaults(cfg)
	applyArchiveDefaults(cfg)
	applyNotificationDefaults(cfg)
}

func applyEnvironmentDefaults(cfg *Config) {
	if cfg.Environment == nil {
		cfg.Environment = &EnvironmentConfig{}
	}
	env := cfg.Environment
	if len(env.Paths) == 0 && env.Path != "" {
		env.Paths = []string{env.Path}
	}
	if env.CheckCase == "" {
		env.CheckCase = DefaultCheckCase
	}
	if env.LoadTimeout == 0 {
		env.LoadTimeout = Duration(DefaultLoadTimeout)
	}
	if env.TestTimeout == 0 {
		env.TestTimeout = Duration(DefaultTestTimeout)
	}
	if env.GroupRules == nil {
		env.GroupRules = append([]GroupRule(nil), DefaultGroupRules...)
	}
}

func applyFlashDefaults(cfg *Config) {
	if cfg.Flash == nil {
		cfg.Flash = &FlashSettings{}
	}
	if cfg.Flash.BackupDir == "" {
		cfg.Flash.BackupDir = DefaultBackupDir
	}
	if len(cfg.Flash.AllowedExtensions) == 0 {
		cfg.Flash.AllowedExtensions = append([]string(nil), DefaultAllowedExtensions...)
	}
}

func applyPackageDefaults(cfg *Config) {
	if cfg.Packages == nil {
		cfg.Packages = &PackageSettings{}
	}
	if cfg.Packages.DownloadPath == "" {
		cfg.Packages.DownloadPath = DefaultDownloadPath
	}
}

func applyLoggingDefaults(cfg *Config) {
	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

func applyArchiveDefaults(cfg *Config) {
	if cfg.Archive == nil {
		cfg.Archive = &ArchiveConfig{}
	}
	a := cfg.Archive
	if a.Enabled == nil {
		a.Enabled = boolPtr(true)
	}
	if a.TimestampFolders == nil {
		a.TimestampFolders = boolPtr(true)
	}
	if a.BasePath == "" {
		a.BasePath = DefaultArchivePath
	}
	if len(a.Formats) == 0 {
		a.Formats = append([]string(nil), DefaultArchiveFormats...)
	}
}

func applyNotificationDefaults(cfg *Config) {
	if cfg.Notifications == nil {
		cfg.Notifications = &NotificationsConfig{}
	}
	n := cfg.Notifications
	if n.Email != nil {
		if n.Email.SMTPPort == 0 {
			n.Email.SMTPPort = DefaultSMTPPort
		}
		if n.Email.Timeout == 0 {
			n.Email.Timeout = Duration(DefaultEmailTimeout)
		}
		if n.Email.SubjectPrefix == "" {
			n.Email.SubjectPrefix = DefaultSubjectPrefix
		}
		if len(n.Email.Recipients) == 0 && n.Email.Recipient != "" {
			n.Email.Recipients = []string{n.Email.Recipient}
		}
	}
	if n.Webhook != nil {
		if n.Webhook.Timeout == 0 {
			n.Webhook.Timeout = Duration(DefaultWebhookTimeout)
		}
		if n.Webhook.Retries == 0 {
			n.Webhook.Retries = DefaultWebhookRetries
		}
	}
}

// applyTaskDefaults fills in default values for an unset flash section.
func applyTaskDefaults(task *model.TaskConfig) {
	if task.Flash.MaxRetries == 0 {
		task.Flash.MaxRetries = DefaultMaxRetries
	}
	if task.Flash.Timeout == 0 {
		task.Flash.Timeout = DefaultFlashTimeout
	}
}

func boolPtr(b bool) *bool {
	return &b
}
