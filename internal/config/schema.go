// Package config loads and validates the hilrun main configuration and
// task configuration files.
package config

// Config represents the main configuration file (hilrun.json, hilrun.yaml
// or hilrun.toml).
type Config struct {
	TaskConfigPath string               `json:"task_config_path,omitempty"`
	Mode           string               `json:"mode,omitempty"`
	Environment    *EnvironmentConfig   `json:"environment,omitempty"`
	Flash          *FlashSettings       `json:"flash,omitempty"`
	Packages       *PackageSettings     `json:"packages,omitempty"`
	Logging        *LoggingConfig       `json:"logging,omitempty"`
	Archive        *ArchiveConfig       `json:"archive,omitempty"`
	Notifications  *NotificationsConfig `json:"notifications,omitempty"`

	// Dir is the directory containing the config file. Relative paths in
	// the configuration are resolved against it.
	Dir string `json:"-"`
}

// EnvironmentConfig describes the external test environment.
type EnvironmentConfig struct {
	Paths         []string      `json:"paths,omitempty"`
	Path          string        `json:"path,omitempty"` // legacy single-path key
	CheckPath     string        `json:"check_path,omitempty"`
	CheckCase     string        `json:"check_case,omitempty"`
	RequiredPaths []string      `json:"required_paths,omitempty"`
	LoadTimeout   Duration      `json:"load_timeout,omitempty"`
	TestTimeout   Duration      `json:"test_timeout,omitempty"`
	GroupRules    []GroupRule   `json:"group_rules,omitempty"`
	Bridge        *BridgeConfig `json:"bridge,omitempty"`
}

// GroupRule maps a marker in an environment file name to a test-case group.
type GroupRule struct {
	Marker string `json:"marker"`
	Group  string `json:"group"`
}

// BridgeConfig describes the process that drives the external test
// environment.
type BridgeConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	WorkDir string            `json:"work_dir,omitempty"`
}

// FlashSettings describes how the flash tool and device backup work.
// Whether flashing happens at all is decided by the task configuration.
type FlashSettings struct {
	Tool              string   `json:"tool,omitempty"`
	Args              []string `json:"args,omitempty"`
	DeviceConfig      string   `json:"device_config,omitempty"`
	BackupDir         string   `json:"backup_dir,omitempty"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
	RetryInterval     Duration `json:"retry_interval,omitempty"`
}

// PackageSettings describes where staged packages are placed.
type PackageSettings struct {
	DownloadPath string `json:"download_path,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level    string `json:"level,omitempty"`
	Format   string `json:"format,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// ArchiveConfig configures result archiving.
type ArchiveConfig struct {
	Enabled          *bool    `json:"enabled,omitempty"`
	BasePath         string   `json:"base_path,omitempty"`
	TimestampFolders *bool    `json:"timestamp_folders,omitempty"`
	Formats          []string `json:"formats,omitempty"`
	Artifacts        []string `json:"artifacts,omitempty"`
}

// NotificationsConfig configures the notification channels.
type NotificationsConfig struct {
	Email     *EmailConfig      `json:"email,omitempty"`
	Webhook   *WebhookConfig    `json:"webhook,omitempty"`
	Templates map[string]string `json:"templates,omitempty"`
}

// EmailConfig configures SMTP notifications.
type EmailConfig struct {
	Enabled       bool     `json:"enabled"`
	SMTPHost      string   `json:"smtp_host,omitempty"`
	SMTPPort      int      `json:"smtp_port,omitempty"`
	Username      string   `json:"username,omitempty"`
	PasswordEnv   string   `json:"password_env,omitempty"`
	From          string   `json:"from,omitempty"`
	Recipient     string   `json:"recipient,omitempty"` // legacy single recipient
	Recipients    []string `json:"recipients,omitempty"`
	SubjectPrefix string   `json:"subject_prefix,omitempty"`
	Timeout       Duration `json:"timeout,omitempty"` // bounds one delivery, dial included
}

// WebhookConfig configures chat-robot webhook notifications.
type WebhookConfig struct {
	Enabled bool     `json:"enabled"`
	URL     string   `json:"url,omitempty"`
	Timeout Duration `json:"timeout,omitempty"`
	Retries int      `json:"retries,omitempty"`
}

// taskFile is the on-disk shape of a task configuration. Named groups live
// at the top level under keys starting with "testcases_" and are collected
// separately.
type taskFile struct {
	TaskInfo      taskInfo       `json:"task_info"`
	PackageConfig *packageConfig `json:"package_config,omitempty"`
	FlashConfig   *flashConfig   `json:"flash_config,omitempty"`
	TestCases     []testCaseFile `json:"test_cases,omitempty"`
}

type taskInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type packageConfig struct {
	Enabled  bool          `json:"enabled"`
	Packages []packageFile `json:"packages,omitempty"`
}

type packageFile struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	SHA256 string `json:"sha256,omitempty"`
}

type flashConfig struct {
	Enabled           bool     `json:"enabled"`
	FilePath          string   `json:"file_path,omitempty"`
	MaxRetries        int      `json:"max_retries,omitempty"`
	Timeout           Duration `json:"timeout,omitempty"`
	UsePackageManager bool     `json:"use_package_manager,omitempty"`
}

type testCaseFile struct {
	Name            string         `json:"name"`
	Type            string         `json:"type"`
	TestFile        string         `json:"test_file"`
	FunctionOrClass string         `json:"function_or_class,omitempty"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	Enabled         *bool          `json:"enabled,omitempty"`
}
