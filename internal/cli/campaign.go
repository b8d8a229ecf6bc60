package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AndreyAkinshin/hilrun/internal/archive"
	"github.com/AndreyAkinshin/hilrun/internal/config"
	"github.com/AndreyAkinshin/hilrun/internal/envcheck"
	"github.com/AndreyAkinshin/hilrun/internal/extenv"
	"github.com/AndreyAkinshin/hilrun/internal/flash"
	"github.com/AndreyAkinshin/hilrun/internal/model"
	"github.com/AndreyAkinshin/hilrun/internal/native"
	"github.com/AndreyAkinshin/hilrun/internal/notify"
	"github.com/AndreyAkinshin/hilrun/internal/packages"
	"github.com/AndreyAkinshin/hilrun/internal/pipeline"
	"github.com/AndreyAkinshin/hilrun/internal/report"
	"github.com/AndreyAkinshin/hilrun/internal/runner"
	"github.com/AndreyAkinshin/hilrun/internal/target"
)

// campaign holds the pipeline collaborators built from a configuration.
type campaign struct {
	deps  pipeline.Deps
	close func() error
}

// buildCampaign wires the pipeline collaborators for cfg. onEnvironment,
// when set, is called after each environment finishes.
func buildCampaign(cfg *config.Config, onEnvironment func(model.EnvironmentRunSummary)) (*campaign, error) {
	c := &campaign{close: func() error { return nil }}

	var automation extenv.Automation = extenv.Unconfigured{}
	if b := cfg.Environment.Bridge; b != nil && b.Command != "" {
		workDir := cfg.Dir
		if b.WorkDir != "" {
			workDir = cfg.ResolvePath(b.WorkDir)
		}
		bridge := extenv.NewBridge(extenv.BridgeOptions{
			Command: resolveCommand(cfg, b.Command),
			Args:    b.Args,
			Env:     b.Env,
			WorkDir: workDir,
		})
		automation = bridge
		c.close = bridge.Close
	}

	rules := make([]target.Rule, 0, len(cfg.Environment.GroupRules))
	for _, r := range cfg.Environment.GroupRules {
		rules = append(rules, target.Rule{Marker: r.Marker, Group: r.Group})
	}
	run := runner.New(automation, native.NewRegistry(native.Env{BaseDir: cfg.Dir}), target.NewResolver(rules), runner.Options{
		LoadTimeout:   cfg.Environment.LoadTimeout.Std(),
		TestTimeout:   cfg.Environment.TestTimeout.Std(),
		OnEnvironment: onEnvironment,
	})

	checker := &envcheck.Checker{
		BaseDir:       cfg.Dir,
		RequiredPaths: cfg.Environment.RequiredPaths,
		CheckCase:     cfg.Environment.CheckCase,
		Runner:        run,
	}
	if cfg.Environment.CheckPath != "" {
		checker.CheckPath = cfg.ResolvePath(cfg.Environment.CheckPath)
	}

	device := &flash.CommandDevice{
		Tool:      resolveCommand(cfg, cfg.Flash.Tool),
		Args:      cfg.Flash.Args,
		WorkDir:   cfg.Dir,
		BackupDir: cfg.ResolvePath(cfg.Flash.BackupDir),
	}
	if cfg.Flash.DeviceConfig != "" {
		device.DeviceConfig = cfg.ResolvePath(cfg.Flash.DeviceConfig)
	}

	c.deps = pipeline.Deps{
		LoadTask: config.LoadTask,
		Checker:  checker,
		Stager:   &packages.Stager{DownloadDir: cfg.Packages.DownloadPath, BaseDir: cfg.Dir},
		Flasher: flash.New(device, flash.Options{
			AllowedExtensions: cfg.Flash.AllowedExtensions,
			RetryInterval:     cfg.Flash.RetryInterval.Std(),
		}),
		Executor: run,
	}

	if *cfg.Archive.Enabled {
		archiver, err := buildArchiver(cfg)
		if err != nil {
			_ = c.close()
			return nil, err
		}
		c.deps.Archiver = archiver
	}

	notifier, composer, err := buildNotifier(cfg)
	if err != nil {
		_ = c.close()
		return nil, err
	}
	c.deps.Notifier = notifier
	c.deps.Composer = composer
	return c, nil
}

func buildArchiver(cfg *config.Config) (*archive.FileArchiver, error) {
	formats := make([]report.Format, 0, len(cfg.Archive.Formats))
	for _, name := range cfg.Archive.Formats {
		f, err := report.ParseFormat(name)
		if err != nil {
			return nil, fmt.Errorf("archive.formats: %w", err)
		}
		formats = append(formats, f)
	}
	return &archive.FileArchiver{
		BasePath:         cfg.Archive.BasePath,
		BaseDir:          cfg.Dir,
		TimestampFolders: *cfg.Archive.TimestampFolders,
		Formats:          formats,
		Artifacts:        cfg.Archive.Artifacts,
	}, nil
}

// buildNotifier returns the enabled channels, or nil when none is enabled,
// together with the composer that renders their messages.
func buildNotifier(cfg *config.Config) (notify.Notifier, *notify.Composer, error) {
	n := cfg.Notifications
	prefix := config.DefaultSubjectPrefix
	var channels notify.Multi

	if e := n.Email; e != nil && e.Enabled {
		prefix = e.SubjectPrefix
		recipients, err := notify.ParseRecipients(e.Recipient, e.Recipients)
		if err != nil {
			return nil, nil, fmt.Errorf("notifications.email: %w", err)
		}
		var password string
		if e.PasswordEnv != "" {
			password = os.Getenv(e.PasswordEnv)
		}
		channels = append(channels, &notify.Email{
			Host:       e.SMTPHost,
			Port:       e.SMTPPort,
			Username:   e.Username,
			Password:   password,
			From:       e.From,
			Recipients: recipients,
			Timeout:    e.Timeout.Std(),
		})
	}
	if w := n.Webhook; w != nil && w.Enabled {
		channels = append(channels, &notify.Webhook{
			URL:     w.URL,
			Timeout: w.Timeout.Std(),
			Retries: w.Retries,
		})
	}

	composer, err := notify.NewComposer(prefix, n.Templates)
	if err != nil {
		return nil, nil, fmt.Errorf("notifications.templates: %w", err)
	}
	if len(channels) == 0 {
		return nil, composer, nil
	}
	return channels, composer, nil
}

// resolveCommand resolves a relative command path such as ./tools/flash
// against the configuration directory. Bare names are looked up in PATH.
func resolveCommand(cfg *config.Config, command string) string {
	if command == "" || filepath.IsAbs(command) || !strings.ContainsAny(command, `/\`) {
		return command
	}
	return cfg.ResolvePath(command)
}
