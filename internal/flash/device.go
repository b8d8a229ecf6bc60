package flash

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ArtifactPlaceholder is replaced by the artifact path in flash tool
// arguments. When no argument contains it the path is appended.
const ArtifactPlaceholder = "{artifact}"

// CommandDevice flashes by running an external flash tool and backs up a
// device configuration file by copying it.
type CommandDevice struct {
	Tool         string
	Args         []string
	WorkDir      string
	DeviceConfig string // file to back up and restore; optional
	BackupDir    string

	now func() time.Time
}

// Backup copies DeviceConfig into BackupDir. Without a DeviceConfig there
// is nothing to save and the returned path is empty.
func (d *CommandDevice) Backup(_ context.Context) (string, error) {
	if d.DeviceConfig == "" {
		return "", nil
	}
	if err := os.MkdirAll(d.BackupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	now := time.Now
	if d.now != nil {
		now = d.now
	}
	name := fmt.Sprintf("%s.%s.bak", filepath.Base(d.DeviceConfig), now().Format("20060102-150405.000"))
	dst := filepath.Join(d.BackupDir, name)
	if err := copyFile(d.DeviceConfig, dst); err != nil {
		return "", fmt.Errorf("back up %s: %w", d.DeviceConfig, err)
	}
	return dst, nil
}

// Flash runs the flash tool.
func (d *CommandDevice) Flash(ctx context.Context, artifact string) error {
	if d.Tool == "" {
		return fmt.Errorf("no flash tool configured")
	}
	args := make([]string, 0, len(d.Args)+1)
	substituted := false
	for _, a := range d.Args {
		if strings.Contains(a, ArtifactPlaceholder) {
			a = strings.ReplaceAll(a, ArtifactPlaceholder, artifact)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, artifact)
	}

	cmd := exec.CommandContext(ctx, d.Tool, args...)
	cmd.Dir = d.WorkDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(out.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", filepath.Base(d.Tool), err, msg)
		}
		return fmt.Errorf("%s: %w", filepath.Base(d.Tool), err)
	}
	return nil
}

// Restore copies the backup over DeviceConfig. An empty backup path means
// nothing was saved and restore is a no-op.
func (d *CommandDevice) Restore(_ context.Context, backupPath string) error {
	if backupPath == "" {
		return nil
	}
	if d.DeviceConfig == "" {
		return fmt.Errorf("backup %s exists but no device config is configured", backupPath)
	}
	if err := copyFile(backupPath, d.DeviceConfig); err != nil {
		return fmt.Errorf("restore %s: %w", d.DeviceConfig, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
