// Package flash writes firmware artifacts to the device under test with
// bounded retries, backing up the device configuration first and restoring
// it when every attempt fails.
package flash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	hilerrors "github.com/AndreyAkinshin/hilrun/internal/errors"
	"github.com/AndreyAkinshin/hilrun/internal/logging"
	"github.com/AndreyAkinshin/hilrun/internal/model"
)

// Device is the flashing collaborator. A Device that also implements
// io.Closer is closed when Flash returns.
type Device interface {
	// Backup saves the current device state and returns where it was saved.
	Backup(ctx context.Context) (string, error)
	// Flash writes the artifact to the device.
	Flash(ctx context.Context, artifact string) error
	// Restore brings back the state saved by Backup.
	Restore(ctx context.Context, backupPath string) error
}

// Options configures a Controller.
type Options struct {
	AllowedExtensions []string      // lower-case, with leading dot
	RetryInterval     time.Duration // constant pause between attempts
}

// Controller runs the flash state machine.
type Controller struct {
	device Device
	opts   Options
}

// New creates a Controller.
func New(device Device, opts Options) *Controller {
	return &Controller{device: device, opts: opts}
}

// Flash validates the artifact, backs up the device, and tries to flash up
// to maxRetries times with a per-attempt timeout. When every attempt fails
// the backup is restored and a flash error is returned; if the restore also
// fails the error kind is KindFlashRestore.
//
// The stop signal carried by ctx ends the retry loop between attempts but
// never interrupts a running attempt, backup or restore.
func (c *Controller) Flash(ctx context.Context, artifact string, maxRetries int, timeout time.Duration) (model.FlashOutcome, error) {
	log := logging.For(ctx, "Flash")
	outcome := model.FlashOutcome{Artifact: artifact}

	if closer, ok := c.device.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Warn("failed to release flash device", "error", err)
			}
		}()
	}

	if err := c.checkArtifact(artifact); err != nil {
		return outcome, hilerrors.WrapKind(hilerrors.KindFlash, err, "invalid flash artifact")
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	backupCtx, cancel := detached(ctx, timeout)
	backupPath, err := c.device.Backup(backupCtx)
	cancel()
	if err != nil {
		return outcome, hilerrors.WrapKind(hilerrors.KindFlash, err, "device backup failed, not flashing")
	}
	outcome.BackupPath = backupPath
	log.Info("device backed up", "backup", backupPath)

	var lastErr error
	for n := 1; n <= maxRetries; n++ {
		attempt := model.FlashAttempt{Number: n, BackupPath: backupPath, Status: model.AttemptInProgress}
		log.Info("flash attempt", "attempt", n, "of", maxRetries, "artifact", artifact)

		attemptCtx, cancel := detached(ctx, timeout)
		err := c.device.Flash(attemptCtx, artifact)
		if err == nil && attemptCtx.Err() != nil {
			err = attemptCtx.Err()
		}
		cancel()

		if err == nil {
			attempt.Status = model.AttemptSucceeded
			outcome.Attempts = append(outcome.Attempts, attempt)
			outcome.Succeeded = true
			log.Info("flash succeeded", "attempt", n)
			return outcome, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		attempt.Status = model.AttemptFailed
		attempt.Error = err.Error()
		outcome.Attempts = append(outcome.Attempts, attempt)
		lastErr = err
		log.Warn("flash attempt failed", "attempt", n, "error", err)

		if n == maxRetries {
			break
		}
		if !c.pause(ctx) {
			log.Warn("stop requested, abandoning remaining flash attempts")
			break
		}
	}

	flashErr := hilerrors.Flash(len(outcome.Attempts), lastErr)

	restoreCtx, cancel := detached(ctx, timeout)
	defer cancel()
	if err := c.device.Restore(restoreCtx, backupPath); err != nil {
		log.Error("backup restore failed", "backup", backupPath, "error", err)
		return outcome, hilerrors.FlashRestore(flashErr, err)
	}
	outcome.Restored = true
	log.Info("device backup restored", "backup", backupPath)
	return outcome, flashErr
}

// pause waits RetryInterval. It returns false when ctx is done.
func (c *Controller) pause(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if c.opts.RetryInterval <= 0 {
		return true
	}
	t := time.NewTimer(c.opts.RetryInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Controller) checkArtifact(path string) error {
	if path == "" {
		return errors.New("no artifact path given")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	if len(c.opts.AllowedExtensions) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range c.opts.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return fmt.Errorf("%s has extension %q, expected one of %s", path, ext, strings.Join(c.opts.AllowedExtensions, ", "))
}

// detached returns a context that ignores cancellation of parent but
// carries its values and the given timeout.
func detached(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(parent)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
