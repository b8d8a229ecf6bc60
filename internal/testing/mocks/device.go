package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Device implements flash.Device for testing. Flash results are consumed
// in order; once the sequence is exhausted every further attempt succeeds.
type Device struct {
	backupPath string
	backupErr  error
	restoreErr error
	flashErrs  []error
	delay      time.Duration

	mu        sync.Mutex
	flashed   []string
	backups   int
	restores  []string
	closeCall atomic.Int32
}

// NewDevice creates a mock device whose backups are saved to backupPath.
func NewDevice(backupPath string) *Device {
	return &Device{backupPath: backupPath}
}

// WithFlashErrors queues results for successive flash attempts. A nil
// entry is a successful attempt.
func (d *Device) WithFlashErrors(errs ...error) *Device {
	d.flashErrs = append(d.flashErrs, errs...)
	return d
}

// WithBackupError makes Backup fail.
func (d *Device) WithBackupError(err error) *Device {
	d.backupErr = err
	return d
}

// WithRestoreError makes Restore fail.
func (d *Device) WithRestoreError(err error) *Device {
	d.restoreErr = err
	return d
}

// WithDelay makes every flash attempt block for delay or until its
// context is done.
func (d *Device) WithDelay(delay time.Duration) *Device {
	d.delay = delay
	return d
}

func (d *Device) Backup(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backups++
	if d.backupErr != nil {
		return "", d.backupErr
	}
	return d.backupPath, nil
}

func (d *Device) Flash(ctx context.Context, artifact string) error {
	d.mu.Lock()
	n := len(d.flashed)
	d.flashed = append(d.flashed, artifact)
	var err error
	if n < len(d.flashErrs) {
		err = d.flashErrs[n]
	}
	delay := d.delay
	d.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

func (d *Device) Restore(_ context.Context, backupPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restores = append(d.restores, backupPath)
	return d.restoreErr
}

// Close implements io.Closer.
func (d *Device) Close() error {
	d.closeCall.Add(1)
	return nil
}

// FlashCount returns the number of flash attempts.
func (d *Device) FlashCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.flashed)
}

// BackupCount returns the number of backups taken.
func (d *Device) BackupCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backups
}

// Restores returns the backup paths passed to Restore.
func (d *Device) Restores() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.restores...)
}

// CloseCount returns how many times Close was called.
func (d *Device) CloseCount() int {
	return int(d.closeCall.Load())
}

// Flashed returns the artifacts passed to Flash, one per attempt.
func (d *Device) Flashed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.flashed...)
}
