// Package archive stores campaign reports and artifacts on disk.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	hilerrors "github.com/AndreyAkinshin/hilrun/internal/errors"
	"github.com/AndreyAkinshin/hilrun/internal/logging"
	"github.com/AndreyAkinshin/hilrun/internal/model"
	"github.com/AndreyAkinshin/hilrun/internal/report"
)

// Archiver persists a campaign summary together with extra artifact
// files and returns the archive location.
type Archiver interface {
	Archive(ctx context.Context, summary model.CampaignSummary, artifacts []string) (string, error)
}

// ReportBaseName is the file name, without extension, of archived reports.
const ReportBaseName = "summary"

// FileArchiver writes reports into a directory under BasePath.
type FileArchiver struct {
	BasePath         string
	BaseDir          string // resolves relative BasePath and artifact patterns
	TimestampFolders bool   // one folder per run instead of overwriting
	Formats          []report.Format
	Artifacts        []string // glob patterns copied on every run

	now func() time.Time
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Dir returns the archive directory for a campaign. Timestamped folders
// carry milliseconds and the campaign ID so that runs never share one.
func (a *FileArchiver) Dir(summary model.CampaignSummary) string {
	name := unsafeChars.ReplaceAllString(summary.Name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "campaign"
	}
	if a.TimestampFolders {
		now := time.Now
		if a.now != nil {
			now = a.now
		}
		ts := summary.StartTime
		if ts.IsZero() {
			ts = now()
		}
		name += "_" + ts.Format("20060102_150405.000")
		if id := shortID(summary.ID); id != "" {
			name += "_" + id
		}
	}
	return filepath.Join(a.resolve(a.BasePath), name)
}

// shortID returns a file-name-safe prefix of a campaign ID.
func shortID(id string) string {
	id = strings.Trim(unsafeChars.ReplaceAllString(id, "_"), "_")
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}

// Archive writes one report per configured format and copies artifacts
// (configured patterns and the given paths) into an artifacts
// subdirectory. Reports are written even if an artifact cannot be copied;
// all failures are joined into the returned error.
func (a *FileArchiver) Archive(ctx context.Context, summary model.CampaignSummary, artifacts []string) (string, error) {
	log := logging.For(ctx, "Archive")
	dir := a.Dir(summary)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", hilerrors.WrapKind(hilerrors.KindArchive, err, "create archive directory")
	}

	var errs []error
	for _, f := range a.Formats {
		path := filepath.Join(dir, ReportBaseName+f.Extension())
		if err := writeReport(path, f, summary); err != nil {
			errs = append(errs, fmt.Errorf("write %s report: %w", f, err))
			continue
		}
		log.Debug("report written", "path", path)
	}

	files := a.expand(log, artifacts)
	if len(files) > 0 {
		artDir := filepath.Join(dir, "artifacts")
		if err := os.MkdirAll(artDir, 0o755); err != nil {
			errs = append(errs, err)
		} else {
			for _, src := range files {
				if err := copyFile(src, filepath.Join(artDir, filepath.Base(src))); err != nil {
					errs = append(errs, fmt.Errorf("copy artifact %s: %w", src, err))
				}
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return dir, hilerrors.WrapKind(hilerrors.KindArchive, err, "archive incomplete")
	}
	log.Info("campaign archived", "dir", dir, "reports", len(a.Formats), "artifacts", len(files))
	return dir, nil
}

// expand resolves configured patterns and explicit paths into a
// de-duplicated list of regular files.
func (a *FileArchiver) expand(log *slog.Logger, extra []string) []string {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() || seen[p] {
			return
		}
		seen[p] = true
		files = append(files, p)
	}
	for _, pattern := range a.Artifacts {
		matches, err := filepath.Glob(a.resolve(pattern))
		if err != nil {
			log.Warn("invalid artifact pattern", "pattern", pattern, "error", err)
			continue
		}
		if len(matches) == 0 {
			log.Warn("artifact pattern matched nothing", "pattern", pattern)
		}
		for _, m := range matches {
			add(m)
		}
	}
	for _, p := range extra {
		if p != "" {
			add(a.resolve(p))
		}
	}
	return files
}

func (a *FileArchiver) resolve(p string) string {
	if filepath.IsAbs(p) || a.BaseDir == "" {
		return p
	}
	return filepath.Join(a.BaseDir, p)
}

func writeReport(path string, f report.Format, summary model.CampaignSummary) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.Write(out, f, summary); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
