// Package packages stages software packages (firmware images, test
// assets) from a source location such as a mounted network share into a
// local download directory.
package packages

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	hilerrors "github.com/AndreyAkinshin/hilrun/internal/errors"
	"github.com/AndreyAkinshin/hilrun/internal/logging"
	"github.com/AndreyAkinshin/hilrun/internal/model"
)

// Entry is one staged package.
type Entry struct {
	Name  string
	Path  string   // staged file, or staged directory for directory sources
	Files []string // every staged regular file, absolute
}

// Staged is the set of packages staged by one Stage call.
type Staged struct {
	Entries []Entry
}

// Lookup finds a staged file by package name, by base name of a staged
// package path, or by base name of any file inside a staged directory.
// Directory packages resolve by name only when they hold exactly one file.
func (s Staged) Lookup(ref string) (string, bool) {
	base := filepath.Base(ref)
	for _, e := range s.Entries {
		if e.Name == ref || filepath.Base(e.Path) == base {
			if len(e.Files) == 1 {
				return e.Files[0], true
			}
			if info, err := os.Stat(e.Path); err == nil && info.Mode().IsRegular() {
				return e.Path, true
			}
		}
	}
	for _, e := range s.Entries {
		for _, f := range e.Files {
			if filepath.Base(f) == base {
				return f, true
			}
		}
	}
	return "", false
}

// Stager copies packages into DownloadDir.
type Stager struct {
	DownloadDir string
	BaseDir     string // resolves relative sources and DownloadDir
}

// Stage copies every package in order. It stops at the first failure or
// when ctx is done between packages.
func (s *Stager) Stage(ctx context.Context, pkgs []model.Package) (Staged, error) {
	log := logging.For(ctx, "Packages")
	var staged Staged

	dest := s.resolve(s.DownloadDir)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return staged, hilerrors.WrapKind(hilerrors.KindEnvironment, err, "create download directory")
	}

	for _, p := range pkgs {
		if err := ctx.Err(); err != nil {
			return staged, hilerrors.Interrupted("package staging")
		}
		e, err := s.stageOne(p, dest)
		if err != nil {
			log.Error("package staging failed", "package", p.Name, "error", err)
			return staged, hilerrors.WrapKind(hilerrors.KindEnvironment, err, fmt.Sprintf("stage package %s", p.Name))
		}
		log.Info("package staged", "package", p.Name, "path", e.Path, "files", len(e.Files))
		staged.Entries = append(staged.Entries, e)
	}
	return staged, nil
}

func (s *Stager) stageOne(p model.Package, dest string) (Entry, error) {
	src := s.resolve(p.Source)
	info, err := os.Stat(src)
	if err != nil {
		return Entry{}, fmt.Errorf("source not accessible: %w", err)
	}

	e := Entry{Name: p.Name}
	if info.IsDir() {
		if p.SHA256 != "" {
			return Entry{}, fmt.Errorf("sha256 verification needs a file source, %s is a directory", src)
		}
		e.Path = filepath.Join(dest, p.Name)
		if err := os.RemoveAll(e.Path); err != nil {
			return Entry{}, err
		}
		e.Files, err = copyTree(src, e.Path)
		if err != nil {
			return Entry{}, err
		}
		if len(e.Files) == 0 {
			return Entry{}, fmt.Errorf("source directory %s is empty", src)
		}
		return e, nil
	}

	if info.Size() == 0 {
		return Entry{}, fmt.Errorf("source file %s is empty", src)
	}
	e.Path = filepath.Join(dest, filepath.Base(src))
	sum, err := copyFile(src, e.Path)
	if err != nil {
		return Entry{}, err
	}
	if p.SHA256 != "" && !strings.EqualFold(sum, p.SHA256) {
		os.Remove(e.Path)
		return Entry{}, fmt.Errorf("sha256 mismatch: got %s, want %s", sum, strings.ToLower(p.SHA256))
	}
	e.Files = []string{e.Path}
	return e, nil
}

func (s *Stager) resolve(p string) string {
	if filepath.IsAbs(p) || s.BaseDir == "" {
		return p
	}
	return filepath.Join(s.BaseDir, p)
}

func copyTree(src, dst string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, err := copyFile(path, target); err != nil {
			return err
		}
		files = append(files, target)
		return nil
	})
	return files, err
}

// copyFile copies src to dst and returns the hex sha256 of the content.
func copyFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
