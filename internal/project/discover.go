package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EnvironmentExtensions lists the file extensions recognized as environment
// definitions when a configured path names a directory.
var EnvironmentExtensions = []string{".tse", ".cfg"}

// ExpandEnvironments turns configured environment entries into concrete
// definition files. An entry may be a file, a glob pattern, or a directory,
// which contributes its environment files in name order. Entries keep
// their configured order; a file named twice runs twice.
func ExpandEnvironments(entries []string) ([]string, error) {
	var out []string
	add := func(p string) { out = append(out, p) }

	for _, entry := range entries {
		if strings.ContainsAny(entry, "*?[") {
			matches, err := filepath.Glob(entry)
			if err != nil {
				return nil, fmt.Errorf("environment pattern %q: %w", entry, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("environment pattern %q matched no files", entry)
			}
			sort.Strings(matches)
			for _, m := range matches {
				add(m)
			}
			continue
		}

		info, err := os.Stat(entry)
		if err != nil || !info.IsDir() {
			// Missing files are kept: the executor records them as
			// failed environments rather than aborting the campaign.
			add(entry)
			continue
		}
		found, err := discoverEnvironments(entry)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("environment directory %q contains no environment files", entry)
		}
		for _, f := range found {
			add(f)
		}
	}
	return out, nil
}

func discoverEnvironments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read environment directory %q: %w", dir, err)
	}
	var found []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if isEnvironmentFile(e.Name()) {
			found = append(found, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(found)
	return found, nil
}

func isEnvironmentFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range EnvironmentExtensions {
		if ext == want {
			return true
		}
	}
	return false
}
