// Package target decides which test-case group an environment definition
// targets, based on marker substrings in its file name.
package target

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AndreyAkinshin/hilrun/internal/model"
)

// Rule maps a marker in an environment file name to a test-case group.
type Rule struct {
	Marker string
	Group  string
}

// Resolution is the outcome of resolving a group for one environment.
type Resolution struct {
	Group    string   // resolved group name, model.DefaultGroup on fallback
	Marker   string   // marker of the matching rule, empty on fallback
	Warnings []string // rules that matched but named a missing group
}

// Resolver evaluates rules in order. The first rule whose marker occurs in
// the environment's base file name (without extension, case insensitive)
// and whose group exists in the task configuration wins.
type Resolver struct {
	rules []Rule
}

// NewResolver creates a resolver over a copy of rules.
func NewResolver(rules []Rule) *Resolver {
	return &Resolver{rules: append([]Rule(nil), rules...)}
}

// Rules returns the resolver's rules in evaluation order.
func (r *Resolver) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Resolve picks the group for the environment at path.
func (r *Resolver) Resolve(path string, task *model.TaskConfig) Resolution {
	name := StemOf(path)
	var res Resolution
	for _, rule := range r.rules {
		if rule.Marker == "" || !strings.Contains(name, strings.ToLower(rule.Marker)) {
			continue
		}
		if !task.HasGroup(rule.Group) {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("marker %q matched %s but group %s is not defined in the task configuration", rule.Marker, filepath.Base(path), rule.Group))
			continue
		}
		res.Group = rule.Group
		res.Marker = rule.Marker
		return res
	}
	res.Group = model.DefaultGroup
	return res
}

// StemOf returns the lower-cased base name of path without its extension.
// Both slash and backslash separators are accepted so that environment
// paths written on Windows rigs resolve the same way everywhere.
func StemOf(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(base)
}
