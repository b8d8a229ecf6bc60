// Package native runs native test cases: functions compiled into hilrun and
// looked up by name.
package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/AndreyAkinshin/hilrun/internal/model"
)

// Func executes a native test case.
type Func func(ctx context.Context, tc model.TestCase, env Env) (model.Outcome, error)

// Env is the execution context handed to native functions.
type Env struct {
	// BaseDir resolves relative test_file and path parameters.
	BaseDir string
}

// Resolve returns p resolved against BaseDir unless it is absolute.
func (e Env) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || e.BaseDir == "" {
		return p
	}
	return filepath.Join(e.BaseDir, p)
}

// Registry maps function names to implementations.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
	env   Env
}

// NewRegistry creates a registry with the built-in functions registered.
func NewRegistry(env Env) *Registry {
	r := &Registry{funcs: make(map[string]Func), env: env}
	r.Register("command", Command)
	r.Register("file_exists", FileExists)
	return r
}

// Register adds or replaces a function.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs a native test case.
func (r *Registry) Invoke(ctx context.Context, tc model.TestCase) (model.Outcome, error) {
	if tc.Native == nil {
		return model.Outcome{}, fmt.Errorf("test case %q is not a native case", tc.Name)
	}
	r.mu.RLock()
	fn, ok := r.funcs[tc.Native.Function]
	r.mu.RUnlock()
	if !ok {
		return model.Outcome{}, fmt.Errorf("unknown native function %q (available: %s)",
			tc.Native.Function, strings.Join(r.Names(), ", "))
	}
	return fn(ctx, tc, r.env)
}

// Command runs test_file as an executable with the "args" parameter. Exit
// code 0 is PASS, any other exit code is FAIL. Failure to start the
// executable is an error.
func Command(ctx context.Context, tc model.TestCase, env Env) (model.Outcome, error) {
	args, err := stringList(tc.Parameters["args"])
	if err != nil {
		return model.Outcome{}, fmt.Errorf("parameter args: %w", err)
	}

	path := env.Resolve(tc.Native.File)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = env.BaseDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	details := map[string]any{
		"stdout": tail(stdout.String()),
		"stderr": tail(stderr.String()),
	}
	if ctx.Err() != nil {
		return model.Outcome{}, ctx.Err()
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		details["exit_code"] = 0
		return model.Outcome{Status: model.StatusPass, Details: details}, nil
	case errors.As(runErr, &exitErr):
		details["exit_code"] = exitErr.ExitCode()
		return model.Outcome{
			Status:  model.StatusFail,
			Message: fmt.Sprintf("%s exited with code %d", filepath.Base(path), exitErr.ExitCode()),
			Details: details,
		}, nil
	default:
		return model.Outcome{}, fmt.Errorf("run %s: %w", path, runErr)
	}
}

// FileExists passes when the "path" parameter (or test_file when absent)
// names an existing file.
func FileExists(_ context.Context, tc model.TestCase, env Env) (model.Outcome, error) {
	p, _ := tc.Parameters["path"].(string)
	if p == "" {
		p = tc.Native.File
	}
	p = env.Resolve(p)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return model.Outcome{Status: model.StatusFail, Message: fmt.Sprintf("%s does not exist", p)}, nil
		}
		return model.Outcome{}, err
	}
	return model.Outcome{Status: model.StatusPass, Details: map[string]any{"path": p}}, nil
}

func stringList(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.Fields(val), nil
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a string or list, got %T", v)
	}
}

// tail keeps the last 4 KiB of captured output.
func tail(s string) string {
	const max = 4096
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
