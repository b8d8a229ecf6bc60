// Package mocks provides shared test doubles for hilrun packages.
package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AndreyAkinshin/hilrun/internal/extenv"
	"github.com/AndreyAkinshin/hilrun/internal/model"
)

// Call records one invocation on a mock.
type Call struct {
	Op     string // "load", "dispatch", "release"
	Path   string
	Handle extenv.Handle
	Case   string
}

// Automation implements extenv.Automation for testing.
// Use NewAutomation() to create instances with a fluent builder API.
//
// By default every load succeeds with handle "h<N>:<path>", every dispatch
// passes and every release succeeds.
type Automation struct {
	loadErrs    map[string]error
	outcomes    map[string]model.Outcome
	dispatchErr map[string]error
	releaseErr  error

	// DispatchFunc, when set, replaces the default dispatch behavior.
	DispatchFunc func(ctx context.Context, h extenv.Handle, tc model.TestCase) (model.Outcome, error)
	// LoadFunc, when set, replaces the default load behavior.
	LoadFunc func(ctx context.Context, path string) (extenv.Handle, error)

	mu    sync.Mutex
	calls []Call
	loads int
	open  map[extenv.Handle]bool
}

// NewAutomation creates a new mock automation.
func NewAutomation() *Automation {
	return &Automation{
		loadErrs:    make(map[string]error),
		outcomes:    make(map[string]model.Outcome),
		dispatchErr: make(map[string]error),
		open:        make(map[extenv.Handle]bool),
	}
}

// WithLoadError makes loading path fail.
func (m *Automation) WithLoadError(path string, err error) *Automation {
	m.loadErrs[path] = err
	return m
}

// WithOutcome sets the outcome reported for the named case.
func (m *Automation) WithOutcome(caseName string, out model.Outcome) *Automation {
	m.outcomes[caseName] = out
	return m
}

// WithStatus is WithOutcome with only a status.
func (m *Automation) WithStatus(caseName string, status model.Status) *Automation {
	return m.WithOutcome(caseName, model.Outcome{Status: status})
}

// WithDispatchError makes dispatching the named case fail.
func (m *Automation) WithDispatchError(caseName string, err error) *Automation {
	m.dispatchErr[caseName] = err
	return m
}

// WithReleaseError makes every release fail.
func (m *Automation) WithReleaseError(err error) *Automation {
	m.releaseErr = err
	return m
}

// extenv.Automation interface implementation

func (m *Automation) Load(ctx context.Context, path string) (extenv.Handle, error) {
	m.record(Call{Op: "load", Path: path})
	if m.LoadFunc != nil {
		h, err := m.LoadFunc(ctx, path)
		if err == nil {
			m.mu.Lock()
			m.open[h] = true
			m.mu.Unlock()
		}
		return h, err
	}
	if err, ok := m.loadErrs[path]; ok {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	h := extenv.Handle(fmt.Sprintf("h%d:%s", m.loads, path))
	m.open[h] = true
	return h, nil
}

func (m *Automation) Dispatch(ctx context.Context, h extenv.Handle, tc model.TestCase) (model.Outcome, error) {
	m.record(Call{Op: "dispatch", Handle: h, Case: tc.Name})
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, h, tc)
	}
	if err, ok := m.dispatchErr[tc.Name]; ok {
		return model.Outcome{}, err
	}
	if out, ok := m.outcomes[tc.Name]; ok {
		return out, nil
	}
	return model.Outcome{Status: model.StatusPass}, nil
}

func (m *Automation) Release(ctx context.Context, h extenv.Handle) error {
	m.record(Call{Op: "release", Handle: h})
	m.mu.Lock()
	if !m.open[h] {
		m.mu.Unlock()
		return errors.New("release of unknown handle " + string(h))
	}
	delete(m.open, h)
	m.mu.Unlock()
	return m.releaseErr
}

func (m *Automation) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

// Test inspection methods

// Calls returns a copy of all recorded calls in order.
func (m *Automation) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Call, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallsOf returns the recorded calls with the given op.
func (m *Automation) CallsOf(op string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// OpenHandles returns the number of loaded but unreleased environments.
func (m *Automation) OpenHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}
