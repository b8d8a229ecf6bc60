// Package extenv defines how hilrun drives the external test environment
// (for example a CANoe bench) and provides a process bridge adapter.
package extenv

import (
	"context"
	"errors"

	"github.com/AndreyAkinshin/hilrun/internal/model"
)

// Handle identifies a loaded environment inside the automation.
type Handle string

// Automation is the narrow interface to the external test environment.
// Implementations must tolerate Release being called after a failed or
// timed-out Dispatch.
type Automation interface {
	// Load opens the environment definition at path.
	Load(ctx context.Context, path string) (Handle, error)
	// Dispatch runs one external test case inside a loaded environment.
	Dispatch(ctx context.Context, h Handle, tc model.TestCase) (model.Outcome, error)
	// Release closes a loaded environment.
	Release(ctx context.Context, h Handle) error
}

// ErrNoBridge is returned by Unconfigured for every operation.
var ErrNoBridge = errors.New("no environment bridge configured (set environment.bridge.command)")

// Unconfigured is the Automation used when no bridge is configured. Every
// environment fails to load; native cases still run where no environment
// is needed.
type Unconfigured struct{}

func (Unconfigured) Load(context.Context, string) (Handle, error) {
	return "", ErrNoBridge
}

func (Unconfigured) Dispatch(context.Context, Handle, model.TestCase) (model.Outcome, error) {
	return model.Outcome{}, ErrNoBridge
}

func (Unconfigured) Release(context.Context, Handle) error {
	return nil
}
