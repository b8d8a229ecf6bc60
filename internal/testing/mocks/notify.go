package mocks

import (
	"context"
	"sync"

	"github.com/AndreyAkinshin/hilrun/internal/model"
	"github.com/AndreyAkinshin/hilrun/internal/notify"
)

// Notification is one delivery recorded by Notifier.
type Notification struct {
	Kind    notify.Kind
	Payload notify.Payload
}

// Notifier implements notify.Notifier for testing.
type Notifier struct {
	err error

	mu   sync.Mutex
	sent []Notification
}

// NewNotifier creates a mock notifier that accepts every notification.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// WithError makes every Notify call fail after recording the notification.
func (n *Notifier) WithError(err error) *Notifier {
	n.err = err
	return n
}

func (n *Notifier) Notify(_ context.Context, kind notify.Kind, p notify.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Kind: kind, Payload: p})
	return n.err
}

// Sent returns a copy of the recorded notifications in order.
func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

// Archiver implements archive.Archiver for testing.
type Archiver struct {
	dir string
	err error

	mu        sync.Mutex
	summaries []model.CampaignSummary
	artifacts [][]string
}

// NewArchiver creates a mock archiver that reports dir as the archive
// location.
func NewArchiver(dir string) *Archiver {
	return &Archiver{dir: dir}
}

// WithError makes every Archive call fail.
func (a *Archiver) WithError(err error) *Archiver {
	a.err = err
	return a
}

func (a *Archiver) Archive(_ context.Context, summary model.CampaignSummary, artifacts []string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summaries = append(a.summaries, summary)
	a.artifacts = append(a.artifacts, append([]string(nil), artifacts...))
	if a.err != nil {
		return "", a.err
	}
	return a.dir, nil
}

// Summaries returns the archived summaries in order.
func (a *Archiver) Summaries() []model.CampaignSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.CampaignSummary, len(a.summaries))
	copy(out, a.summaries)
	return out
}

// Artifacts returns the artifact list passed to the nth Archive call.
func (a *Archiver) Artifacts(n int) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n < 0 || n >= len(a.artifacts) {
		return nil
	}
	return a.artifacts[n]
}
