// Package notify sends campaign notifications by email and chat webhook.
package notify

import (
	"context"
	"errors"
	"fmt"

	hilerrors "github.com/AndreyAkinshin/hilrun/internal/errors"
	"github.com/AndreyAkinshin/hilrun/internal/logging"
)

// Kind classifies a notification.
type Kind string

const (
	KindSuccess Kind = "success" // campaign completed without failures
	KindFailure Kind = "failure" // campaign completed with failures, or aborted
	KindCustom  Kind = "custom"  // free-form message, e.g. a channel test
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindSuccess || k == KindFailure || k == KindCustom
}

// Payload is a rendered notification.
type Payload struct {
	Subject string
	Body    string         // plain text
	HTML    string         // optional HTML body, used by email
	Data    map[string]any // values the body was rendered from
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, p Payload) error
}

// Multi fans a notification out to every notifier. One failing channel
// does not stop the others.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, kind Kind, p Payload) error {
	log := logging.For(ctx, "Notify")
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, kind, p); err != nil {
			log.Warn("notification channel failed", "channel", fmt.Sprintf("%T", n), "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return hilerrors.WrapKind(hilerrors.KindNotification, err, "notification failed")
	}
	return nil
}
