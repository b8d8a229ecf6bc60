package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	hilerrors "github.com/AndreyAkinshin/hilrun/internal/errors"
	"github.com/AndreyAkinshin/hilrun/internal/logging"
)

// Webhook posts notifications to a chat robot webhook as
// {"msgtype":"text","text":{"content":...}}.
type Webhook struct {
	URL        string
	Timeout    time.Duration
	Retries    int
	RetryWait  time.Duration // minimum wait between retries; zero uses the client default
	HTTPClient *http.Client  // optional base client
}

type webhookMessage struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// Notify implements Notifier. Connection errors and 5xx responses are
// retried; any non-2xx final response is an error.
func (w *Webhook) Notify(ctx context.Context, kind Kind, p Payload) error {
	log := logging.For(ctx, "Webhook")
	content := p.Subject
	if p.Body != "" {
		content += "\n" + p.Body
	}
	body, err := json.Marshal(webhookMessage{MsgType: "text", Text: webhookText{Content: content}})
	if err != nil {
		return err
	}

	client := retryablehttp.NewClient()
	client.Logger = log
	client.RetryMax = w.Retries
	if w.RetryWait > 0 {
		client.RetryWaitMin = w.RetryWait
		client.RetryWaitMax = 4 * w.RetryWait
	}
	if w.HTTPClient != nil {
		base := *w.HTTPClient
		client.HTTPClient = &base
	}
	if w.Timeout > 0 {
		client.HTTPClient.Timeout = w.Timeout
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.URL, body)
	if err != nil {
		return hilerrors.WrapKind(hilerrors.KindNotification, err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return hilerrors.WrapKind(hilerrors.KindNotification, err, "post webhook")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return hilerrors.WrapKind(hilerrors.KindNotification,
			fmt.Errorf("status %d: %s", resp.StatusCode, snippet), "post webhook")
	}
	log.Info("webhook notification sent", "kind", kind)
	return nil
}
