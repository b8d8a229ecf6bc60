package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/AndreyAkinshin/hilrun/internal/aggregate"
	hilerrors "github.com/AndreyAkinshin/hilrun/internal/errors"
	"github.com/AndreyAkinshin/hilrun/internal/model"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func campaign(statuses ...model.Status) model.CampaignSummary {
	var results []model.TestResult
	for i, s := range statuses {
		results = append(results, model.TestResult{
			TestName:  "case" + string(rune('A'+i)),
			Status:    s,
			StartTime: t0,
			EndTime:   t0.Add(time.Second),
		})
	}
	c := aggregate.Reduce([]model.EnvironmentRunSummary{
		aggregate.Summarize(model.EnvironmentID{Index: 1, Path: "/rigs/Test_Can.tse"}, "testcases_Can", results),
	})
	c.Name = "Nightly"
	c.StartTime = t0
	c.EndTime = t0.Add(2 * time.Second)
	return c
}

func TestComposer_Completion(t *testing.T) {
	c, err := NewComposer("[HIL]", nil)
	if err != nil {
		t.Fatal(err)
	}

	kind, p, err := c.Completion(campaign(model.StatusPass, model.StatusPass))
	if err != nil {
		t.Fatal(err)
	}
	if kind != KindSuccess {
		t.Errorf("kind = %v, want success", kind)
	}
	if p.Subject != "[HIL] Test Result: Nightly PASSED (100.0%)" {
		t.Errorf("Subject = %q", p.Subject)
	}
	for _, want := range []string{"all 2 test case(s) passed", "Test_Can [testcases_Can]: 2/2 passed"} {
		if !strings.Contains(p.Body, want) {
			t.Errorf("Body missing %q:\n%s", want, p.Body)
		}
	}
	if !strings.Contains(p.HTML, "<html>") {
		t.Error("HTML body not rendered")
	}

	kind, p, err = c.Completion(campaign(model.StatusPass, model.StatusError, model.StatusFail))
	if err != nil {
		t.Fatal(err)
	}
	if kind != KindFailure || !strings.Contains(p.Subject, "FAILED (33.3%)") {
		t.Errorf("kind = %v, subject = %q", kind, p.Subject)
	}
	for _, want := range []string{"finished with failures: 1/3 passed", "- Test_Can: caseB", "- Test_Can: caseC"} {
		if !strings.Contains(p.Body, want) {
			t.Errorf("Body missing %q:\n%s", want, p.Body)
		}
	}
	if got := p.Data["FailedCases"].([]string); len(got) != 2 {
		t.Errorf("Data[FailedCases] = %v", got)
	}
}

func TestComposer_Interrupted(t *testing.T) {
	c, _ := NewComposer("", nil)
	s := campaign(model.StatusPass)
	s.Interrupted = true
	s.TotalEnvironments = 3
	kind, p, err := c.Completion(s)
	if err != nil {
		t.Fatal(err)
	}
	if kind != KindFailure || !strings.Contains(p.Subject, "INTERRUPTED") {
		t.Errorf("kind = %v, subject = %q", kind, p.Subject)
	}
	if !strings.Contains(p.Body, "interrupted after 1 of 3 environment(s)") {
		t.Errorf("Body = %q", p.Body)
	}
}

func TestComposer_Abort(t *testing.T) {
	c, _ := NewComposer("[HIL]", nil)
	kind, p, err := c.Abort("Nightly", "FLASHED", errors.New("no ack from ECU"), t0)
	if err != nil {
		t.Fatal(err)
	}
	if kind != KindFailure {
		t.Errorf("kind = %v", kind)
	}
	if p.Subject != "[HIL] Error: Nightly aborted during FLASHED" {
		t.Errorf("Subject = %q", p.Subject)
	}
	want := "Nightly aborted during FLASHED at 2024-03-01T10:00:00Z.\nReason: no ack from ECU"
	if p.Body != want {
		t.Errorf("Body = %q, want %q", p.Body, want)
	}
	if p.Data["Stage"] != "FLASHED" || p.Data["Timestamp"] != "2024-03-01T10:00:00Z" {
		t.Errorf("Data = %v", p.Data)
	}
}

func TestComposer_Overrides(t *testing.T) {
	c, err := NewComposer("", map[string]string{
		"success": `{{ .Name | upper }} ok {{ .Passed }}/{{ .Total }}`,
		"custom":  `>> {{ .Message | trim }}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, p, _ := c.Completion(campaign(model.StatusPass))
	if p.Body != "NIGHTLY ok 1/1" {
		t.Errorf("Body = %q", p.Body)
	}
	_, p, _ = c.Custom("", "ping", "  hello  ")
	if p.Body != ">> hello" || p.Subject != "ping" {
		t.Errorf("Custom = %+v", p)
	}

	if _, err := NewComposer("", map[string]string{"weekly": "x"}); err == nil {
		t.Error("NewComposer() expected error for unknown kind")
	}
	if _, err := NewComposer("", map[string]string{"failure": "{{ .Name "}); err == nil {
		t.Error("NewComposer() expected parse error")
	}
}

type recorder struct {
	err   error
	calls int
}

func (r *recorder) Notify(context.Context, Kind, Payload) error {
	r.calls++
	return r.err
}

func TestMulti(t *testing.T) {
	a, b, c := &recorder{}, &recorder{err: errors.New("smtp down")}, &recorder{}
	err := Multi{a, b, c}.Notify(context.Background(), KindSuccess, Payload{})
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Errorf("calls = %d/%d/%d, want every channel attempted", a.calls, b.calls, c.calls)
	}
	if hilerrors.KindOf(err) != hilerrors.KindNotification || !strings.Contains(err.Error(), "smtp down") {
		t.Errorf("err = %v", err)
	}
	if err := (Multi{}).Notify(context.Background(), KindSuccess, Payload{}); err != nil {
		t.Errorf("empty Multi error = %v", err)
	}
}

func TestWebhook(t *testing.T) {
	var got webhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("request = %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &got); err != nil {
			t.Errorf("body %q: %v", data, err)
		}
		w.Write([]byte(`{"errcode":0}`))
	}))
	defer srv.Close()

	w := &Webhook{URL: srv.URL, Timeout: time.Second}
	if err := w.Notify(context.Background(), KindSuccess, Payload{Subject: "subj", Body: "line"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if got.MsgType != "text" || got.Text.Content != "subj\nline" {
		t.Errorf("message = %+v", got)
	}
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := &Webhook{URL: srv.URL, Retries: 3, RetryWait: time.Millisecond}
	if err := w.Notify(context.Background(), KindFailure, Payload{Subject: "s"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestWebhook_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusForbidden)
	}))
	defer srv.Close()

	w := &Webhook{URL: srv.URL, Retries: 2, RetryWait: time.Millisecond}
	err := w.Notify(context.Background(), KindFailure, Payload{Subject: "s"})
	if hilerrors.KindOf(err) != hilerrors.KindNotification || !strings.Contains(err.Error(), "403") {
		t.Errorf("err = %v", err)
	}
}

// rendered returns the wire form of m.
func rendered(t *testing.T, m *mail.Msg) string {
	t.Helper()
	var b strings.Builder
	if _, err := m.WriteTo(&b); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	return b.String()
}

func TestEmail(t *testing.T) {
	var got *mail.Msg
	var hasDeadline bool
	e := &Email{
		Host:       "smtp.example.com",
		Port:       587,
		Username:   "bot",
		Password:   "secret",
		From:       "hil@example.com",
		Recipients: []string{"a@example.com", "b@example.com"},
		send: func(ctx context.Context, m *mail.Msg) error {
			got = m
			_, hasDeadline = ctx.Deadline()
			return nil
		},
		now: func() time.Time { return t0 },
	}

	err := e.Notify(context.Background(), KindSuccess, Payload{Subject: "Test Result", Body: "line1\nline2"})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if !hasDeadline {
		t.Error("send called without a deadline")
	}
	msg := rendered(t, got)
	for _, want := range []string{
		"a@example.com",
		"b@example.com",
		"hil@example.com",
		"Subject: Test Result",
		"text/plain",
		"X-Hilrun-Kind: success",
		"line1",
		"line2",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestEmail_HTMLAndErrors(t *testing.T) {
	var got *mail.Msg
	e := &Email{
		Host:       "localhost",
		Port:       25,
		From:       "hil@example.com",
		Recipients: []string{"a@example.com"},
		send: func(_ context.Context, m *mail.Msg) error {
			got = m
			return errors.New("421 service not available")
		},
	}
	err := e.Notify(context.Background(), KindFailure, Payload{Subject: "s", Body: "b", HTML: "<p>hi</p>"})
	if hilerrors.KindOf(err) != hilerrors.KindNotification {
		t.Errorf("KindOf(%v) = %v", err, hilerrors.KindOf(err))
	}
	msg := rendered(t, got)
	if !strings.Contains(msg, "text/html") || !strings.Contains(msg, "<p>hi</p>") || !strings.Contains(msg, "text/plain") {
		t.Errorf("message = %s", msg)
	}
}

func TestEmail_InvalidSender(t *testing.T) {
	e := &Email{
		From:       "not an address",
		Recipients: []string{"a@example.com"},
		send: func(context.Context, *mail.Msg) error {
			t.Error("send called with an invalid sender")
			return nil
		},
	}
	err := e.Notify(context.Background(), KindSuccess, Payload{Subject: "s", Body: "b"})
	if hilerrors.KindOf(err) != hilerrors.KindNotification {
		t.Errorf("KindOf(%v) = %v", err, hilerrors.KindOf(err))
	}
}

func TestEmail_SilentRelayTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()
	var conns []net.Conn
	var mu sync.Mutex
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	}()

	e := &Email{
		Host:       "127.0.0.1",
		Port:       ln.Addr().(*net.TCPAddr).Port,
		From:       "hil@example.com",
		Recipients: []string{"a@example.com"},
		Timeout:    200 * time.Millisecond,
	}
	done := make(chan error, 1)
	go func() {
		done <- e.Notify(context.WithoutCancel(context.Background()), KindFailure, Payload{Subject: "s", Body: "b"})
	}()
	select {
	case err := <-done:
		if hilerrors.KindOf(err) != hilerrors.KindNotification {
			t.Errorf("Notify() error = %v, want a notification error", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Notify() still blocked on a relay that never greets")
	}
}

func TestEmail_NoRecipients(t *testing.T) {
	e := &Email{send: func(context.Context, *mail.Msg) error {
		t.Error("send called without recipients")
		return nil
	}}
	if err := e.Notify(context.Background(), KindSuccess, Payload{}); err != nil {
		t.Errorf("Notify() error = %v", err)
	}
}

func TestParseRecipients(t *testing.T) {
	got, err := ParseRecipients(" a@x.com ", []string{"b@x.com", "A@x.com", ""})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "a@x.com,b@x.com" {
		t.Errorf("ParseRecipients() = %v", got)
	}
	if _, err := ParseRecipients("", nil); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("ParseRecipients(empty) error = %v", err)
	}
}
