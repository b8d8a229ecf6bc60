package extenv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AndreyAkinshin/hilrun/internal/model"
)

// BridgeOptions configures the bridge process.
type BridgeOptions struct {
	Command string
	Args    []string
	Env     map[string]string
	WorkDir string
	Stderr  io.Writer // bridge diagnostics; defaults to os.Stderr
}

// Bridge drives the external environment through a helper process that
// speaks line-delimited JSON on stdin and stdout. Each request carries an
// id; replies to abandoned (timed-out) requests are discarded.
//
// Requests:
//
//	{"id":"…","op":"load","path":"…"}
//	{"id":"…","op":"dispatch","handle":"…","case":{"name":"…","module":"…","function":"…","parameters":{…}}}
//	{"id":"…","op":"release","handle":"…"}
//
// Replies:
//
//	{"id":"…","ok":true,"handle":"…","result":{"status":"PASS","message":"…","details":{…}}}
type Bridge struct {
	opts BridgeOptions

	mu    sync.Mutex
	cmd   *exec.Cmd
	enc   *json.Encoder
	stdin io.WriteCloser
	sess  *session
}

// session holds the reply stream of one bridge process. err is set before
// responses is closed; done is closed once the process stdout hits EOF.
type session struct {
	responses chan bridgeResponse
	done      chan struct{}
	err       error
}

type bridgeRequest struct {
	ID     string      `json:"id"`
	Op     string      `json:"op"`
	Path   string      `json:"path,omitempty"`
	Handle Handle      `json:"handle,omitempty"`
	Case   *bridgeCase `json:"case,omitempty"`
}

type bridgeCase struct {
	Name       string         `json:"name"`
	Module     string         `json:"module"`
	Function   string         `json:"function"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type bridgeResponse struct {
	ID     string         `json:"id"`
	OK     bool           `json:"ok"`
	Error  string         `json:"error,omitempty"`
	Handle Handle         `json:"handle,omitempty"`
	Result *model.Outcome `json:"result,omitempty"`
}

// NewBridge creates a bridge. The process starts on first use.
func NewBridge(opts BridgeOptions) *Bridge {
	return &Bridge{opts: opts}
}

// Load implements Automation.
func (b *Bridge) Load(ctx context.Context, path string) (Handle, error) {
	resp, err := b.call(ctx, bridgeRequest{Op: "load", Path: path})
	if err != nil {
		return "", err
	}
	if resp.Handle == "" {
		return "", errors.New("bridge returned an empty handle")
	}
	return resp.Handle, nil
}

// Dispatch implements Automation.
func (b *Bridge) Dispatch(ctx context.Context, h Handle, tc model.TestCase) (model.Outcome, error) {
	if tc.External == nil {
		return model.Outcome{}, fmt.Errorf("test case %q is not an external case", tc.Name)
	}
	resp, err := b.call(ctx, bridgeRequest{
		Op:     "dispatch",
		Handle: h,
		Case: &bridgeCase{
			Name:       tc.Name,
			Module:     tc.External.Module,
			Function:   tc.External.Function,
			Parameters: tc.Parameters,
		},
	})
	if err != nil {
		return model.Outcome{}, err
	}
	if resp.Result == nil {
		return model.Outcome{}, errors.New("bridge returned no result")
	}
	return *resp.Result, nil
}

// Release implements Automation.
func (b *Bridge) Release(ctx context.Context, h Handle) error {
	_, err := b.call(ctx, bridgeRequest{Op: "release", Handle: h})
	return err
}

// Close stops the bridge process. It waits briefly for a clean exit after
// closing stdin, then kills the process.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd == nil {
		return nil
	}
	_ = b.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- b.cmd.Wait() }()
	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		_ = b.cmd.Process.Kill()
		err = <-done
	}
	b.cmd = nil
	b.sess.drain()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func (b *Bridge) call(ctx context.Context, req bridgeRequest) (bridgeResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	req.ID = uuid.NewString()
	if err := b.send(req); err != nil {
		return bridgeResponse{}, err
	}

	for {
		select {
		case <-ctx.Done():
			return bridgeResponse{}, ctx.Err()
		case resp, ok := <-b.sess.responses:
			if !ok {
				err := fmt.Errorf("bridge exited: %w", b.sess.err)
				b.reap()
				return bridgeResponse{}, err
			}
			if resp.ID != req.ID {
				continue
			}
			if !resp.OK {
				msg := resp.Error
				if msg == "" {
					msg = "bridge reported failure"
				}
				return resp, fmt.Errorf("%s: %s", req.Op, msg)
			}
			return resp, nil
		}
	}
}

// send writes req, starting the process if needed. A write that fails
// because the process went away between calls never reached it, so the
// process is replaced and the write retried once. Callers hold b.mu.
func (b *Bridge) send(req bridgeRequest) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = b.start(); err != nil {
			return err
		}
		if err = b.enc.Encode(req); err == nil {
			return nil
		}
		b.reap()
	}
	return fmt.Errorf("write to bridge: %w", err)
}

// reap stops and waits for the current process so that the next call
// starts a fresh one. Callers hold b.mu.
func (b *Bridge) reap() {
	if b.cmd == nil {
		return
	}
	_ = b.stdin.Close()
	_ = b.cmd.Process.Kill()
	_ = b.cmd.Wait()
	b.cmd = nil
	b.sess.drain()
}

// start launches the process if it is not running. Callers hold b.mu.
func (b *Bridge) start() error {
	if b.cmd != nil {
		select {
		case <-b.sess.done:
			b.reap()
		default:
			return nil
		}
	}
	if b.opts.Command == "" {
		return errors.New("no bridge command configured")
	}

	cmd := exec.Command(b.opts.Command, b.opts.Args...)
	cmd.Dir = b.opts.WorkDir
	cmd.Env = os.Environ()
	for k, v := range b.opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = b.opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("bridge stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("bridge stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start bridge %q: %w", b.opts.Command, err)
	}

	b.cmd = cmd
	b.stdin = stdin
	b.enc = json.NewEncoder(stdin)
	b.sess = &session{responses: make(chan bridgeResponse, 16), done: make(chan struct{})}
	go b.sess.read(stdout)
	return nil
}

// drain discards unread replies so the reader of a stopped process can
// finish.
func (s *session) drain() {
	go func() {
		for range s.responses {
		}
	}()
}

func (s *session) read(r io.Reader) {
	defer close(s.responses)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var resp bridgeResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		s.responses <- resp
	}
	s.err = scanner.Err()
	if s.err == nil {
		s.err = io.EOF
	}
	close(s.done)
}
