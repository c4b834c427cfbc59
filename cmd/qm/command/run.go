package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jkaessens/qmanager/internal/protocol"
	"github.com/jkaessens/qmanager/internal/queue"
)

// DefaultTimeout bounds each request the client makes to the daemon.
const DefaultTimeout = 10 * time.Second

// Client issues one JSON request per call against the daemon's single
// endpoint (the path is irrelevant).
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient targets host, which may carry its own "http://" or "https://"
// scheme (for daemons started without TLS material); bare host:port is
// assumed to speak HTTPS, since that's qmanagerd's default.
func NewClient(host string) *Client {
	base := host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return &Client{
		baseURL: strings.TrimSuffix(base, "/") + "/",
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

func (c *Client) do(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	body, err := json.Marshal(requestWireForm(req))
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("contacting daemon: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(raw))
	}

	var decoded protocol.Response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &decoded, nil
}

// requestWireForm builds the single-key tagged object a Request
// round-trips as; protocol.Request only implements UnmarshalJSON since
// the daemon is always the decoder, so the encoder lives here instead.
func requestWireForm(req protocol.Request) map[string]any {
	switch req.Kind {
	case protocol.SubmitJob:
		return map[string]any{"SubmitJob": req.Cmdline}
	case protocol.RemoveJob:
		return map[string]any{"RemoveJob": req.JobID}
	case protocol.KillJob:
		return map[string]any{"KillJob": req.JobID}
	case protocol.GetQueuedJobs:
		return map[string]any{"GetQueuedJobs": nil}
	case protocol.GetFinishedJobs:
		return map[string]any{"GetFinishedJobs": nil}
	case protocol.GetQueueState:
		return map[string]any{"GetQueueState": nil}
	case protocol.SetQueueState:
		return map[string]any{"SetQueueState": req.QueueTarget}
	default:
		return map[string]any{}
	}
}

// Run executes the parsed Command against the daemon at cmd.Host.
func Run(ctx context.Context, cmd *Command) error {
	switch cmd.SubCommand {
	case Submit, Remove, Kill, Status, Start, Stop:
		if cmd.Host == "" {
			return fmt.Errorf("no host provided: use --host or -D")
		}
	}

	client := NewClient(cmd.Host)

	switch cmd.SubCommand {
	case Submit:
		return runSubmit(ctx, client, cmd)
	case Remove:
		return runRemove(ctx, client, cmd)
	case Kill:
		return runKill(ctx, client, cmd)
	case Status:
		return runStatus(ctx, client)
	case Start:
		return runSetQueueState(ctx, client, queue.QueueRunning)
	case Stop:
		return runSetQueueState(ctx, client, queue.QueueStopping)
	default:
		return fmt.Errorf("unsupported subcommand: %v", cmd.SubCommand)
	}
}

func runSubmit(ctx context.Context, c *Client, cmd *Command) error {
	resp, err := c.do(ctx, protocol.Request{Kind: protocol.SubmitJob, Cmdline: cmd.Cmdline})
	if err != nil {
		return fmt.Errorf("submitting job: %w", err)
	}
	fmt.Printf("job submitted: %d\n", resp.JobID)
	return nil
}

func runRemove(ctx context.Context, c *Client, cmd *Command) error {
	resp, err := c.do(ctx, protocol.Request{Kind: protocol.RemoveJob, JobID: cmd.JobID})
	if err != nil {
		return fmt.Errorf("removing job: %w", err)
	}
	fmt.Printf("job removed: %d\n", resp.Job.ID)
	return nil
}

func runKill(ctx context.Context, c *Client, cmd *Command) error {
	_, err := c.do(ctx, protocol.Request{Kind: protocol.KillJob, JobID: cmd.JobID})
	if err != nil {
		return fmt.Errorf("killing job: %w", err)
	}
	fmt.Printf("job killed: %d\n", cmd.JobID)
	return nil
}

func runStatus(ctx context.Context, c *Client) error {
	state, err := c.do(ctx, protocol.Request{Kind: protocol.GetQueueState})
	if err != nil {
		return fmt.Errorf("getting queue state: %w", err)
	}
	queued, err := c.do(ctx, protocol.Request{Kind: protocol.GetQueuedJobs})
	if err != nil {
		return fmt.Errorf("getting queued jobs: %w", err)
	}
	finished, err := c.do(ctx, protocol.Request{Kind: protocol.GetFinishedJobs})
	if err != nil {
		return fmt.Errorf("getting finished jobs: %w", err)
	}

	fmt.Printf("queue state: %s\n", state.QueueState)
	fmt.Println("queued:")
	for _, j := range queued.Jobs {
		fmt.Printf("  %d  %-10s  %s\n", j.ID, j.State.Kind, j.Cmdline)
	}
	fmt.Println("finished:")
	for _, j := range finished.Jobs {
		fmt.Printf("  %d  %-10s  %s\n", j.ID, j.State.Kind, j.Cmdline)
	}
	return nil
}

func runSetQueueState(ctx context.Context, c *Client, target queue.QueueState) error {
	resp, err := c.do(ctx, protocol.Request{Kind: protocol.SetQueueState, QueueTarget: target})
	if err != nil {
		return fmt.Errorf("setting queue state: %w", err)
	}
	fmt.Printf("queue state: %s\n", resp.QueueState)
	return nil
}
