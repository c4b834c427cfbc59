// Package notify implements qmanager's best-effort job-completion
// webhook: a bounded-timeout HTTP GET to an operator-configured URL,
// logged but never allowed to stall the scheduler.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout caps how long a single notification attempt may take.
const DefaultTimeout = 5 * time.Second

// Notifier issues a best-effort GET to a configured URL after each job
// finishes. A zero-value URL disables notification entirely.
type Notifier struct {
	url    string
	client *http.Client
	log    *zap.SugaredLogger
}

// New returns a Notifier. url may be empty, in which case Notify is a
// no-op.
func New(url string, log *zap.SugaredLogger) *Notifier {
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: DefaultTimeout},
		log:    log,
	}
}

// Notify issues "GET <url>?jobid=<id>" if a URL was configured. Any
// failure -- connection refused, timeout, non-2xx status -- is logged
// and otherwise ignored; it never propagates to the scheduler loop.
func (n *Notifier) Notify(jobID uint64) {
	if n.url == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	target := fmt.Sprintf("%s?jobid=%d", n.url, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		n.log.Warnw("building notification request", "jobID", jobID, "url", target, "error", err)
		return
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warnw("notification request failed", "jobID", jobID, "url", target, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.log.Warnw("notification endpoint returned non-success status", "jobID", jobID, "status", resp.StatusCode)
		return
	}
	n.log.Infow("notified job completion", "jobID", jobID, "status", resp.StatusCode)
}
