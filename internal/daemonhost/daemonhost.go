// Package daemonhost wires together the queue, persistence, scheduler and
// dispatcher into the running daemon: it loads state, reconciles a
// crash-interrupted head job, notifies the service manager, launches the
// scheduler, and serves the JSON-over-HTTP(S) protocol until SIGTERM.
package daemonhost

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-gonic/gin"
	"github.com/jkaessens/qmanager/internal/appkeys"
	"github.com/jkaessens/qmanager/internal/dispatch"
	"github.com/jkaessens/qmanager/internal/notify"
	"github.com/jkaessens/qmanager/internal/persist"
	"github.com/jkaessens/qmanager/internal/protocol"
	"github.com/jkaessens/qmanager/internal/queue"
	"github.com/jkaessens/qmanager/internal/scheduler"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Config is everything the host needs that the CLI/config layer is
// responsible for producing.
type Config struct {
	Addr      string
	TLSConfig *tls.Config // nil means serve plain HTTP

	StateFile     string
	AppkeyMapFile string
	NotifyURL     string

	ShutdownTimeout time.Duration
}

// Host owns the daemon's long-lived pieces: the shared queue, the
// scheduler goroutine, and the HTTP server that fronts the dispatcher.
type Host struct {
	cfg  Config
	log  *zap.SugaredLogger
	q    *queue.Queue
	cond *sync.Cond

	store  *persist.Store
	sched  *scheduler.Scheduler
	disp   *dispatch.Dispatcher
	server *http.Server
}

// New constructs a Host. It loads the appkey map and persisted state
// eagerly so that startup failures surface before the accept loop binds.
func New(cfg Config, log *zap.SugaredLogger) (*Host, error) {
	keys, err := appkeys.Load(cfg.AppkeyMapFile)
	if err != nil {
		return nil, fmt.Errorf("loading appkey map: %w", err)
	}

	store := persist.New(cfg.StateFile, log)
	q := store.Load()
	cond := sync.NewCond(&q.Mu)

	recoverHeadJob(q, log)

	n := notify.New(cfg.NotifyURL, log)
	sched := scheduler.New(q, cond, store, keys, n, log)
	disp := dispatch.New(q, cond, store, log)

	h := &Host{
		cfg:   cfg,
		log:   log,
		q:     q,
		cond:  cond,
		store: store,
		sched: sched,
		disp:  disp,
	}
	h.server = &http.Server{
		Addr:      cfg.Addr,
		Handler:   h.router(),
		TLSConfig: cfg.TLSConfig,
	}
	return h, nil
}

// recoverHeadJob reconciles a head job left inconsistent by a prior
// crash, based on the persisted queue's dispatch gate rather than the
// job's own state.
func recoverHeadJob(q *queue.Queue, log *zap.SugaredLogger) {
	q.Mu.Lock()
	defer q.Mu.Unlock()

	switch q.State {
	case queue.QueueRunning:
		if len(q.Items) > 0 && q.Items[0].State.Kind != queue.Queued {
			log.Warnw("recovering interrupted head job", "jobID", q.Items[0].ID)
			q.ResetFirstJob(queue.StateFailed("Interrupted by system failure, please re-submit or ask for assistance"))
		}
	case queue.QueueStopping:
		if len(q.Items) > 0 {
			q.ResetFirstJob(queue.StateQueued())
		}
	case queue.QueueStopped:
		// nothing to do
	}
}

// router builds the single-endpoint JSON-RPC-style surface (the path is
// irrelevant), wrapped in gin's recovery middleware and a zap-backed
// access log.
func (h *Host) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(h.accessLog())
	r.POST("/*path", h.handle)
	return r
}

func (h *Host) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Infow("request",
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (h *Host) handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Data(dispatch.StatusInternal, "text/plain", []byte(err.Error()))
		return
	}

	var req protocol.Request
	if err := json.Unmarshal(body, &req); err != nil {
		c.Data(dispatch.StatusParseFailure, "text/plain", []byte(err.Error()))
		return
	}

	res := h.disp.Dispatch(req)
	if res.IsError {
		c.Data(res.Status, "text/plain", res.Body)
		return
	}
	c.Data(res.Status, "application/json", res.Body)
}

// Run launches the scheduler, notifies the service manager that startup
// is complete, and serves until ctx is canceled or SIGTERM arrives. It
// does not wait for a running child on the way out: in-flight jobs are
// left to the OS.
func (h *Host) Run(ctx context.Context) error {
	go h.sched.Run()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		h.log.Warnw("systemd notify failed", "error", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		var err error
		if h.cfg.TLSConfig != nil {
			err = h.server.ListenAndServeTLS("", "")
		} else {
			err = h.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, unix.SIGINT, unix.SIGTERM)

	select {
	case <-ctx.Done():
		h.log.Infow("stopping service", "reason", "context canceled")
	case sig := <-terminate:
		h.log.Infow("stopping service", "signal", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	}

	// A termination signal triggers a persistence flush before the
	// graceful HTTP shutdown.
	h.q.Mu.Lock()
	saveErr := h.store.Save(h.q)
	h.q.Mu.Unlock()
	if saveErr != nil {
		h.log.Errorw("final persistence flush failed", "error", saveErr)
	}

	shutdownTimeout := h.cfg.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		h.log.Warnw("graceful HTTP shutdown failed", "error", err)
		return h.server.Close()
	}
	return nil
}
