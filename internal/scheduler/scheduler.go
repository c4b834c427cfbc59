// Package scheduler implements the daemon's long-lived worker: it pulls
// the head job under the queue's lock, releases the lock across the
// child process's entire lifetime, and re-acquires it only to record
// pid assignment and the terminal state. The exec.Cmd lifecycle itself
// is factored out into internal/runner.
package scheduler

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jkaessens/qmanager/internal/appkeys"
	"github.com/jkaessens/qmanager/internal/notify"
	"github.com/jkaessens/qmanager/internal/persist"
	"github.com/jkaessens/qmanager/internal/queue"
	"github.com/jkaessens/qmanager/internal/runner"
	"go.uber.org/zap"
)

// invalidAppkeyCommand is substituted for the concrete command when the
// cmdline's appkey is empty or unresolvable. It is chosen to reliably
// fail at exec time, producing a Failed or Terminated(127) job rather
// than crashing the daemon.
const invalidAppkeyCommand = "invalid-appkey"

// Scheduler is the daemon's long-lived dispatch worker. It must be
// constructed with the same *sync.Cond the dispatcher signals after a
// mutating SubmitJob or SetQueueState request.
type Scheduler struct {
	q       *queue.Queue
	cond    *sync.Cond
	store   *persist.Store
	appkeys appkeys.Map
	notify  *notify.Notifier
	log     *zap.SugaredLogger

	// stopRequested is guarded by q.Mu so that a Stop() broadcast can
	// never race a waiter that is about to call cond.Wait() -- both sides
	// agree on the flag under the same lock the condition variable wraps.
	stopRequested bool
	done          chan struct{}
}

// New constructs a Scheduler. cond must wrap q.Mu (sync.NewCond(&q.Mu)),
// the same mutex the dispatcher locks around every mutation.
func New(q *queue.Queue, cond *sync.Cond, store *persist.Store, keys appkeys.Map, notifier *notify.Notifier, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		q:       q,
		cond:    cond,
		store:   store,
		appkeys: keys,
		notify:  notifier,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Run executes the acquire/spawn/wait/finalize loop until Stop is
// called. It is meant to be run in its own goroutine.
func (s *Scheduler) Run() {
	defer close(s.done)
	for {
		job := s.acquireJob()
		if job == nil {
			// acquireJob only returns nil when Stop was requested.
			return
		}
		s.runJob(job)
	}
}

// Stop requests the loop exit at the next safe point and blocks until it
// has. It does not cancel a child that is currently running; the loop
// only sees the request after that job has exited and been recorded, so
// Stop waits for it.
func (s *Scheduler) Stop() {
	s.q.Mu.Lock()
	s.stopRequested = true
	s.q.Mu.Unlock()

	s.cond.Broadcast()
	<-s.done
}

// acquireJob acquires the lock, tries to schedule the head job, and
// waits on the condition variable if there is nothing dispatchable yet.
// Spurious wakeups are tolerated by re-checking Schedule() in a loop.
// stopRequested is only ever read or written with q.Mu held, so it can't
// be missed by a waiter between the check and the Wait() call.
func (s *Scheduler) acquireJob() *queue.Job {
	s.q.Mu.Lock()
	defer s.q.Mu.Unlock()

	for {
		if s.stopRequested {
			return nil
		}
		if job := s.q.Schedule(); job != nil {
			return job
		}
		s.cond.Wait()
	}
}

// runJob resolves, spawns, waits for, and finalizes a single dispatched
// job.
func (s *Scheduler) runJob(job *queue.Job) {
	concreteCommand, resolveErr := s.resolveCommand(job.Cmdline)
	if resolveErr != nil {
		s.log.Errorw("resolving appkey", "jobID", job.ID, "cmdline", job.Cmdline, "error", resolveErr)
	}

	proc, err := runner.Spawn(concreteCommand)
	if err != nil {
		s.finishFailed(job.ID, fmt.Sprintf("spawn failed: %s", err))
		return
	}

	s.q.Mu.Lock()
	s.q.AssignPID(job.ID, proc.PID())
	s.q.Mu.Unlock()

	// Wait for the child without holding the lock, so GetQueuedJobs,
	// KillJob, and RemoveJob stay responsive while this job runs.
	result := proc.Wait()

	s.q.Mu.Lock()
	var state queue.JobState
	if result.Signaled {
		state = queue.StateKilled(int32(result.Signal))
	} else {
		state = queue.StateTerminated(int32(result.ExitCode))
	}
	s.q.Finish(state, result.Stdout, result.Stderr)
	saveErr := s.store.Save(s.q)
	s.q.Mu.Unlock()

	if saveErr != nil {
		s.log.Fatalw("persisting state after job finished", "jobID", job.ID, "error", saveErr)
	}

	// Best-effort notification, outside the lock.
	s.notify.Notify(job.ID)
}

// finishFailed handles a spawn failure: the head is finished as Failed
// without ever having had a pid assigned.
func (s *Scheduler) finishFailed(jobID uint64, reason string) {
	s.q.Mu.Lock()
	s.q.Finish(queue.StateFailed(reason), "", "")
	saveErr := s.store.Save(s.q)
	s.q.Mu.Unlock()

	if saveErr != nil {
		s.log.Fatalw("persisting state after spawn failure", "jobID", jobID, "error", saveErr)
	}
}

// resolveCommand splits the cmdline's appkey, looks it up, and builds
// "<mapped path> <args>". An empty or unresolvable appkey
// yields invalidAppkeyCommand plus a non-nil error for logging.
func (s *Scheduler) resolveCommand(cmdline string) (string, error) {
	appkey := queue.AppkeyOf(cmdline)
	if appkey == "" {
		return invalidAppkeyCommand, fmt.Errorf("empty appkey in cmdline %q", cmdline)
	}
	path, ok := s.appkeys.Resolve(appkey)
	if !ok {
		return invalidAppkeyCommand, fmt.Errorf("unknown appkey %q", appkey)
	}
	args := queue.ArgsOf(cmdline)
	if len(args) == 0 {
		return path, nil
	}
	return path + " " + strings.Join(args, " "), nil
}
