package queue

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNoSuchJob is returned by Remove when no job, queued, running or
// finished, matches the requested id.
var ErrNoSuchJob = errors.New("no such job")

// ErrWrongJobState is returned by Remove when the requested job exists but
// is currently Running and therefore cannot be removed.
var ErrWrongJobState = errors.New("job is currently running and cannot be removed")

// ErrInvalidKillTarget is returned by SendSigterm when no Running job with
// the requested id exists at the head of the queue.
var ErrInvalidKillTarget = errors.New("no running job with that id")

// Queue is the sole mutable aggregate of the daemon: a monotonic id
// counter, the dispatch gate (State), the strictly ordered in-flight
// queue, and the terminal job history. All fields are guarded by Mu; every
// method on Queue assumes the caller already holds it.
type Queue struct {
	Mu sync.Mutex `json:"-"`

	LastID   uint64     `json:"last_id"`
	State    QueueState `json:"state"`
	Items    []*Job     `json:"queue"`
	Finished []*Job     `json:"finished"`
}

// New returns an empty, freshly initialized Queue in the Running state.
func New() *Queue {
	return &Queue{
		State:    QueueRunning,
		Items:    []*Job{},
		Finished: []*Job{},
	}
}

// Submit assigns the next id, appends a Queued job to the tail of Items,
// and returns the new id. No validation of cmdline is performed here.
func (q *Queue) Submit(cmdline string) uint64 {
	q.LastID++
	q.Items = append(q.Items, &Job{
		ID:        q.LastID,
		Cmdline:   cmdline,
		Scheduled: time.Now(),
		State:     StateQueued(),
	})
	return q.LastID
}

// Schedule promotes the head of Items to Running, provided the queue is in
// the Running dispatch gate and the head is still Queued. It returns a
// cloned snapshot of the job for the caller to act on outside the lock, or
// nil if there is nothing dispatchable right now.
func (q *Queue) Schedule() *Job {
	if q.State != QueueRunning {
		return nil
	}
	if len(q.Items) == 0 {
		return nil
	}
	head := q.Items[0]
	if head.State.Kind != Queued {
		return nil
	}
	now := time.Now()
	head.Started = &now
	head.State = StateRunning()
	return head.clone()
}

// AssignPID records the OS pid of the now-spawned child on the head job,
// provided it is Running and its id matches. It silently no-ops otherwise,
// tolerating a race with a KillJob request that arrives before the pid is
// recorded.
func (q *Queue) AssignPID(id uint64, pid int) {
	if len(q.Items) == 0 {
		return
	}
	head := q.Items[0]
	if head.State.Kind != Running || head.ID != id {
		return
	}
	head.PID = &pid
}

// Finish removes the head job, records its terminal state and captured
// output, and appends it to Finished. The head must be Running; anything
// else is a bug in the caller (the scheduler never calls Finish without
// having dispatched the same job via Schedule first) and is a fatal
// assertion.
func (q *Queue) Finish(newState JobState, stdout, stderr string) *Job {
	if len(q.Items) == 0 {
		panic("queue: finish called with an empty queue")
	}
	head := q.Items[0]
	if head.State.Kind != Running {
		panic(fmt.Sprintf("queue: finish called on non-running head job: %+v", head))
	}

	q.Items = q.Items[1:]
	now := time.Now()
	head.Finished = &now
	head.State = newState
	head.Stdout = stdout
	head.Stderr = stderr
	q.Finished = append(q.Finished, head)

	if q.State == QueueStopping {
		q.State = QueueStopped
	}

	return head
}

// Remove deletes and returns the job with the given id. Finished jobs are
// searched first, then queued jobs: a Queued job is removed and returned,
// a Running job yields ErrWrongJobState, and a missing id yields
// ErrNoSuchJob.
func (q *Queue) Remove(id uint64) (*Job, error) {
	for i, j := range q.Finished {
		if j.ID == id {
			q.Finished = append(q.Finished[:i:i], q.Finished[i+1:]...)
			return j, nil
		}
	}

	for i, j := range q.Items {
		if j.ID != id {
			continue
		}
		if j.State.Kind == Running {
			return nil, ErrWrongJobState
		}
		q.Items = append(q.Items[:i:i], q.Items[i+1:]...)
		return j, nil
	}

	return nil, ErrNoSuchJob
}

// SendSigterm locates the Running job with the given id and signals its
// process group with SIGTERM by execing the host's kill(1): the kill
// tool's own exit status is translated back into this call's result
// (0 -> nil, otherwise the raw exit code as an error). Absent a matching
// Running job, it returns ErrInvalidKillTarget.
func (q *Queue) SendSigterm(id uint64) error {
	var target *Job
	for _, j := range q.Items {
		if j.State.Kind == Running && j.ID == id {
			target = j
			break
		}
	}
	if target == nil || target.PID == nil {
		return ErrInvalidKillTarget
	}

	// Negative pid targets the process group qmanager placed the child's
	// shell into when it was spawned (see internal/runner). The -- keeps
	// kill(1) from reading the negative pid as an option.
	pid := strconv.Itoa(-*target.PID)
	cmd := exec.Command("/bin/kill", "-SIGTERM", "--", pid)
	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("kill exited with code %d", exitErr.ExitCode())
	}
	return fmt.Errorf("running kill: %w", err)
}

// SetState writes the queue's dispatch gate directly. Transitioning to
// Stopping with an empty queue is coerced to Stopped, since there is
// nothing left for Stopping to wait on.
func (q *Queue) SetState(newState QueueState) {
	if newState == QueueStopping && len(q.Items) == 0 {
		q.State = QueueStopped
		return
	}
	q.State = newState
}

// ResetFirstJob is used only at daemon startup to reconcile a head job
// left in an inconsistent state by a prior crash. Only Queued and Failed
// are supported target states; anything else is a programming error.
func (q *Queue) ResetFirstJob(newState JobState) {
	if len(q.Items) == 0 {
		return
	}
	head := q.Items[0]
	if head.State.Kind == Queued {
		return
	}

	switch newState.Kind {
	case Queued:
		head.Started = nil
		head.PID = nil
		head.Stdout = ""
		head.Stderr = ""
		head.State = StateQueued()
	case Failed:
		// Finish requires the head to be Running; force it there first
		// so the shared transition logic (and the Stopping->Stopped
		// coercion) applies uniformly.
		head.State = StateRunning()
		q.Finish(newState, "", "")
	default:
		panic(fmt.Sprintf("queue: ResetFirstJob called with unsupported target state %s", newState.Kind))
	}
}

// appkeyOf returns the first whitespace-delimited token of a cmdline, the
// appkey the scheduler resolves against the injected executable map.
func appkeyOf(cmdline string) string {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// AppkeyOf is exported so the scheduler (and tests) can split a cmdline
// the same way Queue's own invariants assume.
func AppkeyOf(cmdline string) string { return appkeyOf(cmdline) }

// ArgsOf returns the whitespace-delimited tokens of a cmdline after the
// appkey.
func ArgsOf(cmdline string) []string {
	fields := strings.Fields(cmdline)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}
