// Package dispatch implements the request dispatcher: it maps a decoded
// protocol.Request to a queue.Queue mutation, persists the result, wakes
// the scheduler if needed, and produces a protocol.Response plus an HTTP
// status code.
package dispatch

import (
	"fmt"
	"sync"

	"github.com/jkaessens/qmanager/internal/persist"
	"github.com/jkaessens/qmanager/internal/protocol"
	"github.com/jkaessens/qmanager/internal/queue"
	"go.uber.org/zap"
)

// HTTP status codes for qmanager's JSON-RPC-style protocol.
const (
	StatusOK           = 200
	StatusParseFailure = 400
	StatusRejected     = 422
	StatusInternal     = 500
)

// Result is a dispatched request's outcome: an HTTP status plus the body
// to write back. Body is either a protocol.Response (on success, 200) or
// a plain-text error message (non-200).
type Result struct {
	Status  int
	Body    []byte
	IsError bool
}

// Dispatcher executes requests against a shared queue.Queue, under that
// queue's own lock, persisting every mutation and waking the scheduler's
// condition variable when new work may be dispatchable.
type Dispatcher struct {
	q     *queue.Queue
	cond  *sync.Cond
	store *persist.Store
	log   *zap.SugaredLogger
}

// New constructs a Dispatcher. cond must wrap q.Mu, the same condition
// variable the scheduler waits on.
func New(q *queue.Queue, cond *sync.Cond, store *persist.Store, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{q: q, cond: cond, store: store, log: log}
}

// Dispatch executes a single already-decoded request under one critical
// section and returns the wire response.
func (d *Dispatcher) Dispatch(req protocol.Request) Result {
	d.q.Mu.Lock()
	defer d.q.Mu.Unlock()

	switch req.Kind {
	case protocol.SubmitJob:
		return d.submitJob(req.Cmdline)
	case protocol.RemoveJob:
		return d.removeJob(req.JobID)
	case protocol.KillJob:
		return d.killJob(req.JobID)
	case protocol.GetQueuedJobs:
		return okJobs(d.q.Items)
	case protocol.GetFinishedJobs:
		return okJobs(d.q.Finished)
	case protocol.GetQueueState:
		return okQueueState(d.q.State)
	case protocol.SetQueueState:
		return d.setQueueState(req.QueueTarget)
	default:
		return errResult(StatusParseFailure, fmt.Sprintf("unknown request kind %q", req.Kind))
	}
}

func (d *Dispatcher) submitJob(cmdline string) Result {
	id := d.q.Submit(cmdline)
	if res, ok := d.persist(); !ok {
		return res
	}
	d.cond.Signal()
	return okResponse(protocol.Response{Kind: protocol.RespSubmitJob, JobID: id})
}

func (d *Dispatcher) removeJob(id uint64) Result {
	job, err := d.q.Remove(id)
	if err != nil {
		return errForRemove(err)
	}
	if res, ok := d.persist(); !ok {
		return res
	}
	return okResponse(protocol.Response{Kind: protocol.RespGetJob, Job: job})
}

func (d *Dispatcher) killJob(id uint64) Result {
	if err := d.q.SendSigterm(id); err != nil {
		return errResult(StatusRejected, err.Error())
	}
	return okResponse(protocol.Response{Kind: protocol.RespOk})
}

func (d *Dispatcher) setQueueState(target queue.QueueState) Result {
	if target == queue.QueueStopped {
		// Clients may not set Stopped directly; only the daemon coerces
		// Stopping -> Stopped via Finish.
		return errResult(StatusRejected, "clients may not set queue state to Stopped directly")
	}
	d.q.SetState(target)
	if res, ok := d.persist(); !ok {
		return res
	}
	d.cond.Signal()
	return okQueueState(d.q.State)
}

// persist saves the queue while still under the lock. On failure it
// logs and returns a 500 Result the caller should
// return immediately; ok is false in that case.
func (d *Dispatcher) persist() (Result, bool) {
	if err := d.store.Save(d.q); err != nil {
		d.log.Errorw("persisting state", "error", err)
		return errResult(StatusInternal, "internal error"), false
	}
	return Result{}, true
}

func errForRemove(err error) Result {
	switch err {
	case queue.ErrNoSuchJob:
		return errResult(StatusRejected, "No such job")
	case queue.ErrWrongJobState:
		return errResult(StatusRejected, "Job is currently running and cannot be removed")
	default:
		return errResult(StatusInternal, "internal error")
	}
}

func okJobs(jobs []*queue.Job) Result {
	return okResponse(protocol.Response{Kind: protocol.RespGetJobs, Jobs: jobs})
}

func okQueueState(state queue.QueueState) Result {
	return okResponse(protocol.Response{Kind: protocol.RespQueueState, QueueState: state})
}

func okResponse(resp protocol.Response) Result {
	body, err := resp.MarshalJSON()
	if err != nil {
		return errResult(StatusInternal, fmt.Sprintf("encoding response: %s", err))
	}
	return Result{Status: StatusOK, Body: body}
}

func errResult(status int, msg string) Result {
	return Result{Status: status, Body: []byte(msg), IsError: true}
}
