// Package queue implements the job queue's data model and the pure-logic
// state transitions a job moves through between submission and a terminal
// state. Every exported method on Queue mutates shared state and must be
// called with Queue.Mu held.
package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// JobStateKind is the discriminant of a JobState tagged union.
type JobStateKind int

const (
	Queued JobStateKind = iota
	Running
	Terminated
	Killed
	Failed
)

func (k JobStateKind) String() string {
	switch k {
	case Queued:
		return "Queued"
	case Running:
		return "Running"
	case Terminated:
		return "Terminated"
	case Killed:
		return "Killed"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("JobStateKind(%d)", int(k))
	}
}

// JobState is one of Queued, Running, Terminated(exit_code), Killed(signal)
// or Failed(reason). It serializes as a bare JSON string for the two unit
// variants and as a single-key tagged object for the three carrying a
// payload, e.g. "Queued", {"Terminated":0}, {"Killed":15}, {"Failed":"..."}.
type JobState struct {
	Kind     JobStateKind
	ExitCode int32
	Signal   int32
	Reason   string
}

func StateQueued() JobState  { return JobState{Kind: Queued} }
func StateRunning() JobState { return JobState{Kind: Running} }
func StateTerminated(exitCode int32) JobState {
	return JobState{Kind: Terminated, ExitCode: exitCode}
}
func StateKilled(signal int32) JobState { return JobState{Kind: Killed, Signal: signal} }
func StateFailed(reason string) JobState {
	return JobState{Kind: Failed, Reason: reason}
}

// IsTerminal reports whether the state is one of Terminated, Killed, Failed.
func (s JobState) IsTerminal() bool {
	switch s.Kind {
	case Terminated, Killed, Failed:
		return true
	default:
		return false
	}
}

func (s JobState) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case Queued, Running:
		return json.Marshal(s.Kind.String())
	case Terminated:
		return json.Marshal(map[string]int32{"Terminated": s.ExitCode})
	case Killed:
		return json.Marshal(map[string]int32{"Killed": s.Signal})
	case Failed:
		return json.Marshal(map[string]string{"Failed": s.Reason})
	default:
		return nil, fmt.Errorf("queue: unknown job state kind %d", s.Kind)
	}
}

func (s *JobState) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return err
		}
		switch tag {
		case "Queued":
			*s = StateQueued()
		case "Running":
			*s = StateRunning()
		default:
			return fmt.Errorf("queue: unknown job state tag %q", tag)
		}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if len(obj) != 1 {
		return fmt.Errorf("queue: job state object must have exactly one key, got %d", len(obj))
	}
	for tag, raw := range obj {
		switch tag {
		case "Terminated":
			var code int32
			if err := json.Unmarshal(raw, &code); err != nil {
				return err
			}
			*s = StateTerminated(code)
		case "Killed":
			var sig int32
			if err := json.Unmarshal(raw, &sig); err != nil {
				return err
			}
			*s = StateKilled(sig)
		case "Failed":
			var reason string
			if err := json.Unmarshal(raw, &reason); err != nil {
				return err
			}
			*s = StateFailed(reason)
		default:
			return fmt.Errorf("queue: unknown job state tag %q", tag)
		}
	}
	return nil
}

// QueueState is the daemon-wide dispatch gate: Running admits dispatch,
// Stopping forbids new dispatch but lets the current child finish, Stopped
// is the idle non-dispatching state.
type QueueState int

const (
	QueueRunning QueueState = iota
	QueueStopping
	QueueStopped
)

func (s QueueState) String() string {
	switch s {
	case QueueRunning:
		return "Running"
	case QueueStopping:
		return "Stopping"
	case QueueStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("QueueState(%d)", int(s))
	}
}

func ParseQueueState(s string) (QueueState, error) {
	switch s {
	case "Running":
		return QueueRunning, nil
	case "Stopping":
		return QueueStopping, nil
	case "Stopped":
		return QueueStopped, nil
	default:
		return 0, fmt.Errorf("queue: unknown queue state %q", s)
	}
}

func (s QueueState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *QueueState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseQueueState(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Job is a single submission's full lifecycle record.
type Job struct {
	ID        uint64     `json:"id"`
	Cmdline   string     `json:"cmdline"`
	Scheduled time.Time  `json:"scheduled"`
	Started   *time.Time `json:"started"`
	Finished  *time.Time `json:"finished"`
	PID       *int       `json:"pid"`
	Stdout    string     `json:"stdout"`
	Stderr    string     `json:"stderr"`
	State     JobState   `json:"state"`
}

// clone returns a deep copy safe to hand to a caller outside the lock.
func (j *Job) clone() *Job {
	cp := *j
	if j.Started != nil {
		t := *j.Started
		cp.Started = &t
	}
	if j.Finished != nil {
		t := *j.Finished
		cp.Finished = &t
	}
	if j.PID != nil {
		p := *j.PID
		cp.PID = &p
	}
	return &cp
}
