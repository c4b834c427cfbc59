// Package protocol implements qmanager's externally-tagged JSON wire
// format: a Request or Response is always a single-key JSON object whose
// key names the variant and whose value carries its payload (or a bare
// JSON value for no-payload variants), using a typed serializer rather
// than ad-hoc discriminator strings.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/jkaessens/qmanager/internal/queue"
)

// RequestKind discriminates the seven operations the daemon accepts.
type RequestKind string

const (
	SubmitJob       RequestKind = "SubmitJob"
	RemoveJob       RequestKind = "RemoveJob"
	KillJob         RequestKind = "KillJob"
	GetQueuedJobs   RequestKind = "GetQueuedJobs"
	GetFinishedJobs RequestKind = "GetFinishedJobs"
	SetQueueState   RequestKind = "SetQueueState"
	GetQueueState   RequestKind = "GetQueueState"
)

// Request is the decoded form of a client's JSON body. Exactly the fields
// relevant to Kind are populated.
type Request struct {
	Kind        RequestKind
	Cmdline     string
	JobID       uint64
	QueueTarget queue.QueueState
}

// UnmarshalJSON decodes the externally-tagged wire form into a Request.
func (r *Request) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("protocol: decoding request: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("protocol: request object must have exactly one key, got %d", len(obj))
	}

	for key, raw := range obj {
		kind := RequestKind(key)
		switch kind {
		case SubmitJob:
			var cmdline string
			if err := json.Unmarshal(raw, &cmdline); err != nil {
				return fmt.Errorf("protocol: decoding SubmitJob payload: %w", err)
			}
			*r = Request{Kind: SubmitJob, Cmdline: cmdline}
		case RemoveJob:
			var id uint64
			if err := json.Unmarshal(raw, &id); err != nil {
				return fmt.Errorf("protocol: decoding RemoveJob payload: %w", err)
			}
			*r = Request{Kind: RemoveJob, JobID: id}
		case KillJob:
			var id uint64
			if err := json.Unmarshal(raw, &id); err != nil {
				return fmt.Errorf("protocol: decoding KillJob payload: %w", err)
			}
			*r = Request{Kind: KillJob, JobID: id}
		case GetQueuedJobs:
			*r = Request{Kind: GetQueuedJobs}
		case GetFinishedJobs:
			*r = Request{Kind: GetFinishedJobs}
		case GetQueueState:
			*r = Request{Kind: GetQueueState}
		case SetQueueState:
			var stateStr string
			if err := json.Unmarshal(raw, &stateStr); err != nil {
				return fmt.Errorf("protocol: decoding SetQueueState payload: %w", err)
			}
			target, err := queue.ParseQueueState(stateStr)
			if err != nil {
				return fmt.Errorf("protocol: decoding SetQueueState payload: %w", err)
			}
			*r = Request{Kind: SetQueueState, QueueTarget: target}
		default:
			return fmt.Errorf("protocol: unknown request variant %q", key)
		}
		return nil
	}
	return nil // unreachable: len(obj) == 1 guarantees the loop runs once
}

// ResponseKind discriminates the six shapes a Response can take.
type ResponseKind string

const (
	RespSubmitJob    ResponseKind = "SubmitJob"
	RespGetJob       ResponseKind = "GetJob"
	RespGetJobs      ResponseKind = "GetJobs"
	RespQueueState   ResponseKind = "QueueState"
	RespOk           ResponseKind = "Ok"
	RespErrorVariant ResponseKind = "Error"
)

// Response is the encoded form of the daemon's reply. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Response struct {
	Kind       ResponseKind
	JobID      uint64
	Job        *queue.Job
	Jobs       []*queue.Job
	QueueState queue.QueueState
	ErrorMsg   string
}

func (r Response) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RespSubmitJob:
		return json.Marshal(map[string]uint64{string(RespSubmitJob): r.JobID})
	case RespGetJob:
		return json.Marshal(map[string]*queue.Job{string(RespGetJob): r.Job})
	case RespGetJobs:
		jobs := r.Jobs
		if jobs == nil {
			jobs = []*queue.Job{}
		}
		return json.Marshal(map[string][]*queue.Job{string(RespGetJobs): jobs})
	case RespQueueState:
		return json.Marshal(map[string]queue.QueueState{string(RespQueueState): r.QueueState})
	case RespOk:
		return json.Marshal(string(RespOk))
	case RespErrorVariant:
		return json.Marshal(map[string]string{string(RespErrorVariant): r.ErrorMsg})
	default:
		return nil, fmt.Errorf("protocol: unknown response kind %q", r.Kind)
	}
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		if bare != string(RespOk) {
			return fmt.Errorf("protocol: unknown bare response %q", bare)
		}
		*r = Response{Kind: RespOk}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("protocol: decoding response: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("protocol: response object must have exactly one key, got %d", len(obj))
	}
	for key, raw := range obj {
		switch ResponseKind(key) {
		case RespSubmitJob:
			var id uint64
			if err := json.Unmarshal(raw, &id); err != nil {
				return err
			}
			*r = Response{Kind: RespSubmitJob, JobID: id}
		case RespGetJob:
			var job queue.Job
			if err := json.Unmarshal(raw, &job); err != nil {
				return err
			}
			*r = Response{Kind: RespGetJob, Job: &job}
		case RespGetJobs:
			var jobs []*queue.Job
			if err := json.Unmarshal(raw, &jobs); err != nil {
				return err
			}
			*r = Response{Kind: RespGetJobs, Jobs: jobs}
		case RespQueueState:
			var qs queue.QueueState
			if err := json.Unmarshal(raw, &qs); err != nil {
				return err
			}
			*r = Response{Kind: RespQueueState, QueueState: qs}
		case RespErrorVariant:
			var msg string
			if err := json.Unmarshal(raw, &msg); err != nil {
				return err
			}
			*r = Response{Kind: RespErrorVariant, ErrorMsg: msg}
		default:
			return fmt.Errorf("protocol: unknown response variant %q", key)
		}
		return nil
	}
	return nil
}
