// Package persist implements qmanager's crash-recovery state file: the
// entire queue.Queue value serialized as one JSON document, written
// create-or-truncate on every mutating dispatch.
package persist

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jkaessens/qmanager/internal/queue"
	"go.uber.org/zap"
)

// Store owns the path to the state file. It does not hold a reference to
// the live queue.Queue; callers pass a snapshot to Save and get a fresh
// *queue.Queue back from Load.
type Store struct {
	path string
	log  *zap.SugaredLogger
}

// New returns a Store writing to path, logging load/save problems through
// log.
func New(path string, log *zap.SugaredLogger) *Store {
	return &Store{path: path, log: log}
}

// Load reads the state file at Store's path. If the file does not exist
// or fails to parse, Load logs a warning and returns a fresh, empty
// queue rather than failing: losing the persisted queue on a
// corrupt/missing state file is recoverable; refusing to start is not.
func (s *Store) Load() *queue.Queue {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Warnw("state file unreadable, starting with an empty queue", "path", s.path, "error", err)
		return queue.New()
	}

	q := &queue.Queue{}
	if err := json.Unmarshal(data, q); err != nil {
		s.log.Warnw("state file did not parse, starting with an empty queue", "path", s.path, "error", err)
		return queue.New()
	}
	if q.Items == nil {
		q.Items = []*queue.Job{}
	}
	if q.Finished == nil {
		q.Finished = []*queue.Job{}
	}
	return q
}

// Save serializes q (the caller must hold q.Mu, or otherwise guarantee
// exclusive access) as the full state document, creating or truncating
// the file at Store's path. A failure here is meant to be treated as
// fatal by the caller: "persisted approximately equals in-memory"
// matters more here than availability.
func (s *Store) Save(q *queue.Queue) error {
	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: encoding state: %w", err)
	}

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("persist: creating state file %s: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("persist: writing state file %s: %w", s.path, err)
	}
	return nil
}
