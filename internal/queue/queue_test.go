package queue

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitAssignsMonotonicIDs(t *testing.T) {
	t.Parallel()

	q := New()
	id1 := q.Submit("echo a")
	id2 := q.Submit("echo b")

	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(2), id2)
	assert.Less(t, id1, id2)
	require.Len(t, q.Items, 2)
	assert.Equal(t, id1, q.Items[0].ID)
	assert.Equal(t, id2, q.Items[1].ID)
}

func TestScheduleOnlyPromotesTheHead(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit("echo a")
	q.Submit("echo b")

	job := q.Schedule()
	require.NotNil(t, job)
	assert.Equal(t, uint64(1), job.ID)
	assert.Equal(t, Running, q.Items[0].State.Kind)
	assert.Equal(t, Queued, q.Items[1].State.Kind)
	require.NotNil(t, q.Items[0].Started)

	// a second Schedule call finds the head already Running and returns nil
	assert.Nil(t, q.Schedule())
}

func TestScheduleRespectsDispatchGate(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit("echo a")
	q.SetState(QueueStopping)

	assert.Nil(t, q.Schedule())
}

func TestAssignPIDToleratesMissingHead(t *testing.T) {
	t.Parallel()

	q := New()
	// no jobs at all -- must not panic
	q.AssignPID(1, 123)

	q.Submit("echo a")
	// head is still Queued, not Running -- assignment is a no-op
	q.AssignPID(1, 123)
	assert.Nil(t, q.Items[0].PID)

	q.Schedule()
	q.AssignPID(1, 123)
	require.NotNil(t, q.Items[0].PID)
	assert.Equal(t, 123, *q.Items[0].PID)

	// wrong id -- no-op
	q.AssignPID(99, 456)
	assert.Equal(t, 123, *q.Items[0].PID)
}

func TestFinishMovesHeadToFinished(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit("echo a")
	q.Submit("echo b")
	q.Schedule()

	done := q.Finish(StateTerminated(0), "hello\n", "")
	require.NotNil(t, done)
	assert.Equal(t, uint64(1), done.ID)
	assert.Equal(t, Terminated, done.State.Kind)
	require.NotNil(t, done.Finished)

	require.Len(t, q.Items, 1)
	assert.Equal(t, uint64(2), q.Items[0].ID)
	require.Len(t, q.Finished, 1)
	assert.Equal(t, uint64(1), q.Finished[0].ID)
}

func TestFinishPanicsIfHeadNotRunning(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit("echo a")

	assert.Panics(t, func() {
		q.Finish(StateTerminated(0), "", "")
	})
}

func TestFinishCoercesStoppingToStopped(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit("echo a")
	q.Schedule()
	q.SetState(QueueStopping)

	q.Finish(StateTerminated(0), "", "")
	assert.Equal(t, QueueStopped, q.State)
}

func TestRemoveSearchesFinishedThenQueued(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit("echo a")
	q.Submit("echo b")
	q.Schedule()
	q.Finish(StateTerminated(0), "", "")

	// id 1 is finished
	job, err := q.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), job.ID)
	assert.Empty(t, q.Finished)

	// id 2 is queued
	job, err = q.Remove(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), job.ID)
	assert.Empty(t, q.Items)
}

func TestRemoveRejectsRunningJob(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit("sleep 60")
	q.Schedule()

	_, err := q.Remove(1)
	assert.ErrorIs(t, err, ErrWrongJobState)
}

func TestRemoveNoSuchJob(t *testing.T) {
	t.Parallel()

	q := New()
	_, err := q.Remove(999)
	assert.ErrorIs(t, err, ErrNoSuchJob)
}

func TestSendSigtermRejectsNonRunningTarget(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit("sleep 60")

	err := q.SendSigterm(1)
	assert.ErrorIs(t, err, ErrInvalidKillTarget)
}

func TestSetStateCoercesStoppingWithEmptyQueue(t *testing.T) {
	t.Parallel()

	q := New()
	q.SetState(QueueStopping)
	assert.Equal(t, QueueStopped, q.State)
}

func TestResetFirstJobToQueuedClearsRunState(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit("echo a")
	q.Schedule()
	q.AssignPID(1, 42)

	q.ResetFirstJob(StateQueued())

	assert.Equal(t, Queued, q.Items[0].State.Kind)
	assert.Nil(t, q.Items[0].Started)
	assert.Nil(t, q.Items[0].PID)
}

func TestResetFirstJobToFailedMovesToFinished(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit("echo a")
	q.Schedule()

	q.ResetFirstJob(StateFailed("Interrupted by system failure, please re-submit or ask for assistance"))

	assert.Empty(t, q.Items)
	require.Len(t, q.Finished, 1)
	assert.Equal(t, Failed, q.Finished[0].State.Kind)
}

func TestResetFirstJobNoopOnQueuedHead(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit("echo a")

	assert.NotPanics(t, func() {
		q.ResetFirstJob(StateQueued())
	})
	assert.Equal(t, Queued, q.Items[0].State.Kind)
}

func TestAtMostOneRunningAtHead(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit("echo a")
	q.Submit("echo b")
	q.Submit("echo c")
	q.Schedule()

	running := 0
	for i, j := range q.Items {
		if j.State.Kind == Running {
			running++
			assert.Equal(t, 0, i, "Running job must be at index 0")
		}
	}
	assert.LessOrEqual(t, running, 1)
}

// checkInvariants asserts the queue's structural invariants: unique,
// monotonic ids; at most one Running job, only at the head; per-state
// field consistency; terminal-only finished history; and the
// Stopped-implies-nothing-running rule.
func checkInvariants(t *testing.T, q *Queue) {
	t.Helper()

	seen := map[uint64]bool{}
	running := 0
	for i, j := range q.Items {
		require.False(t, seen[j.ID], "duplicate id %d", j.ID)
		seen[j.ID] = true
		require.LessOrEqual(t, j.ID, q.LastID)

		switch j.State.Kind {
		case Queued:
			require.Nil(t, j.Started)
			require.Nil(t, j.Finished)
			require.Nil(t, j.PID)
		case Running:
			running++
			require.Equal(t, 0, i, "Running job must be at the head")
			require.NotNil(t, j.Started)
			require.Nil(t, j.Finished)
		default:
			t.Fatalf("job %d in queue has terminal state %s", j.ID, j.State.Kind)
		}
	}
	require.LessOrEqual(t, running, 1)

	for _, j := range q.Finished {
		require.False(t, seen[j.ID], "duplicate id %d", j.ID)
		seen[j.ID] = true
		require.LessOrEqual(t, j.ID, q.LastID)
		require.True(t, j.State.IsTerminal(), "finished job %d has non-terminal state %s", j.ID, j.State.Kind)
		require.NotNil(t, j.Finished)
	}

	if q.State == QueueStopped {
		require.Zero(t, running, "Stopped queue must have no Running job")
	}
}

func TestRandomOpInterleavingsPreserveInvariants(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	q := New()
	var lastSubmitted uint64

	for i := 0; i < 2000; i++ {
		switch rng.Intn(6) {
		case 0:
			id := q.Submit(fmt.Sprintf("echo op %d", i))
			require.Greater(t, id, lastSubmitted, "submit ids must be strictly increasing")
			lastSubmitted = id
		case 1:
			if job := q.Schedule(); job != nil {
				q.AssignPID(job.ID, 1000+rng.Intn(1000))
			}
		case 2:
			if len(q.Items) > 0 && q.Items[0].State.Kind == Running {
				q.Finish(StateTerminated(int32(rng.Intn(3))), "out", "")
			}
		case 3:
			if lastSubmitted > 0 {
				_, _ = q.Remove(uint64(rng.Intn(int(lastSubmitted)) + 1))
			}
		case 4:
			q.SetState([]QueueState{QueueRunning, QueueStopping}[rng.Intn(2)])
		case 5:
			// Stopped is only ever entered by the daemon once nothing is
			// running, so the model only sets it under that condition.
			if len(q.Items) == 0 || q.Items[0].State.Kind != Running {
				q.SetState(QueueStopped)
			}
		}
		checkInvariants(t, q)
	}
}

func TestAppkeyOfAndArgsOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "echo", AppkeyOf("echo hello world"))
	assert.Equal(t, []string{"hello", "world"}, ArgsOf("echo hello world"))
	assert.Equal(t, "", AppkeyOf("   "))
	assert.Nil(t, ArgsOf("echo"))
}
