package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jkaessens/qmanager/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	l, err := zap.NewDevelopment()
	require.NoError(t, err)
	return l.Sugar()
}

func TestLoadMissingFileReturnsFreshQueue(t *testing.T) {
	t.Parallel()

	s := New(filepath.Join(t.TempDir(), "does-not-exist.json"), testLogger(t))
	q := s.Load()

	assert.Equal(t, uint64(0), q.LastID)
	assert.Equal(t, queue.QueueRunning, q.State)
	assert.Empty(t, q.Items)
	assert.Empty(t, q.Finished)
}

func TestLoadCorruptFileReturnsFreshQueue(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	s := New(path, testLogger(t))
	q := s.Load()
	assert.Equal(t, uint64(0), q.LastID)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path, testLogger(t))

	q := queue.New()
	q.Submit("echo hello")
	q.Submit("echo world")
	q.Schedule()

	require.NoError(t, s.Save(q))

	loaded := s.Load()
	assert.Equal(t, q.LastID, loaded.LastID)
	assert.Equal(t, q.State, loaded.State)
	require.Len(t, loaded.Items, 2)
	assert.Equal(t, q.Items[0].ID, loaded.Items[0].ID)
	assert.Equal(t, q.Items[0].State.Kind, loaded.Items[0].State.Kind)
	assert.Equal(t, q.Items[1].Cmdline, loaded.Items[1].Cmdline)
}

func TestSaveOverwritesExistingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path, testLogger(t))

	q1 := queue.New()
	q1.Submit("echo first")
	require.NoError(t, s.Save(q1))

	q2 := queue.New()
	q2.Submit("echo second")
	q2.Submit("echo third")
	require.NoError(t, s.Save(q2))

	loaded := s.Load()
	require.Len(t, loaded.Items, 2)
	assert.Equal(t, "echo second", loaded.Items[0].Cmdline)
}
