package notify

import (
	"net/http"
	"net/http/httptest"
	"testing"

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

func TestNotifyNoopWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("", testLogger(t))
	assert.NotPanics(t, func() { n.Notify(1) })
}

func TestNotifyHitsConfiguredURLWithJobID(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, testLogger(t))
	n.Notify(42)

	assert.Equal(t, "jobid=42", gotQuery)
}

func TestNotifyIgnoresServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(srv.URL, testLogger(t))
	assert.NotPanics(t, func() { n.Notify(1) })
}
