package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	return New(h, 0, time.Second, time.Second, 2*time.Second, logger)
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func TestServe_ShutdownOrder(t *testing.T) {
	srv := newTestServer()

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, name)
	}

	started := make(chan struct{})
	srv.Go("analytics", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		record("worker")
		return ctx.Err()
	})
	srv.OnShutdown("postgres", func(context.Context) error { record("postgres"); return nil })
	srv.OnShutdown("redis", func(context.Context) error { record("redis"); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	ln := listen(t)
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, ln) }()

	<-started
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	require.NoError(t, <-errc)
	assert.Equal(t, []string{"worker", "redis", "postgres"}, order)
}

func TestServe_WorkerFailureStopsServer(t *testing.T) {
	srv := newTestServer()
	boom := errors.New("stream gone")
	srv.Go("webhooks", func(context.Context) error { return boom })

	closed := false
	srv.OnShutdown("redis", func(context.Context) error { closed = true; return nil })

	err := srv.Serve(context.Background(), listen(t))
	require.ErrorIs(t, err, boom)
	assert.True(t, closed, "hooks still run after a worker failure")
}

func TestServe_HookErrorsJoined(t *testing.T) {
	srv := newTestServer()
	first := errors.New("first")
	second := errors.New("second")
	srv.OnShutdown("a", func(context.Context) error { return first })
	srv.OnShutdown("b", func(context.Context) error { return second })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := srv.Serve(ctx, listen(t))
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}
