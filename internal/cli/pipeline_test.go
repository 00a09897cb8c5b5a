package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kinspect/internal/engine"
	"github.com/roach88/kinspect/internal/store"
)

func testServices(t *testing.T) services {
	t.Helper()
	st, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return services{store: st, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestServices_NoListenersRunsWork(t *testing.T) {
	svc := testServices(t)

	var got []engine.Option
	called := false
	err := svc.run(context.Background(), func(ctx context.Context, eopts []engine.Option) error {
		called = true
		got = eopts
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Empty(t, got)
}

func TestServices_WorkErrorIsReturned(t *testing.T) {
	svc := testServices(t)
	boom := errors.New("boom")

	err := svc.run(context.Background(), func(context.Context, []engine.Option) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestServices_BridgeAddsNotifier(t *testing.T) {
	svc := testServices(t)
	svc.listen = "127.0.0.1:0"
	svc.metricsListen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n int
	err := svc.run(ctx, func(ctx context.Context, eopts []engine.Option) error {
		n = len(eopts)
		cancel()
		return nil
	})
	assert.True(t, isShutdown(ctx, err), "unexpected error: %v", err)
	assert.Equal(t, 1, n)
}

func TestServices_BadListenAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	svc := testServices(t)
	svc.listen = "127.0.0.1:0"
	svc.metricsListen = ln.Addr().String()

	err = svc.run(context.Background(), func(context.Context, []engine.Option) error {
		t.Fatal("work must not run")
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics listen")
}

func TestIsShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.True(t, isShutdown(ctx, nil))
	assert.False(t, isShutdown(ctx, errors.New("x")))

	cancel()
	assert.True(t, isShutdown(ctx, context.Canceled))
	assert.False(t, isShutdown(ctx, errors.New("x")))
}
