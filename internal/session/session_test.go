package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smthngslv/mycelia/internal/config"
	"github.com/smthngslv/mycelia/internal/execctx"
	"github.com/smthngslv/mycelia/internal/graph"
	"github.com/smthngslv/mycelia/internal/session"
)

func TestSession_OpenExecuteClose(t *testing.T) {
	g := graph.New("g")
	double, err := g.Register("double", graph.Schema{PositionalOnly: 1}, func(ctx *execctx.Context, args []any, kwargs map[string]any) (any, error) {
		return args[0].(int) * 2, nil
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.GraphID = g.ID()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := session.Open(ctx, g, cfg)
	require.NoError(t, err)
	defer sess.Close()

	v, err := sess.Execute(ctx, double.Invoke([]any{21}, nil))
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	assert.True(t, g.IsOpen())
}

func TestSession_SubmitDoesNotWaitForCompletion(t *testing.T) {
	g := graph.New("g")
	done := make(chan struct{})
	_, err := g.Register("signal", graph.Schema{}, func(ctx *execctx.Context, args []any, kwargs map[string]any) (any, error) {
		close(done)
		return nil, nil
	})
	require.NoError(t, err)
	signal, err := g.Lookup("signal")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.GraphID = g.ID()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := session.Open(ctx, g, cfg)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Submit(ctx, signal.Invoke(nil, nil))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submitted call never ran")
	}
}

func TestSession_ZeroWorkersRunsNoExecutor(t *testing.T) {
	g := graph.New("g")
	_, err := g.Register("noop", graph.Schema{}, func(ctx *execctx.Context, args []any, kwargs map[string]any) (any, error) {
		return "unused", nil
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.GraphID = g.ID()
	cfg.Workers = 0

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	sess, err := session.Open(ctx, g, cfg)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Execute(ctx, mustLookup(t, g, "noop").Invoke(nil, nil))
	require.Error(t, err, "with zero workers nothing claims the ready call before the context deadline")
}

func mustLookup(t *testing.T, g *graph.Graph, name string) *graph.Node {
	t.Helper()
	n, err := g.Lookup(name)
	require.NoError(t, err)
	return n
}
