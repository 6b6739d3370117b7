package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smthngslv/mycelia/internal/broker/inmemory"
	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
	"github.com/smthngslv/mycelia/internal/execctx"
	"github.com/smthngslv/mycelia/internal/executor"
	"github.com/smthngslv/mycelia/internal/graph"
	"github.com/smthngslv/mycelia/internal/scheduler"
)

func awaitWithTimeout(t *testing.T, s *scheduler.Scheduler, id callid.ID) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.Await(ctx, id)
}

func TestExecutor_RunsSingleNode(t *testing.T) {
	g := graph.New("g")
	double, err := g.Register("double", graph.Schema{PositionalOnly: 1}, func(ctx *execctx.Context, args []any, kwargs map[string]any) (any, error) {
		return args[0].(int) * 2, nil
	})
	require.NoError(t, err)

	b := inmemory.New(16, 16)
	s := scheduler.New(b)
	ex := executor.New(g, s, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := s.Register(ctx, double.Invoke([]any{21}, nil))
	require.NoError(t, err)

	go ex.Run(ctx, 1)

	v, err := awaitWithTimeout(t, s, id)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestExecutor_PropagatesDependencyThroughTwoNodes(t *testing.T) {
	g := graph.New("g")
	inc, err := g.Register("inc", graph.Schema{PositionalOnly: 1}, func(ctx *execctx.Context, args []any, kwargs map[string]any) (any, error) {
		return args[0].(int) + 1, nil
	})
	require.NoError(t, err)

	sum, err := g.Register("sum", graph.Schema{VariadicPositional: true}, func(ctx *execctx.Context, args []any, kwargs map[string]any) (any, error) {
		total := 0
		for _, a := range args {
			total += a.(int)
		}
		return total, nil
	})
	require.NoError(t, err)

	b := inmemory.New(16, 16)
	s := scheduler.New(b)
	ex := executor.New(g, s, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := inc.Invoke([]any{1}, nil)
	c := inc.Invoke([]any{2}, nil)
	id, err := s.Register(ctx, sum.Invoke([]any{a, c}, nil))
	require.NoError(t, err)

	go ex.Run(ctx, 2)

	v, err := awaitWithTimeout(t, s, id)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestExecutor_NodeFailurePropagates(t *testing.T) {
	g := graph.New("g")
	boom, err := g.Register("boom", graph.Schema{}, func(ctx *execctx.Context, args []any, kwargs map[string]any) (any, error) {
		return nil, errors.New("explode")
	})
	require.NoError(t, err)

	b := inmemory.New(16, 16)
	s := scheduler.New(b)
	ex := executor.New(g, s, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := s.Register(ctx, boom.Invoke(nil, nil))
	require.NoError(t, err)

	go ex.Run(ctx, 1)

	_, err = awaitWithTimeout(t, s, id)
	require.Error(t, err)
}

func TestExecutor_TailCallContinuation(t *testing.T) {
	g := graph.New("g")
	greet, err := g.Register("greet", graph.Schema{}, func(ctx *execctx.Context, args []any, kwargs map[string]any) (any, error) {
		return "hi", nil
	})
	require.NoError(t, err)

	relay, err := g.Register("relay", graph.Schema{}, func(ctx *execctx.Context, args []any, kwargs map[string]any) (any, error) {
		return greet.Invoke(nil, nil), nil
	})
	require.NoError(t, err)

	b := inmemory.New(16, 16)
	s := scheduler.New(b)
	ex := executor.New(g, s, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := s.Register(ctx, relay.Invoke(nil, nil))
	require.NoError(t, err)

	go ex.Run(ctx, 1)

	v, err := awaitWithTimeout(t, s, id)
	require.NoError(t, err)
	assert.Equal(t, "hi", v)
}

func TestExecutor_NodeNotRegistered(t *testing.T) {
	g := graph.New("g")

	b := inmemory.New(16, 16)
	s := scheduler.New(b)
	ex := executor.New(g, s, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := s.Register(ctx, call.NewInvocation(callid.NodeRef{GraphID: "g", Node: "missing"}, nil, nil))
	require.NoError(t, err)

	go ex.Run(ctx, 1)

	_, err = awaitWithTimeout(t, s, id)
	require.Error(t, err)

	var notRegistered *graph.NodeNotRegisteredError
	require.ErrorAs(t, err, &notRegistered)
}
