// Package executor drains ready work: given a READY call, it resolves
// its argument slots to concrete values, dispatches to the node body, and
// reports the observed outcome back to the scheduler.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smthngslv/mycelia/internal/broker"
	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
	"github.com/smthngslv/mycelia/internal/ctxlog"
	"github.com/smthngslv/mycelia/internal/execctx"
	"github.com/smthngslv/mycelia/internal/graph"
	"github.com/smthngslv/mycelia/internal/scheduler"
	"github.com/smthngslv/mycelia/internal/value"
)

// idlePollInterval is how long a worker sleeps after an empty Claim before
// retrying, so an empty broker doesn't spin a core.
const idlePollInterval = 20 * time.Millisecond

// Executor pulls ready calls off a Broker, resolves their arguments, runs
// the matching Node body, and reports the result to a Scheduler. One
// Executor can run any number of worker goroutines over the same graph.
type Executor struct {
	graph  *graph.Graph
	sched  *scheduler.Scheduler
	broker broker.Broker
}

// New builds an Executor dispatching calls on g through sched, pulling
// ready work from b.
func New(g *graph.Graph, sched *scheduler.Scheduler, b broker.Broker) *Executor {
	return &Executor{graph: g, sched: sched, broker: b}
}

// Run starts n worker goroutines that claim and execute ready calls until
// ctx is cancelled. It blocks until every worker has exited.
func (e *Executor) Run(ctx context.Context, n int) {
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func(workerID int) {
			defer func() { done <- struct{}{} }()
			e.workerLoop(ctx, workerID)
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}
}

func (e *Executor) workerLoop(ctx context.Context, workerID int) {
	logger := ctxlog.FromContext(ctx).With("worker", workerID)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		id, err := e.broker.Claim(ctx)
		if err != nil {
			if errors.Is(err, broker.ErrNoReadyWork) {
				select {
				case <-time.After(idlePollInterval):
				case <-ctx.Done():
					return
				}
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			logger.Error("broker.Claim failed", "error", err)
			continue
		}

		e.execute(ctx, id)
	}
}

// execute runs one claimed call to completion: BeginRunning, resolve
// arguments, invoke the node body, Complete, Ack. A failure at any step
// before the node body runs is reported to the scheduler as a FAILED
// outcome rather than silently dropped, so dependents still unblock.
func (e *Executor) execute(ctx context.Context, id callid.ID) {
	logger := ctxlog.FromContext(ctx).With("call", id)

	c, err := e.sched.BeginRunning(ctx, id)
	if err != nil {
		// Another worker already claimed it, or it was already terminal
		// (e.g. failed eagerly via dependency propagation after this id
		// was published but before it was claimed); ack the claim so the
		// broker does not redeliver it, and move on.
		logger.Debug("BeginRunning skipped", "error", err)
		if err := e.broker.Ack(ctx, id); err != nil {
			logger.Warn("broker.Ack failed", "error", err)
		}
		return
	}

	result := e.run(ctx, c)
	if err := e.sched.Complete(ctx, id, result); err != nil {
		logger.Error("scheduler.Complete failed", "error", err)
	}
	if err := e.broker.Ack(ctx, id); err != nil {
		logger.Warn("broker.Ack failed", "error", err)
	}
}

func (e *Executor) run(ctx context.Context, c call.Call) scheduler.ExecutionResult {
	node, err := e.graph.Lookup(c.NodeRef.Node)
	if err != nil {
		return scheduler.ExecutionResult{Err: err}
	}

	args, kwargs, err := e.resolveSlots(c)
	if err != nil {
		return scheduler.ExecutionResult{Err: err}
	}

	if err := node.Schema().Validate(node.Name(), args, kwargs); err != nil {
		return scheduler.ExecutionResult{Err: err}
	}

	execCtx := execctx.New(ctx, e.sched)

	out, err := node.Fn()(execCtx, args, kwargs)
	if err != nil {
		return scheduler.ExecutionResult{Err: err}
	}

	if d, ok := out.(call.Deferred); ok {
		if d.IsCall() {
			return scheduler.ExecutionResult{Continuation: &d}
		}
		out = d.Value()
	}

	if err := checkSerializable(out); err != nil {
		return scheduler.ExecutionResult{Err: &call.NonSerializableResultError{Cause: err}}
	}
	return scheduler.ExecutionResult{Value: out}
}

// checkSerializable confirms out converts to a cty.Value and encodes with
// the canonical codec before it is handed to the scheduler as a RESOLVED
// value — the
// same codec Storage and content-hashing use, so a result a dependent call
// later receives as an argument is guaranteed encodable too.
func checkSerializable(out any) error {
	cv, err := value.FromGo(out)
	if err != nil {
		return err
	}
	_, err = value.CanonicalEncode(cv)
	return err
}

// resolveSlots replaces every Ref slot in c with its dependency's resolved
// value. By the time c is RUNNING, every dependency is terminal — the
// scheduler only marks c READY once its pendingDeps count reaches zero
// — so a non-terminal or error-outcome dependency here
// indicates a scheduler invariant violation, not a retryable condition.
func (e *Executor) resolveSlots(c call.Call) ([]any, map[string]any, error) {
	args := make([]any, len(c.Args))
	for i, s := range c.Args {
		v, err := e.resolveSlot(s)
		if err != nil {
			return nil, nil, fmt.Errorf("call %s: arg %d: %w", c.ID, i, err)
		}
		args[i] = v
	}

	kwargs := make(map[string]any, len(c.Kwargs))
	for k, s := range c.Kwargs {
		v, err := e.resolveSlot(s)
		if err != nil {
			return nil, nil, fmt.Errorf("call %s: kwarg %q: %w", c.ID, k, err)
		}
		kwargs[k] = v
	}
	return args, kwargs, nil
}

func (e *Executor) resolveSlot(s call.Slot) (any, error) {
	if !s.IsRef {
		return s.Literal, nil
	}
	outcome, ok := e.sched.Result(s.RefID)
	if !ok {
		return nil, fmt.Errorf("dependency %s has no terminal result", s.RefID)
	}
	if outcome.Kind == call.OutcomeError {
		return nil, fmt.Errorf("dependency %s failed: %w", s.RefID, outcome.Err)
	}
	return outcome.Value, nil
}
