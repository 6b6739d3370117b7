// Package scheduler implements the central state machine tracking call
// states, dispatching calls whose dependencies are satisfied, and
// resolving tail-calls (continuations).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smthngslv/mycelia/internal/broker"
	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
	"github.com/smthngslv/mycelia/internal/ctxlog"
	"github.com/smthngslv/mycelia/internal/dagbuilder"
	"github.com/smthngslv/mycelia/internal/storage"
)

// ExecutionResult is what internal/executor hands back to the scheduler
// after running one node body: exactly one of Value,
// Continuation, or Err is meaningful.
type ExecutionResult struct {
	// Continuation is set when the body returned another deferred call
	// (tail-call).
	Continuation *call.Deferred
	// Value is set when the body returned a plain value.
	Value any
	// Err is set when the body raised.
	Err error
}

// Scheduler is the central state machine. It satisfies
// dagbuilder.CallStore (so a Builder can be constructed over it) and
// execctx.Registrar (so a Context's Submit reaches it).
type Scheduler struct {
	mu      sync.RWMutex
	records map[callid.ID]*record

	builder *dagbuilder.Builder
	broker  broker.Broker
	storage storage.Storage
	tracer  Tracer
	metrics Metrics

	// bgCtx/bgCancel bound every goRetry background retry's lifetime
	// independently of any single caller's request-scoped ctx, so a retry
	// started while handling one call keeps running after that call's own
	// context is gone. Shutdown cancels bgCtx and drains retryWG.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	retryWG  sync.WaitGroup
}

// Option configures optional Scheduler behavior.
type Option func(*Scheduler)

// WithStorage wires a durable Storage Adapter. Without one,
// the scheduler's call table lives only in memory for the session.
func WithStorage(s storage.Storage) Option {
	return func(sch *Scheduler) { sch.storage = s }
}

// WithTracer wires the Observability hook.
func WithTracer(t Tracer) Option {
	return func(sch *Scheduler) { sch.tracer = t }
}

// WithMetrics wires scheduler/executor counters.
func WithMetrics(m Metrics) Option {
	return func(sch *Scheduler) { sch.metrics = m }
}

// New constructs a Scheduler publishing ready calls through b.
func New(b broker.Broker, opts ...Option) *Scheduler {
	bgCtx, bgCancel := context.WithCancel(context.Background())
	s := &Scheduler{
		records:  make(map[callid.ID]*record),
		broker:   b,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.builder = dagbuilder.New(s)
	return s
}

// Shutdown cancels any goRetry background retries still waiting out a
// broker or storage outage and waits for them to exit. Sessions call this
// during Close, after their worker pool and Run goroutine have drained, so
// no new retry can be started afterward.
func (s *Scheduler) Shutdown() {
	s.bgCancel()
	s.retryWG.Wait()
}

// Register implements register(call) -> call-id for the
// root call of a session's execute() (internal/session is the caller).
func (s *Scheduler) Register(ctx context.Context, d call.Deferred) (callid.ID, error) {
	return s.builder.Register(ctx, d)
}

// Submit implements execctx.Registrar: background
// submission. It registers d without establishing any dependency edge from
// the caller.
func (s *Scheduler) Submit(ctx context.Context, d call.Deferred) error {
	_, err := s.builder.Register(ctx, d)
	return err
}

// Lookup implements dagbuilder.CallStore.
func (s *Scheduler) Lookup(id callid.ID) (call.Call, bool) {
	rec := s.get(id)
	if rec == nil {
		return call.Call{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.call, true
}

// Result returns id's current outcome, flattening any forward chain to its
// ultimate value or error. ok is false if id has no record, or if it has
// not yet reached a terminal state — internal/executor only calls this for
// a ready call's already-resolved dependencies, so either
// case signals a bug upstream rather than something to retry.
func (s *Scheduler) Result(id callid.ID) (call.Outcome, bool) {
	rec := s.get(id)
	if rec == nil {
		return call.Outcome{}, false
	}
	rec.mu.Lock()
	status, outcome := rec.status, rec.outcome
	rec.mu.Unlock()
	if !status.Terminal() {
		return call.Outcome{}, false
	}
	_, flat := s.flatten(id, outcome)
	return flat, true
}

// Insert implements dagbuilder.CallStore: it records the call, short-
// circuiting to any already-terminal result Storage holds for c.ID (cross-
// session memoization — a fresh session re-registering a call another
// session already resolved reuses that result rather than re-running the
// node body), and otherwise wires c's dependency edges and marks it READY
// once every dependency is terminal.
func (s *Scheduler) Insert(ctx context.Context, c call.Call) error {
	if s.storage != nil {
		if status, outcome, err := s.storage.GetResult(ctx, c.ID); err == nil && status.Terminal() {
			rec := newRecord(c)
			rec.status = status
			rec.outcome = outcome
			close(rec.done)

			s.mu.Lock()
			s.records[c.ID] = rec
			s.mu.Unlock()
			return nil
		}
	}

	rec := newRecord(c)

	s.mu.Lock()
	s.records[c.ID] = rec
	s.mu.Unlock()

	if s.storage != nil {
		if err := s.storage.PutCall(ctx, c); err != nil {
			ctxlog.FromContext(ctx).Warn("storage.PutCall failed, retrying in background", "id", c.ID, "error", err)
			s.goRetry(ctx, "storage.PutCall", func(ctx context.Context) error {
				if err := s.storage.PutCall(ctx, c); err != nil {
					return &StorageUnavailableError{Cause: err}
				}
				return nil
			})
		}
	}

	deps := c.UniqueDependencies()
	pending := 0
	var failedDep *callid.ID
	var failedOutcome call.Outcome

	for _, depID := range deps {
		depRec := s.get(depID)
		if depRec == nil {
			// dagbuilder registers children before parents, post-order, so
			// every dependency id must already have a record.
			return fmt.Errorf("scheduler: dependency %s of %s has no record", depID, c.ID)
		}

		depRec.mu.Lock()
		status, outcome := depRec.status, depRec.outcome
		depRec.mu.Unlock()

		switch {
		case status == call.StatusFailed:
			id, flat := s.flatten(depID, outcome)
			failedDep, failedOutcome = &id, flat
		case status == call.StatusResolved:
			// The dependency is already terminal: flatten any forward chain
			// now rather than waiting for a completion event that, for an
			// already-terminal dependency, will never arrive.
			id, flat := s.flatten(depID, outcome)
			if flat.Kind == call.OutcomeError {
				failedDep, failedOutcome = &id, flat
			}
		default:
			depRec.mu.Lock()
			depRec.dependents = append(depRec.dependents, c.ID)
			depRec.mu.Unlock()
			pending++
		}

		if failedDep != nil {
			break
		}
	}

	if failedDep != nil {
		s.failCall(ctx, c.ID, call.Failed(&DependencyFailedError{DepID: *failedDep, Cause: failedOutcome.Err}))
		return nil
	}

	rec.mu.Lock()
	rec.pendingDeps = pending
	ready := pending == 0
	if ready {
		rec.status = call.StatusReady
	}
	rec.mu.Unlock()

	if ready {
		s.publishReady(ctx, c.ID)
	}
	return nil
}

// BeginRunning transitions id from READY to RUNNING, the point at which
// the Observability hook emits span-start. Returns
// ErrAlreadyHandled if id was not READY (already resolved/failed by a
// racing claim, or by eager dependency-failure propagation).
func (s *Scheduler) BeginRunning(ctx context.Context, id callid.ID) (call.Call, error) {
	rec := s.get(id)
	if rec == nil {
		return call.Call{}, ErrUnknownCall
	}

	rec.mu.Lock()
	if rec.status != call.StatusReady {
		rec.mu.Unlock()
		return call.Call{}, ErrAlreadyHandled
	}
	rec.status = call.StatusRunning
	c := rec.call
	rec.mu.Unlock()

	if s.storage != nil {
		if err := s.storage.CompareAndSwapStatus(ctx, id, call.StatusReady, call.StatusRunning); err != nil {
			rec.mu.Lock()
			rec.status = call.StatusReady
			rec.mu.Unlock()
			return call.Call{}, ErrAlreadyHandled
		}
	}

	if s.tracer != nil {
		end := s.tracer.StartSpan(ctx, id, c.NodeRef)
		rec.mu.Lock()
		rec.spanEnd = end
		rec.mu.Unlock()
	}
	if s.metrics != nil {
		s.metrics.ObserveDispatched(c.NodeRef)
	}
	return c, nil
}

// Complete applies an executor's ExecutionResult to id: a literal resolves
// the call, a returned call becomes a continuation, and an error fails it.
// It first claims the RUNNING -> RESOLVED|FAILED transition against
// Storage; if another writer already committed id's terminal status first,
// this result is discarded rather than applied.
func (s *Scheduler) Complete(ctx context.Context, id callid.ID, result ExecutionResult) error {
	to := call.StatusResolved
	if result.Err != nil {
		to = call.StatusFailed
	}
	if !s.claimTerminalTransition(ctx, id, to) {
		return nil
	}

	switch {
	case result.Err != nil:
		s.failCall(ctx, id, call.Failed(&NodeExecutionFailureError{Cause: result.Err}))
		return nil
	case result.Continuation != nil:
		targetID, err := s.builder.Register(ctx, *result.Continuation)
		if err != nil {
			s.failCall(ctx, id, call.Failed(&NodeExecutionFailureError{Cause: err}))
			return nil
		}
		return s.forward(ctx, id, targetID)
	default:
		s.resolveValue(ctx, id, result.Value)
		return nil
	}
}

// claimTerminalTransition enforces the cross-process single-writer
// guarantee storage.CompareAndSwapStatus's contract promises for RUNNING ->
// RESOLVED|FAILED|FORWARD: it returns false only when another writer has
// already committed id's terminal status, meaning this caller lost the
// race and must discard its result. A storage hiccup (as opposed to a lost
// race) is retried in the background rather than treated as a loss, since
// this process's in-memory record remains the only writer it's aware of
// regardless of whether the durable write has landed yet.
func (s *Scheduler) claimTerminalTransition(ctx context.Context, id callid.ID, to call.Status) bool {
	if s.storage == nil {
		return true
	}
	err := s.storage.CompareAndSwapStatus(ctx, id, call.StatusRunning, to)
	if err == nil {
		return true
	}
	if errors.Is(err, storage.ErrCASConflict) {
		ctxlog.FromContext(ctx).Warn("lost terminal-transition race, discarding result", "id", id, "to", to)
		return false
	}

	ctxlog.FromContext(ctx).Warn("storage.CompareAndSwapStatus failed, retrying in background", "id", id, "error", err)
	s.goRetry(ctx, "storage.CompareAndSwapStatus", func(ctx context.Context) error {
		err := s.storage.CompareAndSwapStatus(ctx, id, call.StatusRunning, to)
		if errors.Is(err, storage.ErrCASConflict) {
			// Another writer already committed the transition while this
			// one waited out the outage; nothing left to retry.
			return nil
		}
		return err
	})
	return true
}

// Requeue moves id from RUNNING back to READY after a lost claim (worker
// crash, visibility timeout), and republishes it. This is the redelivery
// half of at-least-once delivery: a broker Nack alone only notifies the
// requeue stream and does not make id claimable again — this is the call
// that flips the record back to READY and republishes id, so a re-claim
// does not find the record stuck at RUNNING and fail with
// ErrAlreadyHandled.
func (s *Scheduler) Requeue(ctx context.Context, id callid.ID) {
	rec := s.get(id)
	if rec == nil {
		return
	}

	rec.mu.Lock()
	if rec.status != call.StatusRunning {
		rec.mu.Unlock()
		return
	}
	rec.status = call.StatusReady
	rec.mu.Unlock()

	if s.storage != nil {
		if err := s.storage.CompareAndSwapStatus(ctx, id, call.StatusRunning, call.StatusReady); err != nil {
			if errors.Is(err, storage.ErrCASConflict) {
				// id moved past RUNNING before this requeue landed (it
				// resolved, failed, or another requeue already won); that
				// event is authoritative, not this one.
				rec.mu.Lock()
				if rec.status == call.StatusReady {
					rec.status = call.StatusRunning
				}
				rec.mu.Unlock()
				return
			}
			ctxlog.FromContext(ctx).Warn("storage.CompareAndSwapStatus failed during requeue, retrying in background", "id", id, "error", err)
			s.goRetry(ctx, "storage.CompareAndSwapStatus(requeue)", func(ctx context.Context) error {
				err := s.storage.CompareAndSwapStatus(ctx, id, call.StatusRunning, call.StatusReady)
				if errors.Is(err, storage.ErrCASConflict) {
					return nil
				}
				return err
			})
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveReady(rec.call.NodeRef)
	}
	if err := s.broker.Publish(ctx, id); err != nil {
		ctxlog.FromContext(ctx).Warn("broker.Publish failed, retrying in background", "id", id, "error", err)
		s.goRetry(ctx, "broker.Publish(requeue)", func(ctx context.Context) error {
			if err := s.broker.Publish(ctx, id); err != nil {
				return &BrokerUnavailableError{Cause: err}
			}
			return nil
		})
	}
}

// CancelAll fails every non-terminal call with SessionCancelledError,
// implementing session teardown's "cancel every in-flight and pending
// call" guarantee. Callers must call this after the worker pool and Run
// goroutine have drained, and before Storage/Broker are closed.
func (s *Scheduler) CancelAll(ctx context.Context) {
	s.mu.RLock()
	ids := make([]callid.ID, 0, len(s.records))
	for id, rec := range s.records {
		if status, _ := rec.snapshot(); !status.Terminal() {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.failCall(ctx, id, call.Failed(&SessionCancelledError{CallID: id}))
	}
}

// Await blocks until id's terminal value is known, following any forward
// chain, implementing execute(call) -> value.
func (s *Scheduler) Await(ctx context.Context, id callid.ID) (any, error) {
	for {
		rec := s.get(id)
		if rec == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCall, id)
		}

		rec.mu.Lock()
		status, outcome, done := rec.status, rec.outcome, rec.done
		rec.mu.Unlock()

		if !status.Terminal() {
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		switch outcome.Kind {
		case call.OutcomeValue:
			return outcome.Value, nil
		case call.OutcomeError:
			return nil, outcome.Err
		case call.OutcomeForward:
			id = outcome.Forward
			continue
		default:
			return nil, nil
		}
	}
}

func (s *Scheduler) get(id callid.ID) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id]
}

func (s *Scheduler) publishReady(ctx context.Context, id callid.ID) {
	rec := s.get(id)
	if rec != nil && s.metrics != nil {
		s.metrics.ObserveReady(rec.call.NodeRef)
	}
	if err := s.broker.Publish(ctx, id); err != nil {
		ctxlog.FromContext(ctx).Warn("broker.Publish failed, retrying in background", "id", id, "error", err)
		s.goRetry(ctx, "broker.Publish", func(ctx context.Context) error {
			if err := s.broker.Publish(ctx, id); err != nil {
				return &BrokerUnavailableError{Cause: err}
			}
			return nil
		})
	}
}

// resolveValue marks id RESOLVED with a concrete value and advances every
// dependent waiting on it.
func (s *Scheduler) resolveValue(ctx context.Context, id callid.ID, value any) {
	rec := s.get(id)
	if rec == nil {
		return
	}

	rec.mu.Lock()
	if rec.status.Terminal() {
		rec.mu.Unlock()
		return
	}
	rec.status = call.StatusResolved
	rec.outcome = call.Resolved(value)
	deps := rec.dependents
	rec.dependents = nil
	endSpan := rec.spanEnd
	nodeRef := rec.call.NodeRef
	close(rec.done)
	rec.mu.Unlock()

	s.persistResult(ctx, id, call.StatusResolved, rec.outcome)
	if endSpan != nil {
		endSpan(rec.outcome)
	}
	if s.metrics != nil {
		s.metrics.ObserveResolved(nodeRef)
	}
	s.publishCompletion(ctx, id, rec.outcome)

	for _, dep := range deps {
		s.onDependencyResolved(ctx, dep)
	}
}

// forward implements continuation resolution: id becomes a
// forwarding record pointing at target, and every dependent id had is
// transferred to target (or, if target is already terminal, flattened and
// notified immediately).
func (s *Scheduler) forward(ctx context.Context, id, target callid.ID) error {
	rec := s.get(id)
	if rec == nil {
		return ErrUnknownCall
	}

	rec.mu.Lock()
	if rec.status.Terminal() {
		rec.mu.Unlock()
		return nil
	}
	rec.status = call.StatusResolved
	rec.outcome = call.Forward(target)
	deps := rec.dependents
	rec.dependents = nil
	endSpan := rec.spanEnd
	close(rec.done)
	rec.mu.Unlock()

	s.persistResult(ctx, id, call.StatusResolved, rec.outcome)
	if endSpan != nil {
		endSpan(rec.outcome)
	}
	s.publishCompletion(ctx, id, rec.outcome)

	targetRec := s.get(target)
	if targetRec == nil {
		return fmt.Errorf("scheduler: forward target %s of %s has no record", target, id)
	}

	targetRec.mu.Lock()
	terminal := targetRec.status.Terminal()
	targetOutcome := targetRec.outcome
	if !terminal {
		targetRec.dependents = append(targetRec.dependents, deps...)
	}
	targetRec.mu.Unlock()

	if terminal {
		resolvedID, flat := s.flatten(target, targetOutcome)
		for _, dep := range deps {
			s.notifyFlattened(ctx, dep, resolvedID, flat)
		}
	}
	return nil
}

// failCall marks id FAILED with outcome and eagerly fails every transitive
// dependent, skipping their execution entirely rather than letting them
// become READY and fail individually against a missing dependency.
func (s *Scheduler) failCall(ctx context.Context, id callid.ID, outcome call.Outcome) {
	rec := s.get(id)
	if rec == nil {
		return
	}

	rec.mu.Lock()
	if rec.status.Terminal() {
		rec.mu.Unlock()
		return
	}
	rec.status = call.StatusFailed
	rec.outcome = outcome
	deps := rec.dependents
	rec.dependents = nil
	endSpan := rec.spanEnd
	nodeRef := rec.call.NodeRef
	close(rec.done)
	rec.mu.Unlock()

	s.persistResult(ctx, id, call.StatusFailed, outcome)
	if endSpan != nil {
		endSpan(outcome)
	}
	if s.metrics != nil {
		s.metrics.ObserveFailed(nodeRef)
	}
	s.publishCompletion(ctx, id, outcome)

	for _, dep := range deps {
		s.failCall(ctx, dep, call.Failed(&DependencyFailedError{DepID: id, Cause: outcome.Err}))
	}
}

// onDependencyResolved decrements id's pending-dependency count, marking
// it READY and publishing it once the count reaches zero.
func (s *Scheduler) onDependencyResolved(ctx context.Context, id callid.ID) {
	rec := s.get(id)
	if rec == nil {
		return
	}

	rec.mu.Lock()
	rec.pendingDeps--
	ready := rec.pendingDeps == 0 && rec.status == call.StatusPending
	if ready {
		rec.status = call.StatusReady
	}
	rec.mu.Unlock()

	if ready {
		s.publishReady(ctx, id)
	}
}

// notifyFlattened applies a dependency's already-flattened terminal
// outcome to one dependent.
func (s *Scheduler) notifyFlattened(ctx context.Context, dep, resolvedID callid.ID, outcome call.Outcome) {
	if outcome.Kind == call.OutcomeError {
		s.failCall(ctx, dep, call.Failed(&DependencyFailedError{DepID: resolvedID, Cause: outcome.Err}))
		return
	}
	s.onDependencyResolved(ctx, dep)
}

// flatten walks a forward chain starting at (id, outcome) to its ultimate
// value or error, so a late reader of a forwarding record (one that never
// observed the original forward() call) still sees the real terminal
// result.
func (s *Scheduler) flatten(id callid.ID, outcome call.Outcome) (callid.ID, call.Outcome) {
	for outcome.Kind == call.OutcomeForward {
		next := s.get(outcome.Forward)
		if next == nil {
			break
		}
		id = outcome.Forward
		next.mu.Lock()
		outcome = next.outcome
		next.mu.Unlock()
	}
	return id, outcome
}

func (s *Scheduler) persistResult(ctx context.Context, id callid.ID, status call.Status, outcome call.Outcome) {
	if s.storage == nil {
		return
	}
	if err := s.storage.PutResult(ctx, id, status, outcome); err != nil {
		ctxlog.FromContext(ctx).Warn("storage.PutResult failed, retrying in background", "id", id, "error", err)
		s.goRetry(ctx, "storage.PutResult", func(ctx context.Context) error {
			if err := s.storage.PutResult(ctx, id, status, outcome); err != nil {
				return &StorageUnavailableError{Cause: err}
			}
			return nil
		})
	}
}

func (s *Scheduler) publishCompletion(ctx context.Context, id callid.ID, outcome call.Outcome) {
	if err := s.broker.PublishCompletion(ctx, broker.Completion{ID: id, Outcome: outcome}); err != nil {
		ctxlog.FromContext(ctx).Warn("broker.PublishCompletion failed, retrying in background", "id", id, "error", err)
		s.goRetry(ctx, "broker.PublishCompletion", func(ctx context.Context) error {
			if err := s.broker.PublishCompletion(ctx, broker.Completion{ID: id, Outcome: outcome}); err != nil {
				return &BrokerUnavailableError{Cause: err}
			}
			return nil
		})
	}
}

// Run consumes the broker's completion and requeue streams, converging
// this Scheduler's in-memory state with completions raised by any process
// sharing the broker/storage and with lost claims Nacked by any worker —
// the in-memory state is a cache kept coherent via broker events, not the
// source of truth. It returns when ctx is cancelled or either stream closes.
func (s *Scheduler) Run(ctx context.Context) error {
	completions, err := s.broker.SubscribeCompletions(ctx)
	if err != nil {
		return err
	}
	requeues, err := s.broker.SubscribeRequeues(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-completions:
			if !ok {
				return nil
			}
			s.applyCompletion(ctx, c)
		case id, ok := <-requeues:
			if !ok {
				return nil
			}
			s.Requeue(ctx, id)
		}
	}
}

func (s *Scheduler) applyCompletion(ctx context.Context, c broker.Completion) {
	switch c.Outcome.Kind {
	case call.OutcomeValue:
		s.resolveValue(ctx, c.ID, c.Outcome.Value)
	case call.OutcomeForward:
		_ = s.forward(ctx, c.ID, c.Outcome.Forward)
	case call.OutcomeError:
		s.failCall(ctx, c.ID, c.Outcome)
	}
}
