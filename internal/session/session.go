// Package session implements session lifecycle: "open(graph)
// -> session: connects to broker and storage, registers the graph, starts
// worker loops. close(session): cancels, flushes, disconnects." It is the
// one place that wires a concrete Broker and Storage driver, the optional
// Tracer/Metrics hooks, the Scheduler, and the Executor together.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/smthngslv/mycelia/internal/broker"
	"github.com/smthngslv/mycelia/internal/broker/inmemory"
	"github.com/smthngslv/mycelia/internal/broker/wsbroker"
	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
	"github.com/smthngslv/mycelia/internal/config"
	"github.com/smthngslv/mycelia/internal/ctxlog"
	"github.com/smthngslv/mycelia/internal/executor"
	"github.com/smthngslv/mycelia/internal/graph"
	"github.com/smthngslv/mycelia/internal/metrics"
	"github.com/smthngslv/mycelia/internal/scheduler"
	storageiface "github.com/smthngslv/mycelia/internal/storage"
	"github.com/smthngslv/mycelia/internal/storage/badgerstore"
	storageinmemory "github.com/smthngslv/mycelia/internal/storage/inmemory"
	"github.com/smthngslv/mycelia/internal/tracing"
)

// Session owns one open graph's runtime: the Scheduler, the Executor's
// worker pool, and whichever Broker/Storage drivers cfg named. Acquired
// with Open, released with Close — "scoped acquisition with
// guaranteed release on all exit paths".
type Session struct {
	id        uuid.UUID
	graph     *graph.Graph
	scheduler *scheduler.Scheduler
	executor  *executor.Executor
	broker    broker.Broker
	storage   storageiface.Storage

	wsBroker       *wsbroker.Broker // non-nil only when cfg.Broker.Kind == "ws"
	tracerProvider *sdktrace.TracerProvider

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open builds a Session over g, whose nodes the caller has already
// registered: it freezes g against further registration, constructs the
// drivers cfg names, and starts cfg.Workers local executor goroutines. The
// returned Session's Close must be called on every exit path.
func Open(ctx context.Context, g *graph.Graph, cfg config.Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b, wsb, err := buildBroker(cfg.Broker)
	if err != nil {
		return nil, err
	}

	store, err := buildStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}

	opts := []scheduler.Option{scheduler.WithStorage(store)}

	var tp *sdktrace.TracerProvider
	if cfg.Tracing.Enabled {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("session: build trace exporter: %w", err)
		}
		tp = tracing.NewDevelopmentProvider(exporter)
		opts = append(opts, scheduler.WithTracer(tracing.New(cfg.Tracing.ServiceName)))
	}

	if cfg.Metrics.Enabled {
		opts = append(opts, scheduler.WithMetrics(metrics.New(prometheus.DefaultRegisterer)))
	}

	sched := scheduler.New(b, opts...)

	g.Open()
	ex := executor.New(g, sched, b)

	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:             uuid.New(),
		graph:          g,
		scheduler:      sched,
		executor:       ex,
		broker:         b,
		storage:        store,
		wsBroker:       wsb,
		tracerProvider: tp,
		cancel:         cancel,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := sched.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			ctxlog.FromContext(ctx).Warn("scheduler.Run exited", "error", err)
		}
	}()

	if cfg.Workers > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ex.Run(runCtx, cfg.Workers)
		}()
	}

	ctxlog.FromContext(ctx).Info("session opened", "session_id", s.id, "graph_id", g.ID(), "workers", cfg.Workers)
	return s, nil
}

func buildBroker(cfg config.BrokerConfig) (broker.Broker, *wsbroker.Broker, error) {
	switch cfg.Kind {
	case "ws":
		wsb := wsbroker.New(cfg.ReadyBuffer, cfg.CompletionBuffer)
		return wsb, wsb, nil
	default:
		return inmemory.New(cfg.ReadyBuffer, cfg.CompletionBuffer), nil, nil
	}
}

func buildStorage(cfg config.StorageConfig) (storageiface.Storage, error) {
	switch cfg.Kind {
	case "badger":
		s, err := badgerstore.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("session: open badger storage: %w", err)
		}
		return s, nil
	default:
		return storageinmemory.New(), nil
	}
}

// ID returns the session's unique identifier, assigned at Open and used to
// correlate its log lines and traces across a process.
func (s *Session) ID() uuid.UUID { return s.id }

// Graph returns the session's open graph.
func (s *Session) Graph() *graph.Graph { return s.graph }

// WorkerHandler returns the http.Handler remote workers dial into, or nil
// if the session was opened with a non-"ws" broker.
func (s *Session) WorkerHandler() http.Handler {
	if s.wsBroker == nil {
		return nil
	}
	return http.HandlerFunc(s.wsBroker.ServeHTTP)
}

// Submit registers d and returns its id without waiting for it to run,
// background-submission entry point exposed at the session
// boundary (as opposed to execctx.Context.Submit, which a running node
// body uses for the same operation).
func (s *Session) Submit(ctx context.Context, d call.Deferred) (callid.ID, error) {
	return s.scheduler.Register(ctx, d)
}

// Execute registers d and blocks until it (or whatever it tail-calls into)
// reaches a terminal state, execute(call) -> value | error.
func (s *Session) Execute(ctx context.Context, d call.Deferred) (any, error) {
	id, err := s.scheduler.Register(ctx, d)
	if err != nil {
		return nil, err
	}
	return s.scheduler.Await(ctx, id)
}

// Close cancels the worker pool and the scheduler's Run goroutine, waits
// for both to drain, fails every call still PENDING/READY/RUNNING with
// SessionCancelledError, stops any background infrastructure retries, and
// disconnects from the broker and storage drivers. It is safe to call
// once; a second call returns whatever the underlying Close calls return,
// which may themselves already be idempotent (inmemory's are) or not
// (badger's is not).
func (s *Session) Close() error {
	s.cancel()
	s.wg.Wait()

	s.scheduler.CancelAll(context.Background())
	s.scheduler.Shutdown()

	var errs []error
	if s.tracerProvider != nil {
		if err := s.tracerProvider.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if err := s.broker.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close broker: %w", err))
	}
	if err := s.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}
