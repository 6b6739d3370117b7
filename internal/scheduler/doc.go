// Package scheduler owns every call's mutable execution state: the
// PENDING/READY/RUNNING/RESOLVED/FAILED state machine, the dependents
// bookkeeping that advances a call's waiters once it resolves, and the
// tail-call forwarding that makes "return another call" behave as true
// substitution into the caller's dependency graph.
//
// Scheduler satisfies two small interfaces owned by its collaborators
// rather than exposing its full surface: dagbuilder.CallStore (so the
// Builder it owns can insert newly discovered calls) and execctx.Registrar
// (so a running node's Context can submit background work). Neither
// collaborator imports this package; Scheduler imports dagbuilder and
// satisfies execctx.Registrar without importing execctx, keeping the
// dependency graph between internal packages acyclic.
package scheduler
