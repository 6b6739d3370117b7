package mycelia

import (
	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/graph"
	"github.com/smthngslv/mycelia/internal/scheduler"
)

// These re-export the error kinds internal packages raise so a caller can
// errors.As against them without importing internal/... directly.
type (
	// DuplicateNodeRegistrationError: two nodes were registered under the
	// same name on the same Graph.
	DuplicateNodeRegistrationError = graph.DuplicateNodeRegistrationError

	// NodeNotRegisteredError: a call referenced a node name with no
	// registration in its graph.
	NodeNotRegisteredError = graph.NodeNotRegisteredError

	// GraphClosedError: Register was called on a Graph already passed to
	// Open.
	GraphClosedError = graph.GraphClosedError

	// UnreachableDeferredCallError: a Deferred was found nested inside a
	// list or map argument instead of appearing as a direct argument.
	UnreachableDeferredCallError = call.UnreachableDeferredCallError

	// NonDeterministicArgumentError: a literal argument's canonical
	// encoding was not stable across two encodes of the same value.
	NonDeterministicArgumentError = call.NonDeterministicArgumentError

	// NonSerializableArgumentError: a literal argument has no canonical
	// encoding.
	NonSerializableArgumentError = call.NonSerializableArgumentError

	// NonSerializableResultError: a node body's returned value has no
	// canonical encoding.
	NonSerializableResultError = call.NonSerializableResultError

	// DependencyFailedError: a call never ran because a dependency of it
	// failed.
	DependencyFailedError = scheduler.DependencyFailedError

	// NodeExecutionFailureError: a node body itself returned an error.
	NodeExecutionFailureError = scheduler.NodeExecutionFailureError
)
