package call

import "fmt"

// UnreachableDeferredCallError: a
// deferred call was found nested inside a container slot (a list, a map)
// rather than appearing as a direct positional or keyword argument.
type UnreachableDeferredCallError struct {
	// Path describes where in the argument tree the buried call was found,
	// e.g. "args[2]" or `kwargs["items"][0]`.
	Path string
}

func (e *UnreachableDeferredCallError) Error() string {
	return fmt.Sprintf("deferred call is unreachable: it is nested inside a container at %s; it must appear as a direct argument", e.Path)
}

// NonDeterministicArgumentError: a
// literal's canonical encoding differed between two successive encodes of
// the same value, so it cannot be used to derive a stable call id.
type NonDeterministicArgumentError struct {
	Path string
}

func (e *NonDeterministicArgumentError) Error() string {
	return fmt.Sprintf("argument at %s did not round-trip deterministically through canonical encoding", e.Path)
}

// NonSerializableArgumentError: a
// literal slot's value has no canonical encoding at all.
type NonSerializableArgumentError struct {
	Path  string
	Cause error
}

func (e *NonSerializableArgumentError) Error() string {
	return fmt.Sprintf("argument at %s is not serializable: %v", e.Path, e.Cause)
}

func (e *NonSerializableArgumentError) Unwrap() error { return e.Cause }

// NonSerializableResultError: a node
// body's returned value has no canonical encoding, so it can neither be
// persisted to Storage nor used as an argument by a dependent call.
type NonSerializableResultError struct {
	Cause error
}

func (e *NonSerializableResultError) Error() string {
	return fmt.Sprintf("result is not serializable: %v", e.Cause)
}

func (e *NonSerializableResultError) Unwrap() error { return e.Cause }
