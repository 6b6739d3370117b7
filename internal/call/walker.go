package call

import "fmt"

// ArgSlot is the Argument Tree Walker's per-slot output: either a reference
// to a nested, not-yet-built Deferred call, or a literal value ready for
// canonical encoding. internal/dagbuilder turns a []ArgSlot into a []Slot
// by recursively building each Ref into a callid.ID.
type ArgSlot struct {
	Ref     *Deferred
	Literal any
}

// WalkArgs scans a raw positional argument list and keyword argument map,
// replacing every top-level Deferred call with a Ref slot and every other
// value with a Literal slot. Traversal is shallow by design — a Deferred
// call buried inside a slice or map (rather than appearing directly as an
// argument) is rejected as an UnreachableDeferredCallError, keeping the
// dependency graph explicit.
func WalkArgs(args []any, kwargs map[string]any) ([]ArgSlot, map[string]ArgSlot, error) {
	outArgs := make([]ArgSlot, len(args))
	for i, v := range args {
		slot, err := walkOne(v, fmt.Sprintf("args[%d]", i))
		if err != nil {
			return nil, nil, err
		}
		outArgs[i] = slot
	}

	var outKwargs map[string]ArgSlot
	if len(kwargs) > 0 {
		outKwargs = make(map[string]ArgSlot, len(kwargs))
		for k, v := range kwargs {
			slot, err := walkOne(v, fmt.Sprintf("kwargs[%q]", k))
			if err != nil {
				return nil, nil, err
			}
			outKwargs[k] = slot
		}
	}
	return outArgs, outKwargs, nil
}

func walkOne(v any, path string) (ArgSlot, error) {
	if d, ok := v.(Deferred); ok {
		if d.IsCall() {
			return ArgSlot{Ref: &d}, nil
		}
		// A Value(T) deferred unwraps to its literal; the wrapped value
		// still must not itself bury a call (e.g. Value([]any{someCall})).
		if err := checkNoBuriedCall(d.value, path); err != nil {
			return ArgSlot{}, err
		}
		return ArgSlot{Literal: d.value}, nil
	}
	if err := checkNoBuriedCall(v, path); err != nil {
		return ArgSlot{}, err
	}
	return ArgSlot{Literal: v}, nil
}

// checkNoBuriedCall walks one level into slices and maps looking for a
// Deferred call that isn't at the argument's top level.
func checkNoBuriedCall(v any, path string) error {
	switch t := v.(type) {
	case Deferred:
		if t.IsCall() {
			return &UnreachableDeferredCallError{Path: path}
		}
		return checkNoBuriedCall(t.value, path)
	case []any:
		for i, e := range t {
			if err := checkNoBuriedCall(e, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case map[string]any:
		for k, e := range t {
			if err := checkNoBuriedCall(e, fmt.Sprintf("%s[%q]", path, k)); err != nil {
				return err
			}
		}
	}
	return nil
}
