package harness

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/roach88/idxstore/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %s", i+1, event.Phase, event.Op, event.Store)
		if event.Outcome != nil {
			fmt.Fprintf(&buf, " -> %s", event.Outcome.Message)
		}
		if event.Error != "" {
			fmt.Fprintf(&buf, " !! %s", event.Error)
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, bindings map[string]Binding) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(ctx, a, bindings)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Op != a.Op || (a.Store != "" && event.Store != a.Store) {
			continue
		}
		if a.Message == "" || (event.Outcome != nil && strings.Contains(event.Outcome.Message, a.Message)) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %s store %q message %q", a.Op, a.Store, a.Message),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that ops appear in order. Intervening steps are
// allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(a.Ops) && event.Op == a.Ops[next] {
			next++
		}
	}
	if next == len(a.Ops) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: strings.Join(a.Ops, " -> "),
		Actual:   fmt.Sprintf("order broken at %s", a.Ops[next]),
		Trace:    trace,
	}
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, event := range trace {
		if event.Op == a.Op {
			n++
		}
	}
	if n == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s %d time(s)", a.Op, *a.Count),
		Actual:   fmt.Sprintf("%d time(s)", n),
		Trace:    trace,
	}
}

// assertFinalState reads the store after the flow.
func assertFinalState(ctx context.Context, a Assertion, bindings map[string]Binding) error {
	b, ok := bindings[a.Store]
	if !ok {
		return fmt.Errorf("no record type bound to store %q", a.Store)
	}

	if a.Count != nil {
		all, err := b.All(ctx)
		if err != nil {
			return err
		}
		if len(all) != *a.Count {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%d record(s) in %s", *a.Count, a.Store),
				Actual:   fmt.Sprintf("%d record(s)", len(all)),
			}
		}
	}
	if a.Key == nil {
		return nil
	}

	rec, found, err := b.Get(ctx, a.Key)
	if err != nil {
		return err
	}
	if !found {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record %v in %s", a.Key, a.Store),
			Actual:   "not found",
		}
	}
	if diffs := matchRecord(a.Expect, rec); len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record %v in %s to hold %v", a.Key, a.Store, a.Expect),
			Actual:   strings.Join(diffs, "; "),
		}
	}
	return nil
}

// matchRecords compares records in order; each expected map is a subset of
// the actual record.
func matchRecords(expected []map[string]any, actual []ir.IRObject) []string {
	if len(expected) != len(actual) {
		return []string{fmt.Sprintf("expected %d record(s), got %d", len(expected), len(actual))}
	}
	var errs []string
	for i := range expected {
		for _, d := range matchRecord(expected[i], actual[i]) {
			errs = append(errs, fmt.Sprintf("records[%d]: %s", i, d))
		}
	}
	return errs
}

func matchRecord(expected map[string]any, actual ir.IRObject) []string {
	var diffs []string
	for col, want := range expected {
		got, ok := actual[col]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: missing", col))
			continue
		}
		if !sameValue(want, got) {
			diffs = append(diffs, fmt.Sprintf("%s: expected %v, got %v", col, want, got))
		}
	}
	return diffs
}

// sameValue compares a YAML value with an IR value by canonical encoding.
func sameValue(want any, got ir.IRValue) bool {
	w, err := ir.FromGo(want)
	if err != nil {
		return false
	}
	wb, err := ir.MarshalCanonical(w)
	if err != nil {
		return false
	}
	gb, err := ir.MarshalCanonical(got)
	if err != nil {
		return false
	}
	return bytes.Equal(wb, gb)
}
