package harness

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idxstore/internal/ir"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Step: 0, Phase: "setup", Op: OpAdd, Store: "Person", Outcome: &ir.Outcome{Token: uuid.Nil, Message: "Added 1 item to Person"}},
		{Step: 0, Phase: "flow", Op: OpQuery, Store: "Person"},
		{Step: 1, Phase: "flow", Op: OpDelete, Store: "Person", Outcome: &ir.Outcome{Message: "Deleted 1 item from Person"}},
		{Step: 2, Phase: "flow", Op: OpQuery, Store: "Person", Error: "boom"},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceContains(trace, Assertion{Op: OpAdd}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Op: OpDelete, Store: "Person", Message: "Deleted"}))

	err := assertTraceContains(trace, Assertion{Op: OpDelete, Message: "Cleared"})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, ae.Error(), "[4] flow query Person !! boom")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceOrder(trace, Assertion{Ops: []string{OpAdd, OpDelete, OpQuery}}))

	err := assertTraceOrder(trace, Assertion{Ops: []string{OpDelete, OpAdd}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order broken at add")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceCount(trace, Assertion{Op: OpQuery, Count: ptr(2)}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Op: OpClear, Count: ptr(0)}))
	assert.Error(t, assertTraceCount(trace, Assertion{Op: OpAdd, Count: ptr(2)}))
}

func TestEvaluateAssertions_UnboundStore(t *testing.T) {
	errs := EvaluateAssertions(context.Background(), NewResult(),
		[]Assertion{{Type: AssertFinalState, Store: "Animal", Count: ptr(0)}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "assertions[0]")
	assert.Contains(t, errs[0], `no record type bound to store "Animal"`)
}

func TestMatchRecords(t *testing.T) {
	actual := []ir.IRObject{
		{"Name": ir.IRString("Bob"), "age": ir.IRInt(31), "Score": ir.IRFloat(2)},
	}

	assert.Empty(t, matchRecords([]map[string]any{{"Name": "Bob", "age": 31, "Score": 2}}, actual))
	assert.Equal(t, []string{"expected 0 record(s), got 1"}, matchRecords([]map[string]any{}, actual))
	assert.Equal(t, []string{"records[0]: age: expected 30, got 31"}, matchRecords([]map[string]any{{"age": 30}}, actual))
	assert.Equal(t, []string{"records[0]: Email: missing"}, matchRecords([]map[string]any{{"Email": "x"}}, actual))
}

func TestTraceSnapshot_Canonical(t *testing.T) {
	found := false
	snap := TraceSnapshot{ScenarioName: "s", Trace: []TraceEvent{
		{Step: 0, Phase: "flow", Op: OpGet, Store: "Person", Found: &found},
	}}
	data, err := snap.Canonical()
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"s","trace":[{"found":false,"op":"get","phase":"flow","step":0,"store":"Person"}]}`, string(data))
}
