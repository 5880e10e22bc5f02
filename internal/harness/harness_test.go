package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var backends = []string{BackendMemory, BackendSQLite}

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func runOn(t *testing.T, backend string, s *Scenario) *Result {
	t.Helper()
	result, err := New(WithBackend(backend)).Run(context.Background(), s)
	require.NoError(t, err)
	return result
}

func TestRun_DirectoryQueries(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			result := runOn(t, backend, loadScenario(t, "directory_queries"))
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
			assert.Len(t, result.Trace, 15)
		})
	}
}

func TestRun_Constraints(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			result := runOn(t, backend, loadScenario(t, "constraints"))
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRunWithGolden_Basic(t *testing.T) {
	s := loadScenario(t, "golden_basic")
	for _, backend := range backends {
		result, err := New(WithBackend(backend)).RunWithGolden(t, s)
		require.NoError(t, err)
		assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
	}
}

func TestRun_ScenarioBackendOverridesHarness(t *testing.T) {
	s := loadScenario(t, "golden_basic")
	s.Backend = BackendSQLite

	result, err := New(WithBackend("nope")).Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := loadScenario(t, "golden_basic")
	s.Flow[2].Expect = &Expect{Found: ptr(true)}
	s.Flow = append(s.Flow, Step{
		Op:     OpQuery,
		Store:  "Person",
		Where:  &Cond{Field: "Score", Op: ">", Value: 1},
	})
	s.Assertions = []Assertion{{Type: AssertTraceCount, Op: OpDelete, Count: ptr(2)}}

	result := runOn(t, BackendMemory, s)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "expected found=true")
	assert.Contains(t, result.Errors[1], "unexpected error")
	assert.Contains(t, result.Errors[2], "trace_count")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	s := loadScenario(t, "golden_basic")
	s.Setup = append(s.Setup, s.Setup[0])

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 1")
}

func TestRun_UnknownDatabase(t *testing.T) {
	s := loadScenario(t, "golden_basic")
	s.Database = "Inventory"

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `database "Inventory" is not defined`)
}

func TestRun_UnboundStore(t *testing.T) {
	s := loadScenario(t, "golden_basic")
	s.Setup = nil
	s.Flow = []Step{{Op: OpAll, Store: "Animal", Expect: &Expect{Error: "no record type"}}}

	result := runOn(t, BackendMemory, s)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRun_EstimateAndDatabaseLifecycle(t *testing.T) {
	s := loadScenario(t, "golden_basic")
	s.Flow = []Step{
		{Op: OpEstimate},
		{Op: OpDeleteDatabase, Expect: &Expect{Message: "Database Directory deleted"}},
		{Op: OpAll, Store: "Person", Expect: &Expect{Error: "UNKNOWN_DATABASE"}},
		{Op: OpOpen, Expect: &Expect{Failed: ptr(false)}},
		{Op: OpAll, Store: "Person", Expect: &Expect{Records: []map[string]any{}}},
	}

	result, err := New(WithQuota(1 << 20)).Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	est := result.Trace[1]
	require.NotNil(t, est.Quota)
	assert.Equal(t, int64(1<<20), *est.Quota)
}

func ptr[T any](v T) *T { return &v }
