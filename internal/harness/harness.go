package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/idxstore/internal/compiler"
	"github.com/roach88/idxstore/internal/correlate"
	"github.com/roach88/idxstore/internal/engine"
	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/marshal"
	"github.com/roach88/idxstore/internal/memdb"
	"github.com/roach88/idxstore/internal/sqlitedb"
	"github.com/roach88/idxstore/internal/store"
	"github.com/roach88/idxstore/internal/testutil"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// HookKey is the key passed to the encryption hook.
const HookKey = "harness"

// Harness executes scenarios.
//
// Each scenario runs against a fresh backend and engine, isolated from
// every other scenario.
type Harness struct {
	backend string
	binders map[string]Binder
	hook    marshal.Hook
	quota   int64
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithBackend selects the backend for scenarios that do not name one.
// Default: memory.
func WithBackend(name string) Option {
	return func(h *Harness) { h.backend = name }
}

// WithRecordType binds store to a record type. Person is bound by default.
func WithRecordType(storeName string, b Binder) Option {
	return func(h *Harness) { h.binders[storeName] = b }
}

// WithHook sets the encryption hook. Default: testutil.ReverseHook.
func WithHook(hook marshal.Hook) Option {
	return func(h *Harness) { h.hook = hook }
}

// WithQuota sets the engine quota in bytes. Default: engine.DefaultQuota.
func WithQuota(bytes int64) Option {
	return func(h *Harness) { h.quota = bytes }
}

// WithTimeout bounds each step. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(h *Harness) { h.timeout = d }
}

// WithLogger sets the logger. Default: discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// New creates a harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		backend: BackendMemory,
		binders: map[string]Binder{"Person": Bind(testutil.People)},
		hook:    testutil.ReverseHook{},
		quota:   engine.DefaultQuota,
		timeout: 5 * time.Second,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// session is the state of one scenario run.
type session struct {
	*Harness
	manager  *store.Manager
	bindings map[string]Binding
	result   *Result
}

// Run executes a scenario and returns its result.
//
// Errors are returned for scenarios that cannot run at all: bad
// definitions, a backend that fails to open or a failing setup step.
// Failed expectations and assertions are reported in the result.
//
// Execution flow:
// 1. Compile the database definitions and pick the scenario's database
// 2. Open a fresh backend, start the engine and open the database
// 3. Execute setup steps, then flow steps with expect validation
// 4. Evaluate assertions
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	loaded, errs := compiler.Load(scenario.Definitions, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("load definitions: %w", errors.Join(errs...))
	}
	spec, ok := loaded.Database(scenario.Database)
	if !ok {
		return nil, fmt.Errorf("database %q is not defined in %s", scenario.Database, scenario.Definitions)
	}

	backendName := scenario.Backend
	if backendName == "" {
		backendName = h.backend
	}
	backend, err := openBackend(backendName, h.logger)
	if err != nil {
		return nil, err
	}

	eng := engine.New(backend, engine.WithQuota(h.quota), engine.WithLogger(h.logger))
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- eng.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
		if err := eng.Close(); err != nil {
			h.logger.Warn("closing backend", "error", err)
		}
	}()

	table := correlate.New(
		correlate.WithTokenGenerator(testutil.NewSequenceGenerator()),
		correlate.WithLogger(h.logger),
	)
	m := store.New(eng, spec,
		store.WithTable(table),
		store.WithHandle("harness"),
		store.WithHook(h.hook, HookKey),
		store.WithTimeout(h.timeout),
		store.WithLogger(h.logger),
	)
	defer m.Close()

	s := &session{Harness: h, manager: m, bindings: map[string]Binding{}, result: NewResult()}
	for _, ts := range spec.Stores {
		b, ok := h.binders[ts.Name]
		if !ok {
			continue
		}
		bound, err := b(m)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", ts.Name, err)
		}
		s.bindings[ts.Name] = bound
	}

	open, err := s.stepContext(ctx, func(ctx context.Context) (ir.Outcome, error) {
		return m.OpenDatabaseAsync(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", spec.Name, err)
	}
	if open.Failed {
		return nil, fmt.Errorf("open %s: %s", spec.Name, open.Message)
	}

	for i, step := range scenario.Setup {
		event := s.execute(ctx, "setup", i, step)
		if event.Error != "" {
			return nil, fmt.Errorf("setup step %d (%s): %s", i, step.Op, event.Error)
		}
		if event.Outcome != nil && event.Outcome.Failed {
			return nil, fmt.Errorf("setup step %d (%s): %s", i, step.Op, event.Outcome.Message)
		}
	}

	for i, step := range scenario.Flow {
		event := s.execute(ctx, "flow", i, step)
		for _, msg := range checkExpect(step, event) {
			s.result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, msg))
		}
	}

	for _, msg := range EvaluateAssertions(ctx, s.result, scenario.Assertions, s.bindings) {
		s.result.AddError(msg)
	}

	h.logger.Debug("scenario finished", "scenario", scenario.Name, "pass", s.result.Pass)
	return s.result, nil
}

func openBackend(name string, logger *slog.Logger) (engine.Backend, error) {
	switch name {
	case BackendMemory:
		return memdb.New(memdb.WithLogger(logger)), nil
	case BackendSQLite:
		db, err := sqlitedb.Open(":memory:", sqlitedb.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

func (s *session) stepContext(ctx context.Context, fn func(context.Context) (ir.Outcome, error)) (ir.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

// execute runs one step and traces it. Step errors are recorded on the
// event, never returned.
func (s *session) execute(ctx context.Context, phase string, i int, step Step) TraceEvent {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	event := TraceEvent{Step: i, Phase: phase, Op: step.Op, Store: step.Store}
	err := s.perform(ctx, step, &event)
	if err != nil {
		event.Error = err.Error()
	}

	s.logger.Debug("step executed", "phase", phase, "step", i, "op", step.Op, "error", err)
	s.result.AddTrace(event)
	return event
}

func (s *session) perform(ctx context.Context, step Step, event *TraceEvent) error {
	outcome := func(o ir.Outcome, err error) error {
		if err != nil {
			return err
		}
		event.Outcome = &o
		return nil
	}

	switch step.Op {
	case OpOpen:
		return outcome(s.manager.OpenDatabaseAsync(ctx))
	case OpDeleteDatabase:
		return outcome(s.manager.DeleteDatabaseAsync(ctx))
	case OpEstimate:
		est, err := s.manager.StorageEstimate(ctx)
		if err != nil {
			return err
		}
		event.Quota = &est.QuotaBytes
		return nil
	}

	b, ok := s.bindings[step.Store]
	if !ok {
		return fmt.Errorf("no record type bound to store %q", step.Store)
	}

	switch step.Op {
	case OpAdd:
		return outcome(b.Add(ctx, step.Record))
	case OpAddRange:
		return outcome(b.AddRange(ctx, step.Records))
	case OpUpdate:
		return outcome(b.Update(ctx, step.Record))
	case OpUpdateRange:
		return outcome(b.UpdateRange(ctx, step.Records))
	case OpDelete:
		return outcome(b.Delete(ctx, step.Record))
	case OpClear:
		return outcome(b.Clear(ctx))
	case OpDeleteRange:
		n, err := b.DeleteRange(ctx, step.Records)
		if err != nil {
			return err
		}
		event.Count = &n
	case OpGet:
		rec, found, err := b.Get(ctx, step.Key)
		if err != nil {
			return err
		}
		event.Found = &found
		if found {
			event.Records = []ir.IRObject{rec}
		}
	case OpAll:
		recs, err := b.All(ctx)
		if err != nil {
			return err
		}
		event.Records = recs
	case OpQuery, OpCount:
		where, err := step.Where.Expr()
		if err != nil {
			return err
		}
		q := Query{Where: where, Directives: step.Directives, NotUnique: step.NotUnique}
		if step.Op == OpCount {
			n, err := b.Count(ctx, q)
			if err != nil {
				return err
			}
			count := int64(n)
			event.Count = &count
			return nil
		}
		recs, err := b.Query(ctx, q)
		if err != nil {
			return err
		}
		event.Records = recs
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

// checkExpect compares a traced step against its expect clause.
func checkExpect(step Step, event TraceEvent) []string {
	exp := step.Expect
	if exp == nil {
		if event.Error != "" {
			return []string{"unexpected error: " + event.Error}
		}
		return nil
	}

	var errs []string
	if exp.Error != "" {
		if !strings.Contains(event.Error, exp.Error) {
			errs = append(errs, fmt.Sprintf("expected error containing %q, got %q", exp.Error, event.Error))
		}
		return errs
	}
	if event.Error != "" {
		return []string{"unexpected error: " + event.Error}
	}

	if exp.Failed != nil {
		if event.Outcome == nil {
			errs = append(errs, "expected an outcome")
		} else if event.Outcome.Failed != *exp.Failed {
			errs = append(errs, fmt.Sprintf("expected failed=%t, got %t (%s)", *exp.Failed, event.Outcome.Failed, event.Outcome.Message))
		}
	}
	if exp.Message != "" && (event.Outcome == nil || !strings.Contains(event.Outcome.Message, exp.Message)) {
		got := ""
		if event.Outcome != nil {
			got = event.Outcome.Message
		}
		errs = append(errs, fmt.Sprintf("expected message containing %q, got %q", exp.Message, got))
	}
	if exp.Payload != nil {
		var got ir.IRValue
		if event.Outcome != nil {
			got = event.Outcome.Payload
		}
		if !sameValue(exp.Payload, got) {
			errs = append(errs, fmt.Sprintf("expected payload %v, got %v", exp.Payload, got))
		}
	}
	if exp.Count != nil && (event.Count == nil || *event.Count != *exp.Count) {
		errs = append(errs, fmt.Sprintf("expected count %d, got %v", *exp.Count, deref(event.Count)))
	}
	if exp.Found != nil && (event.Found == nil || *event.Found != *exp.Found) {
		errs = append(errs, fmt.Sprintf("expected found=%t, got %v", *exp.Found, deref(event.Found)))
	}
	if exp.Records != nil {
		errs = append(errs, matchRecords(exp.Records, event.Records)...)
	}
	return errs
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
