package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/idxstore/internal/predicate"
)

// Scenario defines a conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definitions is the directory of CUE database definitions. Relative
	// paths are resolved against the scenario file.
	Definitions string `yaml:"definitions"`

	// Database names the definition to open.
	Database string `yaml:"database"`

	// Backend overrides the harness backend: "memory" or "sqlite".
	Backend string `yaml:"backend,omitempty"`

	// Setup steps run after the database is opened. A failing setup step
	// aborts the scenario.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps run after setup; each may carry an expect clause.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Operation names.
const (
	OpOpen           = "open"
	OpDeleteDatabase = "delete_database"
	OpAdd            = "add"
	OpAddRange       = "add_range"
	OpUpdate         = "update"
	OpUpdateRange    = "update_range"
	OpDelete         = "delete"
	OpDeleteRange    = "delete_range"
	OpClear          = "clear"
	OpGet            = "get"
	OpAll            = "all"
	OpQuery          = "query"
	OpCount          = "count"
	OpEstimate       = "estimate"
)

// storeOps need a store.
var storeOps = map[string]bool{
	OpAdd: true, OpAddRange: true, OpUpdate: true, OpUpdateRange: true,
	OpDelete: true, OpDeleteRange: true, OpClear: true, OpGet: true,
	OpAll: true, OpQuery: true, OpCount: true,
}

// Step is one operation.
type Step struct {
	Op      string           `yaml:"op"`
	Store   string           `yaml:"store,omitempty"`
	Record  map[string]any   `yaml:"record,omitempty"`
	Records []map[string]any `yaml:"records,omitempty"`
	Key     any              `yaml:"key,omitempty"`

	// Where, Directives and NotUnique shape query and count steps.
	Where      *Cond       `yaml:"where,omitempty"`
	Directives []Directive `yaml:"directives,omitempty"`
	NotUnique  bool        `yaml:"not_unique,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Cond is a predicate in YAML form. Exactly one of And, Or, Not or Field
// is set.
type Cond struct {
	And []Cond `yaml:"and,omitempty"`
	Or  []Cond `yaml:"or,omitempty"`
	Not *Cond  `yaml:"not,omitempty"`

	// Field, Op and Value form a leaf. Op is one of ==, !=, <, <=, >, >=,
	// equals, contains, starts_with.
	Field string `yaml:"field,omitempty"`
	Op    string `yaml:"op,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// Compare selects string comparison: ordinal, invariant or culture.
	Compare string `yaml:"compare,omitempty"`

	// LiteralFirst writes the comparison as value OP field.
	LiteralFirst bool `yaml:"literal_first,omitempty"`
}

var comparisons = map[string]predicate.Comparison{
	"":          predicate.Default,
	"ordinal":   predicate.Ordinal,
	"invariant": predicate.Invariant,
	"culture":   predicate.CultureAware,
}

// Expr builds the predicate expression.
func (c Cond) Expr() (predicate.Expr, error) {
	switch {
	case len(c.And) > 0:
		return chain(c.And, predicate.And)
	case len(c.Or) > 0:
		return chain(c.Or, predicate.Or)
	case c.Not != nil:
		x, err := c.Not.Expr()
		if err != nil {
			return nil, err
		}
		return predicate.Negate(x), nil
	case c.Field == "":
		return nil, fmt.Errorf("condition needs and, or, not or field")
	}

	f := predicate.F(c.Field)
	cmp, ok := comparisons[c.Compare]
	if !ok {
		return nil, fmt.Errorf("unknown comparison %q", c.Compare)
	}

	if c.LiteralFirst {
		l := predicate.L(c.Value)
		switch c.Op {
		case "==":
			return l.Eq(f), nil
		case "!=":
			return l.Ne(f), nil
		case "<":
			return l.Lt(f), nil
		case "<=":
			return l.Le(f), nil
		case ">":
			return l.Gt(f), nil
		case ">=":
			return l.Ge(f), nil
		}
		return nil, fmt.Errorf("operator %q cannot take a literal first", c.Op)
	}

	switch c.Op {
	case "==":
		return f.Eq(c.Value), nil
	case "!=":
		return f.Ne(c.Value), nil
	case "<":
		return f.Lt(c.Value), nil
	case "<=":
		return f.Le(c.Value), nil
	case ">":
		return f.Gt(c.Value), nil
	case ">=":
		return f.Ge(c.Value), nil
	}

	s, ok := c.Value.(string)
	if !ok {
		return nil, fmt.Errorf("%s needs a string value, got %T", c.Op, c.Value)
	}
	switch c.Op {
	case "equals":
		return f.Equals(s, cmp), nil
	case "contains":
		return f.Contains(s, cmp), nil
	case "starts_with":
		return f.StartsWith(s, cmp), nil
	}
	return nil, fmt.Errorf("unknown operator %q", c.Op)
}

func chain(conds []Cond, join func(predicate.Expr, ...predicate.Expr) predicate.Expr) (predicate.Expr, error) {
	exprs := make([]predicate.Expr, 0, len(conds))
	for _, c := range conds {
		e, err := c.Expr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return join(exprs[0], exprs[1:]...), nil
}

// Directive is one query directive. Exactly one field is set.
type Directive struct {
	Take              *int   `yaml:"take,omitempty"`
	TakeLast          *int   `yaml:"take_last,omitempty"`
	Skip              *int   `yaml:"skip,omitempty"`
	OrderBy           string `yaml:"order_by,omitempty"`
	OrderByDescending string `yaml:"order_by_descending,omitempty"`
}

func (d Directive) set() int {
	n := 0
	for _, ok := range []bool{d.Take != nil, d.TakeLast != nil, d.Skip != nil, d.OrderBy != "", d.OrderByDescending != ""} {
		if ok {
			n++
		}
	}
	return n
}

// Expect specifies what a step must produce. Unset fields are not checked.
type Expect struct {
	// Failed and Message check the outcome of a mutation. Message is a
	// substring match.
	Failed  *bool  `yaml:"failed,omitempty"`
	Message string `yaml:"message,omitempty"`

	// Payload is compared with the outcome payload.
	Payload any `yaml:"payload,omitempty"`

	// Error is a substring the step's error must contain. A step without
	// it must not error.
	Error string `yaml:"error,omitempty"`

	Count *int64 `yaml:"count,omitempty"`
	Found *bool  `yaml:"found,omitempty"`

	// Records are matched in order, each as a subset of the returned
	// record. The number of records must match.
	Records []map[string]any `yaml:"records,omitempty"`
}

// Assertion validates the final trace or state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Op is the traced operation (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Store narrows trace_contains and selects the store for final_state.
	Store string `yaml:"store,omitempty"`

	// Message is a substring of the traced outcome message (trace_contains).
	Message string `yaml:"message,omitempty"`

	// Count is the expected number of occurrences (trace_count) or records
	// (final_state without key).
	Count *int `yaml:"count,omitempty"`

	// Ops is the expected order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Key and Expect select and check one record (final_state).
	Key    any            `yaml:"key,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file, resolving the
// definitions directory against the file's directory.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Definitions != "" && !filepath.IsAbs(scenario.Definitions) {
		scenario.Definitions = filepath.Join(filepath.Dir(path), scenario.Definitions)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Definitions == "" {
		return fmt.Errorf("definitions is required")
	}
	if _, err := os.Stat(s.Definitions); os.IsNotExist(err) {
		return fmt.Errorf("definitions not found: %s", s.Definitions)
	}
	if s.Database == "" {
		return fmt.Errorf("database is required")
	}
	switch s.Backend {
	case "", BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(at string, step Step) error {
	switch step.Op {
	case OpOpen, OpDeleteDatabase, OpEstimate:
	case OpAdd, OpUpdate, OpDelete:
		if step.Record == nil {
			return fmt.Errorf("%s: record is required for %s", at, step.Op)
		}
	case OpAddRange, OpUpdateRange, OpDeleteRange:
		if len(step.Records) == 0 {
			return fmt.Errorf("%s: records are required for %s", at, step.Op)
		}
	case OpGet:
		if step.Key == nil {
			return fmt.Errorf("%s: key is required for get", at)
		}
	case OpQuery, OpCount:
		if step.Where == nil {
			return fmt.Errorf("%s: where is required for %s", at, step.Op)
		}
	case OpClear, OpAll:
	case "":
		return fmt.Errorf("%s: op is required", at)
	default:
		return fmt.Errorf("%s: unknown op %q", at, step.Op)
	}

	if storeOps[step.Op] && step.Store == "" {
		return fmt.Errorf("%s: store is required for %s", at, step.Op)
	}
	for j, d := range step.Directives {
		if d.set() != 1 {
			return fmt.Errorf("%s.directives[%d]: exactly one directive per entry", at, j)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for trace_count", index)
		}
	case AssertFinalState:
		if a.Store == "" {
			return fmt.Errorf("assertions[%d]: store is required for final_state", index)
		}
		if a.Key == nil && a.Count == nil {
			return fmt.Errorf("assertions[%d]: key or count is required for final_state", index)
		}
		if a.Key != nil && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required with key for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
