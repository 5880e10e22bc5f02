package harness

import (
	"github.com/roach88/idxstore/internal/ir"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step    int
	Phase   string // "setup" or "flow"
	Op      string
	Store   string
	Outcome *ir.Outcome
	Count   *int64
	Found   *bool
	Records []ir.IRObject
	Quota   *int64
	Error   string
}

// Object converts the event to its canonical form.
func (e TraceEvent) Object() ir.IRObject {
	obj := ir.IRObject{
		"step":  ir.IRInt(e.Step),
		"phase": ir.IRString(e.Phase),
		"op":    ir.IRString(e.Op),
	}
	if e.Store != "" {
		obj["store"] = ir.IRString(e.Store)
	}
	if o := e.Outcome; o != nil {
		obj["token"] = ir.IRString(o.Token.String())
		obj["failed"] = ir.IRBool(o.Failed)
		obj["message"] = ir.IRString(o.Message)
		if o.Payload != nil {
			obj["payload"] = o.Payload
		}
	}
	if e.Count != nil {
		obj["count"] = ir.IRInt(*e.Count)
	}
	if e.Found != nil {
		obj["found"] = ir.IRBool(*e.Found)
	}
	if e.Records != nil {
		recs := make(ir.IRArray, len(e.Records))
		for i, r := range e.Records {
			recs[i] = r
		}
		obj["records"] = recs
	}
	if e.Quota != nil {
		obj["quota"] = ir.IRInt(*e.Quota)
	}
	if e.Error != "" {
		obj["error"] = ir.IRString(e.Error)
	}
	return obj
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool

	// Trace holds every executed step in order.
	Trace []TraceEvent

	// Errors holds expectation and assertion failures.
	Errors []string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an executed step.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
