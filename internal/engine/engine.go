package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/idxstore/internal/boundary"
	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/queryir"
)

// Backend stores databases of keyed records. The engine is its only caller
// and calls it from the Run goroutine only.
//
// Backends report unknown databases and stores, and key or unique index
// violations, as *boundary.Error with the matching code.
type Backend interface {
	// CreateDatabase opens the database described by spec, creating or
	// upgrading stores when spec.Version is newer than the stored version.
	CreateDatabase(ctx context.Context, spec ir.DatabaseSpec) error
	DeleteDatabase(ctx context.Context, name string) error

	// Add inserts items atomically and returns their primary keys, assigning
	// keys for auto-increment stores.
	Add(ctx context.Context, db, store string, items []*ir.Bag) ([]ir.IRValue, error)
	// Put upserts items atomically. Every item must carry its primary key.
	Put(ctx context.Context, db, store string, items []*ir.Bag) error
	// Delete removes the rows with the given keys and returns how many existed.
	Delete(ctx context.Context, db, store string, keys []ir.IRValue) (int64, error)
	Clear(ctx context.Context, db, store string) error

	// Get returns nil without error when the key is absent.
	Get(ctx context.Context, db, store string, key ir.IRValue) (*ir.Bag, error)
	// All returns every row in primary key order.
	All(ctx context.Context, db, store string) ([]*ir.Bag, error)
	// Query runs q with queryir semantics.
	Query(ctx context.Context, db string, q queryir.Query) ([]*ir.Bag, error)

	// Usage estimates the bytes in use.
	Usage(ctx context.Context) (int64, error)
	Close() error
}

// Engine is the reference boundary: a single-writer event loop in front of
// a Backend.
//
// Thread-safety model:
//   - Attach, Detach, Invoke: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//
// INVARIANTS:
//   - calls execute in acceptance order, one at a time
//   - every accepted mutation produces exactly one ir.Outcome
type Engine struct {
	backend Backend
	queue   *callQueue
	quota   *QuotaEnforcer
	logger  *slog.Logger
	seq     atomic.Int64

	mu         sync.RWMutex
	completers map[string]boundary.Completer
}

var _ boundary.Boundary = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithQuota sets the storage quota in bytes.
//
// Default: 1 GiB (DefaultQuota). Use WithQuota(0) to disable enforcement;
// the reported quota is then DefaultQuota.
func WithQuota(bytes int64) Option {
	return func(e *Engine) {
		e.quota = NewQuotaEnforcer(bytes)
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over backend. Call Run to start processing.
func New(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:    backend,
		queue:      newCallQueue(),
		quota:      NewQuotaEnforcer(DefaultQuota),
		logger:     slog.Default(),
		completers: make(map[string]boundary.Completer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attach registers the completer for calls issued under handle, replacing
// any previous one. A nil completer detaches.
func (e *Engine) Attach(handle string, c boundary.Completer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c == nil {
		delete(e.completers, handle)
		return
	}
	e.completers[handle] = c
}

// Detach removes the completer for handle. Outcomes of calls still queued
// under it are dropped.
func (e *Engine) Detach(handle string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.completers, handle)
}

func (e *Engine) completer(handle string) (boundary.Completer, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.completers[handle]
	return c, ok
}

// Invoke accepts a call.
//
// Malformed calls, and where payloads that do not decode or validate, are
// rejected here with *boundary.Error. Mutations return as soon as they are
// queued; synchronous actions wait for the Run loop's answer or ctx.
func (e *Engine) Invoke(ctx context.Context, call boundary.Call) (boundary.Reply, error) {
	if err := call.Check(); err != nil {
		return boundary.Reply{}, err
	}

	t := task{call: call}
	if call.Action == boundary.Where {
		q, err := decodeQuery(call)
		if err != nil {
			return boundary.Reply{}, err
		}
		t.query = &q
	}

	if !call.Action.Synchronous() {
		if _, ok := e.completer(call.Caller); !ok {
			return boundary.Reply{}, invalidCall(call, "no completer attached for caller %q", call.Caller)
		}
		if !e.queue.Enqueue(t) {
			return boundary.Reply{}, unavailable(call)
		}
		e.logger.Debug("call accepted", "action", call.Action, "token", call.Token, "db", call.Database, "store", call.Store)
		return boundary.Reply{}, nil
	}

	t.reply = make(chan result, 1)
	if !e.queue.Enqueue(t) {
		return boundary.Reply{}, unavailable(call)
	}
	select {
	case r := <-t.reply:
		return r.reply, r.err
	case <-ctx.Done():
		return boundary.Reply{}, ctx.Err()
	}
}

func decodeQuery(call boundary.Call) (queryir.Query, error) {
	groups, err := queryir.DecodeGroups(call.Groups)
	if err != nil {
		return queryir.Query{}, invalidCall(call, "decode groups: %v", err)
	}
	directives, err := queryir.DecodeDirectives(call.Directives)
	if err != nil {
		return queryir.Query{}, invalidCall(call, "decode directives: %v", err)
	}
	q := queryir.Query{Store: call.Store, Groups: groups, Directives: directives, Unique: call.Unique}
	if err := queryir.Validate(q).Err(); err != nil {
		return queryir.Query{}, invalidCall(call, "%v", err)
	}
	return q, nil
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: a failing call is answered (reply error or failed
// outcome) and logged; the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		if t, ok := e.queue.TryDequeue(); ok {
			e.process(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			e.drain()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run processes what was already accepted, then
// returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Close stops the engine and closes the backend.
func (e *Engine) Close() error {
	e.Stop()
	return e.backend.Close()
}

// Processed returns how many calls the Run loop has taken.
func (e *Engine) Processed() int64 {
	return e.seq.Load()
}

// drain answers calls left in a closed queue after cancellation.
func (e *Engine) drain() {
	for {
		t, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		err := unavailable(t.call)
		if t.reply != nil {
			t.reply <- result{err: err}
			continue
		}
		e.deliver(t.call, ir.Failed(t.call.Token, err.Error()))
	}
}

// process executes one call.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) process(ctx context.Context, t task) {
	seq := e.seq.Add(1)
	call := t.call
	e.logger.Debug("processing call",
		"seq", seq,
		"action", call.Action,
		"token", call.Token,
		"db", call.Database,
		"store", call.Store,
	)

	if t.reply != nil {
		reply, err := e.read(ctx, t)
		if err != nil {
			be := callError(call, err)
			e.logger.Warn("read failed", "seq", seq, "action", call.Action, "token", call.Token, "error", be)
			t.reply <- result{err: be}
			return
		}
		t.reply <- result{reply: reply}
		return
	}

	outcome, err := e.mutate(ctx, call)
	if err != nil {
		be := callError(call, err)
		e.logger.Warn("call failed", "seq", seq, "action", call.Action, "token", call.Token, "error", be)
		outcome = ir.Failed(call.Token, be.Error())
	}
	e.deliver(call, outcome)
}

func (e *Engine) deliver(call boundary.Call, o ir.Outcome) {
	c, ok := e.completer(call.Caller)
	if !ok {
		e.logger.Warn("outcome dropped: no completer attached",
			"caller", call.Caller, "token", o.Token, "failed", o.Failed)
		return
	}
	c.Complete(o)
}

func (e *Engine) read(ctx context.Context, t task) (boundary.Reply, error) {
	call := t.call
	switch call.Action {
	case boundary.ToArray:
		rows, err := e.backend.All(ctx, call.Database, call.Store)
		if err != nil {
			return boundary.Reply{}, err
		}
		return boundary.Reply{Rows: rows}, nil

	case boundary.FindItem:
		item, err := e.backend.Get(ctx, call.Database, call.Store, call.Keys[0])
		if err != nil {
			return boundary.Reply{}, err
		}
		return boundary.Reply{Item: item}, nil

	case boundary.Where:
		rows, err := e.backend.Query(ctx, call.Database, *t.query)
		if err != nil {
			return boundary.Reply{}, err
		}
		return boundary.Reply{Rows: rows}, nil

	case boundary.BulkDelete:
		n, err := e.backend.Delete(ctx, call.Database, call.Store, call.Keys)
		if err != nil {
			return boundary.Reply{}, err
		}
		return boundary.Reply{Count: n}, nil

	case boundary.StorageEstimate:
		usage, err := e.backend.Usage(ctx)
		if err != nil {
			return boundary.Reply{}, err
		}
		quota := e.quota.Quota()
		if quota <= 0 {
			quota = DefaultQuota
		}
		return boundary.Reply{Estimate: boundary.Estimate{Quota: quota, Usage: usage}}, nil

	default:
		return boundary.Reply{}, fmt.Errorf("action %s is not a read", call.Action)
	}
}

func (e *Engine) mutate(ctx context.Context, call boundary.Call) (ir.Outcome, error) {
	switch call.Action {
	case boundary.CreateDB:
		if err := e.backend.CreateDatabase(ctx, *call.Spec); err != nil {
			return ir.Outcome{}, err
		}
		return ir.Succeeded(call.Token, fmt.Sprintf("Database %s opened", call.Spec.Name)), nil

	case boundary.DeleteDB:
		if err := e.backend.DeleteDatabase(ctx, call.Database); err != nil {
			return ir.Outcome{}, err
		}
		return ir.Succeeded(call.Token, fmt.Sprintf("Database %s deleted", call.Database)), nil

	case boundary.AddItem, boundary.BulkAdd:
		if err := e.checkQuota(ctx, call.Items); err != nil {
			return ir.Outcome{}, err
		}
		keys, err := e.backend.Add(ctx, call.Database, call.Store, call.Items)
		if err != nil {
			return ir.Outcome{}, err
		}
		o := ir.Succeeded(call.Token, fmt.Sprintf("Added %s to %s", items(len(keys)), call.Store))
		if call.Action == boundary.AddItem {
			o.Payload = keys[0]
		} else {
			o.Payload = ir.IRArray(keys)
		}
		return o, nil

	case boundary.UpdateItem, boundary.BulkUpdate:
		if err := e.checkQuota(ctx, call.Items); err != nil {
			return ir.Outcome{}, err
		}
		if err := e.backend.Put(ctx, call.Database, call.Store, call.Items); err != nil {
			return ir.Outcome{}, err
		}
		return ir.Succeeded(call.Token, fmt.Sprintf("Updated %s in %s", items(len(call.Items)), call.Store)), nil

	case boundary.DeleteItem:
		n, err := e.backend.Delete(ctx, call.Database, call.Store, call.Keys)
		if err != nil {
			return ir.Outcome{}, err
		}
		o := ir.Succeeded(call.Token, fmt.Sprintf("Deleted %s from %s", items(int(n)), call.Store))
		o.Payload = ir.IRInt(n)
		return o, nil

	case boundary.ClearStore:
		if err := e.backend.Clear(ctx, call.Database, call.Store); err != nil {
			return ir.Outcome{}, err
		}
		return ir.Succeeded(call.Token, fmt.Sprintf("Cleared %s", call.Store)), nil

	default:
		return ir.Outcome{}, fmt.Errorf("action %s is not a mutation", call.Action)
	}
}

func (e *Engine) checkQuota(ctx context.Context, batch []*ir.Bag) error {
	if e.quota.Quota() <= 0 {
		return nil
	}
	usage, err := e.backend.Usage(ctx)
	if err != nil {
		return fmt.Errorf("read usage: %w", err)
	}
	return e.quota.Check(usage, batch)
}

func items(n int) string {
	if n == 1 {
		return "1 item"
	}
	return fmt.Sprintf("%d items", n)
}
