package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/idxstore/internal/boundary"
	"github.com/roach88/idxstore/internal/correlate"
	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/marshal"
)

// DefaultTimeout bounds how long *Async calls wait for an outcome.
const DefaultTimeout = 30 * time.Second

// Manager issues calls for one database across a boundary.
//
// Thread-safety model: all methods are safe from any goroutine. The
// boundary may complete calls from its own goroutine.
type Manager struct {
	boundary boundary.Boundary
	table    *correlate.Table
	spec     ir.DatabaseSpec
	handle   string
	hook     marshal.Hook
	hookKey  string
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTable sets the correlation table. Default: correlate.New().
func WithTable(t *correlate.Table) Option {
	return func(m *Manager) { m.table = t }
}

// WithHook installs the encryption hook and key used for encrypt-tagged
// fields of every bound store.
func WithHook(h marshal.Hook, key string) Option {
	return func(m *Manager) {
		m.hook = h
		m.hookKey = key
	}
}

// WithTimeout sets how long *Async calls wait. Zero waits for the context
// only. Default: DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithHandle sets the caller handle the boundary routes completions by.
// Default: a random UUID.
func WithHandle(handle string) Option {
	return func(m *Manager) { m.handle = handle }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a manager for spec and attaches it to b.
// Call Close to detach.
func New(b boundary.Boundary, spec ir.DatabaseSpec, opts ...Option) *Manager {
	m := &Manager{
		boundary: b,
		spec:     spec,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.table == nil {
		m.table = correlate.New(correlate.WithLogger(m.logger))
	}
	if m.handle == "" {
		m.handle = uuid.NewString()
	}
	b.Attach(m.handle, boundary.CompleterFunc(m.complete))
	return m
}

func (m *Manager) complete(o ir.Outcome) {
	m.logger.Debug("call completed", "token", o.Token, "failed", o.Failed, "message", o.Message)
	m.table.Complete(o)
}

// Close detaches the manager from the boundary. Outcomes of calls still in
// flight are dropped.
func (m *Manager) Close() {
	m.boundary.Detach(m.handle)
}

// Spec returns the database definition.
func (m *Manager) Spec() ir.DatabaseSpec { return m.spec }

// Notifications returns the best-effort channel of outcomes nobody else
// received.
func (m *Manager) Notifications() <-chan ir.Outcome { return m.table.Notifications() }

// Pending returns the number of calls awaiting an outcome.
func (m *Manager) Pending() int { return m.table.Pending() }

// issue sends a mutation with callback-style completion. The token is
// returned even when the boundary rejects the call.
func (m *Manager) issue(ctx context.Context, l *correlate.Listener, call boundary.Call) uuid.UUID {
	call.Token = m.table.Callback(l)
	call.Caller = m.handle
	call.Database = m.spec.Name

	m.logger.Debug("call issued", "action", call.Action, "store", call.Store, "token", call.Token)
	if _, err := m.boundary.Invoke(ctx, call); err != nil {
		m.table.Forget(call.Token)
		m.table.Notify(ir.Failed(call.Token, err.Error()))
	}
	return call.Token
}

// issueAsync sends a mutation and waits for its outcome.
func (m *Manager) issueAsync(ctx context.Context, call boundary.Call) (ir.Outcome, error) {
	token, future := m.table.Future()
	call.Token = token
	call.Caller = m.handle
	call.Database = m.spec.Name

	m.logger.Debug("call issued", "action", call.Action, "store", call.Store, "token", token)
	if _, err := m.boundary.Invoke(ctx, call); err != nil {
		m.table.Forget(token)
		return ir.Failed(token, err.Error()), &BoundaryError{Action: call.Action, Token: token, Err: err}
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	return future.Wait(ctx)
}

// read sends a synchronous call. A boundary error is published as a failed
// notification before it is returned.
func (m *Manager) read(ctx context.Context, call boundary.Call) (boundary.Reply, error) {
	call.Token = m.table.Token()
	call.Caller = m.handle
	if call.Action != boundary.StorageEstimate {
		call.Database = m.spec.Name
	}

	reply, err := m.boundary.Invoke(ctx, call)
	if err != nil {
		m.table.Notify(ir.Failed(call.Token, err.Error()))
		return boundary.Reply{}, &BoundaryError{Action: call.Action, Token: call.Token, Err: err}
	}
	return reply, nil
}

// OpenDatabase creates or upgrades the database. The outcome goes to l.
func (m *Manager) OpenDatabase(ctx context.Context, l *correlate.Listener) uuid.UUID {
	spec := m.spec
	return m.issue(ctx, l, boundary.Call{Action: boundary.CreateDB, Spec: &spec})
}

// OpenDatabaseAsync creates or upgrades the database and waits.
func (m *Manager) OpenDatabaseAsync(ctx context.Context) (ir.Outcome, error) {
	spec := m.spec
	return m.issueAsync(ctx, boundary.Call{Action: boundary.CreateDB, Spec: &spec})
}

// DeleteDatabase deletes the database with every store. The outcome goes
// to l.
func (m *Manager) DeleteDatabase(ctx context.Context, l *correlate.Listener) uuid.UUID {
	return m.issue(ctx, l, boundary.Call{Action: boundary.DeleteDB})
}

// DeleteDatabaseAsync deletes the database and waits.
func (m *Manager) DeleteDatabaseAsync(ctx context.Context) (ir.Outcome, error) {
	return m.issueAsync(ctx, boundary.Call{Action: boundary.DeleteDB})
}

// ClearStore removes every record of the named store, keeping the store.
func (m *Manager) ClearStore(ctx context.Context, name string, l *correlate.Listener) uuid.UUID {
	return m.issue(ctx, l, boundary.Call{Action: boundary.ClearStore, Store: name})
}

// ClearStoreAsync clears the named store and waits.
func (m *Manager) ClearStoreAsync(ctx context.Context, name string) (ir.Outcome, error) {
	return m.issueAsync(ctx, boundary.Call{Action: boundary.ClearStore, Store: name})
}

// Decrypt reverses the encryption hook for a stored value.
func (m *Manager) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return marshal.Decrypt(ctx, m.hook, ciphertext, m.hookKey)
}

// Estimate is the storage quota and usage reported by the boundary.
type Estimate struct {
	QuotaBytes int64
	UsageBytes int64
}

const bytesPerMB = 1024 * 1024

// QuotaMB returns the quota in mebibytes.
func (e Estimate) QuotaMB() float64 { return float64(e.QuotaBytes) / bytesPerMB }

// UsageMB returns the usage in mebibytes.
func (e Estimate) UsageMB() float64 { return float64(e.UsageBytes) / bytesPerMB }

// StorageEstimate asks the boundary for its storage quota and usage.
func (m *Manager) StorageEstimate(ctx context.Context) (Estimate, error) {
	reply, err := m.read(ctx, boundary.Call{Action: boundary.StorageEstimate})
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{QuotaBytes: reply.Estimate.Quota, UsageBytes: reply.Estimate.Usage}, nil
}

// Rows returns every row of the named store in primary key order without
// decoding them into a record type. Encrypted fields stay encrypted.
func (m *Manager) Rows(ctx context.Context, storeName string) ([]*ir.Bag, error) {
	if _, ok := m.spec.Store(storeName); !ok {
		return nil, fmt.Errorf("rows of %s in %s: %w", storeName, m.spec.Name, ErrUnknownStore)
	}
	reply, err := m.read(ctx, boundary.Call{Action: boundary.ToArray, Store: storeName})
	if err != nil {
		return nil, err
	}
	return reply.Rows, nil
}
