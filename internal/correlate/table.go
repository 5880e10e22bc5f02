package correlate

import (
	"log/slog"
	"sync"
	"weak"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/roach88/idxstore/internal/ir"
)

// TokenGenerator generates correlation tokens.
// Implemented by randomTokens (production) and the testutil generators.
type TokenGenerator interface {
	Generate() uuid.UUID
}

type randomTokens struct{}

func (randomTokens) Generate() uuid.UUID { return uuid.New() }

// DefaultNotificationBuffer is the capacity of the notification channel.
const DefaultNotificationBuffer = 64

// maxTokenAttempts bounds how often an injected generator may collide
// before the table falls back to random tokens.
const maxTokenAttempts = 16

// Listener receives the outcome of a callback-style call.
//
// The table holds listeners weakly: the caller must keep the *Listener
// reachable until the call completes. A collected listener turns the
// completion into a notification.
type Listener struct {
	fn func(ir.Outcome)
}

// NewListener wraps fn.
func NewListener(fn func(ir.Outcome)) *Listener {
	return &Listener{fn: fn}
}

// pending is exactly one of a weak callback (Left) or a future (Right).
type pending = mo.Either[weak.Pointer[Listener], *Future]

// Table is the pending-completion table.
//
// Thread-safety model:
//   - every method is safe from any goroutine
//   - the mutex guards the map only and is never held while delivering
//
// INVARIANTS:
//   - live tokens are unique and never uuid.Nil
//   - an entry is removed before its completion is delivered, so each token
//     is delivered at most once
type Table struct {
	mu      sync.Mutex
	pending map[uuid.UUID]pending

	tokens TokenGenerator
	notes  chan ir.Outcome
	logger *slog.Logger
}

// Option configures a Table.
type Option func(*tableConfig)

type tableConfig struct {
	tokens TokenGenerator
	buffer int
	logger *slog.Logger
}

// WithTokenGenerator replaces the random token source. Used in tests for
// deterministic tokens.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(c *tableConfig) { c.tokens = g }
}

// WithNotificationBuffer sets the notification channel capacity.
//
// Default: 64 (DefaultNotificationBuffer)
func WithNotificationBuffer(n int) Option {
	return func(c *tableConfig) { c.buffer = n }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *tableConfig) { c.logger = l }
}

// New creates an empty table.
func New(opts ...Option) *Table {
	cfg := tableConfig{
		tokens: randomTokens{},
		buffer: DefaultNotificationBuffer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.buffer < 0 {
		cfg.buffer = 0
	}
	return &Table{
		pending: make(map[uuid.UUID]pending),
		tokens:  cfg.tokens,
		notes:   make(chan ir.Outcome, cfg.buffer),
		logger:  cfg.logger,
	}
}

// nextToken returns a token not in the live set. Caller holds t.mu.
func (t *Table) nextToken() uuid.UUID {
	for range maxTokenAttempts {
		tok := t.tokens.Generate()
		if tok == uuid.Nil {
			continue
		}
		if _, live := t.pending[tok]; !live {
			return tok
		}
		t.logger.Debug("correlation token collision", "token", tok)
	}
	for {
		tok := uuid.New()
		if _, live := t.pending[tok]; !live {
			return tok
		}
	}
}

// Callback registers l for the next call and returns its token.
// A nil listener registers nothing the completion can reach; the outcome
// then goes to Notifications.
func (t *Table) Callback(l *Listener) uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	tok := t.nextToken()
	t.pending[tok] = mo.Left[weak.Pointer[Listener], *Future](weak.Make(l))
	return tok
}

// Token returns a fresh token without registering anything. Synchronous
// calls use it to tag notifications.
func (t *Table) Token() uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextToken()
}

// Future registers a future for the next call.
func (t *Table) Future() (uuid.UUID, *Future) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tok := t.nextToken()
	f := newFuture(tok)
	t.pending[tok] = mo.Right[weak.Pointer[Listener]](f)
	return tok, f
}

// Complete delivers o to the registration for o.Token and removes it.
// Returns false when no registration matched; the outcome is dropped.
func (t *Table) Complete(o ir.Outcome) bool {
	t.mu.Lock()
	p, ok := t.pending[o.Token]
	if ok {
		delete(t.pending, o.Token)
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Debug("completion without registration dropped", "token", o.Token)
		return false
	}

	if wp, isCallback := p.Left(); isCallback {
		l := wp.Value()
		if l == nil || l.fn == nil {
			t.logger.Debug("listener collected, completion redirected to notifications", "token", o.Token)
			t.Notify(o)
			return true
		}
		l.fn(o)
		return true
	}

	f := p.MustRight()
	if !f.resolve(o) {
		t.logger.Debug("late completion for resolved future dropped", "token", o.Token)
	}
	return true
}

// Notify publishes o on the notification channel without blocking.
// When the channel is full the notification is dropped.
func (t *Table) Notify(o ir.Outcome) {
	select {
	case t.notes <- o:
	default:
		t.logger.Warn("notification dropped", "token", o.Token, "failed", o.Failed, "message", o.Message)
	}
}

// Notifications returns the best-effort notification channel.
func (t *Table) Notifications() <-chan ir.Outcome {
	return t.notes
}

// Forget removes the registration for token. Returns false if none existed.
func (t *Table) Forget(token uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[token]; !ok {
		return false
	}
	delete(t.pending, token)
	return true
}

// Pending returns the number of live registrations.
func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// IsPending reports whether token has a live registration.
func (t *Table) IsPending(token uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[token]
	return ok
}
