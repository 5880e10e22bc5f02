package store

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idxstore/internal/boundary"
	"github.com/roach88/idxstore/internal/correlate"
	"github.com/roach88/idxstore/internal/engine"
	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/memdb"
	"github.com/roach88/idxstore/internal/schema"
	"github.com/roach88/idxstore/internal/testutil"
)

const hookKey = "k"

func startEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.New(memdb.New())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func newManager(t *testing.T, b boundary.Boundary, opts ...Option) *Manager {
	t.Helper()
	table := correlate.New(correlate.WithTokenGenerator(testutil.NewSequenceGenerator()))
	opts = append([]Option{WithHook(testutil.ReverseHook{}, hookKey), WithTable(table)}, opts...)
	m := New(b, testutil.PeopleSpec(), opts...)
	t.Cleanup(m.Close)
	return m
}

// openPeople returns an open Directory database and its Person store.
func openPeople(t *testing.T) (*Manager, *Store[testutil.Person]) {
	t.Helper()
	m := newManager(t, startEngine(t))

	o, err := m.OpenDatabaseAsync(t.Context())
	require.NoError(t, err)
	require.False(t, o.Failed, o.Message)

	people, err := Bind(m, testutil.People)
	require.NoError(t, err)
	return m, people
}

func newPerson(name, email string, age int) *testutil.Person {
	return &testutil.Person{GUID: uuid.New(), Name: name, Email: email, Age: age}
}

func seed(t *testing.T, people *Store[testutil.Person]) {
	t.Helper()
	o, err := people.AddRange(t.Context(), []*testutil.Person{
		newPerson("Bob", "bob@x.org", 31),
		newPerson("carla", "carla@x.org", 25),
		newPerson("Luis", "luis@x.org", 40),
		newPerson("bobby", "bobby@x.org", 30),
	})
	require.NoError(t, err)
	require.False(t, o.Failed, o.Message)
}

func names(recs []*testutil.Person) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Name)
	}
	return out
}

func nextNotification(t *testing.T, m *Manager) ir.Outcome {
	t.Helper()
	select {
	case o := <-m.Notifications():
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return ir.Outcome{}
	}
}

func TestAddAsync_RoundTripsThroughGetByID(t *testing.T) {
	_, people := openPeople(t)
	ctx := t.Context()

	p := newPerson("Bob", "bob@x.org", 31)
	p.Secret = "hunter2"
	p.Score = 2.5
	p.Scratch = "not stored"

	o, err := people.AddAsync(ctx, p)
	require.NoError(t, err)
	require.False(t, o.Failed, o.Message)
	assert.Equal(t, "Added 1 item to Person", o.Message)
	assert.Equal(t, ir.IRInt(1), o.Payload)
	assert.Zero(t, p.ID, "the caller's record is not modified")

	got, ok, err := people.GetByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, p.GUID, got.GUID)
	assert.Equal(t, "Bob", got.Name)
	assert.Equal(t, 31, got.Age)
	assert.Equal(t, 2.5, got.Score)
	assert.Empty(t, got.Scratch)
	assert.Equal(t, "k:2retnuh", got.Secret, "encrypted fields come back as stored")

	plain, err := people.Decrypt(ctx, got.Secret)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	_, ok, err = people.GetByID(ctx, int64(42))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = people.GetByID(ctx, "1")
	assert.ErrorIs(t, err, ErrKeyType)
}

func TestAdd_CallbackReceivesOutcome(t *testing.T) {
	m, people := openPeople(t)

	got := make(chan ir.Outcome, 1)
	l := correlate.NewListener(func(o ir.Outcome) { got <- o })

	token, err := people.Add(t.Context(), newPerson("Bob", "bob@x.org", 31), l)
	require.NoError(t, err)

	select {
	case o := <-got:
		assert.Equal(t, token, o.Token)
		assert.False(t, o.Failed)
	case <-time.After(2 * time.Second):
		t.Fatal("listener not called")
	}
	runtime.KeepAlive(l)
	assert.Zero(t, m.Pending())
}

func TestAdd_WithoutListenerGoesToNotifications(t *testing.T) {
	m, people := openPeople(t)

	token, err := people.Add(t.Context(), newPerson("Bob", "bob@x.org", 31), nil)
	require.NoError(t, err)

	o := nextNotification(t, m)
	assert.Equal(t, token, o.Token)
	assert.False(t, o.Failed)
}

func TestAdd_ConstraintViolationFailsOutcome(t *testing.T) {
	_, people := openPeople(t)
	ctx := t.Context()

	_, err := people.AddAsync(ctx, newPerson("Bob", "bob@x.org", 31))
	require.NoError(t, err)

	o, err := people.AddAsync(ctx, newPerson("Robert", "bob@x.org", 50))
	require.NoError(t, err, "a failed outcome is not a boundary error")
	assert.True(t, o.Failed)
	assert.Contains(t, o.Message, "CONSTRAINT")
}

func TestMutation_BoundaryErrorBecomesNotification(t *testing.T) {
	m, people := openPeople(t)
	ctx := t.Context()
	m.Close()

	token, err := people.Add(ctx, newPerson("Bob", "bob@x.org", 31), nil)
	require.NoError(t, err, "callback-style mutations always return a token")
	assert.NotEqual(t, uuid.Nil, token)

	o := nextNotification(t, m)
	assert.Equal(t, token, o.Token)
	assert.True(t, o.Failed)
	assert.Contains(t, o.Message, "INVALID_CALL")
	assert.Zero(t, m.Pending(), "the registration is retracted")

	o, err = people.AddAsync(ctx, newPerson("Bob", "bob@x.org", 31))
	require.Error(t, err)
	assert.True(t, IsBoundaryError(err))
	assert.Equal(t, boundary.ErrCodeInvalidCall, boundary.CodeOf(err))
	assert.True(t, o.Failed)
	assert.Zero(t, m.Pending())
}

func TestPrepareErrorsComeFirst(t *testing.T) {
	m, people := openPeople(t)
	ctx := t.Context()

	_, err := people.Update(ctx, newPerson("Bob", "bob@x.org", 31), nil)
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = people.Delete(ctx, newPerson("Bob", "bob@x.org", 31), nil)
	assert.ErrorIs(t, err, ErrMissingKey)

	noHook := New(startEngine(t), testutil.PeopleSpec())
	defer noHook.Close()
	bare, err := Bind(noHook, testutil.People)
	require.NoError(t, err)
	secret := newPerson("Bob", "bob@x.org", 31)
	secret.Secret = "hunter2"
	_, err = bare.Add(ctx, secret, nil)
	assert.Error(t, err, "encrypted field without a hook")

	assert.Zero(t, m.Pending())
}

func TestUpdateAndDelete(t *testing.T) {
	_, people := openPeople(t)
	ctx := t.Context()
	seed(t, people)

	bob, ok, err := people.GetByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	bob.Age = 32
	o, err := people.UpdateAsync(ctx, bob)
	require.NoError(t, err)
	require.False(t, o.Failed, o.Message)

	got, _, err := people.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 32, got.Age)

	o, err = people.DeleteAsync(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "Deleted 1 item from Person", o.Message)

	all, err := people.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"carla", "Luis", "bobby"}, names(all))
}

func TestUpdateRange(t *testing.T) {
	m, people := openPeople(t)
	ctx := t.Context()
	seed(t, people)

	all, err := people.GetAll(ctx)
	require.NoError(t, err)
	for _, p := range all {
		p.Retired = true
	}

	token, err := people.UpdateRange(ctx, all, nil)
	require.NoError(t, err)
	o := nextNotification(t, m)
	assert.Equal(t, token, o.Token)
	require.False(t, o.Failed, o.Message)

	all, err = people.GetAll(ctx)
	require.NoError(t, err)
	for _, p := range all {
		assert.True(t, p.Retired, p.Name)
	}
}

func TestDeleteRange(t *testing.T) {
	_, people := openPeople(t)
	ctx := t.Context()
	seed(t, people)

	all, err := people.GetAll(ctx)
	require.NoError(t, err)

	_, err = people.DeleteRange(ctx, []*testutil.Person{all[0], newPerson("Nobody", "n@x.org", 1)})
	assert.ErrorIs(t, err, ErrMissingKey)
	remaining, err := people.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 4, "nothing is deleted when a key is missing")

	gone := &testutil.Person{ID: 99}
	n, err := people.DeleteRange(ctx, []*testutil.Person{all[0], all[1], gone})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestClear(t *testing.T) {
	_, people := openPeople(t)
	ctx := t.Context()
	seed(t, people)

	o, err := people.ClearAsync(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Cleared Person", o.Message)

	all, err := people.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRead_BoundaryErrorNotifiesAndReturns(t *testing.T) {
	m := newManager(t, startEngine(t))
	people, err := Bind(m, testutil.People)
	require.NoError(t, err)

	_, err = people.GetAll(t.Context())
	require.Error(t, err)

	var be *BoundaryError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, boundary.ToArray, be.Action)
	assert.Equal(t, boundary.ErrCodeUnknownDatabase, boundary.CodeOf(err))

	o := nextNotification(t, m)
	assert.Equal(t, be.Token, o.Token)
	assert.True(t, o.Failed)
}

func TestDeleteDatabase(t *testing.T) {
	m, people := openPeople(t)
	ctx := t.Context()
	seed(t, people)

	o, err := m.DeleteDatabaseAsync(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Database Directory deleted", o.Message)

	_, err = people.GetAll(ctx)
	assert.Equal(t, boundary.ErrCodeUnknownDatabase, boundary.CodeOf(err))

	token := m.OpenDatabase(ctx, nil)
	o = nextNotification(t, m)
	assert.Equal(t, token, o.Token)
	assert.Equal(t, "Database Directory opened", o.Message)
}

func TestStorageEstimate(t *testing.T) {
	m, people := openPeople(t)
	seed(t, people)

	est, err := m.StorageEstimate(t.Context())
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultQuota, est.QuotaBytes)
	assert.Equal(t, 1024.0, est.QuotaMB())
	assert.Positive(t, est.UsageBytes)
	assert.InDelta(t, float64(est.UsageBytes)/(1024*1024), est.UsageMB(), 1e-12)
}

func TestManager_Decrypt(t *testing.T) {
	m, _ := openPeople(t)

	plain, err := m.Decrypt(t.Context(), "k:cba")
	require.NoError(t, err)
	assert.Equal(t, "abc", plain)

	blank, err := m.Decrypt(t.Context(), "  ")
	require.NoError(t, err)
	assert.Equal(t, "  ", blank)
}

func TestManager_RowsAreUndecoded(t *testing.T) {
	m, people := openPeople(t)
	p := newPerson("Bob", "bob@x.org", 31)
	p.Secret = "abc"
	o, err := people.AddAsync(t.Context(), p)
	require.NoError(t, err)
	require.False(t, o.Failed, o.Message)

	rows, err := m.Rows(t.Context(), "Person")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	secret, ok := rows[0].Get("Secret")
	require.True(t, ok)
	assert.Equal(t, ir.IRString("k:cba"), secret)

	_, err = m.Rows(t.Context(), "Animal")
	assert.ErrorIs(t, err, ErrUnknownStore)
}

func TestBind(t *testing.T) {
	b := startEngine(t)

	m := New(b, ir.DatabaseSpec{Name: "Empty", Version: 1})
	defer m.Close()
	_, err := Bind(m, testutil.People)
	assert.ErrorIs(t, err, ErrUnknownStore)

	spec := testutil.PeopleSpec()
	spec.Stores[0].PrimaryKey = "Email"
	mismatched := New(b, spec)
	defer mismatched.Close()
	_, err = Bind(mismatched, testutil.People)
	assert.ErrorIs(t, err, schema.ErrStoreMismatch)

	renamed := New(b, ir.DatabaseSpec{Name: "Other", Version: 1, Stores: []ir.TableSchema{{
		Name: "People", PrimaryKey: "Id", PrimaryKeyAuto: true,
		UniqueIndexes: []string{"GUID", "Email"}, Indexes: []string{"Name", "age"},
	}}})
	defer renamed.Close()
	s, err := Bind(renamed, testutil.People, schema.WithName("People"))
	require.NoError(t, err)
	assert.Equal(t, "People", s.Name())
}

// silentBoundary accepts every call and never completes one on its own.
type silentBoundary struct {
	mu         sync.Mutex
	completers map[string]boundary.Completer
	calls      []boundary.Call
}

func (b *silentBoundary) Attach(handle string, c boundary.Completer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.completers == nil {
		b.completers = make(map[string]boundary.Completer)
	}
	b.completers[handle] = c
}

func (b *silentBoundary) Detach(handle string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.completers, handle)
}

func (b *silentBoundary) Invoke(_ context.Context, call boundary.Call) (boundary.Reply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
	return boundary.Reply{}, nil
}

func (b *silentBoundary) complete(o ir.Outcome) {
	b.mu.Lock()
	var cs []boundary.Completer
	for _, c := range b.completers {
		cs = append(cs, c)
	}
	b.mu.Unlock()
	for _, c := range cs {
		c.Complete(o)
	}
}

func TestAsync_TimeoutThenLateCompletionDropped(t *testing.T) {
	b := &silentBoundary{}
	m := newManager(t, b, WithTimeout(20*time.Millisecond))
	people, err := Bind(m, testutil.People)
	require.NoError(t, err)

	_, err = people.AddAsync(t.Context(), newPerson("Bob", "bob@x.org", 31))
	require.Error(t, err)
	assert.True(t, correlate.IsTimeout(err))

	var te *correlate.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, m.Pending(), "a timed-out registration stays until completed")

	b.complete(ir.Succeeded(te.Token, "Added 1 item to Person"))
	assert.Zero(t, m.Pending())
	select {
	case o := <-m.Notifications():
		t.Fatalf("late completion should be dropped, got %+v", o)
	default:
	}
}

func TestIssue_CallCarriesHandleAndDatabase(t *testing.T) {
	b := &silentBoundary{}
	m := newManager(t, b, WithHandle("tab-1"))
	people, err := Bind(m, testutil.People)
	require.NoError(t, err)

	token, err := people.Add(t.Context(), newPerson("Bob", "bob@x.org", 31), nil)
	require.NoError(t, err)

	require.Len(t, b.calls, 1)
	call := b.calls[0]
	assert.Equal(t, "tab-1", call.Caller)
	assert.Equal(t, token, call.Token)
	assert.Equal(t, boundary.AddItem, call.Action)
	assert.Equal(t, "Directory", call.Database)
	assert.Equal(t, "Person", call.Store)
	require.Len(t, call.Items, 1)
	assert.False(t, call.Items[0].Has("Id"), "zero auto-increment key is omitted")
	assert.False(t, call.Items[0].Has("Scratch"))
	assert.True(t, m.table.IsPending(token))
}
