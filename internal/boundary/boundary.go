package boundary

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/idxstore/internal/ir"
)

// Action names an operation the boundary executes.
type Action string

const (
	CreateDB        Action = "create_db"
	DeleteDB        Action = "delete_db"
	AddItem         Action = "add_item"
	BulkAdd         Action = "bulk_add"
	UpdateItem      Action = "update_item"
	BulkUpdate      Action = "bulk_update"
	DeleteItem      Action = "delete_item"
	BulkDelete      Action = "bulk_delete"
	ClearStore      Action = "clear_store"
	ToArray         Action = "to_array"
	FindItem        Action = "find_item"
	Where           Action = "where"
	StorageEstimate Action = "storage_estimate"
)

// Synchronous reports whether the action answers in the Reply of Invoke
// rather than through the attached Completer.
func (a Action) Synchronous() bool {
	switch a {
	case ToArray, FindItem, Where, StorageEstimate, BulkDelete:
		return true
	}
	return false
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case CreateDB, DeleteDB, AddItem, BulkAdd, UpdateItem, BulkUpdate,
		DeleteItem, BulkDelete, ClearStore, ToArray, FindItem, Where, StorageEstimate:
		return true
	}
	return false
}

// Call is one request crossing the boundary.
//
// Which of the argument fields are read depends on Action:
//
//	create_db          Spec
//	delete_db          Database
//	add_item           Database, Store, Items[0]
//	bulk_add           Database, Store, Items
//	update_item        Database, Store, Items[0]
//	bulk_update        Database, Store, Items
//	delete_item        Database, Store, Keys[0]
//	bulk_delete        Database, Store, Keys
//	clear_store        Database, Store
//	to_array           Database, Store
//	find_item          Database, Store, Keys[0]
//	where              Database, Store, Groups, Directives, Unique
//	storage_estimate   (none)
type Call struct {
	Caller   string
	Token    uuid.UUID
	Action   Action
	Database string
	Store    string

	Spec  *ir.DatabaseSpec
	Items []*ir.Bag
	Keys  []ir.IRValue

	// Groups is the JSON array of OR-groups; Directives the JSON array of
	// directives. Both are queryir encodings.
	Groups     json.RawMessage
	Directives json.RawMessage
	Unique     bool
}

// Check verifies the call carries the arguments its action reads.
func (c Call) Check() error {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalidCall, Action: c.Action, Token: c.Token, Message: fmt.Sprintf(format, args...)}
	}
	if !c.Action.Valid() {
		return invalid("unknown action %q", c.Action)
	}
	switch c.Action {
	case StorageEstimate:
		return nil
	case CreateDB:
		if c.Spec == nil {
			return invalid("database spec is required")
		}
		return nil
	}
	if c.Database == "" {
		return invalid("database name is required")
	}
	if c.Action == DeleteDB {
		return nil
	}
	if c.Store == "" {
		return invalid("store name is required")
	}
	switch c.Action {
	case AddItem, UpdateItem:
		if len(c.Items) != 1 || c.Items[0] == nil {
			return invalid("exactly one item is required")
		}
	case BulkAdd, BulkUpdate:
		for i, item := range c.Items {
			if item == nil {
				return invalid("item %d is nil", i)
			}
		}
	case DeleteItem, FindItem:
		if len(c.Keys) != 1 || ir.IsNull(c.Keys[0]) {
			return invalid("exactly one key is required")
		}
	case BulkDelete:
		for i, k := range c.Keys {
			if ir.IsNull(k) {
				return invalid("key %d is null", i)
			}
		}
	}
	return nil
}

// Estimate is the storage quota and usage, in bytes.
type Estimate struct {
	Quota int64 `json:"quota"`
	Usage int64 `json:"usage"`
}

// Reply is the synchronous answer of a read.
type Reply struct {
	// Rows holds to_array and where results.
	Rows []*ir.Bag

	// Item holds the find_item result; nil when the key is absent.
	Item *ir.Bag

	// Count holds the bulk_delete count.
	Count int64

	// Estimate holds the storage_estimate result.
	Estimate Estimate
}

// Completer receives asynchronous completions.
type Completer interface {
	Complete(ir.Outcome)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ir.Outcome)

// Complete calls f(o).
func (f CompleterFunc) Complete(o ir.Outcome) { f(o) }

// Boundary is the opaque call boundary in front of the store engine.
//
// Attach registers the completer that receives outcomes of calls issued
// under handle. Invoke never blocks on a mutation: it returns once the call
// is accepted, and the outcome arrives later on the completer. Reads answer
// in the returned Reply.
type Boundary interface {
	Attach(handle string, c Completer)
	Detach(handle string)
	Invoke(ctx context.Context, call Call) (Reply, error)
}
