package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
)

// Bag is an ordered property bag: the stored form of a record.
//
// Keys are column names. Iteration and JSON encoding follow insertion order,
// which is the schema's field declaration order when the bag comes from the
// marshaller. The zero value is an empty, usable bag.
type Bag struct {
	keys []string
	vals map[string]IRValue
}

// NewBag creates an empty bag.
func NewBag() *Bag {
	return &Bag{vals: make(map[string]IRValue)}
}

// Set stores v under key. Re-setting an existing key keeps its position.
func (b *Bag) Set(key string, v IRValue) {
	if b.vals == nil {
		b.vals = make(map[string]IRValue)
	}
	if v == nil {
		v = IRNull{}
	}
	if _, ok := b.vals[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.vals[key] = v
}

// Get returns the value under key.
func (b *Bag) Get(key string) (IRValue, bool) {
	if b == nil {
		return nil, false
	}
	v, ok := b.vals[key]
	return v, ok
}

// Delete removes key from the bag. Deleting an absent key is a no-op.
func (b *Bag) Delete(key string) {
	if b == nil {
		return
	}
	if _, ok := b.vals[key]; !ok {
		return
	}
	delete(b.vals, key)
	b.keys = slices.DeleteFunc(b.keys, func(k string) bool { return k == key })
}

// Has reports whether key is present.
func (b *Bag) Has(key string) bool {
	_, ok := b.Get(key)
	return ok
}

// Len returns the number of properties.
func (b *Bag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.keys)
}

// Keys returns a copy of the keys in insertion order.
func (b *Bag) Keys() []string {
	if b == nil {
		return nil
	}
	return slices.Clone(b.keys)
}

// All iterates the properties in insertion order.
func (b *Bag) All() iter.Seq2[string, IRValue] {
	return func(yield func(string, IRValue) bool) {
		if b == nil {
			return
		}
		for _, k := range b.keys {
			if !yield(k, b.vals[k]) {
				return
			}
		}
	}
}

// Clone returns a shallow copy. Values are immutable so sharing them is safe.
func (b *Bag) Clone() *Bag {
	out := NewBag()
	for k, v := range b.All() {
		out.Set(k, v)
	}
	return out
}

// Object returns the bag as an unordered IRObject.
func (b *Bag) Object() IRObject {
	obj := make(IRObject, b.Len())
	for k, v := range b.All() {
		obj[k] = v
	}
	return obj
}

// MarshalJSON encodes the bag as a JSON object in insertion order.
func (b *Bag) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	i := 0
	for k, v := range b.All() {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalIRValue(v)
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving the document's key order.
// A repeated key keeps its first position and its last value.
func (b *Bag) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("property bag must be a JSON object")
	}

	*b = Bag{vals: make(map[string]IRValue)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		v, err := UnmarshalIRValue(raw)
		if err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		b.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
