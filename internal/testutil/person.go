package testutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/schema"
)

// Person is the record type shared by package tests and harness scenarios.
type Person struct {
	ID      int64
	GUID    uuid.UUID
	Name    string
	Email   string
	Age     int
	Score   float64
	Secret  string
	Retired bool
	Scratch string
}

// People declares Person. Id is store-generated; Name and Age are indexed;
// GUID and Email are unique; Secret is encrypted; Scratch is not stored.
var People = schema.Describe("Person",
	schema.Int("Id", func(p *Person) *int64 { return &p.ID }).AutoIncrement(),
	schema.UUID("GUID", func(p *Person) *uuid.UUID { return &p.GUID }).Unique(),
	schema.String("Name", func(p *Person) *string { return &p.Name }).Index(),
	schema.String("Email", func(p *Person) *string { return &p.Email }).Unique(),
	schema.Int("Age", func(p *Person) *int { return &p.Age }).Index().Column("age"),
	schema.Float("Score", func(p *Person) *float64 { return &p.Score }),
	schema.String("Secret", func(p *Person) *string { return &p.Secret }).Encrypt(),
	schema.Bool("Retired", func(p *Person) *bool { return &p.Retired }),
	schema.String("Scratch", func(p *Person) *string { return &p.Scratch }).NotMapped(),
)

// PeopleSpec is a database definition holding the Person store.
func PeopleSpec() ir.DatabaseSpec {
	return ir.DatabaseSpec{
		Name:    "Directory",
		Version: 1,
		Stores: []ir.TableSchema{{
			Name:           "Person",
			PrimaryKey:     "Id",
			PrimaryKeyAuto: true,
			UniqueIndexes:  []string{"GUID", "Email"},
			Indexes:        []string{"Name", "age"},
		}},
	}
}

// ReverseHook is a reversible stand-in for encryption: it reverses the
// plaintext and prefixes the key.
type ReverseHook struct{}

// Encrypt implements marshal.Hook.
func (ReverseHook) Encrypt(_ context.Context, plaintext, key string) (string, error) {
	return key + ":" + reverse(plaintext), nil
}

// Decrypt implements marshal.Hook.
func (ReverseHook) Decrypt(_ context.Context, ciphertext, key string) (string, error) {
	rest, ok := strings.CutPrefix(ciphertext, key+":")
	if !ok {
		return "", fmt.Errorf("ciphertext not produced under key %q", key)
	}
	return reverse(rest), nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
