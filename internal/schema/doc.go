// Package schema derives table schemas from statically declared record
// descriptors.
//
// A Descriptor lists the fields of a record type with typed accessors, so
// no reflection is needed at runtime:
//
//	var People = schema.Describe("Person",
//	    schema.Int("Id", func(p *Person) *int64 { return &p.ID }).AutoIncrement(),
//	    schema.String("Name", func(p *Person) *string { return &p.Name }).Index(),
//	    schema.String("Email", func(p *Person) *string { return &p.Email }).Unique(),
//	    schema.String("Secret", func(p *Person) *string { return &p.Secret }).Encrypt(),
//	    schema.Bool("Dirty", func(p *Person) *bool { return &p.Dirty }).NotMapped(),
//	)
//
// Derive turns a descriptor into a Schema: the ir.TableSchema handed to the
// boundary plus the bidirectional field/column mapping used by the record
// marshaller and the predicate compiler. ColumnName is the only place a
// column name is computed.
package schema
