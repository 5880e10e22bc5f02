package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idxstore/internal/ir"
)

func TestOperation_Mirror(t *testing.T) {
	assert.Equal(t, LessThan, GreaterThan.Mirror())
	assert.Equal(t, GreaterThan, LessThan.Mirror())
	assert.Equal(t, LessThanOrEqual, GreaterThanOrEqual.Mirror())
	assert.Equal(t, GreaterThanOrEqual, LessThanOrEqual.Mirror())
	assert.Equal(t, Equal, Equal.Mirror())
	assert.Equal(t, NotEqual, NotEqual.Mirror())
}

func TestOperation_Classes(t *testing.T) {
	assert.True(t, Contains.IsString())
	assert.False(t, Equal.IsString())
	assert.True(t, LessThan.IsRelational())
	assert.False(t, StartsWith.IsRelational())
	assert.False(t, Operation("Like").Valid())
}

func TestEncodeGroups_Canonical(t *testing.T) {
	g := Groups{
		{
			{Column: "Name", Operation: Equal, Value: ir.IRString("Bob"), IsString: true, CaseSensitive: true},
			{Column: "age", Operation: GreaterThan, Value: ir.IRInt(30)},
		},
	}

	data, err := EncodeGroups(g)
	require.NoError(t, err)
	assert.Equal(t,
		`[[{"case_sensitive":true,"column":"Name","is_string":true,"operation":"Equal","value":"Bob"},`+
			`{"case_sensitive":false,"column":"age","is_string":false,"operation":"GreaterThan","value":30}]]`,
		string(data))
}

func TestGroups_RoundTrip(t *testing.T) {
	g := Groups{
		{{Column: "Name", Operation: StartsWith, Value: ir.IRString("c"), IsString: true}},
		{{Column: "Score", Operation: LessThanOrEqual, Value: ir.IRFloat(2.5)}},
		{{Column: "Flag", Operation: Equal, Value: ir.IRNull{}}},
	}

	data, err := EncodeGroups(g)
	require.NoError(t, err)

	back, err := DecodeGroups(data)
	require.NoError(t, err)
	assert.Equal(t, g, back)
}

func TestDecodeGroups_Errors(t *testing.T) {
	_, err := DecodeGroups([]byte(`[[{"column":"a","bogus":1}]]`))
	assert.Error(t, err, "unknown fields are rejected")

	_, err = DecodeGroups([]byte(`{"column":"a"}`))
	assert.Error(t, err)

	g, err := DecodeGroups(nil)
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestDirectives_RoundTrip(t *testing.T) {
	ds := []Directive{
		{Name: OrderByDescending, Column: "age"},
		{Name: Skip, Count: 1},
		{Name: Take, Count: 2},
	}

	data, err := EncodeDirectives(ds)
	require.NoError(t, err)
	assert.Equal(t, `[{"column":"age","name":"order_by_descending"},{"count":1,"name":"skip"},{"count":2,"name":"take"}]`, string(data))

	back, err := DecodeDirectives(data)
	require.NoError(t, err)
	assert.Equal(t, ds, back)
}

func TestValidate(t *testing.T) {
	good := Query{
		Store: "Person",
		Groups: Groups{{
			{Column: "Name", Operation: Contains, Value: ir.IRString("o"), IsString: true},
			{Column: "age", Operation: LessThan, Value: ir.IRInt(3)},
		}},
		Directives: []Directive{{Name: Take, Count: 1}},
	}
	res := Validate(good)
	assert.True(t, res.Valid)
	assert.NoError(t, res.Err())

	tests := []struct {
		name   string
		mutate func(*Query)
		want   string
	}{
		{"no store", func(q *Query) { q.Store = "" }, "store name is required"},
		{"empty group", func(q *Query) { q.Groups = append(q.Groups, Group{}) }, "group 1 is empty"},
		{"no column", func(q *Query) { q.Groups[0][0].Column = "" }, "column is required"},
		{"bad op", func(q *Query) { q.Groups[0][0].Operation = "Like" }, `unknown operation "Like"`},
		{"string op on number", func(q *Query) { q.Groups[0][0].Value = ir.IRInt(1); q.Groups[0][0].IsString = false }, "Contains requires a string value"},
		{"relational on bool", func(q *Query) { q.Groups[0][1].Value = ir.IRBool(true) }, "LessThan requires a number or string value"},
		{"is_string mismatch", func(q *Query) { q.Groups[0][1].IsString = true }, "is_string set on a number value"},
		{"negative take", func(q *Query) { q.Directives[0].Count = -1 }, "count must be >= 0"},
		{"order without column", func(q *Query) { q.Directives[0] = Directive{Name: OrderBy} }, "order_by requires a column"},
		{"unknown directive", func(q *Query) { q.Directives[0].Name = "shuffle" }, `unknown directive "shuffle"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Query{
				Store:      good.Store,
				Groups:     Groups{append(Group{}, good.Groups[0]...)},
				Directives: append([]Directive{}, good.Directives...),
			}
			tt.mutate(&q)
			res := Validate(q)
			require.False(t, res.Valid)
			assert.Contains(t, res.Err().Error(), tt.want)
		})
	}
}
