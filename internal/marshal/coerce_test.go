package marshal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/schema"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   ir.IRValue
		kind schema.Kind
		want ir.IRValue
	}{
		{"string passthrough", ir.IRString("a"), schema.KindString, ir.IRString("a")},
		{"int to string", ir.IRInt(5), schema.KindString, ir.IRString("5")},
		{"float to string", ir.IRFloat(0.5), schema.KindString, ir.IRString("0.5")},
		{"bool to string", ir.IRBool(true), schema.KindString, ir.IRString("true")},
		{"integral float to int", ir.IRFloat(3), schema.KindInt, ir.IRInt(3)},
		{"numeric string to int", ir.IRString(" 17 "), schema.KindInt, ir.IRInt(17)},
		{"bool to int", ir.IRBool(true), schema.KindInt, ir.IRInt(1)},
		{"int to float", ir.IRInt(2), schema.KindFloat, ir.IRFloat(2)},
		{"string to float", ir.IRString("1e2"), schema.KindFloat, ir.IRFloat(100)},
		{"number to bool", ir.IRInt(0), schema.KindBool, ir.IRBool(false)},
		{"string to bool", ir.IRString("TRUE"), schema.KindBool, ir.IRBool(true)},
		{"uuid text", ir.IRString("x"), schema.KindUUID, ir.IRString("x")},
		{"null", ir.IRNull{}, schema.KindInt, ir.IRNull{}},
		{"nil", nil, schema.KindString, ir.IRNull{}},
		{"array unrecognized", ir.IRArray{}, schema.KindString, ir.IRNull{}},
		{"object unrecognized", ir.IRObject{}, schema.KindBool, ir.IRNull{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.in, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceErrors(t *testing.T) {
	tests := []struct {
		name string
		in   ir.IRValue
		kind schema.Kind
	}{
		{"fraction to int", ir.IRFloat(1.5), schema.KindInt},
		{"word to int", ir.IRString("ten"), schema.KindInt},
		{"word to float", ir.IRString("NaN"), schema.KindFloat},
		{"word to bool", ir.IRString("maybe"), schema.KindBool},
		{"number to uuid", ir.IRInt(1), schema.KindUUID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Coerce(tt.in, tt.kind)
			assert.Error(t, err)
		})
	}
}
