package marshal

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/schema"
)

// Coerce converts an inbound discriminated value into the native IR kind of
// a field of kind k.
//
// Numbers, strings, booleans and null are recognized. Arrays, objects and
// anything else coerce to null, which assigns the field's zero value.
func Coerce(v ir.IRValue, k schema.Kind) (ir.IRValue, error) {
	switch ir.KindOf(v) {
	case ir.KindString, ir.KindNumber, ir.KindBool:
	default:
		return ir.IRNull{}, nil
	}

	switch k {
	case schema.KindString:
		return toString(v), nil
	case schema.KindUUID:
		s, ok := v.(ir.IRString)
		if !ok {
			return nil, fmt.Errorf("cannot coerce %s to uuid", ir.KindOf(v))
		}
		return s, nil
	case schema.KindInt:
		return toInt(v)
	case schema.KindFloat:
		return toFloat(v)
	case schema.KindBool:
		return toBool(v)
	default:
		return nil, fmt.Errorf("unknown field kind %s", k)
	}
}

func toString(v ir.IRValue) ir.IRValue {
	switch val := v.(type) {
	case ir.IRString:
		return val
	case ir.IRInt:
		return ir.IRString(strconv.FormatInt(int64(val), 10))
	case ir.IRFloat:
		return ir.IRString(strconv.FormatFloat(float64(val), 'g', -1, 64))
	case ir.IRBool:
		return ir.IRString(strconv.FormatBool(bool(val)))
	}
	return ir.IRNull{}
}

func toInt(v ir.IRValue) (ir.IRValue, error) {
	switch val := v.(type) {
	case ir.IRInt:
		return val, nil
	case ir.IRFloat:
		return integral(float64(val))
	case ir.IRBool:
		if val {
			return ir.IRInt(1), nil
		}
		return ir.IRInt(0), nil
	case ir.IRString:
		s := strings.TrimSpace(string(val))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return ir.IRInt(n), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to int", string(val))
		}
		return integral(f)
	}
	return nil, fmt.Errorf("cannot coerce %s to int", ir.KindOf(v))
}

func integral(f float64) (ir.IRValue, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("cannot coerce %v to int without loss", f)
	}
	return ir.IRInt(int64(f)), nil
}

func toFloat(v ir.IRValue) (ir.IRValue, error) {
	switch val := v.(type) {
	case ir.IRFloat:
		return val, nil
	case ir.IRInt:
		return ir.IRFloat(val), nil
	case ir.IRBool:
		if val {
			return ir.IRFloat(1), nil
		}
		return ir.IRFloat(0), nil
	case ir.IRString:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("cannot coerce %q to float", string(val))
		}
		return ir.IRFloat(f), nil
	}
	return nil, fmt.Errorf("cannot coerce %s to float", ir.KindOf(v))
}

func toBool(v ir.IRValue) (ir.IRValue, error) {
	switch val := v.(type) {
	case ir.IRBool:
		return val, nil
	case ir.IRInt:
		return ir.IRBool(val != 0), nil
	case ir.IRFloat:
		return ir.IRBool(val != 0), nil
	case ir.IRString:
		b, err := strconv.ParseBool(strings.TrimSpace(string(val)))
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to bool", string(val))
		}
		return ir.IRBool(b), nil
	}
	return nil, fmt.Errorf("cannot coerce %s to bool", ir.KindOf(v))
}
