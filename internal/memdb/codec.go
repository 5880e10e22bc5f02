package memdb

import (
	"fmt"
	"math"

	"gopkg.in/mgo.v2/bson"

	"github.com/roach88/idxstore/internal/ir"
)

// encodeRow encodes a bag as a BSON document, keeping column order.
func encodeRow(row *ir.Bag) ([]byte, error) {
	doc, err := toDoc(row)
	if err != nil {
		return nil, err
	}
	return bson.Marshal(doc)
}

// decodeRow decodes a document written by encodeRow.
func decodeRow(data []byte) (*ir.Bag, error) {
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	row := ir.NewBag()
	for _, e := range doc {
		v, err := fromBSON(e.Value)
		if err != nil {
			return nil, fmt.Errorf("decode column %s: %w", e.Name, err)
		}
		row.Set(e.Name, v)
	}
	return row, nil
}

func toDoc(row *ir.Bag) (bson.D, error) {
	doc := make(bson.D, 0, row.Len())
	for k, v := range row.All() {
		bv, err := toBSON(v)
		if err != nil {
			return nil, fmt.Errorf("encode column %s: %w", k, err)
		}
		doc = append(doc, bson.DocElem{Name: k, Value: bv})
	}
	return doc, nil
}

func toBSON(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return nil, nil
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRFloat:
		return float64(val), nil
	case ir.IRBool:
		return bool(val), nil
	case ir.IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			bv, err := toBSON(elem)
			if err != nil {
				return nil, err
			}
			out[i] = bv
		}
		return out, nil
	case ir.IRObject:
		doc := make(bson.D, 0, len(val))
		for _, k := range val.SortedKeys() {
			bv, err := toBSON(val[k])
			if err != nil {
				return nil, err
			}
			doc = append(doc, bson.DocElem{Name: k, Value: bv})
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func fromBSON(v any) (ir.IRValue, error) {
	switch val := v.(type) {
	case nil:
		return ir.IRNull{}, nil
	case string:
		return ir.IRString(val), nil
	case int:
		return ir.IRInt(val), nil
	case int32:
		return ir.IRInt(val), nil
	case int64:
		return ir.IRInt(val), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("non-finite number")
		}
		return ir.IRFloat(val), nil
	case bool:
		return ir.IRBool(val), nil
	case []any:
		out := make(ir.IRArray, len(val))
		for i, elem := range val {
			iv, err := fromBSON(elem)
			if err != nil {
				return nil, err
			}
			out[i] = iv
		}
		return out, nil
	case bson.D:
		out := make(ir.IRObject, len(val))
		for _, e := range val {
			iv, err := fromBSON(e.Value)
			if err != nil {
				return nil, err
			}
			out[e.Name] = iv
		}
		return out, nil
	case bson.M:
		out := make(ir.IRObject, len(val))
		for k, elem := range val {
			iv, err := fromBSON(elem)
			if err != nil {
				return nil, err
			}
			out[k] = iv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported BSON type %T", v)
	}
}
