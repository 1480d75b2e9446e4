package model

import (
	"fmt"
	"time"
)

// ValueKind tags the dynamic type carried by a Value. DataProvider results
// (and item fields read off a provider's collection items) are boundary
// values: they arrive as interface{} from caller code and must be pinned
// to one of a closed set of kinds before a cell emits them. This replaces
// ad hoc reflect.Kind switches with a single explicit tag, matching the
// "dynamic typing of provider values" note in the design notes.
type ValueKind int

const (
	KindNil ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindDate
	KindBytes
)

// Value is a tagged boundary value returned by a DataProvider or read off
// an item field.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	Date time.Time
	Blob []byte
}

// Nil is the absent value.
var Nil = Value{Kind: KindNil}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func DateValue(t time.Time) Value { return Value{Kind: KindDate, Date: t} }
func BytesValue(b []byte) Value   { return Value{Kind: KindBytes, Blob: b} }

// IsNil reports whether the value denotes an absent lookup.
func (v Value) IsNil() bool { return v.Kind == KindNil }

// CellValue converts the tagged value into the interface{} excelize
// expects for SetCellValue — the one place the closed kind set is allowed
// to degrade back into an empty interface.
func (v Value) CellValue() interface{} {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindDate:
		return v.Date
	case KindBytes:
		return v.Blob
	default:
		return nil
	}
}

// String renders the value as Excel would display it in a formula
// substitution context (e.g. ${var} embedded inside a Formula cell).
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		if v.Num == float64(int64(v.Num)) {
			return fmt.Sprintf("%d", int64(v.Num))
		}
		return fmt.Sprintf("%g", v.Num)
	case KindBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	case KindDate:
		return v.Date.Format("2006-01-02")
	case KindBytes:
		return fmt.Sprintf("<%d bytes>", len(v.Blob))
	default:
		return ""
	}
}

// ValueOf coerces an arbitrary Go value (as returned by a caller-supplied
// DataProvider or reflected off an item field) into a Value.
func ValueOf(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Nil
	case Value:
		return t
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case []byte:
		return BytesValue(t)
	case time.Time:
		return DateValue(t)
	case int:
		return NumberValue(float64(t))
	case int32:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case float32:
		return NumberValue(float64(t))
	case float64:
		return NumberValue(t)
	case fmt.Stringer:
		return StringValue(t.String())
	default:
		return StringValue(fmt.Sprintf("%v", t))
	}
}
