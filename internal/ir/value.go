package ir

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// ValueKind is the element kind of a tuple value.
type ValueKind uint8

const (
	// KindInvalid is the zero ValueKind and never valid on a tag or layer.
	KindInvalid ValueKind = iota
	KindInteger
	KindReal
	KindText
)

func (k ValueKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	default:
		return "invalid"
	}
}

// ParseValueKind converts "integer", "real" or "text" to a ValueKind.
func ParseValueKind(s string) (ValueKind, error) {
	switch s {
	case "integer", "int":
		return KindInteger, nil
	case "real", "float":
		return KindReal, nil
	case "text", "string":
		return KindText, nil
	default:
		return KindInvalid, fmt.Errorf("unknown value kind %q: must be integer, real or text", s)
	}
}

// MaxCount is the largest tuple arity a tag or layer may declare.
const MaxCount = 4

// Value is a sealed tagged union of fixed-arity tuples.
// Only IntegerValue, RealValue and TextValue implement it.
type Value interface {
	Kind() ValueKind
	Count() int
	value() // Sealed
}

// IntegerValue is a tuple of integers.
type IntegerValue []int64

func (IntegerValue) value()          {}
func (IntegerValue) Kind() ValueKind { return KindInteger }
func (v IntegerValue) Count() int    { return len(v) }

// RealValue is a tuple of reals.
type RealValue []float64

func (RealValue) value()          {}
func (RealValue) Kind() ValueKind { return KindReal }
func (v RealValue) Count() int    { return len(v) }

// TextValue is a tuple of strings.
type TextValue []string

func (TextValue) value()          {}
func (TextValue) Kind() ValueKind { return KindText }
func (v TextValue) Count() int    { return len(v) }

// Integers creates an IntegerValue.
func Integers(v ...int64) IntegerValue { return IntegerValue(v) }

// Reals creates a RealValue.
func Reals(v ...float64) RealValue { return RealValue(v) }

// Texts creates a TextValue.
func Texts(v ...string) TextValue { return TextValue(v) }

// ValueErrorCode categorizes value construction failures.
type ValueErrorCode string

const (
	ErrCodeEmptyTuple    ValueErrorCode = "EMPTY_TUPLE"
	ErrCodeMixedTuple    ValueErrorCode = "MIXED_TUPLE"
	ErrCodeUnsupported   ValueErrorCode = "UNSUPPORTED_ELEMENT"
	ErrCodeKindMismatch  ValueErrorCode = "KIND_MISMATCH"
	ErrCodeCountMismatch ValueErrorCode = "COUNT_MISMATCH"
	ErrCodeBadCount      ValueErrorCode = "BAD_COUNT"
)

// ValueError reports a tuple that cannot back a tag or layer item.
type ValueError struct {
	Code    ValueErrorCode
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsValueError reports whether err is (or wraps) a ValueError.
func IsValueError(err error) bool {
	var ve *ValueError
	return errors.As(err, &ve)
}

func valueErrorf(code ValueErrorCode, format string, args ...any) *ValueError {
	return &ValueError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewValue infers a Value from loosely typed elements (YAML, host scripts).
// The kind is fixed by the first element; every other element must have the
// same kind. Empty tuples are rejected.
func NewValue(elems ...any) (Value, error) {
	if len(elems) == 0 {
		return nil, valueErrorf(ErrCodeEmptyTuple, "tuple must have at least one element")
	}
	if len(elems) > MaxCount {
		return nil, valueErrorf(ErrCodeBadCount, "tuple has %d elements, max is %d", len(elems), MaxCount)
	}

	kind := elementKind(elems[0])
	if kind == KindInvalid {
		return nil, valueErrorf(ErrCodeUnsupported, "unsupported element type %T", elems[0])
	}

	switch kind {
	case KindInteger:
		out := make(IntegerValue, len(elems))
		for i, e := range elems {
			n, ok := asInt64(e)
			if !ok {
				return nil, mixedError(i, kind, e)
			}
			out[i] = n
		}
		return out, nil
	case KindReal:
		out := make(RealValue, len(elems))
		for i, e := range elems {
			f, ok := e.(float64)
			if !ok {
				f32, ok32 := e.(float32)
				if !ok32 {
					return nil, mixedError(i, kind, e)
				}
				f = float64(f32)
			}
			out[i] = f
		}
		return out, nil
	default:
		out := make(TextValue, len(elems))
		for i, e := range elems {
			s, ok := e.(string)
			if !ok {
				return nil, mixedError(i, kind, e)
			}
			out[i] = s
		}
		return out, nil
	}
}

func mixedError(i int, kind ValueKind, e any) *ValueError {
	return valueErrorf(ErrCodeMixedTuple, "element %d is %T, tuple kind is %s", i, e, kind)
}

func elementKind(e any) ValueKind {
	switch e.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInteger
	case float32, float64:
		return KindReal
	case string:
		return KindText
	default:
		return KindInvalid
	}
}

func asInt64(e any) (int64, bool) {
	switch n := e.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// CheckShape verifies that v has the given kind and arity.
func CheckShape(v Value, kind ValueKind, count int) error {
	if v == nil {
		return valueErrorf(ErrCodeEmptyTuple, "value is nil")
	}
	if v.Kind() != kind {
		return valueErrorf(ErrCodeKindMismatch, "value kind %s, expected %s", v.Kind(), kind)
	}
	if v.Count() != count {
		return valueErrorf(ErrCodeCountMismatch, "value has %d elements, expected %d", v.Count(), count)
	}
	return nil
}

// CheckCount verifies that count is a legal tuple arity.
func CheckCount(count int) error {
	if count < 1 || count > MaxCount {
		return valueErrorf(ErrCodeBadCount, "count %d out of range 1..%d", count, MaxCount)
	}
	return nil
}

// ZeroValue returns the all-zero tuple of the given kind and arity.
func ZeroValue(kind ValueKind, count int) (Value, error) {
	if err := CheckCount(count); err != nil {
		return nil, err
	}
	switch kind {
	case KindInteger:
		return make(IntegerValue, count), nil
	case KindReal:
		return make(RealValue, count), nil
	case KindText:
		return make(TextValue, count), nil
	default:
		return nil, valueErrorf(ErrCodeKindMismatch, "invalid value kind %d", kind)
	}
}

// CloneValue returns a copy of v that shares no backing array.
func CloneValue(v Value) Value {
	switch val := v.(type) {
	case IntegerValue:
		return slices.Clone(val)
	case RealValue:
		return slices.Clone(val)
	case TextValue:
		return slices.Clone(val)
	default:
		return nil
	}
}

// EqualValues reports whether a and b have the same kind and elements.
func EqualValues(a, b Value) bool {
	switch av := a.(type) {
	case IntegerValue:
		bv, ok := b.(IntegerValue)
		return ok && slices.Equal(av, bv)
	case RealValue:
		bv, ok := b.(RealValue)
		return ok && slices.Equal(av, bv)
	case TextValue:
		bv, ok := b.(TextValue)
		return ok && slices.Equal(av, bv)
	default:
		return a == nil && b == nil
	}
}

// valueElements renders a value as canonical-JSON friendly elements.
// Reals become shortest round-trip decimal strings.
func valueElements(v Value) []any {
	out := make([]any, 0, v.Count())
	switch val := v.(type) {
	case IntegerValue:
		for _, n := range val {
			out = append(out, n)
		}
	case RealValue:
		for _, f := range val {
			out = append(out, strconv.FormatFloat(f, 'g', -1, 64))
		}
	case TextValue:
		for _, s := range val {
			out = append(out, s)
		}
	}
	return out
}

// ParseValue builds a Value of the given kind from loosely typed
// elements. KindInvalid infers the kind like NewValue. Reals accept
// integers and numeric strings.
func ParseValue(kind ValueKind, elems []any) (Value, error) {
	if kind == KindInvalid {
		return NewValue(elems...)
	}
	return valueFromElements(kind, elems)
}

// valueFromElements is the inverse of valueElements.
func valueFromElements(kind ValueKind, elems []any) (Value, error) {
	if len(elems) == 0 {
		return nil, valueErrorf(ErrCodeEmptyTuple, "tuple must have at least one element")
	}
	switch kind {
	case KindInteger:
		out := make(IntegerValue, len(elems))
		for i, e := range elems {
			n, err := toInt64(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case KindReal:
		out := make(RealValue, len(elems))
		for i, e := range elems {
			f, err := toFloat64(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = f
		}
		return out, nil
	case KindText:
		out := make(TextValue, len(elems))
		for i, e := range elems {
			s, ok := e.(string)
			if !ok {
				return nil, mixedError(i, kind, e)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, valueErrorf(ErrCodeKindMismatch, "invalid value kind %d", kind)
	}
}
