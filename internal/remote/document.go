package remote

import "strconv"

// Kind enumerates the wire types a document field can carry. Remote documents
// are loosely typed; every field must be treated as optional and possibly of
// the wrong type.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

// Value is a closed tagged union over the dynamic field types the remote
// store can return. The zero value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
}

func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }
func Null() Value            { return Value{kind: KindNull} }

func (v Value) Kind() Kind { return v.kind }

// FromAny converts a decoded JSON value (or any SDK-shaped dynamic value)
// into the tagged union. Unrecognised Go types map to null.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case bool:
		return Bool(t)
	case []any:
		vs := make([]Value, 0, len(t))
		for _, e := range t {
			vs = append(vs, FromAny(e))
		}
		return Value{kind: KindList, list: vs}
	default:
		return Null()
	}
}

// Document is one remote record: a store-assigned id plus a dynamically typed
// field map. A field absent from the map is "missing", which every accessor
// below treats the same as a wrong-typed field.
type Document struct {
	ID     string
	Fields map[string]Value
}

// StringOr returns the string value of the field, or "" when the field is
// missing or not a string.
func (d Document) StringOr(field string) string {
	v, ok := d.Fields[field]
	if !ok || v.kind != KindString {
		return ""
	}
	return v.str
}

// StringPtr returns the string value of the field, or nil when the field is
// missing or not a string. Used for nullable columns.
func (d Document) StringPtr(field string) *string {
	v, ok := d.Fields[field]
	if !ok || v.kind != KindString {
		return nil
	}
	s := v.str
	return &s
}

// FloatOr returns the numeric value of the field. Numbers are taken as is,
// numeric strings are parsed, everything else yields 0.0.
func (d Document) FloatOr(field string) float64 {
	v, ok := d.Fields[field]
	if !ok {
		return 0
	}
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		f, err := strconv.ParseFloat(v.str, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// IntOr is FloatOr truncated to an int.
func (d Document) IntOr(field string) int {
	return int(d.FloatOr(field))
}

// IntPtr returns the field as an int pointer, or nil when the field is
// missing or not coercible to a number. Fractions are truncated.
func (d Document) IntPtr(field string) *int {
	v, ok := d.Fields[field]
	if !ok {
		return nil
	}
	switch v.kind {
	case KindNumber:
		n := int(v.num)
		return &n
	case KindString:
		f, err := strconv.ParseFloat(v.str, 64)
		if err != nil {
			return nil
		}
		n := int(f)
		return &n
	default:
		return nil
	}
}

// StringList decodes the categories-shaped field pair. When the list field is
// present its string elements are kept and everything else is silently
// dropped. Otherwise a scalar legacy field becomes a one-element list.
// Neither present yields an empty list.
func (d Document) StringList(listField, legacyScalarField string) []string {
	if v, ok := d.Fields[listField]; ok && v.kind == KindList {
		out := make([]string, 0, len(v.list))
		for _, e := range v.list {
			if e.kind == KindString {
				out = append(out, e.str)
			}
		}
		return out
	}
	if v, ok := d.Fields[legacyScalarField]; ok && v.kind == KindString {
		return []string{v.str}
	}
	return []string{}
}
