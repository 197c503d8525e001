// Package jsonv implements the JSON value type used by the wiki wire
// layer: a tagged union whose objects iterate in insertion order,
// whose numbers keep their exact textual form, and whose read
// accessors never fail (missing keys and wrong-type access return a
// shared empty value).
package jsonv

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind identifies the variant stored in a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return "invalid"
}

// Value is a JSON value. The zero value is null.
type Value struct {
	kind Kind
	b    bool
	str  string // number text or string payload
	arr  []*Value
	keys []string
	obj  map[string]*Value
}

// null is the shared value returned by accessors on missing keys or
// wrong-type access. Callers must not mutate it; mutators check for it.
var null = &Value{}

// NewNull returns a fresh null value.
func NewNull() *Value { return &Value{} }

// NewBool returns a boolean value.
func NewBool(b bool) *Value { return &Value{kind: Bool, b: b} }

// NewNumber returns a number value carrying its exact textual form.
func NewNumber(text string) *Value { return &Value{kind: Number, str: text} }

// NewInt returns a number value for n.
func NewInt(n int64) *Value { return NewNumber(strconv.FormatInt(n, 10)) }

// NewString returns a string value.
func NewString(s string) *Value { return &Value{kind: String, str: s} }

// NewArray returns an empty array value.
func NewArray() *Value { return &Value{kind: Array} }

// NewObject returns an empty object value.
func NewObject() *Value {
	return &Value{kind: Object, obj: make(map[string]*Value)}
}

// Kind returns the variant tag.
func (v *Value) Kind() Kind {
	if v == nil {
		return Null
	}
	return v.kind
}

// IsNull reports whether v is null.
func (v *Value) IsNull() bool { return v.Kind() == Null }

// Bool returns the boolean payload, false for other kinds.
func (v *Value) Bool() bool { return v != nil && v.kind == Bool && v.b }

// Str returns the string payload, "" for other kinds.
func (v *Value) Str() string {
	if v == nil || v.kind != String {
		return ""
	}
	return v.str
}

// NumberText returns the exact number text, "" for other kinds.
func (v *Value) NumberText() string {
	if v == nil || v.kind != Number {
		return ""
	}
	return v.str
}

// Int returns the number as an int64, or def when v is not a number or
// does not parse as an integer.
func (v *Value) Int(def int64) int64 {
	if v == nil || v.kind != Number {
		return def
	}
	n, err := strconv.ParseInt(v.str, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// Len returns the number of elements of an array or members of an
// object, 0 for other kinds.
func (v *Value) Len() int {
	if v == nil {
		return 0
	}
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.keys)
	}
	return 0
}

// Index returns the i-th array element, or the shared null value when v
// is not an array or i is out of range.
func (v *Value) Index(i int) *Value {
	if v == nil || v.kind != Array || i < 0 || i >= len(v.arr) {
		return null
	}
	return v.arr[i]
}

// Get returns the object member named key, or the shared null value
// when v is not an object or the key is missing.
func (v *Value) Get(key string) *Value {
	if v == nil || v.kind != Object {
		return null
	}
	if m, ok := v.obj[key]; ok {
		return m
	}
	return null
}

// Has reports whether v is an object containing key.
func (v *Value) Has(key string) bool {
	if v == nil || v.kind != Object {
		return false
	}
	_, ok := v.obj[key]
	return ok
}

// Keys returns object member names in insertion order. The returned
// slice is shared; callers must not modify it.
func (v *Value) Keys() []string {
	if v == nil || v.kind != Object {
		return nil
	}
	return v.keys
}

// Elements returns the array element slice. The returned slice is
// shared; callers must not modify it.
func (v *Value) Elements() []*Value {
	if v == nil || v.kind != Array {
		return nil
	}
	return v.arr
}

// Set inserts or replaces an object member, preserving the insertion
// position of an existing key. Calling Set on a non-object panics:
// write access to the wrong kind is a programming error, unlike read
// access.
func (v *Value) Set(key string, member *Value) {
	v.mustMutate(Object)
	if member == nil {
		member = NewNull()
	}
	if _, ok := v.obj[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.obj[key] = member
}

// Delete removes an object member if present.
func (v *Value) Delete(key string) {
	v.mustMutate(Object)
	if _, ok := v.obj[key]; !ok {
		return
	}
	delete(v.obj, key)
	for i, k := range v.keys {
		if k == key {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
}

// Append adds an element to an array.
func (v *Value) Append(element *Value) {
	v.mustMutate(Array)
	if element == nil {
		element = NewNull()
	}
	v.arr = append(v.arr, element)
}

func (v *Value) mustMutate(kind Kind) {
	if v == null {
		panic("jsonv: mutation of the shared null value")
	}
	if v.kind != kind {
		panic("jsonv: mutation of a " + v.kind.String() + " value as " + kind.String())
	}
}

// Equal reports structural equality. Numbers compare by their textual
// form; objects compare membership and member values but not insertion
// order.
func (v *Value) Equal(other *Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case Null:
		return true
	case Bool:
		return v.b == other.b
	case Number, String:
		return v.str == other.str
	case Array:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, m := range v.obj {
			om, ok := other.obj[k]
			if !ok || !m.Equal(om) {
				return false
			}
		}
		return true
	}
	return false
}

// Copy returns a deep copy of v.
func (v *Value) Copy() *Value {
	if v == nil {
		return NewNull()
	}
	c := &Value{kind: v.kind, b: v.b, str: v.str}
	switch v.kind {
	case Array:
		c.arr = make([]*Value, len(v.arr))
		for i, e := range v.arr {
			c.arr[i] = e.Copy()
		}
	case Object:
		c.obj = make(map[string]*Value, len(v.obj))
		c.keys = append([]string(nil), v.keys...)
		for k, m := range v.obj {
			c.obj[k] = m.Copy()
		}
	}
	return c
}

// String serializes v as compact JSON, with object members in
// insertion order.
func (v *Value) String() string {
	var sb strings.Builder
	v.write(&sb)
	return sb.String()
}

func (v *Value) write(sb *strings.Builder) {
	switch v.Kind() {
	case Null:
		sb.WriteString("null")
	case Bool:
		if v.b {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case Number:
		sb.WriteString(v.str)
	case String:
		writeJSONString(sb, v.str)
	case Array:
		sb.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.write(sb)
		}
		sb.WriteByte(']')
	case Object:
		sb.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSONString(sb, k)
			sb.WriteByte(':')
			v.obj[k].write(sb)
		}
		sb.WriteByte('}')
	}
}

const hexDigits = "0123456789abcdef"

// writeJSONString emits s as a JSON string literal: control characters
// become \uXXXX escapes and invalid UTF-8 bytes the replacement rune.
func writeJSONString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for i := 0; i < len(s); {
		b := s[i]
		if b == '"' || b == '\\' || b < 0x20 {
			switch b {
			case '"':
				sb.WriteString(`\"`)
			case '\\':
				sb.WriteString(`\\`)
			case '\n':
				sb.WriteString(`\n`)
			case '\r':
				sb.WriteString(`\r`)
			case '\t':
				sb.WriteString(`\t`)
			default:
				sb.WriteString(`\u00`)
				sb.WriteByte(hexDigits[b>>4])
				sb.WriteByte(hexDigits[b&0xf])
			}
			i++
			continue
		}
		if b < utf8.RuneSelf {
			sb.WriteByte(b)
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			sb.WriteString(`�`)
			i++
			continue
		}
		sb.WriteString(s[i : i+size])
		i += size
	}
	sb.WriteByte('"')
}
