package render

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Value is a decoded result payload. It is one of Sequence, Mapping,
// Scalar or Null; nothing else implements it.
type Value interface {
	isValue()
}

// Sequence is an ordered list of values.
type Sequence struct {
	Items []Value
}

// Mapping is a keyed collection in document order.
type Mapping struct {
	Entries []Entry
}

// Entry is one key of a Mapping.
type Entry struct {
	Key   string
	Value Value
}

// ScalarKind distinguishes the terminal JSON types.
type ScalarKind int

const (
	ScalarString ScalarKind = iota
	ScalarNumber
	ScalarBool
)

// Scalar is a terminal value with its display text. Numbers keep their
// literal form so large integers are not rounded.
type Scalar struct {
	Kind ScalarKind
	Text string
}

// Null is the JSON null.
type Null struct{}

func (Sequence) isValue() {}
func (Mapping) isValue()  {}
func (Scalar) isValue()   {}
func (Null) isValue()     {}

// Get returns the value of key, if present.
func (m Mapping) Get(key string) (Value, bool) {
	for _, e := range m.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// DecodeError occurs when a payload is not well-formed JSON.
type DecodeError struct {
	Length int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("payload of %d bytes is not valid JSON", e.Length)
}

// Decode parses JSON text into a Value, keeping object keys in document
// order. A repeated key keeps its first position and its last value.
func Decode(text string) (Value, error) {
	if !gjson.Valid(text) {
		return nil, &DecodeError{Length: len(text)}
	}
	return fromResult(gjson.Parse(text)), nil
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null{}
	case gjson.False, gjson.True:
		return Scalar{Kind: ScalarBool, Text: r.Raw}
	case gjson.Number:
		return Scalar{Kind: ScalarNumber, Text: r.Raw}
	case gjson.String:
		return Scalar{Kind: ScalarString, Text: r.Str}
	}

	if r.IsArray() {
		seq := Sequence{Items: []Value{}}
		r.ForEach(func(_, item gjson.Result) bool {
			seq.Items = append(seq.Items, fromResult(item))
			return true
		})
		return seq
	}

	m := Mapping{Entries: []Entry{}}
	index := make(map[string]int)
	r.ForEach(func(key, item gjson.Result) bool {
		k := key.String()
		if i, ok := index[k]; ok {
			m.Entries[i].Value = fromResult(item)
			return true
		}
		index[k] = len(m.Entries)
		m.Entries = append(m.Entries, Entry{Key: k, Value: fromResult(item)})
		return true
	})
	return m
}
