// Package content models the structured page documents stored on SEO pages
// and provides a recursive walker over them.
package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	Null Kind = iota
	String
	Number
	Bool
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one node of a content document. Exactly one of the payload fields
// is meaningful, selected by Kind.
type Value struct {
	Kind   Kind
	Str    string
	Num    json.Number
	Bool   bool
	Items  []Value
	Fields []Field // object members in document order
}

// Field is a single object member.
type Field struct {
	Key   string
	Value Value
}

// Parse decodes a JSON document into a Value tree. Object member order is
// preserved so walks are deterministic.
func Parse(data []byte) (Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Value{Kind: Null}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, fmt.Errorf("parse content: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("parse content: trailing data after document")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Value{Kind: Null}, nil
	case string:
		return Value{Kind: String, Str: t}, nil
	case json.Number:
		return Value{Kind: Number, Num: t}, nil
	case bool:
		return Value{Kind: Bool, Bool: t}, nil
	case json.Delim:
		switch t {
		case '[':
			v := Value{Kind: Array}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				v.Items = append(v.Items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return v, nil
		case '{':
			v := Value{Kind: Object}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				member, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				v.Fields = append(v.Fields, Field{Key: key, Value: member})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return v, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// Visitor is called for every node during Walk. Returning false skips the
// node's children.
type Visitor func(v Value) bool

// Walk visits v and its descendants depth-first in document order.
func Walk(v Value, visit Visitor) {
	if !visit(v) {
		return
	}
	switch v.Kind {
	case Array:
		for _, item := range v.Items {
			Walk(item, visit)
		}
	case Object:
		for _, f := range v.Fields {
			Walk(f.Value, visit)
		}
	}
}
