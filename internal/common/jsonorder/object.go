// Package jsonorder decodes JSON objects while keeping the order their members
// appear in the document. Pipeline parameters and container tags are applied
// in document order, which map[string]interface{} cannot preserve.
package jsonorder

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Pair is one object member. Value holds the member's raw JSON text.
type Pair struct {
	Key   string
	Value json.RawMessage
}

// Object is a JSON object in document order. A repeated key keeps the position
// of its first occurrence and the value of its last, matching how most JSON
// decoders resolve duplicates.
type Object []Pair

// Parse decodes data, which must be a single JSON object.
func Parse(data []byte) (Object, error) {
	var o Object
	if err := o.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Object) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected a JSON object, got %v", tok)
	}

	out := Object{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected an object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode value of %q: %w", key, err)
		}
		out.Set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*o = out
	return nil
}

func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(p.Value) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(p.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the raw value stored under key.
func (o Object) Get(key string) (json.RawMessage, bool) {
	for _, p := range o {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of an existing key in place or appends a new member.
func (o *Object) Set(key string, value json.RawMessage) {
	for i := range *o {
		if (*o)[i].Key == key {
			(*o)[i].Value = value
			return
		}
	}
	*o = append(*o, Pair{Key: key, Value: value})
}

// SetString stores s as a JSON string.
func (o *Object) SetString(key, s string) {
	raw, _ := Marshal(s)
	o.Set(key, raw)
}

// Marshal is json.Marshal without HTML escaping, so values such as
// "<IMAGE1_NAME>" are written as they were read.
func Marshal(v interface{}) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, p := range o {
		keys[i] = p.Key
	}
	return keys
}

// Text returns the string form of a raw value: the decoded text for JSON
// strings and the compact JSON literal for everything else.
func Text(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}

// Decode unmarshals a raw value into a generic Go value, keeping numbers as
// json.Number so they round-trip without float conversion.
func Decode(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
