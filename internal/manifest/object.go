package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Field is one key/value pair of a JSON object with its value kept as raw JSON.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Object is a JSON object that remembers the order of its keys. Values are
// kept as raw JSON so unknown content passes through untouched.
type Object struct {
	fields []Field
}

// ParseObject decodes a JSON object preserving key order.
func ParseObject(data []byte) (*Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	obj := &Object{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding %q: %w", key, err)
		}
		obj.setRaw(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after top-level object")
	}
	return obj, nil
}

// Keys returns the keys in document order.
func (o *Object) Keys() []string {
	keys := make([]string, len(o.fields))
	for i, f := range o.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns the fields in document order.
func (o *Object) Fields() []Field {
	return append([]Field(nil), o.fields...)
}

// Len returns the number of fields.
func (o *Object) Len() int {
	return len(o.fields)
}

// Raw returns the raw JSON value stored under key.
func (o *Object) Raw(key string) (json.RawMessage, bool) {
	for _, f := range o.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// String returns the value under key when it is a JSON string.
func (o *Object) String(key string) (string, bool) {
	raw, ok := o.Raw(key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// SetString stores a string value, keeping the key's position if it exists
// and appending it otherwise.
func (o *Object) SetString(key, value string) error {
	raw, err := encode(value)
	if err != nil {
		return err
	}
	o.setRaw(key, raw)
	return nil
}

// SetRaw stores a raw JSON value after checking it is valid.
func (o *Object) SetRaw(key string, raw json.RawMessage) error {
	if !json.Valid(raw) {
		return fmt.Errorf("invalid JSON value for %q", key)
	}
	o.setRaw(key, raw)
	return nil
}

func (o *Object) setRaw(key string, raw json.RawMessage) {
	for i := range o.fields {
		if o.fields[i].Key == key {
			o.fields[i].Value = raw
			return
		}
	}
	o.fields = append(o.fields, Field{Key: key, Value: raw})
}

// Delete removes key, reporting whether it was present.
func (o *Object) Delete(key string) bool {
	for i, f := range o.fields {
		if f.Key == key {
			o.fields = append(o.fields[:i], o.fields[i+1:]...)
			return true
		}
	}
	return false
}

// MarshalJSON encodes the object compactly in key order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := encode(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := json.Compact(&buf, f.Value); err != nil {
			return nil, fmt.Errorf("encoding %q: %w", f.Key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Indent encodes the object with one field per line using indent as the
// per-level unit, followed by a trailing newline.
func (o *Object) Indent(indent string) ([]byte, error) {
	if len(o.fields) == 0 {
		return []byte("{}\n"), nil
	}
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, f := range o.fields {
		key, err := encode(f.Key)
		if err != nil {
			return nil, err
		}
		buf.WriteString(indent)
		buf.Write(key)
		buf.WriteString(": ")
		if err := json.Indent(&buf, bytes.TrimSpace(f.Value), indent, indent); err != nil {
			return nil, fmt.Errorf("encoding %q: %w", f.Key, err)
		}
		if i < len(o.fields)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// encode marshals v without HTML escaping so "<" and "&" survive a rewrite.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
