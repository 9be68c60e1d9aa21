// Package codec serializes bus payloads by registered type name and
// applies an optional compression filter to the resulting bytes. It is
// used only at the network boundary, by internal/bridge for both the TCP
// and the WebSocket transport; the in-process bus carries plain Go values.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// ErrUnknownType is returned by Decode when no value has been registered
// under the requested type name.
type ErrUnknownType struct {
	TypeName string
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("codec: unknown type %q", e.TypeName)
}

// Codec encodes and decodes payload values by type name. The zero value
// is not usable; construct with New.
type Codec struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// New returns an empty Codec.
func New() *Codec {
	return &Codec{types: make(map[string]reflect.Type)}
}

// Register associates the concrete type of sample with its type name so
// Decode can later instantiate fresh values of it. sample is never
// mutated or retained.
func (c *Codec) Register(sample any) {
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	c.mu.Lock()
	c.types[t.Name()] = t
	c.mu.Unlock()
}

// TypeName returns the registered type name for value, which is just its
// underlying struct name stripped of pointer indirection.
func (c *Codec) TypeName(value any) string {
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Encode serializes value to JSON. If compress is true the JSON is piped
// through an LZ4 frame writer first.
func (c *Codec) Encode(value any, compress bool) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	if !compress {
		return raw, nil
	}
	return compressLZ4(raw)
}

// Decode instantiates a fresh value of the type registered under
// typeName and unmarshals data into it, decompressing first if
// compressed is true. The returned value is always a pointer to the
// registered struct type.
func (c *Codec) Decode(typeName string, data []byte, compressed bool) (any, error) {
	c.mu.RLock()
	t, ok := c.types[typeName]
	c.mu.RUnlock()
	if !ok {
		return nil, &ErrUnknownType{TypeName: typeName}
	}

	raw := data
	if compressed {
		var err error
		raw, err = decompressLZ4(data)
		if err != nil {
			return nil, fmt.Errorf("codec: decode: %w", err)
		}
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}
	return ptr.Interface(), nil
}

func compressLZ4(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressLZ4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return out, nil
}
