// Package encoding holds the reversible payload encoders shared by the fuzzer
// and the polyglot engine.
package encoding

import (
	"fmt"
	"sort"
	"strings"
)

// Encoder transforms a payload and, where possible, reverses the transformation.
type Encoder interface {
	Name() string
	Encode(payload string) (string, error)
	Decode(encoded string) (string, error)
}

// ChainEncoder applies encoders in order and decodes them in reverse order.
type ChainEncoder struct {
	name     string
	encoders []Encoder
}

func (c *ChainEncoder) Name() string { return c.name }

func (c *ChainEncoder) Encode(payload string) (string, error) {
	result := payload
	var err error
	for _, enc := range c.encoders {
		result, err = enc.Encode(result)
		if err != nil {
			return "", fmt.Errorf("encoder %s failed: %w", enc.Name(), err)
		}
	}
	return result, nil
}

func (c *ChainEncoder) Decode(encoded string) (string, error) {
	result := encoded
	var err error
	for i := len(c.encoders) - 1; i >= 0; i-- {
		result, err = c.encoders[i].Decode(result)
		if err != nil {
			return "", fmt.Errorf("decoder %s failed: %w", c.encoders[i].Name(), err)
		}
	}
	return result, nil
}

var registry = make(map[string]Encoder)

// Register adds an encoder to the registry. It is meant to be called from init.
func Register(enc Encoder) {
	registry[strings.ToLower(enc.Name())] = enc
}

// Get retrieves an encoder by name, nil when unknown.
func Get(name string) Encoder {
	return registry[strings.ToLower(name)]
}

// List returns all registered encoder names sorted alphabetically.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain creates a chained encoder from encoder names, skipping unknown ones.
func Chain(names ...string) *ChainEncoder {
	encoders := make([]Encoder, 0, len(names))
	used := make([]string, 0, len(names))
	for _, name := range names {
		if enc := Get(name); enc != nil {
			encoders = append(encoders, enc)
			used = append(used, enc.Name())
		}
	}
	if len(encoders) == 0 {
		return nil
	}
	return &ChainEncoder{
		name:     strings.Join(used, "+"),
		encoders: encoders,
	}
}

// MustEncode encodes with the named encoder and returns the input unchanged
// when the encoder is unknown or fails.
func MustEncode(name, payload string) string {
	enc := Get(name)
	if enc == nil {
		return payload
	}
	encoded, err := enc.Encode(payload)
	if err != nil {
		return payload
	}
	return encoded
}

// Lookup resolves a single encoder name or a "+" separated chain such as
// "html_entities+url". Every name in a chain must be registered.
func Lookup(spec string) (Encoder, error) {
	names := strings.Split(spec, "+")
	for i, name := range names {
		names[i] = strings.TrimSpace(name)
		if Get(names[i]) == nil {
			return nil, fmt.Errorf("encoder not found: %s", names[i])
		}
	}
	if len(names) == 1 {
		return Get(names[0]), nil
	}
	return Chain(names...), nil
}

// EncodeAll applies the encoder or chain named by spec to every payload.
func EncodeAll(spec string, payloads []string) ([]string, error) {
	return applyAll(spec, payloads, Encoder.Encode)
}

// DecodeAll reverses EncodeAll.
func DecodeAll(spec string, encoded []string) ([]string, error) {
	return applyAll(spec, encoded, Encoder.Decode)
}

func applyAll(spec string, in []string, op func(Encoder, string) (string, error)) ([]string, error) {
	enc, err := Lookup(spec)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(in))
	for i, s := range in {
		if out[i], err = op(enc, s); err != nil {
			return nil, fmt.Errorf("%s payload %d: %w", enc.Name(), i, err)
		}
	}
	return out, nil
}
