// Package agentarg builds and reads the typed arguments carried by agent
// instance settings. An Arg holds its value as the canonical bytes produced
// by the argtype codec for its declared type.
package agentarg

import (
	"errors"
	"fmt"

	"github.com/agentx-labs/agentscan/internal/argtype"
)

var (
	ErrInvalidDefault = errors.New("invalid default value")
	ErrNoDefault      = errors.New("argument declares no default value")
)

// Arg is a resolved argument ready to be attached to instance settings.
type Arg struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value []byte `json:"value"`
}

// Declaration declares an argument an agent or agent group accepts.
// DefaultValue is already in wire form.
type Declaration struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Description  string `json:"description,omitempty"`
	DefaultValue []byte `json:"default_value,omitempty"`
}

// HasDefault reports whether the declaration carries a default value.
func (d Declaration) HasDefault() bool {
	return d.DefaultValue != nil
}

// Codec resolves arguments against a type registry.
type Codec struct {
	types *argtype.Registry
}

// NewCodec returns a Codec backed by types. A nil registry selects argtype.Default().
func NewCodec(types *argtype.Registry) *Codec {
	if types == nil {
		types = argtype.Default()
	}
	return &Codec{types: types}
}

// Types returns the registry the codec resolves against.
func (c *Codec) Types() *argtype.Registry {
	return c.types
}

// Build encodes v as tag and returns the resulting Arg.
func (c *Codec) Build(name, tag string, v any) (Arg, error) {
	if !c.types.IsSupported(tag) {
		return Arg{}, fmt.Errorf("argument %q: type %q: %w", name, tag, argtype.ErrUnsupportedType)
	}
	b, err := c.types.Encode(tag, v)
	if err != nil {
		return Arg{}, fmt.Errorf("argument %q: %w", name, err)
	}
	return Arg{Name: name, Type: tag, Value: b}, nil
}

// ResolveDefault wraps the declared default as an Arg without re-encoding it.
// The default must decode under the declared type.
func (c *Codec) ResolveDefault(decl Declaration) (Arg, error) {
	if !decl.HasDefault() {
		return Arg{}, fmt.Errorf("argument %q: %w", decl.Name, ErrNoDefault)
	}
	if _, err := c.types.Decode(decl.Type, decl.DefaultValue); err != nil {
		return Arg{}, fmt.Errorf("argument %q: %w: %w", decl.Name, ErrInvalidDefault, err)
	}
	value := make([]byte, len(decl.DefaultValue))
	copy(value, decl.DefaultValue)
	return Arg{Name: decl.Name, Type: decl.Type, Value: value}, nil
}

// Read decodes arg back into its native value.
func (c *Codec) Read(arg Arg) (any, error) {
	v, err := c.types.Decode(arg.Type, arg.Value)
	if err != nil {
		return nil, fmt.Errorf("argument %q: %w", arg.Name, err)
	}
	return v, nil
}

func std() *Codec { return NewCodec(nil) }

// Build encodes v using the default registry.
func Build(name, tag string, v any) (Arg, error) { return std().Build(name, tag, v) }

// ResolveDefault resolves decl using the default registry.
func ResolveDefault(decl Declaration) (Arg, error) { return std().ResolveDefault(decl) }

// Read decodes arg using the default registry.
func Read(arg Arg) (any, error) { return std().Read(arg) }
