package argtype

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnsupportedType = errors.New("unsupported argument type")
	ErrInvalidValue    = errors.New("invalid argument value")
	ErrCorruptPayload  = errors.New("corrupt argument payload")
	ErrDuplicateType   = errors.New("argument type already registered")
	ErrSealed          = errors.New("type registry is sealed")
	ErrIncompleteCodec = errors.New("codec is missing an encode or decode function")
)

// Codec encodes and decodes values of a single argument type.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
	Validate(v any) bool
}

// Funcs adapts three plain functions into a Codec.
type Funcs struct {
	EncodeFunc   func(v any) ([]byte, error)
	DecodeFunc   func(b []byte) (any, error)
	ValidateFunc func(v any) bool
}

func (f Funcs) Encode(v any) ([]byte, error) { return f.EncodeFunc(v) }
func (f Funcs) Decode(b []byte) (any, error) { return f.DecodeFunc(b) }

func (f Funcs) Validate(v any) bool {
	if f.ValidateFunc == nil {
		return true
	}
	return f.ValidateFunc(v)
}

// Registry maps type tags to codecs. Registration happens at startup; once
// sealed the registry only serves lookups.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
	sealed bool
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// Register binds tag to codec.
func (r *Registry) Register(tag string, codec Codec) error {
	if tag == "" || codec == nil {
		return fmt.Errorf("registering %q: tag and codec are required", tag)
	}
	if !complete(codec) {
		return fmt.Errorf("registering %q: %w", tag, ErrIncompleteCodec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("registering %q: %w", tag, ErrSealed)
	}
	if _, ok := r.codecs[tag]; ok {
		return fmt.Errorf("registering %q: %w", tag, ErrDuplicateType)
	}
	r.codecs[tag] = codec
	return nil
}

func complete(c Codec) bool {
	switch f := c.(type) {
	case Funcs:
		return f.EncodeFunc != nil && f.DecodeFunc != nil
	case *Funcs:
		return f != nil && f.EncodeFunc != nil && f.DecodeFunc != nil
	}
	return true
}

// Seal freezes the registry. Later Register calls fail with ErrSealed.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// IsSupported reports whether tag has a registered codec.
func (r *Registry) IsSupported(tag string) bool {
	_, ok := r.lookup(tag)
	return ok
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.codecs))
	for tag := range r.codecs {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Encode validates v against the codec for tag and returns its canonical bytes.
func (r *Registry) Encode(tag string, v any) ([]byte, error) {
	codec, ok := r.lookup(tag)
	if !ok {
		return nil, fmt.Errorf("encoding %q: %w", tag, ErrUnsupportedType)
	}
	if !codec.Validate(v) {
		return nil, fmt.Errorf("encoding %T as %q: %w", v, tag, ErrInvalidValue)
	}
	b, err := codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T as %q: %w: %v", v, tag, ErrInvalidValue, err)
	}
	return b, nil
}

// Decode reconstructs a value of type tag from b.
func (r *Registry) Decode(tag string, b []byte) (any, error) {
	codec, ok := r.lookup(tag)
	if !ok {
		return nil, fmt.Errorf("decoding %q: %w", tag, ErrUnsupportedType)
	}
	v, err := codec.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w: %v", tag, ErrCorruptPayload, err)
	}
	return v, nil
}

func (r *Registry) lookup(tag string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[tag]
	return c, ok
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry holding the built-in types.
// It is sealed on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		if err := RegisterBuiltins(defaultRegistry); err != nil {
			panic(err)
		}
		defaultRegistry.Seal()
	})
	return defaultRegistry
}
