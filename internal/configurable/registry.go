package configurable

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hanko-field/orderengine/internal/domain"
)

var (
	// ErrUnknownOperation is returned when no operation is registered under a code.
	ErrUnknownOperation = errors.New("configurable: unknown operation")
	// ErrDuplicateOperation is returned when two operations share a code.
	ErrDuplicateOperation = errors.New("configurable: duplicate operation")
)

// Operation is implemented by anything that can be stored in a Registry.
type Operation interface {
	Definition() Definition
}

// Registry maps stable codes to operations. Operations are registered at process start and looked
// up at evaluation time; lookups are safe for concurrent use.
type Registry[T Operation] struct {
	mu  sync.RWMutex
	ops map[string]T
}

// NewRegistry registers the given operations.
func NewRegistry[T Operation](ops ...T) (*Registry[T], error) {
	r := &Registry[T]{ops: make(map[string]T, len(ops))}
	for _, op := range ops {
		if err := r.Register(op); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry for static built-in sets.
func MustRegistry[T Operation](ops ...T) *Registry[T] {
	r, err := NewRegistry(ops...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds an operation.
func (r *Registry[T]) Register(op T) error {
	code := strings.TrimSpace(op.Definition().Code)
	if code == "" {
		return fmt.Errorf("%w: empty code", ErrUnknownOperation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[code]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateOperation, code)
	}
	r.ops[code] = op
	return nil
}

// Lookup returns the operation registered under code.
func (r *Registry[T]) Lookup(code string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[code]
	return op, ok
}

// Resolve finds the operation for a stored reference and coerces its arguments.
func (r *Registry[T]) Resolve(stored domain.ConfigurableOperation) (T, Args, error) {
	var zero T
	op, ok := r.Lookup(stored.Code)
	if !ok {
		return zero, Args{}, fmt.Errorf("%w: %q", ErrUnknownOperation, stored.Code)
	}
	args, err := CoerceArgs(op.Definition(), stored)
	if err != nil {
		return zero, Args{}, err
	}
	return op, args, nil
}

// Definitions returns every registered definition keyed by code, the shape Coerce accepts.
func (r *Registry[T]) Definitions() map[string][]ArgDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make(map[string][]ArgDefinition, len(r.ops))
	for code, op := range r.ops {
		defs[code] = op.Definition().Args
	}
	return defs
}

// Codes lists registered codes in sorted order.
func (r *Registry[T]) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.ops))
	for code := range r.ops {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
