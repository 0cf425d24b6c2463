package transform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry maps operation names to implementations. It is safe for
// concurrent use.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

// Default holds the built-in operations. Pipelines run against it unless
// another registry is supplied.
var Default = NewRegistry()

// Register adds op. Names must be unique.
func (r *Registry) Register(op Operation) error {
	if op == nil {
		return errors.New("cannot register nil operation")
	}
	name := op.Name()
	if name == "" {
		return errors.New("operation name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ops[name]; dup {
		return fmt.Errorf("operation %s is already registered", name)
	}
	r.ops[name] = op
	return nil
}

// Lookup returns the operation called name.
func (r *Registry) Lookup(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Unregister removes name if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ops, name)
}

// List returns the operations of the given types sorted by name. With no
// types it returns everything.
func (r *Registry) List(types ...OperationType) []Operation {
	r.mu.RLock()
	out := make([]Operation, 0, len(r.ops))
	for _, op := range r.ops {
		if len(types) == 0 || hasType(types, op.Type()) {
			out = append(out, op)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Run feeds input through each step of p in order.
func (r *Registry) Run(ctx context.Context, p *Pipeline, input []byte) ([]byte, error) {
	data := input
	for i, step := range p.Operations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		op, ok := r.Lookup(step.Name)
		if !ok {
			return nil, fmt.Errorf("step %d: unknown operation %s", i, step.Name)
		}
		out, err := op.Execute(ctx, data, step.Parameters)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Name, err)
		}
		data = out
	}
	return data, nil
}

// Invert returns the pipeline that undoes p: steps in reverse order, each
// replaced by its inverse, parameters carried over.
func (r *Registry) Invert(p *Pipeline) (*Pipeline, error) {
	if !p.Reversible {
		return nil, errors.New("pipeline is not reversible")
	}
	n := len(p.Operations)
	inv := &Pipeline{Operations: make([]OperationConfig, n), Reversible: true}
	for i, step := range p.Operations {
		op, ok := r.Lookup(step.Name)
		if !ok {
			return nil, fmt.Errorf("unknown operation: %s", step.Name)
		}
		back, ok := op.Reverse()
		if !ok {
			return nil, fmt.Errorf("operation %s is not reversible", step.Name)
		}
		inv.Operations[n-1-i] = OperationConfig{Name: back.Name(), Parameters: step.Parameters}
	}
	return inv, nil
}

func hasType(types []OperationType, t OperationType) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

// RegisterOperation adds op to the Default registry.
func RegisterOperation(op Operation) error { return Default.Register(op) }

// GetOperation looks name up in the Default registry.
func GetOperation(name string) (Operation, bool) { return Default.Lookup(name) }

// ListOperations returns every operation in the Default registry.
func ListOperations() []Operation { return Default.List() }

// ListOperationsByType returns the Default registry's operations of opType.
func ListOperationsByType(opType OperationType) []Operation { return Default.List(opType) }

// UnregisterOperation removes name from the Default registry.
func UnregisterOperation(name string) { Default.Unregister(name) }

func mustRegister(ops ...Operation) {
	for _, op := range ops {
		if err := Default.Register(op); err != nil {
			panic(err)
		}
	}
}
