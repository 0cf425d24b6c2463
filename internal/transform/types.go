// Package transform provides named byte transformations that can be chained
// into pipelines: text encodings, the block cipher modes, padding and XOR.
package transform

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// OperationType defines the category of transformation operation
type OperationType string

const (
	OperationTypeEncode  OperationType = "encode"
	OperationTypeDecode  OperationType = "decode"
	OperationTypeEncrypt OperationType = "encrypt"
	OperationTypeDecrypt OperationType = "decrypt"
	OperationTypePad     OperationType = "pad"
)

// Operation represents a single transformation operation that can be applied to data
type Operation interface {
	// Name returns the unique identifier for this operation
	Name() string

	// Type returns the category of this operation
	Type() OperationType

	// Description returns a human-readable description
	Description() string

	// Execute applies the operation to the input data
	Execute(ctx context.Context, input []byte, params map[string]interface{}) ([]byte, error)

	// Reverse returns the inverse operation if available
	Reverse() (Operation, bool)
}

// OperationConfig represents configuration for an operation in a pipeline
type OperationConfig struct {
	Name       string                 `json:"name" yaml:"name"`
	Parameters map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Pipeline represents a chain of operations that can be applied sequentially
type Pipeline struct {
	Operations []OperationConfig `json:"operations" yaml:"operations"`
	Reversible bool              `json:"reversible" yaml:"reversible"`
}

// LoadPipeline decodes a YAML pipeline definition.
func LoadPipeline(r io.Reader) (*Pipeline, error) {
	var p Pipeline
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	if len(p.Operations) == 0 {
		return nil, fmt.Errorf("pipeline has no operations")
	}
	return &p, nil
}

// Execute runs the pipeline against the Default registry.
func (p *Pipeline) Execute(ctx context.Context, input []byte) ([]byte, error) {
	return Default.Run(ctx, p, input)
}

// Reverse builds the inverse pipeline from the Default registry. Keyed
// encrypt steps reverse to decrypts with the same key.
func (p *Pipeline) Reverse() (*Pipeline, error) {
	return Default.Invert(p)
}

// BaseOperation provides common functionality for operations
type BaseOperation struct {
	NameValue        string
	TypeValue        OperationType
	DescriptionValue string
	ReverseOp        Operation
}

func (b *BaseOperation) Name() string {
	return b.NameValue
}

func (b *BaseOperation) Type() OperationType {
	return b.TypeValue
}

func (b *BaseOperation) Description() string {
	return b.DescriptionValue
}

func (b *BaseOperation) Reverse() (Operation, bool) {
	if b.ReverseOp == nil {
		return nil, false
	}
	return b.ReverseOp, true
}
