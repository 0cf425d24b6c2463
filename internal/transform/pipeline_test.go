package transform

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestPipelineExecution(t *testing.T) {
	key := map[string]interface{}{"key": "YELLOW SUBMARINE"}
	tests := []struct {
		name       string
		operations []OperationConfig
		input      string
		expected   string
	}{
		{
			name:       "single operation",
			operations: []OperationConfig{{Name: "base64_encode"}},
			input:      "hello",
			expected:   "aGVsbG8=",
		},
		{
			name: "encrypt then encode",
			operations: []OperationConfig{
				{Name: "aes_ecb_encrypt", Parameters: key},
				{Name: "base64_encode"},
			},
			input:    "YELLOW SUBMARINE",
			expected: "0apPZXiSZUL7tt2HbNIFCGD6NnB+RfSZ26DyW5IjAaU=",
		},
		{
			name: "decode then decrypt",
			operations: []OperationConfig{
				{Name: "base64_decode"},
				{Name: "aes_ecb_decrypt", Parameters: key},
			},
			input:    "0apPZXiSZUL7tt2HbNIFCGD6NnB+RfSZ26DyW5IjAaU=",
			expected: "YELLOW SUBMARINE",
		},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline := &Pipeline{Operations: tt.operations, Reversible: true}
			got, err := pipeline.Execute(ctx, []byte(tt.input))
			if err != nil {
				t.Fatalf("pipeline failed: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestPipelineReverse(t *testing.T) {
	pipeline := &Pipeline{
		Operations: []OperationConfig{
			{Name: "xor_repeating", Parameters: map[string]interface{}{"key": "ICE"}},
			{Name: "aes_cbc_encrypt", Parameters: map[string]interface{}{"key": "YELLOW SUBMARINE"}},
			{Name: "hex_encode"},
		},
		Reversible: true,
	}
	ctx := context.Background()
	encoded, err := pipeline.Execute(ctx, []byte("attack at dawn"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	reversed, err := pipeline.Reverse()
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if reversed.Operations[0].Name != "hex_decode" || reversed.Operations[2].Name != "xor_repeating" {
		t.Fatalf("unexpected reversed order: %+v", reversed.Operations)
	}
	decoded, err := reversed.Execute(ctx, encoded)
	if err != nil {
		t.Fatalf("reversed Execute: %v", err)
	}
	if string(decoded) != "attack at dawn" {
		t.Fatalf("expected round trip, got %q", decoded)
	}

	if _, err := (&Pipeline{Operations: pipeline.Operations}).Reverse(); err == nil {
		t.Fatal("expected error reversing a non-reversible pipeline")
	}
}

func TestPipelineErrors(t *testing.T) {
	ctx := context.Background()
	p := &Pipeline{Operations: []OperationConfig{{Name: "nope"}}}
	if _, err := p.Execute(ctx, nil); err == nil || !strings.Contains(err.Error(), "unknown operation") {
		t.Fatalf("expected unknown operation error, got %v", err)
	}

	p = &Pipeline{Operations: []OperationConfig{{Name: "hex_decode"}}}
	if _, err := p.Execute(ctx, []byte("xyz")); err == nil || !strings.Contains(err.Error(), "step 0") {
		t.Fatalf("expected step error, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := p.Execute(cancelled, []byte("00")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLoadPipeline(t *testing.T) {
	src := `
operations:
  - name: base64_decode
  - name: aes_cbc_decrypt
    parameters:
      key: YELLOW SUBMARINE
      iv_hex: "00000000000000000000000000000000"
reversible: true
`
	p, err := LoadPipeline(strings.NewReader(src))
	if err != nil {
		t.Fatalf("LoadPipeline: %v", err)
	}
	got, err := p.Execute(context.Background(), []byte("0apPZXiSZUL7tt2HbNIFCNyi2E9IlqAKtd7NEJ0c6pk="))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(got) != "YELLOW SUBMARINE" {
		t.Fatalf("expected plaintext, got %q", got)
	}

	if _, err := LoadPipeline(strings.NewReader("operations: []\n")); err == nil {
		t.Fatal("expected error for empty pipeline")
	}
	if _, err := LoadPipeline(strings.NewReader("steps: []\n")); err == nil {
		t.Fatal("expected error for unknown field")
	}
}
