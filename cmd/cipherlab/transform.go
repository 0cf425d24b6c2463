package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/RowanDark/cipherlab/internal/transform"
)

// opFlags collects repeated --op values of the form name[:key=value,...].
type opFlags []transform.OperationConfig

func (o *opFlags) String() string {
	names := make([]string, len(*o))
	for i, op := range *o {
		names[i] = op.Name
	}
	return strings.Join(names, ",")
}

func (o *opFlags) Set(value string) error {
	op, err := parseOpSpec(value)
	if err != nil {
		return err
	}
	*o = append(*o, op)
	return nil
}

func parseOpSpec(spec string) (transform.OperationConfig, error) {
	name, rawParams, _ := strings.Cut(spec, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return transform.OperationConfig{}, fmt.Errorf("operation name missing in %q", spec)
	}
	cfg := transform.OperationConfig{Name: name}
	if strings.TrimSpace(rawParams) == "" {
		return cfg, nil
	}
	cfg.Parameters = make(map[string]interface{})
	for _, pair := range strings.Split(rawParams, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return transform.OperationConfig{}, fmt.Errorf("invalid parameter %q in %q", pair, spec)
		}
		cfg.Parameters[key] = value
	}
	return cfg, nil
}

func runTransform(args []string) int {
	fs := flag.NewFlagSet("transform", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var ops opFlags
	fs.Var(&ops, "op", "operation as name[:key=value,...] (repeatable)")
	pipelinePath := fs.String("pipeline", "", "YAML pipeline definition")
	reverse := fs.Bool("reverse", false, "run the inverse pipeline")
	in := fs.String("in", "", "input file (default: stdin)")
	out := fs.String("out", "", "output file (default: stdout)")
	list := fs.Bool("list", false, "list available operations and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *list {
		for _, op := range transform.ListOperations() {
			fmt.Printf("%-18s %-8s %s\n", op.Name(), op.Type(), op.Description())
		}
		return 0
	}

	var pipeline *transform.Pipeline
	switch {
	case *pipelinePath != "" && len(ops) > 0:
		fmt.Fprintln(os.Stderr, "--pipeline and --op are mutually exclusive")
		return 2
	case *pipelinePath != "":
		data, err := os.ReadFile(*pipelinePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read pipeline: %v\n", err)
			return 1
		}
		pipeline, err = transform.LoadPipeline(bytes.NewReader(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 2
		}
	case len(ops) > 0:
		pipeline = &transform.Pipeline{Operations: ops, Reversible: true}
	default:
		fmt.Fprintln(os.Stderr, "either --pipeline or --op is required")
		return 2
	}

	if *reverse {
		reversed, err := pipeline.Reverse()
		if err != nil {
			fmt.Fprintf(os.Stderr, "reverse pipeline: %v\n", err)
			return 2
		}
		pipeline = reversed
	}

	input, err := readInput(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		return 1
	}
	output, err := pipeline.Execute(context.Background(), input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "transform: %v\n", err)
		return 1
	}

	if *out != "" {
		if err := os.WriteFile(*out, output, 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "write output: %v\n", err)
			return 1
		}
		return 0
	}
	if _, err := os.Stdout.Write(output); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}
