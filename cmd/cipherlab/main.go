package main

import (
	"flag"
	"fmt"
	"os"
)

const productName = "cipherlab"

var version = "dev"

func init() {
	defaultUsage := flag.Usage
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintln(out, productName+" - block cipher attack lab")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Commands:")
		fmt.Fprintln(out, "  detect      classify oracle output as ECB or CBC")
		fmt.Fprintln(out, "  recover     recover an oracle's hidden suffix byte by byte")
		fmt.Fprintln(out, "  forge       forge an admin profile by cut-and-paste")
		fmt.Fprintln(out, "  break-xor   break repeating-key XOR ciphertext")
		fmt.Fprintln(out, "  transform   run an encoding/cipher pipeline over input")
		fmt.Fprintln(out, "  serve       expose the configured oracle over gRPC")
		fmt.Fprintln(out, "  runs        list recorded attack runs")
		fmt.Fprintln(out, "  version     print the version")
		fmt.Fprintln(out)
		if defaultUsage != nil {
			defaultUsage()
		}
	}
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	os.Exit(run(args))
}

func run(args []string) int {
	switch args[0] {
	case "detect":
		return runDetect(args[1:])
	case "recover":
		return runRecover(args[1:])
	case "forge":
		return runForge(args[1:])
	case "break-xor":
		return runBreakXOR(args[1:])
	case "transform":
		return runTransform(args[1:])
	case "serve":
		return runServe(args[1:])
	case "runs":
		return runRuns(args[1:])
	case "version":
		return runVersion(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		return 2
	}
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "version takes no arguments")
		return 2
	}
	fmt.Printf("%s %s\n", productName, version)
	return 0
}
