package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/RowanDark/cipherlab/internal/attack"
	"github.com/RowanDark/cipherlab/internal/engine"
	"github.com/RowanDark/cipherlab/internal/oracle"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runDetect(args []string) int {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "path to a config file (default: standard search path)")
	remote := fs.String("remote", "", "address of a remote oracle (host:port)")
	oracleKind := fs.String("oracle", "coin-toss", "local oracle: coin-toss or configured")
	trials := fs.Int("trials", 100, "number of ciphertexts to classify")
	noStore := fs.Bool("no-store", false, "do not record the run")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *trials <= 0 {
		fmt.Fprintln(os.Stderr, "--trials must be positive")
		return 2
	}

	sess, err := openSession(sessionOptions{configPath: *configPath, noStore: *noStore, remote: *remote})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer sess.Close()

	ctx, stop := signalContext()
	defer stop()

	var target engine.Target
	switch {
	case *remote != "":
		target, err = sess.remoteTarget(ctx, *remote)
	case *oracleKind == "coin-toss":
		target, _, err = sess.engine.NewCoinTossOracle()
	case *oracleKind == "configured":
		target, _, err = sess.engine.NewOracle()
	default:
		fmt.Fprintf(os.Stderr, "unknown oracle %q (want coin-toss or configured)\n", *oracleKind)
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "prepare oracle: %v\n", err)
		return 1
	}

	report, err := sess.engine.Detect(ctx, target, *trials)
	if err != nil {
		fmt.Fprintf(os.Stderr, "detect: %v\n", err)
		return 1
	}
	if *asJSON {
		if err := writeJSON(os.Stdout, report); err != nil {
			fmt.Fprintf(os.Stderr, "write report: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Printf("trials: %d\necb: %d\ncbc: %d\n", report.Trials, report.ECB, report.CBC)
	if report.Checked > 0 {
		fmt.Printf("correct: %d/%d\n", report.Correct, report.Checked)
	}
	return 0
}

type recoverOutput struct {
	BlockSize int    `json:"block_size"`
	Queries   int    `json:"queries"`
	Length    int    `json:"length"`
	Suffix    string `json:"suffix"`
}

func runRecover(args []string) int {
	fs := flag.NewFlagSet("recover", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "path to a config file (default: standard search path)")
	remote := fs.String("remote", "", "address of a remote oracle (host:port)")
	asHex := fs.Bool("hex", false, "print the suffix hex encoded")
	noStore := fs.Bool("no-store", false, "do not record the run")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	sess, err := openSession(sessionOptions{configPath: *configPath, noStore: *noStore, remote: *remote})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer sess.Close()

	ctx, stop := signalContext()
	defer stop()

	var target engine.Target
	if *remote != "" {
		target, err = sess.remoteTarget(ctx, *remote)
	} else {
		target, _, err = sess.engine.NewOracle()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "prepare oracle: %v\n", err)
		return 1
	}

	res, err := sess.engine.Recover(ctx, target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recover: %v\n", err)
		return 1
	}
	suffix := string(res.Suffix)
	if *asHex {
		suffix = hex.EncodeToString(res.Suffix)
	}
	if *asJSON {
		out := recoverOutput{BlockSize: res.BlockSize, Queries: res.Queries, Length: len(res.Suffix), Suffix: suffix}
		if err := writeJSON(os.Stdout, out); err != nil {
			fmt.Fprintf(os.Stderr, "write result: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(os.Stderr, "recovered %d bytes with %d queries (block size %d)\n", len(res.Suffix), res.Queries, res.BlockSize)
	fmt.Print(suffix)
	if !strings.HasSuffix(suffix, "\n") {
		fmt.Println()
	}
	return 0
}

type forgeOutput struct {
	Ciphertext  string `json:"ciphertext"`
	BlockSize   int    `json:"block_size"`
	FieldOffset int    `json:"field_offset"`
	Queries     int    `json:"queries"`
	Record      string `json:"record,omitempty"`
	Role        string `json:"role,omitempty"`
}

func runForge(args []string) int {
	fs := flag.NewFlagSet("forge", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "path to a config file (default: standard search path)")
	remote := fs.String("remote", "", "address of a remote profile oracle (host:port)")
	replace := fs.String("replace", "user", "value of the final field to replace")
	inject := fs.String("inject", "admin", "value to splice in its place")
	filler := fs.String("filler", "A", "single filler character used for alignment")
	noStore := fs.Bool("no-store", false, "do not record the run")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(*filler) != 1 {
		fmt.Fprintln(os.Stderr, "--filler must be a single byte")
		return 2
	}

	sess, err := openSession(sessionOptions{configPath: *configPath, noStore: *noStore, remote: *remote})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer sess.Close()

	ctx, stop := signalContext()
	defer stop()

	var (
		target  engine.Target
		profile *oracle.ProfileOracle
	)
	if *remote != "" {
		target, err = sess.remoteTarget(ctx, *remote)
	} else {
		target, profile, err = sess.engine.NewProfileOracle()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "prepare oracle: %v\n", err)
		return 1
	}

	forged, err := sess.engine.Forge(ctx, target, attack.ForgeOptions{
		Replace: *replace,
		Inject:  *inject,
		Filler:  (*filler)[0],
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "forge: %v\n", err)
		return 1
	}

	out := forgeOutput{
		Ciphertext:  hex.EncodeToString(forged.Ciphertext),
		BlockSize:   forged.BlockSize,
		FieldOffset: forged.FieldOffset,
		Queries:     forged.Queries,
	}
	if profile != nil {
		fields, err := profile.Decrypt(forged.Ciphertext)
		if err != nil {
			fmt.Fprintf(os.Stderr, "decrypt forged record: %v\n", err)
			return 1
		}
		out.Record = oracle.ExpandProfile(fields)
		out.Role, _ = oracle.Lookup(fields, "role")
	}
	if *asJSON {
		if err := writeJSON(os.Stdout, out); err != nil {
			fmt.Fprintf(os.Stderr, "write result: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Printf("ciphertext: %s\n", out.Ciphertext)
	if out.Record != "" {
		fmt.Printf("record: %s\nrole: %s\n", out.Record, out.Role)
	}
	return 0
}

type xorCandidateOutput struct {
	KeySize   int     `json:"key_size"`
	Distance  float64 `json:"distance"`
	Score     int     `json:"score"`
	Key       string  `json:"key"`
	Plaintext string  `json:"plaintext"`
}

func runBreakXOR(args []string) int {
	fs := flag.NewFlagSet("break-xor", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "path to a config file (default: standard search path)")
	in := fs.String("in", "", "ciphertext file (default: stdin)")
	encoding := fs.String("encoding", "base64", "input encoding: base64, hex or raw")
	noStore := fs.Bool("no-store", false, "do not record the run")
	asJSON := fs.Bool("json", false, "print every candidate as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	raw, err := readInput(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		return 1
	}
	ct, err := decodeInput(raw, *encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode input: %v\n", err)
		return 2
	}

	sess, err := openSession(sessionOptions{configPath: *configPath, noStore: *noStore})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer sess.Close()

	ctx, stop := signalContext()
	defer stop()

	cands, err := sess.engine.BreakXOR(ctx, ct)
	if err != nil {
		fmt.Fprintf(os.Stderr, "break-xor: %v\n", err)
		return 1
	}
	if len(cands) == 0 {
		fmt.Fprintln(os.Stderr, "break-xor: no candidate keys")
		return 1
	}
	if *asJSON {
		out := make([]xorCandidateOutput, len(cands))
		for i, c := range cands {
			out[i] = xorCandidateOutput{
				KeySize:   c.KeySize,
				Distance:  c.Distance,
				Score:     c.Score,
				Key:       string(c.Key),
				Plaintext: string(c.Plaintext),
			}
		}
		if err := writeJSON(os.Stdout, out); err != nil {
			fmt.Fprintf(os.Stderr, "write result: %v\n", err)
			return 1
		}
		return 0
	}
	for _, c := range cands {
		fmt.Fprintf(os.Stderr, "key size %-3d distance %.3f score %-6d key %q\n", c.KeySize, c.Distance, c.Score, c.Key)
	}
	fmt.Printf("key: %s\n\n%s\n", cands[0].Key, cands[0].Plaintext)
	return 0
}

func decodeInput(raw []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "base64":
		clean := strings.Join(strings.Fields(string(raw)), "")
		return base64.StdEncoding.DecodeString(clean)
	case "hex":
		return hex.DecodeString(strings.Join(strings.Fields(string(raw)), ""))
	case "raw":
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}
