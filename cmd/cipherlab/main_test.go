package main

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/RowanDark/cipherlab/internal/engine"
	"github.com/RowanDark/cipherlab/internal/runstore"
	"github.com/RowanDark/cipherlab/internal/transform"
	"github.com/RowanDark/cipherlab/internal/xorbreak"
)

func captureStdout(t *testing.T, fn func() int) (string, int) {
	t.Helper()
	original := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("create pipe: %v", err)
	}
	os.Stdout = w
	done := make(chan []byte)
	go func() {
		data, _ := io.ReadAll(r)
		done <- data
	}()
	exitCode := fn()
	if err := w.Close(); err != nil {
		t.Fatalf("close pipe writer: %v", err)
	}
	data := <-done
	if err := r.Close(); err != nil {
		t.Fatalf("close pipe reader: %v", err)
	}
	os.Stdout = original
	return string(data), exitCode
}

// isolate points configuration and the run store at a temporary home.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CIPHERLAB_STORE", filepath.Join(home, "runs.db"))
	t.Setenv("CIPHERLAB_AUDIT_LOG", filepath.Join(home, "audit.log"))
	return home
}

func TestParseOpSpec(t *testing.T) {
	cases := []struct {
		spec    string
		want    transform.OperationConfig
		wantErr bool
	}{
		{spec: "hex_encode", want: transform.OperationConfig{Name: "hex_encode"}},
		{
			spec: "aes_cbc_encrypt:key=YELLOW SUBMARINE,iv_hex=00000000000000000000000000000000",
			want: transform.OperationConfig{Name: "aes_cbc_encrypt", Parameters: map[string]interface{}{
				"key":    "YELLOW SUBMARINE",
				"iv_hex": "00000000000000000000000000000000",
			}},
		},
		{spec: "pkcs7_pad:block_size=20", want: transform.OperationConfig{Name: "pkcs7_pad", Parameters: map[string]interface{}{"block_size": "20"}}},
		{spec: ":key=x", wantErr: true},
		{spec: "xor_repeating:novalue", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.spec, func(t *testing.T) {
			got, err := parseOpSpec(tc.spec)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseOpSpec: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRunTransformRoundTrip(t *testing.T) {
	dir := t.TempDir()
	plainPath := filepath.Join(dir, "plain.txt")
	cipherPath := filepath.Join(dir, "cipher.hex")
	if err := os.WriteFile(plainPath, []byte("attack at dawn"), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}
	ops := []string{"--op", "aes_ecb_encrypt:key=YELLOW SUBMARINE", "--op", "hex_encode"}

	if code := runTransform(append(append([]string{}, ops...), "--in", plainPath, "--out", cipherPath)); code != 0 {
		t.Fatalf("encrypt exit code %d", code)
	}
	encoded, err := os.ReadFile(cipherPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(encoded) != 32 {
		t.Fatalf("expected one hex-encoded block, got %q", encoded)
	}

	out, code := captureStdout(t, func() int {
		return runTransform(append(append([]string{}, ops...), "--reverse", "--in", cipherPath))
	})
	if code != 0 {
		t.Fatalf("decrypt exit code %d", code)
	}
	if out != "attack at dawn" {
		t.Fatalf("unexpected plaintext %q", out)
	}
}

func TestRunTransformPipelineFile(t *testing.T) {
	dir := t.TempDir()
	pipelinePath := filepath.Join(dir, "pipeline.yml")
	pipeline := `operations:
  - name: xor_repeating
    parameters:
      key: ICE
  - name: hex_encode
`
	if err := os.WriteFile(pipelinePath, []byte(pipeline), 0o600); err != nil {
		t.Fatalf("write pipeline: %v", err)
	}
	inPath := filepath.Join(dir, "in.txt")
	input := "Burning 'em, if you ain't quick and nimble\nI go crazy when I hear a cymbal"
	if err := os.WriteFile(inPath, []byte(input), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}
	out, code := captureStdout(t, func() int {
		return runTransform([]string{"--pipeline", pipelinePath, "--in", inPath})
	})
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	want := "0b3637272a2b2e63622c2e69692a23693a2a3c6324202d623d63343c2a26226324272765272a282b2f20430a652e2c652a3124333a653e2b2027630c692b20283165286326302e27282f"
	if out != want {
		t.Fatalf("unexpected output:\n got %s\nwant %s", out, want)
	}
}

func TestRunTransformFlagErrors(t *testing.T) {
	cases := map[string][]string{
		"no pipeline":     {},
		"both sources":    {"--pipeline", "p.yml", "--op", "hex_encode"},
		"unknown reverse": {"--op", "no_such_op", "--reverse"},
		"unknown flag":    {"--bogus"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if code := runTransform(args); code != 2 {
				t.Fatalf("expected exit code 2, got %d", code)
			}
		})
	}
}

func TestRunBreakXOR(t *testing.T) {
	plain := `Every lighthouse keeper learns the rhythm of the lamp before anything else.
The lens turns, the beam sweeps the water, and ships far out at sea count the
seconds between flashes to know which coast they are passing. On calm nights
the work is quiet: trimming wicks, winding the clockwork, writing the weather
into a book that nobody reads. On stormy nights the keeper climbs the stairs
again and again, checking that the glass is clean and the light still burns.`
	ct := xorbreak.Repeating([]byte("tern"), []byte(plain))
	inPath := filepath.Join(t.TempDir(), "ct.b64")
	encoded := base64.StdEncoding.EncodeToString(ct)
	// Wrap like the usual challenge files.
	var wrapped strings.Builder
	for len(encoded) > 60 {
		wrapped.WriteString(encoded[:60] + "\n")
		encoded = encoded[60:]
	}
	wrapped.WriteString(encoded + "\n")
	if err := os.WriteFile(inPath, []byte(wrapped.String()), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}

	out, code := captureStdout(t, func() int {
		return runBreakXOR([]string{"--in", inPath, "--no-store", "--json"})
	})
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	var cands []xorCandidateOutput
	if err := json.Unmarshal([]byte(out), &cands); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(cands) == 0 {
		t.Fatal("expected candidates")
	}
	if cands[0].Plaintext != plain {
		t.Fatalf("plaintext mismatch: %q", cands[0].Plaintext)
	}
	if cands[0].Key != strings.Repeat("tern", cands[0].KeySize/4) {
		t.Fatalf("unexpected key %q", cands[0].Key)
	}
}

func TestDecodeInput(t *testing.T) {
	if _, err := decodeInput([]byte("zz"), "hex"); err == nil {
		t.Fatal("expected hex error")
	}
	if _, err := decodeInput([]byte("abc"), "rot13"); err == nil {
		t.Fatal("expected unknown encoding error")
	}
	got, err := decodeInput([]byte("68 65\n6c6c 6f"), "hex")
	if err != nil {
		t.Fatalf("decode hex: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestRunRecoverRecordsRun(t *testing.T) {
	home := isolate(t)
	secret := "the eagle lands at midnight\n"
	t.Setenv("CIPHERLAB_HIDDEN_SUFFIX_B64", base64.StdEncoding.EncodeToString([]byte(secret)))

	out, code := captureStdout(t, func() int { return runRecover(nil) })
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if out != secret {
		t.Fatalf("recovered %q, want %q", out, secret)
	}

	out, code = captureStdout(t, func() int { return runRuns([]string{"--json"}) })
	if code != 0 {
		t.Fatalf("runs exit code %d", code)
	}
	var runs []runstore.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Attack != "recover" || runs[0].Status != runstore.StatusSucceeded {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	audit, err := os.ReadFile(filepath.Join(home, "audit.log"))
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(audit), `"attack_completed"`) {
		t.Fatalf("audit log missing completion event:\n%s", audit)
	}
	if strings.Contains(string(audit), "eagle") {
		t.Fatal("secret leaked into audit log")
	}
}

func TestRunForgeJSON(t *testing.T) {
	isolate(t)
	out, code := captureStdout(t, func() int { return runForge([]string{"--json", "--no-store"}) })
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	var res forgeOutput
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if res.Role != "admin" {
		t.Fatalf("role = %q, want admin (record %q)", res.Role, res.Record)
	}
	if res.BlockSize != 16 {
		t.Fatalf("block size = %d", res.BlockSize)
	}
}

func TestRunForgeRejectsLongFiller(t *testing.T) {
	if code := runForge([]string{"--filler", "AB"}); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

func TestRunDetectCoinToss(t *testing.T) {
	isolate(t)
	out, code := captureStdout(t, func() int {
		return runDetect([]string{"--trials", "30", "--json", "--no-store"})
	})
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	var report engine.DetectReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Trials != 30 || report.Checked != 30 || report.Correct != 30 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if code := run([]string{"frobnicate"}); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}
