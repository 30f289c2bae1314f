package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"tecp", "bogus"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if errOut.Len() == 0 {
		t.Fatal("expected usage/error output on stderr")
	}
}

func TestRun_NoArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"tecp"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestKeygen_JSON(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"tecp", "keygen", "--json"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("keygen exit code = %d, stderr=%s", code, errOut.String())
	}
	var result keygenOutput
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal keygen output: %v", err)
	}
	if len(result.Kid) != 16 {
		t.Errorf("kid length = %d, want 16", len(result.Kid))
	}
	if len(result.SeedHex) != 64 {
		t.Errorf("seed_hex length = %d, want 64 hex chars", len(result.SeedHex))
	}
}

func TestIssueAndVerify_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "output.bin")
	if err := os.WriteFile(outputPath, []byte("hello world"), 0o600); err != nil {
		t.Fatal(err)
	}
	bundlePath := filepath.Join(dir, "receipt.json")

	var out, errOut bytes.Buffer
	code := Run([]string{
		"tecp", "issue",
		"--code-ref", "sha256:deadbeef",
		"--output", outputPath,
		"--policy-ids", "no_retention,region_eu_only",
		"--out", bundlePath,
	}, &out, &errOut)
	if code != 0 {
		t.Fatalf("issue exit code = %d, stderr=%s", code, errOut.String())
	}

	if _, err := os.Stat(bundlePath); err != nil {
		t.Fatalf("expected receipt file: %v", err)
	}

	var verifyOut, verifyErr bytes.Buffer
	code = Run([]string{"tecp", "verify", "--bundle", bundlePath, "--json"}, &verifyOut, &verifyErr)
	if code != 0 {
		t.Fatalf("verify exit code = %d, stderr=%s, stdout=%s", code, verifyErr.String(), verifyOut.String())
	}

	var report struct {
		Valid   bool   `json:"valid"`
		Profile string `json:"profile"`
	}
	if err := json.Unmarshal(verifyOut.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal verify report: %v", err)
	}
	if !report.Valid {
		t.Errorf("expected report.Valid = true, got false: %s", verifyOut.String())
	}
	if report.Profile != "LITE" {
		t.Errorf("profile = %s, want LITE", report.Profile)
	}
}

func TestVerify_MissingBundleFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"tecp", "verify"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestVerify_TamperedReceiptFails(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "output.bin")
	if err := os.WriteFile(outputPath, []byte("hello world"), 0o600); err != nil {
		t.Fatal(err)
	}
	bundlePath := filepath.Join(dir, "receipt.json")

	var out, errOut bytes.Buffer
	code := Run([]string{"tecp", "issue", "--code-ref", "sha256:deadbeef", "--output", outputPath, "--out", bundlePath}, &out, &errOut)
	if code != 0 {
		t.Fatalf("issue exit code = %d", code)
	}

	data, err := os.ReadFile(bundlePath)
	if err != nil {
		t.Fatal(err)
	}
	var env map[string]interface{}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	env["code_ref"] = "sha256:tampered"
	tampered, _ := json.Marshal(env)
	if err := os.WriteFile(bundlePath, tampered, 0o600); err != nil {
		t.Fatal(err)
	}

	var verifyOut, verifyErr bytes.Buffer
	code = Run([]string{"tecp", "verify", "--bundle", bundlePath, "--json"}, &verifyOut, &verifyErr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1 (tampered receipt should fail verification)", code)
	}
}
