package main

import (
	"crypto/ed25519"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/tecp-protocol/tecp/pkg/profile"
	"github.com/tecp-protocol/tecp/pkg/receipt"
	"github.com/tecp-protocol/tecp/pkg/sth"
	"github.com/tecp-protocol/tecp/pkg/verify"
)

// runVerifyCmd mirrors core/cmd/helm/verify_cmd.go's shape: a
// flag.FlagSet, dual JSON/human-readable output, an optional
// --json-out report file, and exit codes 0 (pass) / 1 (verification
// failed) / 2 (runtime/usage error).
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		bundlePath string
		jwksPath   string
		profileStr string
		jsonOutput bool
		jsonOut    string
	)
	cmd.StringVar(&bundlePath, "bundle", "", "path to a receipt envelope JSON file (REQUIRED)")
	cmd.StringVar(&jwksPath, "jwks", "", "path to a JWKS file to resolve the signing key by kid (defaults to trusting the embedded pubkey)")
	cmd.StringVar(&profileStr, "profile", "LITE", "acceptance profile: LITE or STRICT")
	cmd.BoolVar(&jsonOutput, "json", false, "output the verification report as JSON")
	cmd.StringVar(&jsonOut, "json-out", "", "also write the JSON report to this file")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if bundlePath == "" {
		fmt.Fprintln(stderr, "Error: --bundle is required")
		cmd.Usage()
		return 2
	}

	data, err := os.ReadFile(bundlePath)
	if err != nil {
		fmt.Fprintf(stderr, "read --bundle: %v\n", err)
		return 2
	}
	if err := verify.ValidateSchema(data); err != nil {
		report := verify.Report{
			Valid:   false,
			Profile: profile.Name(profileStr),
			Checks:  []verify.CheckResult{{Name: "schema", Pass: false, Detail: err.Error()}},
		}
		if jsonOutput {
			reportData, _ := json.MarshalIndent(report, "", "  ")
			fmt.Fprintln(stdout, string(reportData))
		} else {
			printHumanReport(stdout, report)
		}
		return 1
	}
	var env receipt.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		fmt.Fprintf(stderr, "parse --bundle: %v\n", err)
		return 2
	}

	var keyring *sth.Keyring
	if jwksPath != "" {
		keyring, err = loadKeyringFromJWKS(jwksPath)
		if err != nil {
			fmt.Fprintf(stderr, "load --jwks: %v\n", err)
			return 2
		}
	}

	rules := profile.Resolve(profile.Name(profileStr))
	report := verify.Verify(env, verify.Options{
		Profile: rules,
		Keyring: keyring,
		Now:     time.Now(),
	})

	if jsonOut != "" {
		reportData, _ := json.MarshalIndent(report, "", "  ")
		if err := os.WriteFile(jsonOut, reportData, 0o644); err != nil {
			fmt.Fprintf(stderr, "write --json-out: %v\n", err)
		}
	}

	if jsonOutput {
		reportData, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "encode report: %v\n", err)
			return 2
		}
		fmt.Fprintln(stdout, string(reportData))
	} else {
		printHumanReport(stdout, report)
	}

	if !report.Valid {
		return 1
	}
	return 0
}

func printHumanReport(w io.Writer, report verify.Report) {
	if report.Valid {
		fmt.Fprintf(w, "✅ receipt valid under profile %s\n", report.Profile)
	} else {
		fmt.Fprintf(w, "❌ receipt invalid under profile %s\n", report.Profile)
	}
	for _, c := range report.Checks {
		mark := "✅"
		if !c.Pass {
			mark = "❌"
		}
		fmt.Fprintf(w, "  %s %-12s", mark, c.Name)
		if c.Detail != "" {
			fmt.Fprintf(w, " %s", c.Detail)
		}
		if c.Code != "" {
			fmt.Fprintf(w, " [%s]", c.Code)
		}
		fmt.Fprintln(w)
	}
	for _, warn := range report.Warnings {
		fmt.Fprintf(w, "  ⚠ %s\n", warn)
	}
}

func loadKeyringFromJWKS(path string) (*sth.Keyring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	kr := sth.NewKeyring()
	for _, k := range set.Keys {
		pub, ok := k.Key.(ed25519.PublicKey)
		if !ok {
			continue
		}
		kr.Add(sth.KeyEntry{Kid: k.KeyID, Alg: "Ed25519", PubKey: pub, Status: sth.StatusActive})
	}
	return kr, nil
}
