package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tecp-protocol/tecp/pkg/receipt"
	"github.com/tecp-protocol/tecp/pkg/signer"
)

func runIssueCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("issue", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		codeRef    string
		inputPath  string
		outputPath string
		policyIDs  string
		seedHex    string
		outPath    string
	)
	cmd.StringVar(&codeRef, "code-ref", "", "identifier of the code that produced this output (REQUIRED)")
	cmd.StringVar(&inputPath, "input", "", "path to the input file (empty input allowed if omitted)")
	cmd.StringVar(&outputPath, "output", "", "path to the output file (REQUIRED)")
	cmd.StringVar(&policyIDs, "policy-ids", "", "comma-separated policy ids this computation claims to satisfy")
	cmd.StringVar(&seedHex, "seed-hex", "", "hex-encoded Ed25519 seed to sign with (generates an ephemeral key if omitted)")
	cmd.StringVar(&outPath, "out", "", "write the signed receipt envelope to this file instead of stdout")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if codeRef == "" || outputPath == "" {
		fmt.Fprintln(stderr, "Error: --code-ref and --output are required")
		cmd.Usage()
		return 2
	}

	var inputBytes []byte
	if inputPath != "" {
		b, err := os.ReadFile(inputPath)
		if err != nil {
			fmt.Fprintf(stderr, "read --input: %v\n", err)
			return 2
		}
		inputBytes = b
	}
	outputBytes, err := os.ReadFile(outputPath)
	if err != nil {
		fmt.Fprintf(stderr, "read --output: %v\n", err)
		return 2
	}

	var ids []string
	if policyIDs != "" {
		ids = strings.Split(policyIDs, ",")
	}

	var provider signer.KeyProvider
	if seedHex != "" {
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			fmt.Fprintf(stderr, "--seed-hex: %v\n", err)
			return 2
		}
		provider, err = signer.FromSeed(seed)
		if err != nil {
			fmt.Fprintf(stderr, "--seed-hex: %v\n", err)
			return 2
		}
	} else {
		provider, err = signer.NewMemoryKeyProvider()
		if err != nil {
			fmt.Fprintf(stderr, "key generation failed: %v\n", err)
			return 2
		}
		fmt.Fprintln(stderr, "no --seed-hex given; issued with an ephemeral signing key")
	}
	s := signer.New(provider)

	r, ext, err := receipt.Create(context.Background(), s, receipt.CreateParams{
		CodeRef:   codeRef,
		Input:     inputBytes,
		Output:    outputBytes,
		PolicyIDs: ids,
	})
	if err != nil {
		fmt.Fprintf(stderr, "issue failed: %v\n", err)
		return 2
	}

	env := receipt.Envelope{Receipt: r, Extensions: ext}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "encode failed: %v\n", err)
		return 2
	}

	if outPath != "" {
		if err := os.WriteFile(outPath, data, 0o600); err != nil {
			fmt.Fprintf(stderr, "write %s failed: %v\n", outPath, err)
			return 2
		}
		fmt.Fprintf(stdout, "wrote receipt to %s\n", outPath)
		return 0
	}

	fmt.Fprintln(stdout, string(data))
	return 0
}
