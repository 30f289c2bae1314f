package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tecp-protocol/tecp/pkg/signer"
	"github.com/tecp-protocol/tecp/pkg/sth"
)

type keygenOutput struct {
	Kid     string `json:"kid"`
	PubKey  string `json:"pubkey_hex"`
	SeedHex string `json:"seed_hex"`
}

func runKeygenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		jsonOutput bool
		outPath    string
	)
	cmd.BoolVar(&jsonOutput, "json", false, "output result as JSON")
	cmd.StringVar(&outPath, "out", "", "write the seed/kid as JSON to this file instead of stdout")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	p, err := signer.NewMemoryKeyProvider()
	if err != nil {
		fmt.Fprintf(stderr, "key generation failed: %v\n", err)
		return 2
	}
	kid := sth.DeriveKid(p.PublicKey())

	out := keygenOutput{
		Kid:     kid,
		PubKey:  hex.EncodeToString(p.PublicKey()),
		SeedHex: hex.EncodeToString(p.Seed()),
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "encode failed: %v\n", err)
		return 2
	}

	if outPath != "" {
		if err := os.WriteFile(outPath, data, 0o600); err != nil {
			fmt.Fprintf(stderr, "write %s failed: %v\n", outPath, err)
			return 2
		}
		fmt.Fprintf(stdout, "wrote signing key to %s (kid=%s)\n", outPath, kid)
		return 0
	}

	if jsonOutput {
		fmt.Fprintln(stdout, string(data))
		return 0
	}

	fmt.Fprintf(stdout, "kid:      %s\n", out.Kid)
	fmt.Fprintf(stdout, "pubkey:   %s\n", out.PubKey)
	fmt.Fprintf(stdout, "seed_hex: %s\n", out.SeedHex)
	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "Keep seed_hex secret. It reconstructs the private signing key.")
	return 0
}
