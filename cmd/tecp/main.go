// Command tecp is the TECP command-line tool: key generation, receipt
// issuance, offline verification, and a convenience wrapper
// around the ledger service, following a switch-on-args.Run dispatcher
// in the style of core/cmd/helm/main.go.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint used both by main and by tests.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "keygen":
		return runKeygenCmd(args[2:], stdout, stderr)
	case "issue":
		return runIssueCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "serve":
		return runServeCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "tecp - Trusted Ephemeral Computation Protocol CLI")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  tecp <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  keygen   Generate an Ed25519 signing keypair")
	fmt.Fprintln(w, "  issue    Issue a signed receipt for given input/output")
	fmt.Fprintln(w, "  verify   Verify a receipt against a profile")
	fmt.Fprintln(w, "  serve    Run the ledger HTTP service")
	fmt.Fprintln(w, "  help     Show this help")
}
